package orm

import (
	"fmt"
	"time"
)

// DBType 数据库类型
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 数据库配置（database.*）
type Config struct {
	Type DBType `mapstructure:"type"` // mysql, postgres, sqlite, sqlserver
	DSN  string `mapstructure:"dsn"`

	// 连接池
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	SkipDefaultTransaction bool `mapstructure:"skip_default_transaction"`
	PrepareStmt            bool `mapstructure:"prepare_stmt"`

	// 慢查询阈值，超过时以 Warn 记录
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	// 记录每条 SQL（Debug 级别）
	LogQueries bool `mapstructure:"log_queries"`

	TablePrefix string `mapstructure:"table_prefix"`

	// 为每次操作创建 span
	Tracing bool `mapstructure:"tracing"`

	// 读写分离（可选）
	ReadWriteSplit *ReadWriteSplitConfig `mapstructure:"read_write_split"`
}

// ReadWriteSplitConfig 读写分离配置
type ReadWriteSplitConfig struct {
	Sources []string `mapstructure:"sources"` // 只读副本 DSN
	Policy  string   `mapstructure:"policy"`  // random, round_robin

	// 未设置时与主库一致
	MaxIdleConns *int `mapstructure:"max_idle_conns"`
	MaxOpenConns *int `mapstructure:"max_open_conns"`
}

// DefaultConfig 返回默认配置（本地 SQLite 文件）
func DefaultConfig() *Config {
	return &Config{
		Type:            SQLite,
		DSN:             "pawchat.db",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PrepareStmt:     true,
		SlowThreshold:   200 * time.Millisecond,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("orm: dsn is required")
	}
	switch c.Type {
	case MySQL, PostgreSQL, SQLite, SQLServer:
	default:
		return fmt.Errorf("orm: unsupported database type: %q", c.Type)
	}
	if c.ReadWriteSplit != nil && len(c.ReadWriteSplit.Sources) == 0 {
		return fmt.Errorf("orm: read_write_split requires at least one source")
	}
	return nil
}
