package orm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tokmz/pawchat/pkg/logger"
)

// Logger 将 GORM 日志写入 pkg/logger
type Logger struct {
	log           logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	logQueries    bool
}

var _ gormlogger.Interface = (*Logger)(nil)

// NewLogger 创建 GORM 日志适配器
func NewLogger(log logger.Logger, slowThreshold time.Duration, logQueries bool) *Logger {
	return &Logger{log: log, level: gormlogger.Warn, slowThreshold: slowThreshold, logQueries: logQueries}
}

// LogMode 返回指定级别的副本
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.InfoContext(ctx, msg, zap.Any("args", args))
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.WarnContext(ctx, msg, zap.Any("args", args))
	}
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.ErrorContext(ctx, msg, zap.Any("args", args))
	}
}

// Trace 记录一条 SQL：失败记 Error，慢查询记 Warn，其余仅在 logQueries 时记 Debug
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	fields := func() []zap.Field {
		sql, rows := fc()
		return []zap.Field{zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed)}
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.log.ErrorContext(ctx, "query failed", append(fields(), zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.log.WarnContext(ctx, "slow query", append(fields(), zap.Duration("threshold", l.slowThreshold))...)
	case l.logQueries:
		l.log.DebugContext(ctx, "query", fields()...)
	}
}
