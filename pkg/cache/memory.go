package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// memoryCache 进程内 LRU 缓存，容量满时淘汰最久未用的键
type memoryCache struct {
	lru        *expirable.LRU[string, memoryEntry]
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemory 创建内存缓存，defaultTTL 同时是任何条目的最长存活时间
func NewMemory(maxEntries int, prefix string, defaultTTL time.Duration) Cache {
	return &memoryCache{
		lru:        expirable.NewLRU[string, memoryEntry](maxEntries, nil, defaultTTL),
		prefix:     prefix,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (m *memoryCache) Get(_ context.Context, key string, value any) error {
	e, ok := m.lru.Get(m.prefix + key)
	if !ok {
		return ErrNotFound
	}
	if m.now().After(e.expiresAt) {
		m.lru.Remove(m.prefix + key)
		return ErrNotFound
	}
	return decode(e.data, value)
}

func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if ttl <= 0 || ttl > m.defaultTTL {
		ttl = m.defaultTTL
	}
	m.lru.Add(m.prefix+key, memoryEntry{data: data, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.lru.Remove(m.prefix + k)
	}
	return nil
}

func (m *memoryCache) Ping(context.Context) error { return nil }

func (m *memoryCache) Close() error {
	m.lru.Purge()
	return nil
}
