// Package cache provides a small key/value cache used to avoid repeating
// identical upstream requests.
package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// ErrMiss is returned when a key is not present.
var ErrMiss = errors.New("cache: miss")

// Cache is implemented by MemcacheService and MemoryCache.
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, expiration time.Duration) error
	Delete(key string) error
}

// MemcacheService implements Cache using memcache
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a client for one or more memcache servers.
func NewMemcacheService(servers ...string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(servers...),
	}
}

func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Ping checks that every configured server answers.
func (m *MemcacheService) Ping() error {
	return m.client.Ping()
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// MemoryCache is an in-process Cache, used when no memcache server is
// configured and in tests.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (c *MemoryCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if !item.expires.IsZero() && c.now().After(item.expires) {
		delete(c.items, key)
		return nil, ErrMiss
	}
	return item.value, nil
}

func (c *MemoryCache) Set(key string, value []byte, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := memoryItem{value: append([]byte(nil), value...)}
	if expiration > 0 {
		item.expires = c.now().Add(expiration)
	}
	c.items[key] = item
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}
