package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Manager is the process-wide TTL cache for decoded upstream responses.
// Population is not mutually exclusive: two goroutines missing on the same
// key may both fetch and both write; the second write wins harmlessly since
// both hold equivalent values for the same request signature.
type Manager struct {
	cache *gocache.Cache
}

func NewManager(defaultTTL time.Duration) *Manager {
	return &Manager{
		cache: gocache.New(defaultTTL, 10*time.Minute),
	}
}

// RequestKey builds the cache key for one upstream request signature.
func RequestKey(endpoint, query, timespan string) string {
	return fmt.Sprintf("%s:%s:%s", endpoint, query, timespan)
}

func (m *Manager) Get(key string) (interface{}, bool) {
	return m.cache.Get(key)
}

// Set stores value under key. A zero ttl uses the manager default.
func (m *Manager) Set(key string, value interface{}, ttl time.Duration) {
	m.cache.Set(key, value, ttl)
}

func (m *Manager) Delete(key string) {
	m.cache.Delete(key)
}

func (m *Manager) Flush() {
	m.cache.Flush()
}
