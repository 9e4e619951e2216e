package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned by Get when the key is absent or expired.
var ErrKeyNotFound = errors.New("key does not exist")

// DefaultTTL is how long entries live unless a cache is created with another TTL.
const DefaultTTL = 72 * time.Hour

// CacheInterface defines the set of methods that need to be implemented to
// be used as a cache storage.
type CacheInterface interface {
	Connect(url string) error
	Disconnect() error
	Set(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string) (interface{}, error)
}

// NewCache creates a new CacheInterface. An empty url selects the in-process
// cache, anything else is treated as a Redis URL.
// It returns the cache instance or an error if the connection failed.
func NewCache(url string) (CacheInterface, error) {
	var cache CacheInterface
	if url == "" {
		cache = NewMemoryCache(DefaultTTL)
	} else {
		cache = NewRedisCache()
	}
	err := cache.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return cache, nil
}
