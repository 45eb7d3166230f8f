package cache

import (
	"context"
	"time"
)

// =============================================================================
// ISP-COMPLIANT CACHE INTERFACES
// Each interface is small and focused on a single responsibility
// =============================================================================

// CacheReader handles cache read operations
type CacheReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheWriter handles cache write operations
type CacheWriter interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheInvalidator handles cache invalidation
type CacheInvalidator interface {
	DeletePattern(ctx context.Context, pattern string) error
	Flush(ctx context.Context) error
}

// Cache combines read and write operations (full cache interface)
type Cache interface {
	CacheReader
	CacheWriter
	CacheInvalidator
}

// =============================================================================
// CACHE CONFIGURATION
// =============================================================================

// CacheConfig holds cache configuration
type CacheConfig struct {
	// DuplicateShareTTL is the default entry lifetime for the duplicate-share
	// set; callers with a workbase grace window typically override this.
	DuplicateShareTTL time.Duration `json:"duplicate_share_ttl"`

	// Redis settings
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Key prefixes
	KeyPrefix string `json:"key_prefix"` // Default: "poolcore:"
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		DuplicateShareTTL: 10 * time.Minute,
		RedisAddr:         "redis:6379",
		RedisDB:           1, // Use DB 1 for cache (DB 0 for sessions)
		KeyPrefix:         "poolcore:",
	}
}

