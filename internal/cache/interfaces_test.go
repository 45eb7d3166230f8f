package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// INTERFACE COMPLIANCE TESTS (TDD)
// =============================================================================

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	require.NotNil(t, config)
	assert.Equal(t, 10*time.Minute, config.DuplicateShareTTL)
	assert.Equal(t, "redis:6379", config.RedisAddr)
	assert.Equal(t, 1, config.RedisDB)
	assert.Equal(t, "poolcore:", config.KeyPrefix)
}

// =============================================================================
// INTERFACE IMPLEMENTATION VERIFICATION
// =============================================================================

// Verify interface segregation - each interface is independently usable
func TestInterfaceSegregation(t *testing.T) {
	t.Run("CacheReader is independent", func(t *testing.T) {
		var _ CacheReader = (*mockCacheReader)(nil)
	})

	t.Run("CacheWriter is independent", func(t *testing.T) {
		var _ CacheWriter = (*mockCacheWriter)(nil)
	})

	t.Run("CacheInvalidator is independent", func(t *testing.T) {
		var _ CacheInvalidator = (*mockCacheInvalidator)(nil)
	})

	t.Run("Cache combines all interfaces", func(t *testing.T) {
		var _ Cache = (*mockCache)(nil)
	})
}

// =============================================================================
// MOCK IMPLEMENTATIONS FOR INTERFACE VERIFICATION
// =============================================================================

type mockCacheReader struct{}

func (m *mockCacheReader) Get(_ context.Context, _ string) ([]byte, error)  { return nil, nil }
func (m *mockCacheReader) Exists(_ context.Context, _ string) (bool, error) { return false, nil }

type mockCacheWriter struct{}

func (m *mockCacheWriter) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
func (m *mockCacheWriter) Delete(_ context.Context, _ string) error { return nil }

type mockCacheInvalidator struct{}

func (m *mockCacheInvalidator) DeletePattern(_ context.Context, _ string) error { return nil }
func (m *mockCacheInvalidator) Flush(_ context.Context) error                   { return nil }

type mockCache struct {
	mockCacheReader
	mockCacheWriter
	mockCacheInvalidator
}
