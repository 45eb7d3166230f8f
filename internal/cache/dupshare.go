package cache

import (
	"context"
	"fmt"
	"time"
)

// DuplicateShareCache lets multiple Stratifier processes behind the same
// Connector share one per-workbase duplicate-share set, instead of each
// process only catching duplicates against its own in-memory tracker.
type DuplicateShareCache struct {
	cache Cache
	ttl   time.Duration
}

// NewDuplicateShareCache wraps an existing Cache; ttl should comfortably
// exceed the workbase grace window so a share can't slip through after its
// workbase retires but before the set entry expires.
func NewDuplicateShareCache(cache Cache, ttl time.Duration) *DuplicateShareCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DuplicateShareCache{cache: cache, ttl: ttl}
}

func dupShareKey(jobID uint64, sessionID uint64, nonce2, ntime, nonce string) string {
	return fmt.Sprintf("dupshare:%d:%d:%s:%s:%s", jobID, sessionID, nonce2, ntime, nonce)
}

// CheckAndRecord reports whether (jobID, sessionID, nonce2, ntime, nonce) has
// already been seen. The first caller to record a given key gets false
// (not a duplicate); every subsequent caller within ttl gets true.
func (d *DuplicateShareCache) CheckAndRecord(ctx context.Context, jobID, sessionID uint64, nonce2, ntime, nonce string) (bool, error) {
	key := dupShareKey(jobID, sessionID, nonce2, ntime, nonce)

	exists, err := d.cache.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("duplicate share lookup: %w", err)
	}
	if exists {
		return true, nil
	}

	if err := d.cache.Set(ctx, key, []byte{1}, d.ttl); err != nil {
		return false, fmt.Errorf("duplicate share record: %w", err)
	}
	return false, nil
}
