package stratifier

import (
	"sync"

	"github.com/stratacore/poolcore/internal/session"
)

// DefaultShardCount is the number of buckets the session table is split
// across, keeping each bucket's critical section short under high connection
// counts (the teacher's documented 100k-connection design target).
const DefaultShardCount = 64

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[uint64]*session.Session
}

// SessionTable is the Stratifier's sharded instance_lock-scoped session
// table: a FNV-1a hash of the session id picks the shard, so concurrent
// dispatch on unrelated sessions rarely contends on the same lock.
type SessionTable struct {
	shards []*sessionShard
}

// NewSessionTable creates an empty table with DefaultShardCount shards.
func NewSessionTable() *SessionTable {
	return NewSessionTableWithShards(DefaultShardCount)
}

// NewSessionTableWithShards creates an empty table with shardCount shards,
// rounded up to the next power of two for fast modulo.
func NewSessionTableWithShards(shardCount int) *SessionTable {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	shardCount = nextPowerOf2(shardCount)

	t := &SessionTable{shards: make([]*sessionShard, shardCount)}
	for i := range t.shards {
		t.shards[i] = &sessionShard{sessions: make(map[uint64]*session.Session)}
	}
	return t
}

func (t *SessionTable) shardFor(id uint64) *sessionShard {
	hash := uint32(2166136261)
	for i := 0; i < 8; i++ {
		hash ^= uint32(id>>(i*8)) & 0xFF
		hash *= 16777619
	}
	return t.shards[hash&uint32(len(t.shards)-1)]
}

// Put inserts or replaces the session under its own ID.
func (t *SessionTable) Put(s *session.Session) {
	shard := t.shardFor(s.ID)
	shard.mu.Lock()
	shard.sessions[s.ID] = s
	shard.mu.Unlock()
}

// Get returns the session for id, if present.
func (t *SessionTable) Get(id uint64) (*session.Session, bool) {
	shard := t.shardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	s, ok := shard.sessions[id]
	return s, ok
}

// Remove unlinks id from the table, returning the removed session if present.
func (t *SessionTable) Remove(id uint64) (*session.Session, bool) {
	shard := t.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	s, ok := shard.sessions[id]
	if ok {
		delete(shard.sessions, id)
	}
	return s, ok
}

// Len returns the total number of tracked sessions.
func (t *SessionTable) Len() int {
	total := 0
	for _, shard := range t.shards {
		shard.mu.RLock()
		total += len(shard.sessions)
		shard.mu.RUnlock()
	}
	return total
}

// ForEach iterates every session across all shards. fn returning false stops
// iteration early. Intended for the watchdog tick, not the hot path. Each
// shard is copied under its read lock and fn runs with no lock held, so fn
// may call Remove.
func (t *SessionTable) ForEach(fn func(*session.Session) bool) {
	for _, shard := range t.shards {
		shard.mu.RLock()
		batch := make([]*session.Session, 0, len(shard.sessions))
		for _, s := range shard.sessions {
			batch = append(batch, s)
		}
		shard.mu.RUnlock()
		for _, s := range batch {
			if !fn(s) {
				return
			}
		}
	}
}

func nextPowerOf2(n int) int {
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}
