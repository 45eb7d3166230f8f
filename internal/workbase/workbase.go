// Package workbase implements the append-only WorkBase store (spec component C4):
// immutable job-template snapshots used to assemble share headers, referenced by a
// monotonically increasing id and kept alive by readers via a refcount.
package workbase

import (
	"sync"
	"sync/atomic"
	"time"
)

// WorkBase is an immutable template snapshot used to assemble share headers.
// Fields are set once at construction and never mutated afterward; only the
// store-managed bookkeeping (readcount, retired) changes over the entry's life.
type WorkBase struct {
	ID uint64

	VersionLE      [4]byte
	PrevHashLE     [32]byte
	Coinbase1      []byte
	Coinbase2      []byte
	MerkleBranches [][32]byte
	NBitsLE        [4]byte
	Curtime        int64 // unix seconds, the workbase's ntime
	NetworkTarget  [32]byte
	CleanJobs      bool

	CreatedAt time.Time

	readcount int32
	retired   int32 // 0/1, set via atomic
	retiredAt int64 // unix nano, valid once retired == 1
}

// IsRetired reports whether Retire has been called on this entry.
func (w *WorkBase) IsRetired() bool {
	return atomic.LoadInt32(&w.retired) == 1
}

// Readcount returns the current number of outstanding borrows.
func (w *WorkBase) Readcount() int32 {
	return atomic.LoadInt32(&w.readcount)
}

// Store is the append-only, refcounted WorkBase table.
type Store struct {
	mu          sync.RWMutex
	entries     map[uint64]*WorkBase
	nextID      uint64
	current     *WorkBase
	graceWindow time.Duration
}

// DefaultGraceWindow is how long a retired WorkBase is kept around (once its
// readcount has returned to zero) before it becomes eligible for Sweep removal,
// per the Open Question decision in the grounding ledger.
const DefaultGraceWindow = 120 * time.Second

// NewStore creates an empty store. graceWindow <= 0 uses DefaultGraceWindow.
func NewStore(graceWindow time.Duration) *Store {
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}
	return &Store{
		entries:     make(map[uint64]*WorkBase),
		graceWindow: graceWindow,
	}
}

// Put assigns a monotonically increasing id to wb, inserts it under the write
// lock, and marks it the current workbase. Returns the assigned id.
func (s *Store) Put(wb *WorkBase) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	wb.ID = s.nextID
	if wb.CreatedAt.IsZero() {
		wb.CreatedAt = time.Now()
	}
	s.entries[wb.ID] = wb
	s.current = wb
	return wb.ID
}

// Get performs a shared-locked lookup by id and, if found, increments its
// readcount before returning. The caller must call Release exactly once for
// every successful Get.
func (s *Store) Get(id uint64) (*WorkBase, bool) {
	s.mu.RLock()
	wb, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	atomic.AddInt32(&wb.readcount, 1)
	return wb, true
}

// Release decrements the readcount acquired by Get or Current.
func (s *Store) Release(wb *WorkBase) {
	if wb == nil {
		return
	}
	atomic.AddInt32(&wb.readcount, -1)
}

// Current returns the current workbase with its readcount incremented, or nil
// if no workbase has ever been Put. Readers that take this pointer continue to
// process against that id even if a newer workbase later becomes current, and
// must not observe a crash if this id is later retired underneath them.
func (s *Store) Current() *WorkBase {
	s.mu.RLock()
	wb := s.current
	s.mu.RUnlock()
	if wb == nil {
		return nil
	}
	atomic.AddInt32(&wb.readcount, 1)
	return wb
}

// CurrentID returns the id of the current workbase, or 0 if none has been Put.
func (s *Store) CurrentID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.ID
}

// Retire marks the entry retired as of now. It remains lookupable via Get
// until Sweep removes it (which only happens once its readcount has returned
// to zero and the grace window has elapsed).
func (s *Store) Retire(id uint64, now time.Time) {
	s.mu.RLock()
	wb, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if atomic.CompareAndSwapInt32(&wb.retired, 0, 1) {
		atomic.StoreInt64(&wb.retiredAt, now.UnixNano())
	}
}

// Sweep removes entries that are retired, have a zero readcount, and whose
// grace window has elapsed as of now. Returns the number of entries removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, wb := range s.entries {
		if wb == s.current {
			continue
		}
		if !wb.IsRetired() {
			continue
		}
		if wb.Readcount() > 0 {
			continue
		}
		retiredAt := time.Unix(0, atomic.LoadInt64(&wb.retiredAt))
		if now.Sub(retiredAt) < s.graceWindow {
			continue
		}
		delete(s.entries, id)
		removed++
	}
	return removed
}

// Len returns the number of entries currently tracked, including retired ones
// awaiting sweep.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
