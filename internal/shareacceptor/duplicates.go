package shareacceptor

import "sync"

// dupKey identifies one submitted share tuple for duplicate detection,
// scoped per workbase per §4.9 step 3.
type dupKey struct {
	sessionID uint64
	nonce2    string
	ntime     string
	nonce     string
}

// DuplicateTracker is the per-workbase duplicate-share set. It is read-mostly
// with small probabilistic-shaped insertions, matching the spec's resource
// policy for this collaborator (§5).
type DuplicateTracker struct {
	mu   sync.Mutex
	sets map[uint64]map[dupKey]struct{} // jobID -> seen tuples
}

// NewDuplicateTracker creates an empty tracker.
func NewDuplicateTracker() *DuplicateTracker {
	return &DuplicateTracker{sets: make(map[uint64]map[dupKey]struct{})}
}

// CheckAndRecord reports whether (jobID, sessionID, nonce2, ntime, nonce) has
// already been seen for jobID; if not, it records it and returns false.
func (d *DuplicateTracker) CheckAndRecord(jobID, sessionID uint64, nonce2, ntime, nonce string) bool {
	key := dupKey{sessionID: sessionID, nonce2: nonce2, ntime: ntime, nonce: nonce}

	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.sets[jobID]
	if !ok {
		set = make(map[dupKey]struct{})
		d.sets[jobID] = set
	}
	if _, seen := set[key]; seen {
		return true
	}
	set[key] = struct{}{}
	return false
}

// Forget discards the duplicate set for a job id once its workbase has been
// freed by the store, so memory doesn't grow unboundedly across retirement.
func (d *DuplicateTracker) Forget(jobID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sets, jobID)
}
