// Package session implements the per-client Session state machine and the
// Worker/User entities it attaches to (spec component C6, plus the C7
// aggregator fields layered onto Worker and User).
package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// RollingRates holds the decayed share-rate windows shared by Session, Worker
// and User (§4.3/§4.9): 15s, 1m, 5m, 60m, 1440m (24h) and 10080m (7d).
type RollingRates struct {
	Dsps15s   float64
	Dsps1     float64
	Dsps5     float64
	Dsps60    float64
	Dsps1440  float64
	Dsps10080 float64
}

// decayAll applies one DecayTime step to every window using the same add/secs
// pair, matching §4.9's "decay_time for each rolling window" accounting rule.
func (r *RollingRates) decayAll(decay func(acc, add, secs, interval float64) float64, add, secs float64) {
	r.Dsps15s = decay(r.Dsps15s, add, secs, 15)
	r.Dsps1 = decay(r.Dsps1, add, secs, 60)
	r.Dsps5 = decay(r.Dsps5, add, secs, 300)
	r.Dsps60 = decay(r.Dsps60, add, secs, 3600)
	r.Dsps1440 = decay(r.Dsps1440, add, secs, 86400)
	r.Dsps10080 = decay(r.Dsps10080, add, secs, 604800)
}

// State is the Session lifecycle state, mirroring §4.6's Fresh/Subscribed/
// Authorized/Dropped diagram. It is derived from the Subscribed/Authorised/
// Dropped booleans rather than stored redundantly.
type State int

const (
	StateFresh State = iota
	StateSubscribed
	StateAuthorized
	StateDropped
)

// Session is one per subscribed TCP client.
type Session struct {
	ID uint64

	Subscribed  bool
	Authorising bool
	Authorised  bool
	Dropped     bool

	refcount int32 // accessed via atomic; incremented by borrowers outside the instance lock

	Diff            float64
	OldDiff         float64
	DiffChangeJobID uint64
	SuggestDiff     float64
	PasswordDiffSet bool

	Ssdc               int
	LastDiffChangeTime time.Time

	FirstShareTime time.Time
	LastShareTime  time.Time
	LastDecayTime  time.Time

	Rates    RollingRates
	BestDiff float64
	Uadiff   float64 // cumulative difficulty of all shares ever accepted on this session

	FirstInvalidTime time.Time
	RejectRun        int // 0/1/2, 2 means lazy-drop eligible

	Useragent  string
	Workername string

	User   *User
	Worker *Worker

	WorkbaseID  uint64
	Extranonce1 []byte // <= 16 bytes
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	switch {
	case s.Dropped:
		return StateDropped
	case s.Authorised:
		return StateAuthorized
	case s.Subscribed:
		return StateSubscribed
	default:
		return StateFresh
	}
}

// AddRef increments the borrow refcount; callers must pair with Release.
func (s *Session) AddRef() {
	atomic.AddInt32(&s.refcount, 1)
}

// Release decrements the borrow refcount.
func (s *Session) Release() {
	atomic.AddInt32(&s.refcount, -1)
}

// Refcount returns the current number of outstanding borrows.
func (s *Session) Refcount() int32 {
	return atomic.LoadInt32(&s.refcount)
}

// EligibleForCleanup reports the §3 cleanup condition: the session is marked
// dropped, its refcount has settled to exactly the watchdog's own borrow (1),
// and it is absent from the Connector (connectorKnowsID supplies that check).
func (s *Session) EligibleForCleanup(connectorKnowsID bool) bool {
	return s.Dropped && s.Refcount() == 1 && !connectorKnowsID
}

// ForceDecay applies one decay step to every rolling window with no new
// share folded in, used by the watchdog's cold-path scan to bring an idle
// session's rates down without waiting for its next submit.
func (s *Session) ForceDecay(decay func(acc, add, secs, interval float64) float64, secs float64) {
	s.Rates.decayAll(decay, 0, secs)
}

// Subscribe transitions Fresh -> Subscribed and assigns the extranonce1
// handed out for the life of the connection.
func (s *Session) Subscribe(extranonce1 []byte) {
	s.Subscribed = true
	s.Extranonce1 = extranonce1
}

// Drop marks the session terminally dropped. It is idempotent.
func (s *Session) Drop() {
	s.Dropped = true
}

// Worker is one per (user, workername) pair the user has ever submitted
// under. It is never freed during a run; its stats survive disconnect.
type Worker struct {
	mu sync.Mutex

	Workername    string
	InstanceCount int
	Useragent     string
	NormUseragent string

	StartTime   time.Time
	LastConnect time.Time

	Rates         RollingRates
	BestDiff      float64
	BestEver      float64
	LastShareTime time.Time

	Mindiff float64
	Idle    bool
}

// NewWorker creates a Worker entity, setting StartTime to now.
func NewWorker(workername string, now time.Time) *Worker {
	return &Worker{Workername: workername, StartTime: now, LastConnect: now}
}

// Attach increments the worker's instance_count on session attach.
func (w *Worker) Attach(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.InstanceCount++
	w.LastConnect = now
}

// Detach decrements instance_count on session detach; it never goes below 0.
func (w *Worker) Detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.InstanceCount > 0 {
		w.InstanceCount--
	}
}

// InstanceCountSnapshot returns the current attached-session count.
func (w *Worker) InstanceCountSnapshot() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.InstanceCount
}

// RecordShare applies the §4.9 Worker accounting update: decay every rolling
// window by shareDiff over the elapsed time since the worker's last recorded
// share, and raise best_diff/best_ever. The first share after attach decays
// nothing, matching the Session's own first-share rule.
func (w *Worker) RecordShare(decay func(acc, add, secs, interval float64) float64, shareDiff float64, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var secs float64
	if !w.LastShareTime.IsZero() {
		secs = float64(now.Sub(w.LastShareTime)) / float64(time.Second)
		if secs < 0 {
			secs = 0
		}
	}
	w.Rates.decayAll(decay, shareDiff, secs)
	w.LastShareTime = now
	if shareDiff > w.BestDiff {
		w.BestDiff = shareDiff
	}
	if shareDiff > w.BestEver {
		w.BestEver = shareDiff
	}
}

// SetNormUseragent applies the §4.5 worker UA write rule: the caller has
// already computed the value via useragent.WorkerUA given instance_count.
func (w *Worker) SetNormUseragent(norm string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.NormUseragent = norm
}

// User is one per unique username (typically a payout address).
type User struct {
	mu sync.Mutex

	ID       uint64
	Username string

	BtcAddress bool
	Script     bool
	Segwit     bool
	Txnbin     []byte

	Sessions []*Session
	Workers  []*Worker

	Rates         RollingRates
	BestDiff      float64
	BestEver      float64
	Shares        float64
	LastShareTime time.Time

	Authorised     bool
	AuthTime       time.Time
	FailedAuthTime time.Time
	AuthBackoff    float64 // seconds
	Throttled      bool
}

// NewUser creates an empty User entity for username.
func NewUser(id uint64, username string) *User {
	return &User{ID: id, Username: username}
}

// AttachSession adds s to the user's active session list.
func (u *User) AttachSession(s *Session) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Sessions = append(u.Sessions, s)
}

// DetachSession removes s from the user's active session list. It is a no-op
// if s is not present.
func (u *User) DetachSession(s *Session) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, sess := range u.Sessions {
		if sess == s {
			u.Sessions = append(u.Sessions[:i], u.Sessions[i+1:]...)
			return
		}
	}
}

// SessionCount returns the number of currently attached sessions.
func (u *User) SessionCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.Sessions)
}

// AddWorker appends w to the user's worker list if not already present.
func (u *User) AddWorker(w *Worker) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.Workers {
		if existing == w {
			return
		}
	}
	u.Workers = append(u.Workers, w)
}

// FindWorker returns the Worker with the given workername, if attached.
func (u *User) FindWorker(workername string) *Worker {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, w := range u.Workers {
		if w.Workername == workername {
			return w
		}
	}
	return nil
}

// RecordShare applies the §4.9 User accounting update: decay every rolling
// window over the elapsed time since the user's last recorded share, raise
// best_diff/best_ever, and add to cumulative shares.
func (u *User) RecordShare(decay func(acc, add, secs, interval float64) float64, shareDiff float64, now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	var secs float64
	if !u.LastShareTime.IsZero() {
		secs = float64(now.Sub(u.LastShareTime)) / float64(time.Second)
		if secs < 0 {
			secs = 0
		}
	}
	u.Rates.decayAll(decay, shareDiff, secs)
	u.LastShareTime = now
	if shareDiff > u.BestDiff {
		u.BestDiff = shareDiff
	}
	if shareDiff > u.BestEver {
		u.BestEver = shareDiff
	}
	u.Shares += shareDiff
}

// MarkAuthSuccess resets auth_backoff and stamps auth_time on a successful
// authorize, per §4.6 step 4.
func (u *User) MarkAuthSuccess(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Authorised = true
	u.AuthTime = now
	u.AuthBackoff = 0
}

// MarkAuthFailure doubles auth_backoff (capped) and stamps failed_authtime,
// per §4.6 step 5.
func (u *User) MarkAuthFailure(now time.Time, backoffCap float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.FailedAuthTime = now
	next := u.AuthBackoff * 2
	if next == 0 {
		next = 1 // first failure seeds a nonzero backoff to double from
	}
	if next > backoffCap {
		next = backoffCap
	}
	u.AuthBackoff = next
}

// InBackoff reports whether a new authorize attempt at now falls within the
// user's current backoff window following a prior failure.
func (u *User) InBackoff(now time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Authorised || u.AuthBackoff <= 0 || u.FailedAuthTime.IsZero() {
		return false
	}
	return now.Sub(u.FailedAuthTime).Seconds() < u.AuthBackoff
}
