// Package shareacceptor implements the mining.submit validation pipeline
// (spec component C9): admission, parameter shape, workbase resolution,
// duplicate and ntime checks, header assembly and hashing, difficulty
// selection, target comparison, network-target candidate detection, and
// accounting.
package shareacceptor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/stratacore/poolcore/internal/poolclock"
	"github.com/stratacore/poolcore/internal/poolerrors"
	"github.com/stratacore/poolcore/internal/poolhash"
	"github.com/stratacore/poolcore/internal/session"
	"github.com/stratacore/poolcore/internal/target"
	"github.com/stratacore/poolcore/internal/vardiff"
	"github.com/stratacore/poolcore/internal/workbase"
)

// NtimeWindow is the width of the ntime acceptance window, which runs from a
// workbase's curtime up to curtime + NtimeWindow (§4.9 step 4).
const NtimeWindow = 2 * time.Hour

// DefaultRejectThreshold is how many consecutive invalid shares before
// reject_run escalates to 2 (lazy-drop eligible). Not numerically specified
// by the source behavior; exposed as configuration per the grounding ledger.
const DefaultRejectThreshold = 10

func errInvalidParamsf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", poolerrors.ErrInvalidParams, fmt.Sprintf(format, args...))
}

// Result is the outcome of one Submit call.
type Result struct {
	Err              error // nil on accept; one of the poolerrors sentinels on reject
	Accepted         bool
	ShareDiff        float64 // diff_from_target(hash_le), the share's measured difficulty
	SessionDiff      float64 // the difficulty the share was credited at
	IsCandidateBlock bool
	HashLE           [32]byte
	CoinbaseBytes    []byte // only populated when IsCandidateBlock
}

// DuplicateChecker is an optional secondary duplicate check consulted after
// the in-process DuplicateTracker, letting multiple Stratifier processes
// behind one Connector share one duplicate-share view (e.g. a Redis-backed
// cache). A checker error fails open: the share is not treated as a
// duplicate on that basis alone.
type DuplicateChecker interface {
	CheckAndRecord(jobID, sessionID uint64, nonce2, ntime, nonce string) (bool, error)
}

// Acceptor holds the collaborators the share-validation pipeline needs.
type Acceptor struct {
	Workbases       *workbase.Store
	Dup             *DuplicateTracker
	External        DuplicateChecker
	RejectThreshold int
}

// NewAcceptor wires an Acceptor against an existing WorkBase store.
func NewAcceptor(store *workbase.Store) *Acceptor {
	return &Acceptor{
		Workbases:       store,
		Dup:             NewDuplicateTracker(),
		RejectThreshold: DefaultRejectThreshold,
	}
}

// Submit runs the full §4.9 pipeline for one mining.submit against s.
// clientVersionMask is the BIP320 mask the client subscribed for via
// mining.configure; it is the zero value if the client never negotiated
// version rolling.
func (a *Acceptor) Submit(s *session.Session, p SubmitParams, now time.Time, clientVersionMask [4]byte) Result {
	// Step 1: admission.
	if !s.Subscribed {
		return Result{Err: poolerrors.ErrUnsubscribedMethod}
	}
	if !s.Authorised {
		return a.reject(s, now, poolerrors.ErrAuthRace)
	}

	// Step 2: parameter shape.
	if err := validateShape(p); err != nil {
		return a.reject(s, now, err)
	}

	jobID, err := strconv.ParseUint(p.JobID, 10, 64)
	if err != nil {
		return a.reject(s, now, errInvalidParamsf("job_id must be a decimal integer"))
	}

	// Step 3: workbase resolution + duplicate detection.
	wb, ok := a.Workbases.Get(jobID)
	if !ok {
		return a.reject(s, now, poolerrors.ErrStale)
	}
	defer a.Workbases.Release(wb)

	if wb.IsRetired() {
		return a.reject(s, now, poolerrors.ErrStale)
	}

	if a.Dup.CheckAndRecord(jobID, s.ID, p.Nonce2Hex, p.NtimeHex, p.NonceHex) {
		return a.reject(s, now, poolerrors.ErrDuplicate)
	}
	if a.External != nil {
		if dup, err := a.External.CheckAndRecord(jobID, s.ID, p.Nonce2Hex, p.NtimeHex, p.NonceHex); err == nil && dup {
			return a.reject(s, now, poolerrors.ErrDuplicate)
		}
	}

	// Step 4: ntime sanity. The ntime hex is big-endian, as mining.notify
	// sends it; the header carries the same bytes reversed.
	ntimeBE := le4(p.NtimeHex)
	ntimeLE := [4]byte{ntimeBE[3], ntimeBE[2], ntimeBE[1], ntimeBE[0]}
	ntime := int64(beFromLE4(ntimeLE))
	if ntime < wb.Curtime || ntime > wb.Curtime+int64(NtimeWindow.Seconds()) {
		return a.reject(s, now, poolerrors.ErrInvalidNtime)
	}

	// Step 5: header assembly + double-SHA-256.
	nonce2, _ := decodeHexString(p.Nonce2Hex)
	nonceLE := le4(p.NonceHex)
	var submittedMaskLE [4]byte
	hasVersionBits := p.HasVersionMask
	if hasVersionBits {
		submittedMaskLE = le4(p.VersionMaskHex)
	}
	hashLE, coinbase := assembleHeader(wb, s.Extranonce1, nonce2, ntimeLE, nonceLE, clientVersionMask, submittedMaskLE, hasVersionBits)

	// Step 6: difficulty selection per the job-id rule, and measured share diff.
	sessionDiff := vardiff.SelectDiff(s, jobID)
	shareDiff := target.DiffFromTarget(hashLE)

	// Step 7: target compare.
	sessionTarget := target.TargetFromDiff(sessionDiff)
	if !poolhash.Fulltest(hashLE, sessionTarget) {
		return a.reject(s, now, poolerrors.ErrLowDifficulty)
	}

	result := Result{
		Accepted:    true,
		ShareDiff:   shareDiff,
		SessionDiff: sessionDiff,
		HashLE:      hashLE,
	}

	// Step 8: network target / candidate block.
	if poolhash.Fulltest(hashLE, wb.NetworkTarget) {
		result.IsCandidateBlock = true
		result.CoinbaseBytes = coinbase
	}

	// Step 9: accounting.
	a.account(s, now, sessionDiff)

	s.RejectRun = 0
	return result
}

// account implements §4.9 step 9's Session-side bookkeeping. Worker/User
// aggregator updates are the caller's responsibility (it holds the Worker/
// User pointers via the Session's back-references) and are expected to call
// Worker.RecordShare/User.RecordShare with the same sessionDiff; those derive
// their own decay interval from each entity's last share time.
func (a *Acceptor) account(s *session.Session, now time.Time, sessionDiff float64) {
	secs := poolclock.SaneTdiff(floatUnix(s.LastShareTime), floatUnix(now))
	if s.LastShareTime.IsZero() {
		secs = 0 // first share ever: no prior timestamp to decay against
	}

	decay := func(acc, add, secsArg, interval float64) float64 {
		return poolclock.DecayTime(acc, add, secsArg, interval)
	}
	s.Rates.Dsps15s = decay(s.Rates.Dsps15s, sessionDiff, secs, 15)
	s.Rates.Dsps1 = decay(s.Rates.Dsps1, sessionDiff, secs, 60)
	s.Rates.Dsps5 = decay(s.Rates.Dsps5, sessionDiff, secs, 300)
	s.Rates.Dsps60 = decay(s.Rates.Dsps60, sessionDiff, secs, 3600)
	s.Rates.Dsps1440 = decay(s.Rates.Dsps1440, sessionDiff, secs, 86400)
	s.Rates.Dsps10080 = decay(s.Rates.Dsps10080, sessionDiff, secs, 604800)

	if sessionDiff > s.BestDiff {
		s.BestDiff = sessionDiff
	}
	s.Uadiff += sessionDiff
	s.LastShareTime = now
	if s.FirstShareTime.IsZero() {
		s.FirstShareTime = now
	}
	s.Ssdc++
}

// reject implements §4.9 step 10's invalid-run bookkeeping and returns a
// Result carrying the rejection error.
func (a *Acceptor) reject(s *session.Session, now time.Time, err error) Result {
	if s.RejectRun == 0 {
		s.FirstInvalidTime = now
	}
	s.RejectRun++
	if s.RejectRun >= a.threshold() {
		s.RejectRun = 2 // saturate at the lazy-drop marker
	}
	return Result{Err: err}
}

func (a *Acceptor) threshold() int {
	if a.RejectThreshold <= 0 {
		return DefaultRejectThreshold
	}
	return a.RejectThreshold
}

func floatUnix(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
