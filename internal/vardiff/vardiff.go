// Package vardiff implements the variable-difficulty controller (spec
// component C8): the three-tier cadence, hysteresis band, clamp order, EMA
// smoothing, idle-return rule, and the job-id change-over invariant shared
// with the share acceptor.
package vardiff

import (
	"math"
	"time"

	"github.com/stratacore/poolcore/internal/session"
	"github.com/stratacore/poolcore/internal/target"
)

// DiffEpsilon is the smallest difficulty delta worth acting on; anything
// smaller is treated as no change to avoid thrashing on floating-point noise.
const DiffEpsilon = 1e-6

// expClamp bounds tdiff/period before it reaches math.Exp.
const expClamp = 36

// Params carries the per-evaluation constraints external to the Session
// itself: pool-wide and worker-specific floors/ceilings, plus the current
// network difficulty ceiling.
type Params struct {
	PoolMindiff   float64
	WorkerMindiff float64
	PoolMaxdiff   float64 // 0 means unset
	WorkerMaxdiff float64 // 0 means unset
	NetworkDiff   float64 // 0 means no ceiling known yet
}

// Tier names the cadence band a given (ssdc, tdiff) pair falls into.
type Tier string

const (
	TierUltraFast Tier = "ultra-fast"
	TierFast      Tier = "fast"
	TierNormal    Tier = "normal"
)

// Cadence implements the strict §4.8 three-tier boundary table.
func Cadence(ssdc int, tdiff float64) (period float64, tier Tier) {
	if ssdc >= 144 && tdiff < 15 {
		return 15, TierUltraFast
	}
	if ssdc >= 72 {
		return 60, TierFast
	}
	return 300, TierNormal
}

// Optimal computes optimal_raw = dsps * (2.4 if mindiffActive else 3.33),
// then normalizes it, preserving fractional values below 1.
func Optimal(dsps float64, mindiffActive bool) float64 {
	mult := 3.33
	if mindiffActive {
		mult = 2.4
	}
	return target.NormalizePoolDiff(dsps * mult)
}

// Clamp applies the §4.8 clamp order: pool_mindiff, worker_mindiff,
// pool_maxdiff (if set), worker_maxdiff (if set), network_diff ceiling.
func Clamp(optimal float64, p Params) float64 {
	if optimal < p.PoolMindiff {
		optimal = p.PoolMindiff
	}
	if optimal < p.WorkerMindiff {
		optimal = p.WorkerMindiff
	}
	if p.PoolMaxdiff > 0 && optimal > p.PoolMaxdiff {
		optimal = p.PoolMaxdiff
	}
	if p.WorkerMaxdiff > 0 && optimal > p.WorkerMaxdiff {
		optimal = p.WorkerMaxdiff
	}
	if p.NetworkDiff > 0 && optimal > p.NetworkDiff {
		optimal = p.NetworkDiff
	}
	return optimal
}

// Result is the outcome of one Evaluate call.
type Result struct {
	Changed bool
	NewDiff float64
	Period  float64
	Tier    Tier
}

// Evaluate runs one vardiff cycle against s without changing its difficulty;
// callers apply a Changed result via ApplyVardiffChange so the job-id
// annotation and ssdc reset happen atomically with the diff write under the
// caller's lock. The one field Evaluate itself writes is LastDiffChangeTime,
// which the idle-return rule resets.
func Evaluate(s *session.Session, p Params, dsps float64, mindiffActive bool, now time.Time) Result {
	tdiff := now.Sub(s.LastDiffChangeTime).Seconds()
	if tdiff < 0 {
		tdiff = 0 // clock-backwards safety
	}

	period, tier := Cadence(s.Ssdc, tdiff)
	noChange := Result{Changed: false, NewDiff: s.Diff, Period: period, Tier: tier}

	if s.Diff > 0 {
		drr := dsps / s.Diff
		if drr > 0.15 && drr < 0.4 {
			return noChange
		}
	}

	optimal := Clamp(Optimal(dsps, mindiffActive), p)
	if optimal <= 0 {
		return noChange
	}

	ratio := tdiff / period
	if ratio > expClamp {
		ratio = expClamp
	}
	timeBias := 1 - math.Exp(-ratio)
	newDiff := s.Diff + (optimal-s.Diff)*timeBias

	if math.Abs(s.Diff-newDiff) < DiffEpsilon {
		return noChange
	}

	if s.Ssdc == 1 && newDiff < s.Diff {
		// idle-return: a single post-idle share must not drop the miner's
		// diff; reset the cadence clock and wait for the next share.
		s.LastDiffChangeTime = now
		return noChange
	}

	return Result{Changed: true, NewDiff: newDiff, Period: period, Tier: tier}
}

// ApplyVardiffChange commits a Changed Evaluate result to s: the diff change
// takes effect on the next job the client will receive.
func ApplyVardiffChange(s *session.Session, newDiff float64, nextWorkbaseID uint64, now time.Time) {
	s.OldDiff = s.Diff
	s.Diff = newDiff
	s.DiffChangeJobID = nextWorkbaseID
	s.Ssdc = 0
	s.LastDiffChangeTime = now
}

// ApplyPasswordDiff commits a §4.7 password-suggested diff at authorize
// time. Unlike a vardiff change, this takes effect on the *current* workbase
// because the miner is about to submit against the job the pool just issued.
func ApplyPasswordDiff(s *session.Session, diff float64, currentWorkbaseID uint64) {
	s.OldDiff = s.Diff
	s.Diff = diff
	s.DiffChangeJobID = currentWorkbaseID
	s.PasswordDiffSet = true
}

// SuggestDifficulty implements the §4.8 suggest_difficulty no-op semantics.
// Returns true if a change was applied (and a mining.set_difficulty
// notification should be emitted).
func SuggestDifficulty(s *session.Session, requestedRaw, mindiff float64, lastIssuedJobID uint64) bool {
	requested := math.Max(mindiff, requestedRaw)
	if math.Abs(requested-s.SuggestDiff) < DiffEpsilon || math.Abs(s.Diff-requested) < DiffEpsilon {
		return false
	}

	s.OldDiff = s.Diff
	s.Diff = requested
	s.SuggestDiff = requested
	s.DiffChangeJobID = lastIssuedJobID + 1
	return true
}

// SelectDiff implements the §4.9 job-id ordering rule: a share belongs to
// old_diff if its job id predates the session's last diff-change job id,
// otherwise it belongs to the current diff.
func SelectDiff(s *session.Session, shareJobID uint64) float64 {
	if shareJobID < s.DiffChangeJobID {
		return s.OldDiff
	}
	return s.Diff
}
