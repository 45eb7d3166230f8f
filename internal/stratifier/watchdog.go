package stratifier

import (
	"time"

	"github.com/stratacore/poolcore/internal/poolclock"
	"github.com/stratacore/poolcore/internal/session"
	"github.com/stratacore/poolcore/internal/useragent"
	"github.com/stratacore/poolcore/internal/vardiff"
)

// WatchdogReport summarizes one Tick's actions, useful for logging and tests.
type WatchdogReport struct {
	Unlinked     int
	DropsSent    int
	IdleDecayed  int
	MarkedIdle   int
	NewlyDropped int
	WorkbasesGC  int
}

// Tick implements the §4.10 watchdog pass: zombie-session reaping, the
// cold-path vardiff scan for silent sessions, and the dropidle timeout. It
// is meant to run on an O(1s) period. networkDiff is the most recently
// observed network difficulty ceiling (0 if unknown).
func (in *Instance) Tick(now time.Time, networkDiff float64) WatchdogReport {
	params := in.vardiffParams(networkDiff)
	var report WatchdogReport

	in.Workbases.Sweep(now)

	in.Sessions.ForEach(func(s *session.Session) bool {
		in.tickSession(s, now, params, &report)
		return true
	})

	return report
}

func (in *Instance) tickSession(s *session.Session, now time.Time, params vardiff.Params, report *WatchdogReport) {
	if s.Dropped {
		in.reapDropped(s, report)
		return
	}

	if in.Tuning.DropidleSeconds > 0 && !s.LastShareTime.IsZero() {
		idleFor := now.Sub(s.LastShareTime).Seconds()
		if idleFor > float64(in.Tuning.DropidleSeconds) {
			s.Dropped = true
			report.NewlyDropped++
			in.reapDropped(s, report)
			return
		}
	}

	in.coldPathVardiff(s, now, params, report)
}

// reapDropped implements the zombie-sweep half of the watchdog tick: a
// Session the Connector no longer knows about, with no other outstanding
// borrow, is unlinked from the table; otherwise a drop is (re)issued to the
// Connector, or nothing happens if another holder still has it refcounted.
func (in *Instance) reapDropped(s *session.Session, report *WatchdogReport) {
	connectorKnows := in.Connector != nil && in.Connector.ClientExists(s.ID)

	if s.EligibleForCleanup(connectorKnows) {
		in.Sessions.Remove(s.ID)
		in.UaReg.Remove(s.Useragent)
		if s.User != nil {
			s.User.DetachSession(s)
		}
		if s.Worker != nil {
			worker := s.Worker
			worker.Detach()
			worker.SetNormUseragent(useragent.WorkerUA(worker.InstanceCount, "", worker.NormUseragent))
		}
		report.Unlinked++
		return
	}

	if connectorKnows {
		in.Connector.DropClient(s.ID)
		report.DropsSent++
	}
	// refcount > 1 with no connector knowledge: another holder still owns a
	// reference and will reap it on release.
}

// coldPathVardiff forces a decay/re-clamp pass for sessions that have gone
// silent past the fast/ultra-fast cadence windows, so idle miners still see
// their difficulty come back down instead of waiting indefinitely for a
// share that pins the clock.
func (in *Instance) coldPathVardiff(s *session.Session, now time.Time, params vardiff.Params, report *WatchdogReport) {
	if s.LastDiffChangeTime.IsZero() {
		return
	}
	period, tier := vardiff.Cadence(s.Ssdc, now.Sub(s.LastDiffChangeTime).Seconds())
	if tier == vardiff.TierNormal {
		return
	}
	if !s.LastShareTime.IsZero() && now.Sub(s.LastShareTime).Seconds() <= period {
		return
	}

	secs := poolclock.SaneTdiff(floatUnix(s.LastDecayTime), floatUnix(now))
	if s.LastDecayTime.IsZero() {
		secs = 0
	}
	s.ForceDecay(poolclock.DecayTime, secs)
	s.LastDecayTime = now
	report.IdleDecayed++

	mindiffActive := s.Worker != nil && s.Worker.Mindiff > 0
	result := vardiff.Evaluate(s, params, s.Rates.Dsps5, mindiffActive, now)
	if result.Changed {
		nextJobID := in.Workbases.CurrentID() + 1
		vardiff.ApplyVardiffChange(s, result.NewDiff, nextJobID, now)
		if in.Connector != nil {
			payload, err := Marshal(NewDifficultyNotification(s.Diff))
			if err == nil {
				_ = in.Connector.SendToClient(s.ID, payload)
			}
		}
		report.MarkedIdle++
	}
}

func floatUnix(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
