package shareacceptor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratacore/poolcore/internal/poolerrors"
	"github.com/stratacore/poolcore/internal/session"
	"github.com/stratacore/poolcore/internal/workbase"
)

func newTestSession(id uint64, diff float64) *session.Session {
	s := &session.Session{ID: id}
	s.Subscribe([]byte{0xaa, 0xbb, 0xcc, 0xdd})
	s.Authorised = true
	s.Diff = diff
	s.OldDiff = diff
	return s
}

func newTestWorkbase(store *workbase.Store, curtime int64) *workbase.WorkBase {
	wb := &workbase.WorkBase{
		Coinbase1:     []byte{0x01, 0x02},
		Coinbase2:     []byte{0x03, 0x04},
		Curtime:       curtime,
		NetworkTarget: [32]byte{}, // all-zero: effectively unreachable, no accidental candidate blocks
	}
	for i := range wb.NetworkTarget {
		wb.NetworkTarget[i] = 0x00
	}
	store.Put(wb)
	return wb
}

func baseParams(jobID string) SubmitParams {
	return SubmitParams{
		Workername: "alice.rig1",
		JobID:      jobID,
		Nonce2Hex:  "00000001",
		NtimeHex:   "00000000",
		NonceHex:   "deadbeef",
	}
}

func TestSubmitRejectsUnsubscribedSession(t *testing.T) {
	store := workbase.NewStore(0)
	a := NewAcceptor(store)
	s := &session.Session{ID: 1}

	res := a.Submit(s, baseParams("1"), time.Now(), [4]byte{})
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err, poolerrors.ErrUnsubscribedMethod)
}

func TestSubmitRejectsBeforeAuthorised(t *testing.T) {
	store := workbase.NewStore(0)
	a := NewAcceptor(store)
	s := &session.Session{ID: 1}
	s.Subscribe([]byte{1, 2, 3, 4})

	res := a.Submit(s, baseParams("1"), time.Now(), [4]byte{})
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err, poolerrors.ErrAuthRace)
	assert.Equal(t, 1, s.RejectRun)
}

func TestSubmitRejectsMalformedWorkername(t *testing.T) {
	store := workbase.NewStore(0)
	a := NewAcceptor(store)
	s := newTestSession(1, 0.0001)

	p := baseParams("1")
	p.Workername = "alice/rig1"
	res := a.Submit(s, p, time.Now(), [4]byte{})
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err, poolerrors.ErrInvalidParams)
}

func TestSubmitRejectsStaleJobID(t *testing.T) {
	store := workbase.NewStore(0)
	a := NewAcceptor(store)
	s := newTestSession(1, 0.0001)

	res := a.Submit(s, baseParams("999"), time.Now(), [4]byte{})
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err, poolerrors.ErrStale)
}

func TestSubmitRejectsRetiredWorkbaseWithinGraceWindow(t *testing.T) {
	store := workbase.NewStore(0)
	wb := newTestWorkbase(store, time.Now().Unix())
	store.Retire(wb.ID, time.Now())
	a := NewAcceptor(store)
	s := newTestSession(1, 0.0001)

	res := a.Submit(s, baseParams(itoa(wb.ID)), time.Now(), [4]byte{})
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err, poolerrors.ErrStale)
}

func TestSubmitAcceptsLowDifficultyShareAgainstEasySessionDiff(t *testing.T) {
	store := workbase.NewStore(0)
	wb := newTestWorkbase(store, 0)
	a := NewAcceptor(store)

	// at this session diff the target exceeds 2^256-1 and clamps to the
	// maximum, so every hash passes; this keeps the test deterministic without
	// a real mining search.
	s := newTestSession(1, 1e-12)
	s.WorkbaseID = wb.ID

	p := baseParams(itoa(wb.ID))
	res := a.Submit(s, p, time.Unix(wb.Curtime, 0), [4]byte{})

	require.True(t, res.Accepted, "expected acceptance, got err=%v", res.Err)
	assert.Greater(t, res.ShareDiff, 0.0)
	assert.Equal(t, 1e-12, res.SessionDiff)
	assert.Equal(t, 1, s.Ssdc)
	assert.Greater(t, s.Uadiff, 0.0)
}

func TestSubmitRejectsDuplicateShare(t *testing.T) {
	store := workbase.NewStore(0)
	wb := newTestWorkbase(store, 0)
	a := NewAcceptor(store)
	s := newTestSession(1, 1e-12)

	p := baseParams(itoa(wb.ID))
	now := time.Unix(wb.Curtime, 0)

	first := a.Submit(s, p, now, [4]byte{})
	require.True(t, first.Accepted)

	second := a.Submit(s, p, now, [4]byte{})
	assert.False(t, second.Accepted)
	assert.ErrorIs(t, second.Err, poolerrors.ErrDuplicate)
}

func TestSubmitRejectsNtimeOutsideWindow(t *testing.T) {
	store := workbase.NewStore(0)
	wb := newTestWorkbase(store, 1700000000)
	a := NewAcceptor(store)
	s := newTestSession(1, 1e-9)

	p := baseParams(itoa(wb.ID))
	p.NtimeHex = "00000000" // unix 0, far before the [Curtime, Curtime+2h] window

	res := a.Submit(s, p, time.Unix(wb.Curtime, 0), [4]byte{})
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err, poolerrors.ErrInvalidNtime)
}

func TestSubmitAppliesJobIDDifficultySelectionRule(t *testing.T) {
	store := workbase.NewStore(0)
	wbOld := newTestWorkbase(store, 0)
	wbNew := newTestWorkbase(store, 0)
	a := NewAcceptor(store)

	s := newTestSession(1, 1e-12)
	s.OldDiff = 1e-12
	s.Diff = 5000 // a much harder current diff that the test hash would fail
	s.DiffChangeJobID = wbNew.ID

	p := baseParams(itoa(wbOld.ID))
	res := a.Submit(s, p, time.Unix(0, 0), [4]byte{})

	require.True(t, res.Accepted, "expected the old, easy diff to apply for a pre-change job id, got err=%v", res.Err)
	assert.Equal(t, s.OldDiff, res.SessionDiff)
}

func TestSubmitEscalatesRejectRunOnRepeatedFailures(t *testing.T) {
	store := workbase.NewStore(0)
	a := NewAcceptor(store)
	a.RejectThreshold = 2
	s := newTestSession(1, 1e-9)

	for i := 0; i < 3; i++ {
		res := a.Submit(s, baseParams("not-a-job"), time.Now(), [4]byte{})
		assert.False(t, res.Accepted)
	}
	assert.Equal(t, 2, s.RejectRun)
	assert.False(t, s.FirstInvalidTime.IsZero())
}

type fakeDuplicateChecker struct {
	dup   bool
	err   error
	calls int
}

func (f *fakeDuplicateChecker) CheckAndRecord(jobID, sessionID uint64, nonce2, ntime, nonce string) (bool, error) {
	f.calls++
	return f.dup, f.err
}

func TestSubmitRejectsDuplicateFromExternalChecker(t *testing.T) {
	store := workbase.NewStore(0)
	wb := newTestWorkbase(store, time.Now().Unix())
	a := NewAcceptor(store)
	a.External = &fakeDuplicateChecker{dup: true}
	s := newTestSession(1, 1e-9)

	res := a.Submit(s, baseParams(itoa(wb.ID)), time.Now(), [4]byte{})
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err, poolerrors.ErrDuplicate)
}

func TestSubmitFailsOpenWhenExternalCheckerErrors(t *testing.T) {
	store := workbase.NewStore(0)
	wb := newTestWorkbase(store, time.Now().Unix())
	a := NewAcceptor(store)
	checker := &fakeDuplicateChecker{dup: true, err: errors.New("cache unavailable")}
	a.External = checker

	s := newTestSession(1, 1e-9)
	res := a.Submit(s, baseParams(itoa(wb.ID)), time.Now(), [4]byte{})

	assert.Equal(t, 1, checker.calls)
	assert.False(t, res.Err != nil && res.Err == poolerrors.ErrDuplicate)
}

func itoa(u uint64) string {
	if u == 0 {
		return "0"
	}
	digits := []byte{}
	for u > 0 {
		digits = append([]byte{byte('0' + u%10)}, digits...)
		u /= 10
	}
	return string(digits)
}
