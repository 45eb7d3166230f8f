// Package poolerrors holds the sentinel errors for the core's error taxonomy
// (spec §7): a fixed set of per-client failure kinds, never exceptions, so
// callers can switch on them with errors.Is.
package poolerrors

import "errors"

var (
	// ErrMalformedRPC is returned for a JSON-RPC message that fails to parse
	// or has the wrong shape for its method.
	ErrMalformedRPC = errors.New("malformed rpc")

	// ErrUnsubscribedMethod is returned when a method other than subscribe/
	// suggest_difficulty/configure (mining.submit included) arrives before the
	// session has subscribed; the caller must drop the session.
	ErrUnsubscribedMethod = errors.New("method requires subscription")

	// ErrAuthRace is returned for mining.submit received while the session is
	// subscribed but not yet authorised.
	ErrAuthRace = errors.New("stale: not yet authorised")

	// ErrAuthFailure is returned when authorize credentials are rejected.
	ErrAuthFailure = errors.New("authorization failed")

	// ErrStale is returned for a share submitted against an unknown or
	// retired-beyond-grace job.
	ErrStale = errors.New("stale")

	// ErrDuplicate is returned for a share tuple already seen for its job.
	ErrDuplicate = errors.New("duplicate")

	// ErrInvalidNtime is returned when ntime falls outside the workbase's
	// accepted window.
	ErrInvalidNtime = errors.New("invalid ntime")

	// ErrLowDifficulty is returned when the share hash exceeds the session's
	// assigned target.
	ErrLowDifficulty = errors.New("low difficulty")

	// ErrRejectRun signals the watchdog should lazily drop a session after
	// too many consecutive invalid shares.
	ErrRejectRun = errors.New("reject run exceeded")

	// ErrIdleDrop signals the watchdog should drop a session for exceeding
	// dropidle seconds of silence.
	ErrIdleDrop = errors.New("idle drop")

	// ErrJobNotFound is returned by workbase resolution when the job id is
	// unknown to the store (distinct from retired-but-known).
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidParams is returned when mining.submit parameters fail shape
	// validation (wrong count/type, bad hex, empty workername, '/' in
	// workername, short nonce).
	ErrInvalidParams = errors.New("invalid params")
)
