package dispatch

import "errors"

var (
	// ErrUnauthorized means the caller is not permitted to act on the
	// booking. Surfaced to the user, never retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyClaimed means another therapist won the claim race. The
	// caller should re-fetch the pending list and pick a different booking.
	ErrAlreadyClaimed = errors.New("booking already claimed")

	// ErrStaleState means a lifecycle transition no longer matches the
	// booking's current status. The caller must re-read the booking to
	// resync before deciding whether to retry.
	ErrStaleState = errors.New("booking state is stale")

	// ErrNotFound means the booking does not exist.
	ErrNotFound = errors.New("booking not found")

	// ErrTimeout is a transient infrastructure failure. Safe to retry the
	// same call.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnavailable means a position sample could not be taken. Logged and
	// skipped at the tick level, never propagated into the lifecycle.
	ErrUnavailable = errors.New("position unavailable")
)
