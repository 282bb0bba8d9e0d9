package relay

import "errors"

var (
	// ErrNotFound is returned when a participant or session is absent. Relay
	// paths treat it as a normal race with teardown and drop the payload.
	ErrNotFound = errors.New("not found")
	// ErrNotMember is returned when a participant names a session it does not
	// belong to.
	ErrNotMember = errors.New("participant is not a session member")

	ErrAlreadyQueued       = errors.New("participant already queued")
	ErrDuplicateConnection = errors.New("duplicate connection id")
	ErrAlreadyPaired       = errors.New("participant already paired")
	// ErrInvalidPair is returned when a session would pair a participant with
	// itself. The queue invariants make this unreachable.
	ErrInvalidPair = errors.New("invalid pair")

	ErrTooManyParticipants = errors.New("too many participants")
)
