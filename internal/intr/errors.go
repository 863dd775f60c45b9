package intr

import "errors"

var (
	// ErrIRQConflict is returned when a registration would mix exclusive and
	// shared handlers on one line, or targets the reserved termination line.
	ErrIRQConflict = errors.New("intr: conflicts with already registered IRQs")
	// ErrThreadUnavailable is returned by RaiseIRQ when the interrupt thread
	// is not running.
	ErrThreadUnavailable = errors.New("intr: interrupt thread not running")
	// ErrThreadSpawn is returned when the interrupt thread cannot be started.
	ErrThreadSpawn = errors.New("intr: cannot start interrupt thread")
	// ErrMaskConfig is returned when a tracked line cannot be routed to the
	// interrupt thread.
	ErrMaskConfig = errors.New("intr: cannot configure interrupt line mask")
	// ErrRegistrationClosed is returned by RequestIRQ after Start unless the
	// registry allows late registration.
	ErrRegistrationClosed = errors.New("intr: registration closed while interrupt thread is running")
)
