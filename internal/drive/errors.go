package drive

import "errors"

var (
	// ErrInvalidConfiguration marks a parameter snapshot that cannot be simulated.
	// A tick that returns it has not touched any component state.
	ErrInvalidConfiguration = errors.New("drive: invalid configuration")

	// ErrFaultRejected is returned when an injection would override a thermal trip.
	ErrFaultRejected = errors.New("drive: fault injection rejected")
)
