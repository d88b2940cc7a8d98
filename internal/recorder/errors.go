package recorder

import "errors"

// Domain errors for the recorder package.
var (
	// ErrOpenFailed is returned when the recorder database cannot be opened.
	ErrOpenFailed = errors.New("recorder: open failed")

	// ErrInvalidRange is returned when a query's end precedes its start.
	ErrInvalidRange = errors.New("recorder: invalid time range")

	// ErrInvalidPeriod is returned when a statistics period is not recognised.
	ErrInvalidPeriod = errors.New("recorder: invalid period")
)
