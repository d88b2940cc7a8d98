package homectl

import "errors"

// Domain errors for the homectl package.
var (
	// ErrPublishFailed is returned when a command cannot be published.
	ErrPublishFailed = errors.New("homectl: publish failed")

	// ErrCallTimeout is returned when the backend does not answer in time.
	ErrCallTimeout = errors.New("homectl: call timed out")

	// ErrCallRejected is returned when the backend reports a failed call.
	ErrCallRejected = errors.New("homectl: call rejected")

	// ErrInvalidResult is returned when a result payload cannot be parsed.
	ErrInvalidResult = errors.New("homectl: invalid result payload")
)
