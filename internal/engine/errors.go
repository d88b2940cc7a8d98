package engine

import "errors"

// Domain errors for the engine package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, engine.ErrEntityNotExposed) {
//	    // handle authorization failure
//	}
var (
	// ErrInvalidFunction is returned when a function configuration fails
	// schema validation at catalog load time, or when an invalid catalog
	// entry is invoked.
	ErrInvalidFunction = errors.New("engine: invalid function")

	// ErrFunctionNotFound is returned when the referenced function or
	// executor kind is not known to the registry or catalog.
	ErrFunctionNotFound = errors.New("engine: function not found")

	// ErrOperationNotFound is returned when a native operation name is not
	// in the closed operation set.
	ErrOperationNotFound = errors.New("engine: native operation not found")

	// ErrEntityNotFound is returned when a referenced entity id has no
	// known state at all.
	ErrEntityNotFound = errors.New("engine: entity not found")

	// ErrEntityNotExposed is returned when an entity exists but is not a
	// member of the caller's exposed-entity set.
	ErrEntityNotExposed = errors.New("engine: entity not exposed")

	// ErrCallService is returned when a service call lacks a valid target
	// (no entity, area or device id).
	ErrCallService = errors.New("engine: service call has no target")

	// ErrServiceNotFound is returned when the requested service does not
	// exist on the backend.
	ErrServiceNotFound = errors.New("engine: service not found")

	// ErrParseArguments is returned when the model-emitted arguments cannot
	// be parsed or coerced to the expected shape.
	ErrParseArguments = errors.New("engine: arguments could not be parsed")

	// ErrTokenLengthExceeded is a pass-through kind surfaced when the
	// upstream conversation context exceeded its size budget. The engine
	// never raises it itself; the caller owns the budget.
	ErrTokenLengthExceeded = errors.New("engine: token length exceeded")
)
