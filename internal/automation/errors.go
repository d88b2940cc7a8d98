package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrInvalidConfig) {
//	    // reject the definition
//	}
var (
	// ErrInvalidConfig is returned when an automation definition fails validation.
	ErrInvalidConfig = errors.New("automation: invalid config")

	// ErrMissingTrigger is returned when a definition has no trigger.
	ErrMissingTrigger = errors.New("automation: missing trigger")

	// ErrMissingAction is returned when a definition has no action.
	ErrMissingAction = errors.New("automation: missing action")

	// ErrInvalidMode is returned when the run mode is not recognised.
	ErrInvalidMode = errors.New("automation: invalid mode")

	// ErrDuplicateID is returned when an automation id is already in use.
	ErrDuplicateID = errors.New("automation: duplicate id")

	// ErrNotFound is returned when an automation id does not exist.
	ErrNotFound = errors.New("automation: not found")

	// ErrStoreFailed is returned when the automations file cannot be read or written.
	ErrStoreFailed = errors.New("automation: store failed")
)
