package entity

import "errors"

// Domain errors for the entity package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, entity.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when an entity id does not exist.
	ErrNotFound = errors.New("entity: not found")

	// ErrExists is returned when creating an entity with an id that already exists.
	ErrExists = errors.New("entity: already exists")

	// ErrInvalidID is returned when an entity id is not in domain.object form.
	ErrInvalidID = errors.New("entity: invalid id")

	// ErrInvalidName is returned when an entity name is empty or too long.
	ErrInvalidName = errors.New("entity: invalid name")

	// ErrInvalidPayload is returned when a state update payload cannot be parsed.
	ErrInvalidPayload = errors.New("entity: invalid state payload")
)
