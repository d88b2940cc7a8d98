package engine

import (
	"context"
	"errors"
	"fmt"
)

// assertExposed verifies that every entity id both exists and is a member of
// the caller's exposed-entity set.
//
// Existence is checked for all ids before exposure: the two failure kinds
// carry different remediation advice (entity typo vs. permission), so a
// missing entity must win over a non-exposed one.
//
// Callers must run this before issuing any side-effecting call that touches
// the listed entities.
func assertExposed(ctx context.Context, states StateStore, entityIDs []string, exposed []ExposedEntity) error {
	if len(entityIDs) == 0 {
		return nil
	}
	if states == nil {
		return errors.New("engine: state store not configured")
	}

	for _, id := range entityIDs {
		if _, err := states.Lookup(ctx, id); err != nil {
			return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
		}
	}

	exposedSet := make(map[string]struct{}, len(exposed))
	for _, e := range exposed {
		exposedSet[e.ID] = struct{}{}
	}
	for _, id := range entityIDs {
		if _, ok := exposedSet[id]; !ok {
			return fmt.Errorf("%w: %s", ErrEntityNotExposed, id)
		}
	}
	return nil
}
