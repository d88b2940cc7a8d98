package entity

import (
	"fmt"
	"strings"
	"time"
)

// maxNameLength bounds entity display names.
const maxNameLength = 128

// Entity represents one stateful object the home backend exposes.
// This matches the database schema in migrations/20260815_120000_initial_schema.up.sql.
type Entity struct {
	// EntityID is the dotted identifier, e.g. "light.kitchen".
	EntityID string `json:"entity_id"`

	// Name is the human-readable display name, e.g. "Kitchen Light".
	Name string `json:"name"`

	// Domain is the part before the dot, e.g. "light".
	Domain string `json:"domain"`

	// State is the last known state string, e.g. "on", "21.5", "unavailable".
	State string `json:"state"`

	// Attributes carries domain-specific state detail (brightness,
	// unit_of_measurement, ...).
	Attributes map[string]any `json:"attributes,omitempty"`

	// Aliases are alternative names the entity answers to in conversation.
	Aliases []string `json:"aliases,omitempty"`

	// Exposed marks the entity as visible to the conversation layer.
	Exposed bool `json:"exposed"`

	// Timestamps
	LastChanged time.Time `json:"last_changed"`
	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeepCopy creates a complete independent copy of the Entity.
// Map and slice fields are cloned so modifications to the copy do not
// affect the original. This is essential for cache isolation.
func (e *Entity) DeepCopy() *Entity {
	if e == nil {
		return nil
	}

	cpy := *e // Shallow copy of value fields

	if e.Attributes != nil {
		cpy.Attributes = deepCopyMap(e.Attributes)
	}

	if e.Aliases != nil {
		cpy.Aliases = make([]string, len(e.Aliases))
		copy(cpy.Aliases, e.Aliases)
	}

	return &cpy
}

// deepCopyMap clones a map one level deep, recursing into nested maps
// and slices. Attribute payloads come from JSON so these are the only
// container types that occur.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return deepCopyMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, el := range tv {
			out[i] = deepCopyValue(el)
		}
		return out
	default:
		return v
	}
}

// ParseDomain extracts the domain from a dotted entity id.
// Returns ErrInvalidID if the id is not in domain.object form.
func ParseDomain(entityID string) (string, error) {
	domain, object, ok := strings.Cut(entityID, ".")
	if !ok || domain == "" || object == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, entityID)
	}
	return domain, nil
}

// Validate checks the entity for structural problems before persistence.
func (e *Entity) Validate() error {
	domain, err := ParseDomain(e.EntityID)
	if err != nil {
		return err
	}
	if e.Domain != "" && e.Domain != domain {
		return fmt.Errorf("%w: domain %q does not match id %q", ErrInvalidID, e.Domain, e.EntityID)
	}
	if e.Name == "" || len(e.Name) > maxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, e.Name)
	}
	return nil
}
