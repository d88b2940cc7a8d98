package engine

import (
	"strings"
	"time"
)

// Executor kind identifiers. The registry maps each kind to exactly one
// Executor implementation; the set is closed.
const (
	KindNative    = "native"
	KindScript    = "script"
	KindTemplate  = "template"
	KindRest      = "rest"
	KindScrape    = "scrape"
	KindComposite = "composite"
	KindSqlite    = "sqlite"
)

// Arguments is the argument object produced by the language model for one
// executor invocation. It is treated as input-only except inside a composite
// sequence, where a per-invocation copy is threaded between steps.
type Arguments map[string]any

// Clone returns a shallow copy of the arguments.
// Composite invocations operate on a clone so the caller's map is never
// mutated by response-variable binding.
func (a Arguments) Clone() Arguments {
	cpy := make(Arguments, len(a))
	for k, v := range a {
		cpy[k] = v
	}
	return cpy
}

// CallerContext identifies the conversation turn on whose behalf a function
// executes. It is passed through unchanged and used for attribution only;
// authorization is entity-exposure based.
type CallerContext struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Language       string `json:"language"`
}

// ExposedEntity is the read-only view of one entity the caller is allowed
// to reference. Set membership by ID is the authorization boundary.
type ExposedEntity struct {
	ID      string   `json:"entity_id" yaml:"entity_id"`
	Name    string   `json:"name" yaml:"name"`
	State   string   `json:"state" yaml:"state"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// EntityState is the live state of an entity as supplied by the injected
// state store.
type EntityState struct {
	EntityID    string
	State       string
	Attributes  map[string]any
	LastChanged time.Time
	LastUpdated time.Time
}

// FunctionSpec is the model-facing description of a callable function: the
// name and JSON-Schema-like parameter object advertised to the model.
type FunctionSpec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
}

// Config is a kind-specific function configuration after schema validation.
// Validated configs are never mutated; executors read them only.
type Config map[string]any

// stringValue returns the string under key, or fallback when absent or not
// a string.
func stringValue(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// boolValue returns the bool under key, or fallback when absent.
func boolValue(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

// floatValue coerces numeric types (JSON decodes to float64, YAML to int)
// to float64.
func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// asMap returns v as a map[string]any, or nil when it is not one.
// Config is accepted too so already-validated configs coerce the same way.
func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case Config:
		return m
	}
	return nil
}

// asList returns v as a []any, or nil when it is not one.
// A []Config (the shape Validate stores for composite sequences) is
// widened element by element so re-validation sees the same list.
func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []Config:
		out := make([]any, len(l))
		for i, item := range l {
			out[i] = item
		}
		return out
	}
	return nil
}

// copyMap returns a shallow copy of m, or an empty map when m is nil.
func copyMap(m map[string]any) map[string]any {
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = v
	}
	return cpy
}

// normalizeEntityIDs accepts the entity_id argument shapes the model emits:
// a single id, a comma-joined string, or a list. Returns nil when v is nil
// or carries no ids.
func normalizeEntityIDs(v any) []string {
	switch ids := v.(type) {
	case string:
		parts := strings.Split(ids, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, item := range ids {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// stringList coerces a []any of strings (or a single string) to []string.
func stringList(v any) []string {
	switch vals := v.(type) {
	case string:
		if vals == "" {
			return nil
		}
		return []string{vals}
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
