package automation

import "fmt"

// Validation constants.
const (
	maxAliasLength       = 100
	maxDescriptionLength = 500
	maxTriggers          = 20
	maxConditions        = 20
	maxActions           = 50
)

// ValidateConfig checks a raw automation definition before persistence.
// Returns an error describing the first validation failure found.
//
// The config must carry a non-empty id, at least one trigger and at
// least one action. Conditions are optional. The singular and plural key
// spellings are both accepted, matching what automation authors write.
func ValidateConfig(cfg map[string]any) error {
	if cfg == nil {
		return ErrInvalidConfig
	}

	id, ok := cfg["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}

	if alias, ok := cfg["alias"].(string); ok && len(alias) > maxAliasLength {
		return fmt.Errorf("%w: alias exceeds %d characters", ErrInvalidConfig, maxAliasLength)
	}
	if desc, ok := cfg["description"].(string); ok && len(desc) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidConfig, maxDescriptionLength)
	}

	if mode, ok := cfg["mode"]; ok {
		modeStr, ok := mode.(string)
		if !ok {
			return fmt.Errorf("%w: mode must be a string", ErrInvalidMode)
		}
		if _, valid := validModes[modeStr]; !valid {
			return fmt.Errorf("%w: %q", ErrInvalidMode, modeStr)
		}
	}

	triggers := entryList(cfg, "trigger", "triggers")
	if len(triggers) == 0 {
		return ErrMissingTrigger
	}
	if len(triggers) > maxTriggers {
		return fmt.Errorf("%w: more than %d triggers", ErrInvalidConfig, maxTriggers)
	}
	for i, trigger := range triggers {
		entry, ok := trigger.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: trigger %d is not a mapping", ErrInvalidConfig, i)
		}
		if !hasStringKey(entry, "platform") && !hasStringKey(entry, "trigger") {
			return fmt.Errorf("%w: trigger %d has no platform", ErrInvalidConfig, i)
		}
	}

	conditions := entryList(cfg, "condition", "conditions")
	if len(conditions) > maxConditions {
		return fmt.Errorf("%w: more than %d conditions", ErrInvalidConfig, maxConditions)
	}
	for i, condition := range conditions {
		entry, ok := condition.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: condition %d is not a mapping", ErrInvalidConfig, i)
		}
		if !hasStringKey(entry, "condition") {
			return fmt.Errorf("%w: condition %d has no condition type", ErrInvalidConfig, i)
		}
	}

	actions := entryList(cfg, "action", "actions")
	if len(actions) == 0 {
		return ErrMissingAction
	}
	if len(actions) > maxActions {
		return fmt.Errorf("%w: more than %d actions", ErrInvalidConfig, maxActions)
	}
	for i, action := range actions {
		if _, ok := action.(map[string]any); !ok {
			return fmt.Errorf("%w: action %d is not a mapping", ErrInvalidConfig, i)
		}
	}

	return nil
}

// entryList reads a list under either key spelling. A single mapping is
// promoted to a one-element list, matching shorthand YAML.
func entryList(cfg map[string]any, singular, plural string) []any {
	for _, key := range []string{singular, plural} {
		switch v := cfg[key].(type) {
		case []any:
			return v
		case map[string]any:
			return []any{v}
		}
	}
	return nil
}

// hasStringKey reports whether the entry carries a non-empty string
// under the key.
func hasStringKey(entry map[string]any, key string) bool {
	s, ok := entry[key].(string)
	return ok && s != ""
}
