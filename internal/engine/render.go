package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// renderTemplate renders a text/template expression against the given data.
//
// funcs, when non-nil, is the complete function side-channel available to
// the template; nothing else from the process environment is reachable.
// A function returning a non-nil error aborts the render.
func renderTemplate(name, text string, data map[string]any, funcs template.FuncMap) (string, error) {
	tmpl := template.New(name).Option("missingkey=zero")
	if funcs != nil {
		tmpl = tmpl.Funcs(funcs)
	}
	tmpl, err := tmpl.Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return buf.String(), nil
}

// validateTemplate checks that a template expression parses, without
// rendering it. Used by schema validation at catalog load time.
func validateTemplate(text string) error {
	if _, err := template.New("check").Parse(text); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return nil
}

// parseRendered coerces a rendered string back into a typed value (number,
// bool, list, mapping) via YAML decoding. The raw string is returned when
// decoding fails or yields nothing.
func parseRendered(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	if v == nil {
		return s
	}
	return v
}

// renderValueTemplate renders a post-processing value template. The resolved
// value is bound as "value" — decoded from JSON first when it is a string
// that parses as JSON — alongside the accumulated argument set.
func renderValueTemplate(text string, value any, args map[string]any) (any, error) {
	data := make(map[string]any, len(args)+1)
	for k, v := range args {
		data[k] = v
	}
	if s, ok := value.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			value = decoded
		}
	}
	data["value"] = value

	out, err := renderTemplate("value_template", text, data, nil)
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(out), nil
}

// containsTemplate reports whether a config string needs rendering at all.
func containsTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// renderAny renders template strings found anywhere inside v against data.
// Non-template strings and non-string values pass through unchanged; maps
// and lists are rebuilt so the input is never mutated.
func renderAny(v any, data map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		if !containsTemplate(val) {
			return val, nil
		}
		return renderTemplate("inline", val, data, nil)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			rendered, err := renderAny(item, data)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rendered, err := renderAny(item, data)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	}
	return v, nil
}
