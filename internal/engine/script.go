package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// resultVariable is the variable a script sequence may set to control the
// invocation's return value.
const resultVariable = "_function_result"

// maxScriptDelay caps a single delay step. Prevents a runaway definition
// from pinning an invocation.
const maxScriptDelay = 5 * time.Minute

// scriptExecutor runs a predefined action sequence with the call arguments
// bound as input variables.
//
// Supported step shapes:
//
//	- service:  {service: "light.turn_on", data: {...}}   side-effecting call
//	- variables: {variables: {name: value-or-template}}   bind variables
//	- condition: {condition: template, value_template: "..."}  stop when false
//	- delay:    {delay: <milliseconds>}
//
// String values inside data and variables may be template expressions
// rendered against the current variable set.
type scriptExecutor struct {
	caps Capabilities
}

func (s *scriptExecutor) Validate(raw map[string]any) (Config, error) {
	steps := asList(raw["sequence"])
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: script requires a non-empty sequence", ErrInvalidFunction)
	}
	for i, step := range steps {
		m := asMap(step)
		if m == nil {
			return nil, fmt.Errorf("%w: script step %d must be a mapping", ErrInvalidFunction, i)
		}
		if err := validateScriptStep(i, m); err != nil {
			return nil, err
		}
	}
	return Config{"type": KindScript, "sequence": steps}, nil
}

func validateScriptStep(i int, step map[string]any) error {
	switch {
	case step["service"] != nil:
		service, ok := step["service"].(string)
		if !ok || !strings.Contains(service, ".") {
			return fmt.Errorf("%w: script step %d service must be \"domain.service\"", ErrInvalidFunction, i)
		}
	case step["variables"] != nil:
		if asMap(step["variables"]) == nil {
			return fmt.Errorf("%w: script step %d variables must be a mapping", ErrInvalidFunction, i)
		}
	case step["condition"] != nil:
		tmpl, ok := step["value_template"].(string)
		if !ok {
			return fmt.Errorf("%w: script step %d condition requires value_template", ErrInvalidFunction, i)
		}
		if err := validateTemplate(tmpl); err != nil {
			return fmt.Errorf("%w: script step %d: %v", ErrInvalidFunction, i, err)
		}
	case step["delay"] != nil:
		if _, ok := floatValue(step["delay"]); !ok {
			return fmt.Errorf("%w: script step %d delay must be numeric milliseconds", ErrInvalidFunction, i)
		}
	default:
		return fmt.Errorf("%w: script step %d has no recognised action", ErrInvalidFunction, i)
	}
	return nil
}

// Execute runs the sequence in order with args as the initial variable set.
// The designated result variable from the final variable set is returned;
// "Success" is the generic marker when the sequence never sets one.
func (s *scriptExecutor) Execute(ctx context.Context, cfg Config, args Arguments, _ CallerContext, exposed []ExposedEntity) (any, error) {
	steps := asList(cfg["sequence"])
	vars := map[string]any(args.Clone())

	for i, raw := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("script cancelled at step %d: %w", i, err)
		}

		step := asMap(raw)
		switch {
		case step["service"] != nil:
			if err := s.runServiceStep(ctx, step, vars, exposed); err != nil {
				return nil, fmt.Errorf("script step %d: %w", i, err)
			}

		case step["variables"] != nil:
			for name, value := range asMap(step["variables"]) {
				rendered, err := renderAny(value, vars)
				if err != nil {
					return nil, fmt.Errorf("script step %d: variable %q: %w", i, name, err)
				}
				vars[name] = rendered
			}

		case step["condition"] != nil:
			tmpl, _ := step["value_template"].(string)
			rendered, err := renderTemplate("condition", tmpl, vars, nil)
			if err != nil {
				return nil, fmt.Errorf("script step %d: condition: %w", i, err)
			}
			if !truthy(rendered) {
				return scriptResult(vars), nil
			}

		case step["delay"] != nil:
			ms, _ := floatValue(step["delay"])
			delay := time.Duration(ms) * time.Millisecond
			if delay > maxScriptDelay {
				delay = maxScriptDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("script delayed at step %d: %w", i, ctx.Err())
			}
		}
	}

	return scriptResult(vars), nil
}

// runServiceStep renders the step's data against the variable set and
// issues the call through the normal service path (exposure guard included).
func (s *scriptExecutor) runServiceStep(ctx context.Context, step map[string]any, vars map[string]any, exposed []ExposedEntity) error {
	service, _ := step["service"].(string)
	domain, name, _ := strings.Cut(service, ".")

	rendered, err := renderAny(asMap(step["data"]), vars)
	if err != nil {
		return fmt.Errorf("rendering data: %w", err)
	}
	data := copyMap(asMap(rendered))

	entityIDs := normalizeEntityIDs(data["entity_id"])
	if len(entityIDs) > 0 {
		data["entity_id"] = entityIDs
	}

	if s.caps.Services == nil || !s.caps.Services.HasService(domain, name) {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	if err := assertExposed(ctx, s.caps.States, entityIDs, exposed); err != nil {
		return err
	}

	_, err = s.caps.Services.Call(ctx, ServiceCall{Domain: domain, Service: name, Data: data})
	return err
}

// scriptResult extracts the designated result variable, defaulting to the
// generic success marker.
func scriptResult(vars map[string]any) any {
	if result, ok := vars[resultVariable]; ok {
		return result
	}
	return "Success"
}

// truthy interprets a rendered condition string.
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true
	}
	return false
}
