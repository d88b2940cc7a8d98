package engine

import (
	"context"
	"fmt"
)

// compositeExecutor sequences a list of executor invocations, threading a
// mutable variable environment between steps.
//
// The environment is a per-invocation copy of the top-level arguments: a
// step's declared response_variable binds that step's result for all
// subsequent steps, and the caller's map is never touched. Execution is
// strictly sequential and fail-fast — unlike the per-item-isolated native
// batch operations, a failing step aborts the remaining sequence.
type compositeExecutor struct {
	registry *Registry
	caps     Capabilities
}

func (c *compositeExecutor) Validate(raw map[string]any) (Config, error) {
	steps := asList(raw["sequence"])
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: composite requires a non-empty sequence", ErrInvalidFunction)
	}

	validated := make([]Config, 0, len(steps))
	for i, raw := range steps {
		step := asMap(raw)
		if step == nil {
			return nil, fmt.Errorf("%w: composite step %d must be a mapping", ErrInvalidFunction, i)
		}
		kind, _ := step["type"].(string)
		if kind == "" {
			return nil, fmt.Errorf("%w: composite step %d has no type", ErrInvalidFunction, i)
		}

		executor, err := c.registry.Executor(kind)
		if err != nil {
			return nil, fmt.Errorf("composite step %d: %w", i, err)
		}

		// Each step validates through its own kind's schema, extended
		// with the optional response_variable binding.
		cfg, err := executor.Validate(step)
		if err != nil {
			return nil, fmt.Errorf("composite step %d: %w", i, err)
		}
		cfg["type"] = kind
		if rv, ok := step["response_variable"]; ok {
			name, ok := rv.(string)
			if !ok || name == "" {
				return nil, fmt.Errorf("%w: composite step %d response_variable must be a non-empty string", ErrInvalidFunction, i)
			}
			cfg["response_variable"] = name
		}
		validated = append(validated, cfg)
	}

	return Config{"type": KindComposite, "sequence": validated}, nil
}

func (c *compositeExecutor) Execute(ctx context.Context, cfg Config, args Arguments, caller CallerContext, exposed []ExposedEntity) (any, error) {
	steps, _ := cfg["sequence"].([]Config)

	env := args.Clone()
	var result any
	for i, step := range steps {
		kind, _ := step["type"].(string)
		executor, err := c.registry.Executor(kind)
		if err != nil {
			return nil, fmt.Errorf("composite step %d: %w", i, err)
		}

		result, err = executor.Execute(ctx, step, env, caller, exposed)
		if err != nil {
			return nil, fmt.Errorf("composite step %d (%s): %w", i, kind, err)
		}

		if name, ok := step["response_variable"].(string); ok && name != "" {
			env[name] = result
		}
	}

	// Earlier steps run for side effects and variable bindings; the
	// invocation's result is the last step's result.
	return result, nil
}
