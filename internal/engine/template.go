package engine

import (
	"context"
	"fmt"
)

// templateExecutor renders a templating expression against the call
// arguments. Purely a projection — no side effects, no backend access.
type templateExecutor struct{}

func (t *templateExecutor) Validate(raw map[string]any) (Config, error) {
	tmpl, ok := raw["value_template"].(string)
	if !ok || tmpl == "" {
		return nil, fmt.Errorf("%w: template function requires value_template", ErrInvalidFunction)
	}
	if err := validateTemplate(tmpl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFunction, err)
	}

	cfg := Config{"type": KindTemplate, "value_template": tmpl}
	if parse, ok := raw["parse_result"].(bool); ok {
		cfg["parse_result"] = parse
	}
	return cfg, nil
}

func (t *templateExecutor) Execute(_ context.Context, cfg Config, args Arguments, _ CallerContext, _ []ExposedEntity) (any, error) {
	tmpl, _ := cfg["value_template"].(string)
	out, err := renderTemplate("value_template", tmpl, args, nil)
	if err != nil {
		return nil, err
	}
	if boolValue(cfg, "parse_result", false) {
		return parseRendered(out), nil
	}
	return out, nil
}
