package engine

import (
	"context"
	"time"
)

// Engine is the function-execution entry point consumed by the
// conversational agent.
//
// It resolves catalog entries, dispatches to the registered executor, and
// records invocation telemetry. The engine itself holds no per-invocation
// state; concurrent invocations are independent.
type Engine struct {
	registry  *Registry
	catalog   *Catalog
	telemetry Telemetry
	logger    Logger
}

// New creates an engine over a registry and catalog.
func New(registry *Registry, catalog *Catalog, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		registry: registry,
		catalog:  catalog,
		logger:   logger,
	}
}

// SetTelemetry installs an invocation-metric recorder. May be left unset.
func (e *Engine) SetTelemetry(t Telemetry) {
	e.telemetry = t
}

// Catalog returns the engine's function catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Invoke executes the named catalog function with the given arguments.
//
// Failure modes:
//   - ErrFunctionNotFound: name is not in the catalog
//   - ErrInvalidFunction: the definition failed validation at load time
//   - any typed failure from the resolved executor
func (e *Engine) Invoke(ctx context.Context, name string, args Arguments, caller CallerContext, exposed []ExposedEntity) (any, error) {
	start := time.Now()

	entry, err := e.catalog.Resolve(name)
	if err != nil {
		e.record(name, "", start, err)
		return nil, err
	}

	executor, err := e.registry.Executor(entry.Kind)
	if err != nil {
		e.record(name, entry.Kind, start, err)
		return nil, err
	}

	result, err := executor.Execute(ctx, entry.Config, args, caller, exposed)
	e.record(name, entry.Kind, start, err)

	if err != nil {
		e.logger.Warn("function invocation failed",
			"function", name,
			"kind", entry.Kind,
			"conversation_id", caller.ConversationID,
			"error", err,
		)
		return nil, err
	}

	e.logger.Debug("function invoked",
		"function", name,
		"kind", entry.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Execute runs a one-off function configuration that is not part of the
// catalog: the caller supplies the kind and raw config directly. The config
// is validated before execution.
func (e *Engine) Execute(ctx context.Context, kind string, raw map[string]any, args Arguments, caller CallerContext, exposed []ExposedEntity) (any, error) {
	executor, err := e.registry.Executor(kind)
	if err != nil {
		return nil, err
	}
	cfg, err := executor.Validate(raw)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, cfg, args, caller, exposed)
}

// StatusQuery answers a free-text device status question against the
// exposed entities. It always returns conversational text; transient
// lookups degrade to an apologetic result rather than an error.
func (e *Engine) StatusQuery(ctx context.Context, query string, exposed []ExposedEntity) (string, error) {
	native, ok := e.registry.executors[KindNative].(*nativeExecutor)
	if !ok {
		return "", ErrOperationNotFound
	}
	return native.statusQuery(ctx, query, exposed), nil
}

// record feeds the telemetry sink, classifying the outcome.
func (e *Engine) record(function, kind string, start time.Time, err error) {
	if e.telemetry == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.telemetry.RecordInvocation(function, kind, time.Since(start), outcome)
}
