package engine

import (
	"context"
	"fmt"
	"net/http"
	"sort"
)

// Executor is the strategy contract one backend kind implements.
//
// Validate runs once when a function definition is loaded and returns the
// validated configuration; Execute may run many times against that config.
// Implementations must not retain or mutate the validated config between
// invocations.
type Executor interface {
	// Validate checks a raw function configuration against the kind's
	// schema. It returns ErrInvalidFunction (wrapped with a diagnostic)
	// on malformed input. Validation is idempotent: validating an already
	// validated config returns an equal result.
	Validate(raw map[string]any) (Config, error)

	// Execute runs the function against its backend.
	Execute(ctx context.Context, cfg Config, args Arguments, caller CallerContext, exposed []ExposedEntity) (any, error)
}

// Registry is the closed mapping from executor kind to implementation.
// It is built once at construction and read-only afterwards; unknown kinds
// are a declared error, not an unchecked lookup.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds the registry with one executor per kind, all sharing
// the injected capabilities.
func NewRegistry(caps Capabilities) *Registry {
	if caps.Logger == nil {
		caps.Logger = noopLogger{}
	}
	if caps.HTTPClient == nil {
		caps.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	r := &Registry{executors: make(map[string]Executor)}
	r.executors[KindNative] = newNativeExecutor(caps)
	r.executors[KindScript] = &scriptExecutor{caps: caps}
	r.executors[KindTemplate] = &templateExecutor{}
	r.executors[KindRest] = &restExecutor{caps: caps}
	r.executors[KindScrape] = &scrapeExecutor{caps: caps}
	r.executors[KindSqlite] = &sqliteExecutor{caps: caps}
	// Composite resolves its step executors through the registry itself.
	r.executors[KindComposite] = &compositeExecutor{registry: r, caps: caps}
	return r
}

// Executor resolves the implementation for a kind.
// Returns ErrFunctionNotFound for kinds outside the closed set.
func (r *Registry) Executor(kind string) (Executor, error) {
	ex, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrFunctionNotFound, kind)
	}
	return ex, nil
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.executors))
	for kind := range r.executors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
