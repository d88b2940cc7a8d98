package engine

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// CatalogEntry is one loaded function definition. Entries are immutable
// after load; a reload replaces the whole set.
type CatalogEntry struct {
	Spec   FunctionSpec
	Kind   string
	Config Config

	// loadErr records a validation failure at load time. The entry fails
	// closed: it remains listed but invoking it returns the error.
	loadErr error
}

// rawCatalogEntry mirrors the persisted catalog format:
//
//	- spec:
//	    name: execute_services
//	    description: ...
//	    parameters: {...}
//	  function:
//	    type: native
//	    name: execute_service
type rawCatalogEntry struct {
	Spec     FunctionSpec   `yaml:"spec"`
	Function map[string]any `yaml:"function"`
}

// Catalog holds the validated set of function definitions available to be
// invoked. Definitions are validated once at load time, not per call.
//
// Thread Safety: Load and Resolve are safe for concurrent use.
type Catalog struct {
	registry *Registry
	logger   Logger

	mu      sync.RWMutex
	entries map[string]*CatalogEntry
}

// NewCatalog creates an empty catalog backed by the given registry.
func NewCatalog(registry *Registry, logger Logger) *Catalog {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Catalog{
		registry: registry,
		logger:   logger,
		entries:  make(map[string]*CatalogEntry),
	}
}

// LoadFile reads a YAML catalog file and replaces the current entries.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading function catalog: %w", err)
	}
	return c.Load(data)
}

// Load parses catalog YAML and replaces the current entries wholesale.
//
// Each entry's function configuration is validated against its kind's
// schema exactly once. A malformed definition does not prevent loading the
// others: the entry is kept in an unusable state and invoking it returns
// ErrInvalidFunction (or ErrFunctionNotFound for an unknown kind).
func (c *Catalog) Load(data []byte) error {
	var raw []rawCatalogEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing function catalog: %w", err)
	}

	entries := make(map[string]*CatalogEntry, len(raw))
	for i, item := range raw {
		if item.Spec.Name == "" {
			c.logger.Warn("skipping catalog entry without a name", "index", i)
			continue
		}
		entries[item.Spec.Name] = c.buildEntry(item)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	c.logger.Info("function catalog loaded", "functions", len(entries))
	return nil
}

// buildEntry validates one raw definition into a CatalogEntry.
func (c *Catalog) buildEntry(item rawCatalogEntry) *CatalogEntry {
	entry := &CatalogEntry{Spec: item.Spec}

	kind, ok := item.Function["type"].(string)
	if !ok || kind == "" {
		entry.loadErr = fmt.Errorf("%w: function %q has no type", ErrInvalidFunction, item.Spec.Name)
		c.logger.Warn("dropping invalid function definition", "function", item.Spec.Name, "error", entry.loadErr)
		return entry
	}
	entry.Kind = kind

	executor, err := c.registry.Executor(kind)
	if err != nil {
		entry.loadErr = err
		c.logger.Warn("dropping function with unknown kind", "function", item.Spec.Name, "kind", kind)
		return entry
	}

	cfg, err := executor.Validate(item.Function)
	if err != nil {
		entry.loadErr = fmt.Errorf("validating %q (%s): %w", item.Spec.Name, kind, err)
		c.logger.Warn("dropping invalid function definition", "function", item.Spec.Name, "kind", kind, "error", err)
		return entry
	}

	entry.Config = cfg
	return entry
}

// Resolve returns the catalog entry for a function name.
//
// Returns ErrFunctionNotFound for unknown names and the recorded load error
// for entries whose definition failed validation.
func (c *Catalog) Resolve(name string) (*CatalogEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFunctionNotFound, name)
	}
	if entry.loadErr != nil {
		return nil, entry.loadErr
	}
	return entry, nil
}

// Specs returns the model-facing specs of all usable functions, sorted by
// name. Entries that failed validation are excluded — they must not be
// advertised to the model.
func (c *Catalog) Specs() []FunctionSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]FunctionSpec, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.loadErr == nil {
			specs = append(specs, entry.Spec)
		}
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}
