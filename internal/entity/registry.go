package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trfife/barnabee-assistant/internal/engine"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides entity management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations and incoming state updates.
//
// The registry satisfies the engine's state store interface, so it can
// be wired directly into the execution capabilities. All public methods
// are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Entity // Cached entities by id
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new entity registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Entity),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all entities from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entities, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Entity, len(entities))
	for i := range entities {
		e := entities[i]
		r.cache[e.EntityID] = e.DeepCopy()
	}

	r.logger.Info("entity cache refreshed", "count", len(entities))
	return nil
}

// Get retrieves an entity by id.
// Returns ErrNotFound if the entity does not exist.
// The returned entity is a deep copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, entityID string) (*Entity, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[entityID]
	r.cacheMu.RUnlock()

	if ok {
		// Return a deep copy to prevent external mutation of cache
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new entity not yet cached)
	e, err := r.repo.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[e.EntityID] = e.DeepCopy()
	r.cacheMu.Unlock()

	return e, nil
}

// List retrieves all entities sorted by id.
// The returned entities are deep copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Entity, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		entities := make([]Entity, 0, len(r.cache))
		for _, e := range r.cache {
			entities = append(entities, *e.DeepCopy())
		}
		sort.Slice(entities, func(i, j int) bool {
			return entities[i].EntityID < entities[j].EntityID
		})
		return entities, nil
	}

	return r.repo.List(ctx)
}

// Lookup returns the live state for an entity id. It satisfies the
// execution engine's state store contract.
func (r *Registry) Lookup(ctx context.Context, entityID string) (engine.EntityState, error) {
	e, err := r.Get(ctx, entityID)
	if err != nil {
		return engine.EntityState{}, err
	}

	return engine.EntityState{
		EntityID:    e.EntityID,
		State:       e.State,
		Attributes:  e.Attributes,
		LastChanged: e.LastChanged,
		LastUpdated: e.LastUpdated,
	}, nil
}

// ExposedEntities returns the authorization set handed to the conversation
// layer: one read-only view per exposed entity, sorted by id.
func (r *Registry) ExposedEntities() []engine.ExposedEntity {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	exposed := make([]engine.ExposedEntity, 0)
	for _, e := range r.cache {
		if !e.Exposed {
			continue
		}
		view := engine.ExposedEntity{
			ID:    e.EntityID,
			Name:  e.Name,
			State: e.State,
		}
		if len(e.Aliases) > 0 {
			view.Aliases = make([]string, len(e.Aliases))
			copy(view.Aliases, e.Aliases)
		}
		exposed = append(exposed, view)
	}

	sort.Slice(exposed, func(i, j int) bool {
		return exposed[i].ID < exposed[j].ID
	})
	return exposed
}

// Create inserts a new entity and caches it.
func (r *Registry) Create(ctx context.Context, e *Entity) error {
	if e.Domain == "" {
		domain, err := ParseDomain(e.EntityID)
		if err != nil {
			return err
		}
		e.Domain = domain
	}

	if err := r.repo.Create(ctx, e); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[e.EntityID] = e.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("entity created", "entity_id", e.EntityID, "name", e.Name)
	return nil
}

// Update modifies an existing entity and refreshes the cache.
func (r *Registry) Update(ctx context.Context, e *Entity) error {
	if err := r.repo.Update(ctx, e); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[e.EntityID] = e.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("entity updated", "entity_id", e.EntityID)
	return nil
}

// Delete removes an entity and evicts it from the cache.
func (r *Registry) Delete(ctx context.Context, entityID string) error {
	if err := r.repo.Delete(ctx, entityID); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, entityID)
	r.cacheMu.Unlock()

	r.logger.Info("entity deleted", "entity_id", entityID)
	return nil
}

// SetExposed flips the conversation-visibility flag.
func (r *Registry) SetExposed(ctx context.Context, entityID string, exposed bool) error {
	if err := r.repo.SetExposed(ctx, entityID, exposed); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[entityID]; ok {
		cached.Exposed = exposed
	}
	r.cacheMu.Unlock()

	r.logger.Info("entity exposure changed", "entity_id", entityID, "exposed", exposed)
	return nil
}

// statePayload is the JSON body published on barnabee/state/{entityID}.
type statePayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// HandleStateUpdate applies one state update from the message bus.
//
// Unknown entities are created unexposed so they surface in the registry
// without widening the conversation's authorization set. The cache is
// updated synchronously; persistence failures are logged but do not fail
// the update, since the bus will deliver fresh state again.
func (r *Registry) HandleStateUpdate(ctx context.Context, entityID string, payload []byte) error {
	var update statePayload
	if err := json.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if update.State == "" {
		return fmt.Errorf("%w: missing state", ErrInvalidPayload)
	}

	r.cacheMu.Lock()
	cached, known := r.cache[entityID]
	var changed bool
	if known {
		changed = cached.State != update.State
		now := time.Now().UTC()
		cached.State = update.State
		if update.Attributes != nil {
			cached.Attributes = deepCopyMap(update.Attributes)
		}
		if changed {
			cached.LastChanged = now
		}
		cached.LastUpdated = now
	}
	r.cacheMu.Unlock()

	if !known {
		return r.adoptEntity(ctx, entityID, update)
	}

	if err := r.repo.UpdateState(ctx, entityID, update.State, update.Attributes, changed); err != nil {
		r.logger.Warn("persisting state update failed",
			"entity_id", entityID, "error", err)
	}

	r.logger.Debug("entity state updated",
		"entity_id", entityID, "state", update.State, "changed", changed)
	return nil
}

// adoptEntity creates a registry record for an entity first seen via a
// state update. New entities start unexposed.
func (r *Registry) adoptEntity(ctx context.Context, entityID string, update statePayload) error {
	domain, err := ParseDomain(entityID)
	if err != nil {
		return err
	}

	e := &Entity{
		EntityID:   entityID,
		Name:       friendlyName(entityID, update.Attributes),
		Domain:     domain,
		State:      update.State,
		Attributes: update.Attributes,
		Exposed:    false,
	}

	if err := r.Create(ctx, e); err != nil {
		return fmt.Errorf("adopting entity %s: %w", entityID, err)
	}

	r.logger.Info("entity adopted from state update", "entity_id", entityID)
	return nil
}

// friendlyName derives a display name from the friendly_name attribute,
// falling back to a title-cased object id ("light.kitchen_lamp" becomes
// "Kitchen Lamp").
func friendlyName(entityID string, attrs map[string]any) string {
	if name, ok := attrs["friendly_name"].(string); ok && name != "" {
		return name
	}

	_, object, _ := strings.Cut(entityID, ".")
	words := strings.Split(object, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
