// Package entity manages the entity registry for Barnabee.
//
// Entities are the home backend's stateful objects (lights, sensors,
// covers) addressed by dotted ids like "light.kitchen". The package
// provides:
//
//   - Repository: SQLite persistence for entity records
//   - Registry: cached, thread-safe access layer with live state updates
//
// # Architecture
//
//	MQTT state updates ──> Registry ──> Repository (SQLite)
//	                          │
//	                          ├──> Lookup (live state reads)
//	                          └──> ExposedEntities (authorization set)
//
// The registry caches all entities in memory for fast lookups. State
// updates arriving over MQTT refresh the cache synchronously and persist
// asynchronously; reads never touch the database on the hot path.
//
// # Exposure
//
// Each entity carries an exposed flag. Only exposed entities are handed
// to the conversation layer, and the execution engine rejects any function
// call referencing an entity outside that set. Flipping the flag is an
// administrative operation, not something a conversation can do.
//
// # Usage
//
//	repo := entity.NewSQLiteRepository(db.DB())
//	registry := entity.NewRegistry(repo)
//	registry.SetLogger(logger)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	state, err := registry.Lookup(ctx, "light.kitchen")
//	exposed := registry.ExposedEntities()
package entity
