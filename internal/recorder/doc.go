// Package recorder persists entity state history for Barnabee.
//
// The recorder owns its own SQLite database, separate from the registry
// database, because history grows without bound and is queried with a
// very different access pattern (time ranges, aggregates) than the
// registry's point lookups. The same file is also the default target of
// read-only model-authored SQL queries.
//
// # Tables
//
//	states         - append-only state snapshots per entity
//	statistics     - hourly aggregates compiled from states
//	energy_sources - statistic ids that feed the energy summary
//
// # Usage
//
//	store, err := recorder.Open(cfg.Recorder.Path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	// Append a snapshot on every state update
//	store.RecordState(ctx, "light.kitchen", "on", attrs, true)
//
//	// Serve a history read
//	history, err := store.History(ctx, []string{"light.kitchen"}, start, end, opts)
//
// The store satisfies the execution engine's history, statistics and
// energy provider contracts, so it wires directly into the capability
// set.
//
// # Retention
//
// PruneBefore removes state rows older than a cutoff. The caller decides
// cadence; compiled statistics are kept indefinitely since they are
// small.
package recorder
