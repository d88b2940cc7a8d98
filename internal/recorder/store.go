package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Logger defines the logging interface used by the Store.
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

// schema is applied on every Open. Statements are idempotent so an
// existing database is left untouched.
const schema = `
	CREATE TABLE IF NOT EXISTS states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL,
		state TEXT NOT NULL,
		attributes TEXT NOT NULL DEFAULT '{}',
		last_changed TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_states_entity_updated
		ON states(entity_id, last_updated);

	CREATE TABLE IF NOT EXISTS statistics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		statistic_id TEXT NOT NULL,
		start TEXT NOT NULL,
		period TEXT NOT NULL,
		mean REAL,
		min REAL,
		max REAL,
		sum REAL,
		UNIQUE(statistic_id, start, period)
	);
	CREATE INDEX IF NOT EXISTS idx_statistics_id_start
		ON statistics(statistic_id, start);

	CREATE TABLE IF NOT EXISTS energy_sources (
		statistic_id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL
	);
`

// Store is the SQLite-backed state recorder. It satisfies the execution
// engine's history, statistics and energy provider contracts.
//
// All methods are safe for concurrent use; SQLite serialises writers.
type Store struct {
	db     *sql.DB
	path   string
	logger Logger
}

// Open opens (creating if necessary) the recorder database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: applying schema: %v", ErrOpenFailed, err)
	}

	return &Store{db: db, path: path, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Path returns the filesystem path of the recorder database.
// Model-authored read-only queries run against this file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordState appends one state snapshot. changed controls whether
// last_changed carries the current time or repeats the previous row's
// value (consecutive identical states share a last_changed).
func (s *Store) RecordState(ctx context.Context, entityID, state string, attributes map[string]any, changed bool) error {
	attrsJSON := "{}"
	if attributes != nil {
		b, err := json.Marshal(attributes)
		if err != nil {
			return fmt.Errorf("marshalling attributes: %w", err)
		}
		attrsJSON = string(b)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	lastChanged := now
	if !changed {
		var prev string
		err := s.db.QueryRowContext(ctx, `
			SELECT last_changed FROM states
			WHERE entity_id = ?
			ORDER BY last_updated DESC, id DESC
			LIMIT 1`, entityID).Scan(&prev)
		if err == nil {
			lastChanged = prev
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO states (entity_id, state, attributes, last_changed, last_updated)
		VALUES (?, ?, ?, ?, ?)`,
		entityID, state, attrsJSON, lastChanged, now)
	if err != nil {
		return fmt.Errorf("inserting state: %w", err)
	}
	return nil
}

// PruneBefore deletes state rows last updated before the cutoff.
// Returns the number of rows removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM states WHERE last_updated < ?",
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning states: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	if removed > 0 {
		s.logger.Info("pruned recorder states", "removed", removed,
			"cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return removed, nil
}

// AddEnergySource registers a statistic id as feeding the energy summary.
func (s *Store) AddEnergySource(ctx context.Context, statisticID, sourceType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO energy_sources (statistic_id, source_type)
		VALUES (?, ?)
		ON CONFLICT(statistic_id) DO UPDATE SET source_type = excluded.source_type`,
		statisticID, sourceType)
	if err != nil {
		return fmt.Errorf("registering energy source: %w", err)
	}
	return nil
}
