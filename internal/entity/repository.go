package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for entity persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves an entity by its dotted identifier.
	// Returns ErrNotFound if the entity does not exist.
	GetByID(ctx context.Context, entityID string) (*Entity, error)

	// List retrieves all entities.
	List(ctx context.Context) ([]Entity, error)

	// ListExposed retrieves entities marked as exposed to conversation.
	ListExposed(ctx context.Context) ([]Entity, error)

	// Create inserts a new entity.
	// Returns ErrExists if an entity with the same id already exists.
	Create(ctx context.Context, e *Entity) error

	// Update modifies an existing entity.
	// Returns ErrNotFound if the entity does not exist.
	Update(ctx context.Context, e *Entity) error

	// Delete removes an entity by id.
	// Returns ErrNotFound if the entity does not exist.
	Delete(ctx context.Context, entityID string) error

	// UpdateState updates only the state columns of an entity.
	// This is optimised for frequent state changes from the message bus.
	// stateChanged controls whether last_changed advances with last_updated.
	UpdateState(ctx context.Context, entityID, state string, attributes map[string]any, stateChanged bool) error

	// SetExposed flips the conversation-visibility flag.
	SetExposed(ctx context.Context, entityID string, exposed bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entityColumns = `entity_id, name, domain, state, attributes, aliases, exposed,
		last_changed, last_updated, created_at`

// GetByID retrieves an entity by its dotted identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, entityID string) (*Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE entity_id = ?`

	row := r.db.QueryRowContext(ctx, query, entityID)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying entity by id: %w", err)
	}
	return e, nil
}

// List retrieves all entities ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities
		ORDER BY entity_id`

	return r.queryEntities(ctx, query)
}

// ListExposed retrieves entities marked as exposed to conversation.
func (r *SQLiteRepository) ListExposed(ctx context.Context) ([]Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE exposed = 1
		ORDER BY entity_id`

	return r.queryEntities(ctx, query)
}

// Create inserts a new entity.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}

	attrsJSON, err := marshalAttributes(e.Attributes)
	if err != nil {
		return err
	}
	aliasesJSON, err := marshalAliases(e.Aliases)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastChanged.IsZero() {
		e.LastChanged = now
	}
	if e.LastUpdated.IsZero() {
		e.LastUpdated = now
	}
	if e.Domain == "" {
		e.Domain, _ = ParseDomain(e.EntityID)
	}

	query := `
		INSERT INTO entities (
			entity_id, name, domain, state, attributes, aliases, exposed,
			last_changed, last_updated, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		e.EntityID,
		e.Name,
		e.Domain,
		e.State,
		attrsJSON,
		aliasesJSON,
		boolToInt(e.Exposed),
		e.LastChanged.Format(time.RFC3339),
		e.LastUpdated.Format(time.RFC3339),
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrExists, e.EntityID)
		}
		return fmt.Errorf("inserting entity: %w", err)
	}

	return nil
}

// Update modifies an existing entity.
func (r *SQLiteRepository) Update(ctx context.Context, e *Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}

	attrsJSON, err := marshalAttributes(e.Attributes)
	if err != nil {
		return err
	}
	aliasesJSON, err := marshalAliases(e.Aliases)
	if err != nil {
		return err
	}

	e.LastUpdated = time.Now().UTC()

	query := `
		UPDATE entities
		SET name = ?, domain = ?, state = ?, attributes = ?, aliases = ?,
			exposed = ?, last_changed = ?, last_updated = ?
		WHERE entity_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		e.Name,
		e.Domain,
		e.State,
		attrsJSON,
		aliasesJSON,
		boolToInt(e.Exposed),
		e.LastChanged.Format(time.RFC3339),
		e.LastUpdated.Format(time.RFC3339),
		e.EntityID,
	)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}

	return requireRowAffected(result, e.EntityID)
}

// Delete removes an entity by id.
func (r *SQLiteRepository) Delete(ctx context.Context, entityID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entities WHERE entity_id = ?", entityID)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return requireRowAffected(result, entityID)
}

// UpdateState updates only the state columns of an entity.
func (r *SQLiteRepository) UpdateState(ctx context.Context, entityID, state string, attributes map[string]any, stateChanged bool) error {
	attrsJSON, err := marshalAttributes(attributes)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	var result sql.Result
	if stateChanged {
		result, err = r.db.ExecContext(ctx, `
			UPDATE entities
			SET state = ?, attributes = ?, last_changed = ?, last_updated = ?
			WHERE entity_id = ?`,
			state, attrsJSON, now, now, entityID)
	} else {
		result, err = r.db.ExecContext(ctx, `
			UPDATE entities
			SET state = ?, attributes = ?, last_updated = ?
			WHERE entity_id = ?`,
			state, attrsJSON, now, entityID)
	}
	if err != nil {
		return fmt.Errorf("updating entity state: %w", err)
	}

	return requireRowAffected(result, entityID)
}

// SetExposed flips the conversation-visibility flag.
func (r *SQLiteRepository) SetExposed(ctx context.Context, entityID string, exposed bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE entities
		SET exposed = ?, last_updated = ?
		WHERE entity_id = ?`,
		boolToInt(exposed), time.Now().UTC().Format(time.RFC3339), entityID)
	if err != nil {
		return fmt.Errorf("updating entity exposure: %w", err)
	}
	return requireRowAffected(result, entityID)
}

// queryEntities runs a query and scans all result rows.
func (r *SQLiteRepository) queryEntities(ctx context.Context, query string, args ...any) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	return entities, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntity scans a row or rows result into an Entity.
func scanEntity(scanner rowScanner) (*Entity, error) {
	var e Entity
	var attrsJSON, aliasesJSON string
	var exposed int
	var lastChanged, lastUpdated, createdAt string

	err := scanner.Scan(
		&e.EntityID,
		&e.Name,
		&e.Domain,
		&e.State,
		&attrsJSON,
		&aliasesJSON,
		&exposed,
		&lastChanged,
		&lastUpdated,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	e.Exposed = exposed != 0

	var parseErr error
	e.LastChanged, parseErr = time.Parse(time.RFC3339, lastChanged)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing last_changed: %w", parseErr)
	}
	e.LastUpdated, parseErr = time.Parse(time.RFC3339, lastUpdated)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing last_updated: %w", parseErr)
	}
	e.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	if attrsJSON != "" {
		if err := json.Unmarshal([]byte(attrsJSON), &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling attributes: %w", err)
		}
	}
	if aliasesJSON != "" {
		if err := json.Unmarshal([]byte(aliasesJSON), &e.Aliases); err != nil {
			return nil, fmt.Errorf("unmarshalling aliases: %w", err)
		}
	}

	return &e, nil
}

// marshalAttributes serialises an attribute map, defaulting to "{}".
func marshalAttributes(attrs map[string]any) (string, error) {
	if attrs == nil {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("marshalling attributes: %w", err)
	}
	return string(b), nil
}

// marshalAliases serialises an alias list, defaulting to "[]".
func marshalAliases(aliases []string) (string, error) {
	if aliases == nil {
		return "[]", nil
	}
	b, err := json.Marshal(aliases)
	if err != nil {
		return "", fmt.Errorf("marshalling aliases: %w", err)
	}
	return string(b), nil
}

// requireRowAffected converts a zero-row update into ErrNotFound.
func requireRowAffected(result sql.Result, entityID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}
	return nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
