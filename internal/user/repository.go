// Package user persists household members and resolves their display
// names for conversation responses.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when no user matches the given id.
	ErrNotFound = errors.New("user: not found")

	// ErrInvalidName is returned when a user name is empty or too long.
	ErrInvalidName = errors.New("user: invalid name")
)

// maxNameLength is the maximum allowed display name length.
const maxNameLength = 100

// User is one household member known to the assistant.
type User struct {
	ID        string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines the interface for user persistence.
type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id string) error

	// DisplayName resolves the display name for a user id.
	DisplayName(ctx context.Context, userID string) (string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed user repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new user. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, u *User) error {
	name := strings.TrimSpace(u.Name)
	if name == "" || len(name) > maxNameLength {
		return ErrInvalidName
	}
	if u.ID == "" {
		u.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC()
	u.CreatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (user_id, name, created_at) VALUES (?, ?, ?)`,
		u.ID, name, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// Get retrieves a user by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT user_id, name, created_at FROM users WHERE user_id = ?", id)

	var u User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	u.CreatedAt = parseTimestamp(createdAt)
	return &u, nil
}

// List returns all users ordered by creation date.
func (r *SQLiteRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, name, created_at FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.CreatedAt = parseTimestamp(createdAt)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Delete removes a user by id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE user_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DisplayName resolves the display name for a user id. It returns
// ErrNotFound for unknown ids so callers can fall back to a generic
// address.
func (r *SQLiteRepository) DisplayName(ctx context.Context, userID string) (string, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT name FROM users WHERE user_id = ?", userID)

	var name string
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolving user name: %w", err)
	}
	return name, nil
}

// parseTimestamp parses an RFC3339 timestamp, tolerating the
// second-precision variant SQLite defaults produce.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
