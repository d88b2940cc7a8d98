// Package audit provides access to the invocation_logs table: a local
// audit trail of every function the engine executed on the model's
// behalf.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvocationLog represents one recorded function invocation.
type InvocationLog struct {
	ID         string    `json:"id"`
	Function   string    `json:"function"`
	Kind       string    `json:"kind"`
	Outcome    string    `json:"outcome"`
	DurationMS float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which invocation logs to return.
type Filter struct {
	Function string // optional: filter by function name
	Kind     string // optional: filter by executor kind
	Outcome  string // optional: filter by outcome (success, error)
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains the paginated invocation log results.
type ListResult struct {
	Logs   []InvocationLog `json:"logs"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Logger is the minimal logging interface the repository needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// SQLiteRepository reads and writes invocation logs in SQLite.
type SQLiteRepository struct {
	db     *sql.DB
	logger Logger
}

// NewSQLiteRepository creates a new invocation log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, logger: noopLogger{}}
}

// SetLogger replaces the repository's logger.
func (r *SQLiteRepository) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Create inserts a new invocation log entry. The ID and CreatedAt are
// generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *InvocationLog) error {
	if log.ID == "" {
		log.ID = "inv-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invocation_logs (id, function, kind, outcome, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID, log.Function, log.Kind, log.Outcome, log.DurationMS,
		log.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation log: %w", err)
	}

	return nil
}

// RecordInvocation appends one invocation to the audit trail. Failures
// are logged and swallowed so a full disk never blocks function
// execution.
func (r *SQLiteRepository) RecordInvocation(function, kind string, duration time.Duration, outcome string) {
	entry := &InvocationLog{
		Function:   function,
		Kind:       kind,
		Outcome:    outcome,
		DurationMS: float64(duration.Microseconds()) / 1000.0,
	}
	if err := r.Create(context.Background(), entry); err != nil {
		r.logger.Warn("invocation audit write failed", "function", function, "error", err)
	}
}

// List returns invocation logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for audit queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Function != "" {
		conditions = append(conditions, "function = ?")
		args = append(args, filter.Function)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM invocation_logs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting invocation logs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, function, kind, outcome, duration_ms, created_at FROM invocation_logs %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invocation logs: %w", err)
	}
	defer rows.Close()

	var logs []InvocationLog
	for rows.Next() {
		var log InvocationLog
		var createdAt string

		if err := rows.Scan(&log.ID, &log.Function, &log.Kind,
			&log.Outcome, &log.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning invocation log: %w", err)
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing invocation log timestamp %q: %w", createdAt, err)
		}
		log.CreatedAt = t

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocation logs: %w", err)
	}

	if logs == nil {
		logs = []InvocationLog{}
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
