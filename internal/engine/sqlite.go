package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteExecutor runs read-only queries against a SQLite database, by
// default the recorder database configured on the capability set.
//
// Two safeguards apply regardless of configuration: the DSN is rewritten
// to force mode=ro before the database is opened, and query templates are
// given exposure-check helpers so a template can refuse to run when the
// requested entity is not exposed.
type sqliteExecutor struct {
	caps Capabilities
}

const defaultQueryTemplate = "{{.query}}"

func (s *sqliteExecutor) Validate(raw map[string]any) (Config, error) {
	cfg := Config{"type": KindSqlite}

	if v, ok := raw["query"]; ok {
		q, ok := v.(string)
		if !ok || q == "" {
			return nil, fmt.Errorf("%w: sqlite query must be a non-empty string", ErrInvalidFunction)
		}
		if err := validateQueryTemplate(q); err != nil {
			return nil, fmt.Errorf("%w: sqlite query: %v", ErrInvalidFunction, err)
		}
		cfg["query"] = q
	}
	if v, ok := raw["db_url"]; ok {
		u, ok := v.(string)
		if !ok || u == "" {
			return nil, fmt.Errorf("%w: sqlite db_url must be a non-empty string", ErrInvalidFunction)
		}
		cfg["db_url"] = u
	}
	if v, ok := raw["single"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: sqlite single must be a boolean", ErrInvalidFunction)
		}
		cfg["single"] = b
	}

	return cfg, nil
}

func (s *sqliteExecutor) Execute(ctx context.Context, cfg Config, args Arguments, caller CallerContext, exposed []ExposedEntity) (any, error) {
	dsn := stringValue(cfg, "db_url", s.caps.RecorderPath)
	if dsn == "" {
		return nil, errors.New("engine: sqlite executor has no database configured")
	}
	dsn = readOnlyDSN(dsn)

	queryTmpl := stringValue(cfg, "query", defaultQueryTemplate)
	query, err := renderQuery(queryTmpl, args, exposed)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrParseArguments)
	}

	s.caps.Logger.Debug("executing sqlite query", "query", query)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine: query failed: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	if boolValue(cfg, "single", false) {
		if len(results) == 0 {
			return nil, errors.New("engine: query returned no rows")
		}
		return results[0], nil
	}
	return results, nil
}

// queryFuncs builds the helper functions available to query templates.
// is_exposed lets a template branch on exposure; raise lets it abort with
// a caller-visible message instead of running an unauthorized query.
func queryFuncs(exposed []ExposedEntity) template.FuncMap {
	return template.FuncMap{
		"is_exposed": func(entityID string) bool {
			for _, e := range exposed {
				if e.ID == entityID {
					return true
				}
			}
			return false
		},
		"is_exposed_entity_in_query": func(query string) bool {
			for _, e := range exposed {
				if strings.Contains(query, "'"+e.ID+"'") || strings.Contains(query, `"`+e.ID+`"`) {
					return true
				}
			}
			return false
		},
		"raise": func(msg string) (string, error) {
			return "", errors.New(msg)
		},
	}
}

func validateQueryTemplate(text string) error {
	_, err := template.New("query").Funcs(queryFuncs(nil)).Option("missingkey=zero").Parse(text)
	return err
}

func renderQuery(text string, args Arguments, exposed []ExposedEntity) (string, error) {
	data := map[string]any(args.Clone())
	ids := make([]string, len(exposed))
	for i, e := range exposed {
		ids[i] = e.ID
	}
	data["exposed_entities"] = ids

	tmpl, err := template.New("query").Funcs(queryFuncs(exposed)).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFunction, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("engine: render query: %w", err)
	}
	return sb.String(), nil
}

// readOnlyDSN rewrites a SQLite DSN so the connection opens read-only.
// The rewrite is a fixed point: applying it to its own output returns the
// same string, since query parameters are re-encoded in sorted order.
func readOnlyDSN(dsn string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}
	params.Set("mode", "ro")
	if !strings.HasPrefix(base, "file:") {
		base = "file:" + base
	}
	return base + "?" + params.Encode()
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("engine: read columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("engine: scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine: iterate rows: %w", err)
	}
	return results, nil
}
