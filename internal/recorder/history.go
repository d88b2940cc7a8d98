package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/trfife/barnabee-assistant/internal/engine"
)

// periodFormats maps statistics periods to the SQLite strftime pattern
// that buckets an hourly row's start into that period. Hour is the
// compilation granularity; coarser periods aggregate hour rows.
var periodFormats = map[string]string{
	"hour":  "%Y-%m-%dT%H:00:00Z",
	"day":   "%Y-%m-%dT00:00:00Z",
	"month": "%Y-%m-01T00:00:00Z",
}

// History returns time-ranged state snapshots, one slice per requested
// entity in request order. Options shape the rows:
//
//   - IncludeStartTimeState prepends the state in effect at the start bound
//   - SignificantChangesOnly drops rows whose state repeats the previous row
//   - MinimalResponse trims every row after the first to state and
//     last_changed only
//   - NoAttributes omits attribute payloads entirely
func (s *Store) History(ctx context.Context, entityIDs []string, start, end time.Time, opts engine.HistoryOptions) ([][]map[string]any, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	result := make([][]map[string]any, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		rows, err := s.entityHistory(ctx, entityID, start, end, opts)
		if err != nil {
			return nil, err
		}
		result = append(result, rows)
	}
	return result, nil
}

// entityHistory loads the snapshots for one entity.
func (s *Store) entityHistory(ctx context.Context, entityID string, start, end time.Time, opts engine.HistoryOptions) ([]map[string]any, error) {
	startStr := start.UTC().Format(time.RFC3339)
	endStr := end.UTC().Format(time.RFC3339)

	snapshots := make([]map[string]any, 0)

	if opts.IncludeStartTimeState {
		row := s.db.QueryRowContext(ctx, `
			SELECT entity_id, state, attributes, last_changed, last_updated
			FROM states
			WHERE entity_id = ? AND last_updated <= ?
			ORDER BY last_updated DESC, id DESC
			LIMIT 1`, entityID, startStr)
		snap, err := scanSnapshot(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("querying start state: %w", err)
		}
		if err == nil {
			snapshots = append(snapshots, snap)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, state, attributes, last_changed, last_updated
		FROM states
		WHERE entity_id = ? AND last_updated > ? AND last_updated <= ?
		ORDER BY last_updated, id`, entityID, startStr, endStr)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	return shapeHistory(snapshots, opts), nil
}

// shapeHistory applies the response-shaping options to raw snapshots.
func shapeHistory(snapshots []map[string]any, opts engine.HistoryOptions) []map[string]any {
	shaped := make([]map[string]any, 0, len(snapshots))
	var prevState string

	for _, snap := range snapshots {
		state, _ := snap["state"].(string)
		if opts.SignificantChangesOnly && len(shaped) > 0 && state == prevState {
			continue
		}
		prevState = state

		if opts.NoAttributes {
			delete(snap, "attributes")
		}
		if opts.MinimalResponse && len(shaped) > 0 {
			snap = map[string]any{
				"state":        state,
				"last_changed": snap["last_changed"],
			}
		}
		shaped = append(shaped, snap)
	}
	return shaped
}

// scanSnapshot reads one states row into the wire shape.
func scanSnapshot(scanner interface{ Scan(...any) error }) (map[string]any, error) {
	var entityID, state, attrsJSON, lastChanged, lastUpdated string
	if err := scanner.Scan(&entityID, &state, &attrsJSON, &lastChanged, &lastUpdated); err != nil {
		return nil, err
	}

	snap := map[string]any{
		"entity_id":    entityID,
		"state":        state,
		"last_changed": lastChanged,
		"last_updated": lastUpdated,
	}
	if attrsJSON != "" && attrsJSON != "{}" {
		var attrs map[string]any
		if err := json.Unmarshal([]byte(attrsJSON), &attrs); err == nil {
			snap["attributes"] = attrs
		}
	} else {
		snap["attributes"] = map[string]any{}
	}
	return snap, nil
}

// Statistics returns compiled aggregates keyed by statistic id. Rows are
// filtered to the requested period and time range; the Types list picks
// which value fields each row carries ("mean", "min", "max", "sum", and
// "change", the delta of sum across the row's bucket).
//
// Unit conversion is not performed; requested units are ignored and
// values are returned in their recorded unit.
func (s *Store) Statistics(ctx context.Context, req engine.StatisticsRequest) (map[string][]map[string]any, error) {
	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange,
			req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339))
	}
	if _, ok := periodFormats[req.Period]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, req.Period)
	}

	types := make(map[string]bool, len(req.Types))
	for _, tp := range req.Types {
		types[tp] = true
	}

	result := make(map[string][]map[string]any, len(req.StatisticIDs))
	for _, statisticID := range req.StatisticIDs {
		rows, err := s.statisticRows(ctx, statisticID, req, types)
		if err != nil {
			return nil, err
		}
		result[statisticID] = rows
	}
	return result, nil
}

func (s *Store) statisticRows(ctx context.Context, statisticID string, req engine.StatisticsRequest, types map[string]bool) ([]map[string]any, error) {
	// Hour rows are the source of truth; coarser periods regroup them.
	query := fmt.Sprintf(`
		SELECT strftime('%s', start) AS bucket,
			AVG(mean), MIN(min), MAX(max), MAX(sum)
		FROM statistics
		WHERE statistic_id = ? AND period = 'hour' AND start >= ? AND start < ?
		GROUP BY bucket
		ORDER BY bucket`, periodFormats[req.Period])

	rows, err := s.db.QueryContext(ctx, query,
		statisticID,
		req.Start.UTC().Format(time.RFC3339), req.End.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying statistics: %w", err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	var prevSum sql.NullFloat64
	for rows.Next() {
		var start string
		var mean, minV, maxV, sum sql.NullFloat64
		if err := rows.Scan(&start, &mean, &minV, &maxV, &sum); err != nil {
			return nil, fmt.Errorf("scanning statistics row: %w", err)
		}

		row := map[string]any{"start": start}
		if types["mean"] && mean.Valid {
			row["mean"] = mean.Float64
		}
		if types["min"] && minV.Valid {
			row["min"] = minV.Float64
		}
		if types["max"] && maxV.Valid {
			row["max"] = maxV.Float64
		}
		if types["sum"] && sum.Valid {
			row["sum"] = sum.Float64
		}
		if types["change"] && sum.Valid {
			change := sum.Float64
			if prevSum.Valid {
				change -= prevSum.Float64
			}
			row["change"] = change
		}
		prevSum = sum

		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating statistics: %w", err)
	}
	return out, nil
}

// CompileHourlyStatistics aggregates numeric states in [start, end) into
// hourly statistics rows. Non-numeric states are skipped. Existing rows
// for the same bucket are replaced, so re-running a window is safe.
func (s *Store) CompileHourlyStatistics(ctx context.Context, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidRange,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, state, last_updated
		FROM states
		WHERE last_updated >= ? AND last_updated < ?
		ORDER BY entity_id, last_updated`,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("querying states for compilation: %w", err)
	}
	defer rows.Close()

	type bucket struct {
		count int
		sum   float64
		min   float64
		max   float64
	}
	buckets := make(map[string]map[string]*bucket) // entity -> hour start -> aggregate

	for rows.Next() {
		var entityID, state, lastUpdated string
		if err := rows.Scan(&entityID, &state, &lastUpdated); err != nil {
			return fmt.Errorf("scanning state for compilation: %w", err)
		}
		value, err := strconv.ParseFloat(state, 64)
		if err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, lastUpdated)
		if err != nil {
			continue
		}
		hour := ts.UTC().Truncate(time.Hour).Format(time.RFC3339)

		if buckets[entityID] == nil {
			buckets[entityID] = make(map[string]*bucket)
		}
		b := buckets[entityID][hour]
		if b == nil {
			b = &bucket{min: value, max: value}
			buckets[entityID][hour] = b
		}
		b.count++
		b.sum += value
		if value < b.min {
			b.min = value
		}
		if value > b.max {
			b.max = value
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating states for compilation: %w", err)
	}

	for entityID, hours := range buckets {
		for hour, b := range hours {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO statistics (statistic_id, start, period, mean, min, max, sum)
				VALUES (?, ?, 'hour', ?, ?, ?, ?)
				ON CONFLICT(statistic_id, start, period) DO UPDATE SET
					mean = excluded.mean, min = excluded.min,
					max = excluded.max, sum = excluded.sum`,
				entityID, hour, b.sum/float64(b.count), b.min, b.max, b.sum)
			if err != nil {
				return fmt.Errorf("upserting statistics for %s: %w", entityID, err)
			}
		}
	}

	s.logger.Debug("compiled hourly statistics", "entities", len(buckets))
	return nil
}

// EnergySummary returns the aggregate energy state over the last day:
// one entry per registered energy source with its total consumption,
// computed as the spread of its statistic sums.
func (s *Store) EnergySummary(ctx context.Context) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT es.statistic_id, es.source_type,
		       COALESCE(MAX(st.sum) - MIN(st.sum), 0)
		FROM energy_sources es
		LEFT JOIN statistics st
			ON st.statistic_id = es.statistic_id
			AND st.start >= ?
		GROUP BY es.statistic_id, es.source_type
		ORDER BY es.statistic_id`,
		time.Now().UTC().Add(-24*time.Hour).Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying energy summary: %w", err)
	}
	defer rows.Close()

	sources := make([]map[string]any, 0)
	var total float64
	for rows.Next() {
		var statisticID, sourceType string
		var consumption float64
		if err := rows.Scan(&statisticID, &sourceType, &consumption); err != nil {
			return nil, fmt.Errorf("scanning energy source: %w", err)
		}
		sources = append(sources, map[string]any{
			"statistic_id": statisticID,
			"type":         sourceType,
			"consumption":  consumption,
		})
		total += consumption
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating energy sources: %w", err)
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i]["statistic_id"].(string) < sources[j]["statistic_id"].(string)
	})

	return map[string]any{
		"period":            "day",
		"sources":           sources,
		"total_consumption": total,
	}, nil
}
