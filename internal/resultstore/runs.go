package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"scanlapse/internal/aggregate"
)

// Snapshot is one persisted measurement.
type Snapshot struct {
	RunID         string
	Fingerprint   string
	Normalization string
	CreatedAt     time.Time
	Table         *aggregate.Table
	// Summary is optional.
	Summary *aggregate.GroupTable
}

// Info describes the newest stored run without loading its tables.
type Info struct {
	RunID       string
	Fingerprint string
	Rows        int
	Samples     int
	CreatedAt   time.Time
}

// Save writes snap in a single transaction and drops older runs beyond keep
// (keep <= 0 keeps every run).
func (s *Store) Save(ctx context.Context, snap Snapshot, keep int) error {
	if snap.Table == nil {
		return errors.New("save: table is nil")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	return retryOnBusy(ctx, func() error { return s.save(ctx, snap, keep) })
}

func (s *Store) save(ctx context.Context, snap Snapshot, keep int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	level := ""
	if snap.Summary != nil {
		level = snap.Summary.Level
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, fingerprint, normalization, level, row_count, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.Fingerprint, snap.Normalization, level, len(snap.Table.Rows),
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	run, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	for col, sample := range snap.Table.Samples {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_samples (run, col_index, sample) VALUES (?, ?, ?)`, run, col, sample); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	cell, err := tx.PrepareContext(ctx, `INSERT INTO measurements (run, row_index, col_index, time_hours, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare measurement insert: %w", err)
	}
	defer cell.Close()
	for r, row := range snap.Table.Rows {
		for c, v := range row.Values {
			if _, err := cell.ExecContext(ctx, run, r, c, row.Time, nullableFloat(v)); err != nil {
				return fmt.Errorf("insert measurement: %w", err)
			}
		}
	}

	if snap.Summary != nil {
		group, err := tx.PrepareContext(ctx, `INSERT INTO group_summary (run, row_index, grp_index, grp, time_hours, mean, std_err, n) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare summary insert: %w", err)
		}
		defer group.Close()
		for r, row := range snap.Summary.Rows {
			for g, name := range snap.Summary.Groups {
				if _, err := group.ExecContext(ctx, run, r, g, name, row.Time,
					nullableFloat(row.Mean[g]), nullableFloat(row.StdErr[g]), row.N[g]); err != nil {
					return fmt.Errorf("insert summary: %w", err)
				}
			}
		}
	}

	if keep > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)`, keep); err != nil {
			return fmt.Errorf("prune runs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// LatestInfo describes the newest run. ok is false when nothing is stored.
func (s *Store) LatestInfo(ctx context.Context) (info Info, ok bool, err error) {
	var created string
	row := s.db.QueryRowContext(ctx, `
        SELECT r.run_id, r.fingerprint, r.row_count, r.created_at,
               (SELECT COUNT(1) FROM run_samples WHERE run = r.id)
        FROM runs r ORDER BY r.id DESC LIMIT 1`)
	if err := row.Scan(&info.RunID, &info.Fingerprint, &info.Rows, &created, &info.Samples); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Info{}, false, nil
		}
		return Info{}, false, fmt.Errorf("latest run: %w", err)
	}
	info.CreatedAt = parseTime(created)
	return info, true, nil
}

// Latest loads the newest run with its tables, or nil when nothing is stored.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	var (
		id      int64
		created string
		level   string
		snap    Snapshot
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, fingerprint, normalization, level, created_at FROM runs ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&id, &snap.RunID, &snap.Fingerprint, &snap.Normalization, &level, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest run: %w", err)
	}
	snap.CreatedAt = parseTime(created)

	table, err := s.loadTable(ctx, id)
	if err != nil {
		return nil, err
	}
	snap.Table = table

	summary, err := s.loadSummary(ctx, id, level)
	if err != nil {
		return nil, err
	}
	snap.Summary = summary
	return &snap, nil
}

func (s *Store) loadTable(ctx context.Context, run int64) (*aggregate.Table, error) {
	table := &aggregate.Table{}
	rows, err := s.db.QueryContext(ctx, `SELECT sample FROM run_samples WHERE run = ? ORDER BY col_index`, run)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	for rows.Next() {
		var sample string
		if err := rows.Scan(&sample); err != nil {
			rows.Close()
			return nil, err
		}
		table.Samples = append(table.Samples, sample)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cells, err := s.db.QueryContext(ctx,
		`SELECT row_index, col_index, time_hours, value FROM measurements WHERE run = ? ORDER BY row_index, col_index`, run)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer cells.Close()
	for cells.Next() {
		var (
			r, c  int
			t     float64
			value sql.NullFloat64
		)
		if err := cells.Scan(&r, &c, &t, &value); err != nil {
			return nil, err
		}
		for len(table.Rows) <= r {
			values := make([]float64, len(table.Samples))
			for i := range values {
				values[i] = math.NaN()
			}
			table.Rows = append(table.Rows, aggregate.Row{Values: values})
		}
		table.Rows[r].Time = t
		if value.Valid && c < len(table.Samples) {
			table.Rows[r].Values[c] = value.Float64
		}
	}
	return table, cells.Err()
}

func (s *Store) loadSummary(ctx context.Context, run int64, level string) (*aggregate.GroupTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, grp_index, grp, time_hours, mean, std_err, n FROM group_summary WHERE run = ? ORDER BY row_index, grp_index`, run)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var summary *aggregate.GroupTable
	for rows.Next() {
		var (
			r, g, n     int
			name        string
			t           float64
			mean, sterr sql.NullFloat64
		)
		if err := rows.Scan(&r, &g, &name, &t, &mean, &sterr, &n); err != nil {
			return nil, err
		}
		if summary == nil {
			summary = &aggregate.GroupTable{Level: level}
		}
		if r == 0 {
			summary.Groups = append(summary.Groups, name)
		}
		for len(summary.Rows) <= r {
			summary.Rows = append(summary.Rows, aggregate.GroupRow{})
		}
		gr := &summary.Rows[r]
		gr.Time = t
		gr.Mean = append(gr.Mean, floatOrNaN(mean))
		gr.StdErr = append(gr.StdErr, floatOrNaN(sterr))
		gr.N = append(gr.N, n)
	}
	return summary, rows.Err()
}

func nullableFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
