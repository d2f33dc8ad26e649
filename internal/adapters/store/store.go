// Package store persists aligned tables to SQLite in long format, one row
// per (sheet, column, grid offset).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/physalign/internal/domain/model"
	_ "modernc.org/sqlite"
)

// ErrEmptyRunID is returned when rows would be written without a run id.
var ErrEmptyRunID = errors.New("run id must not be empty")

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created_at REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS aligned (
		run_id TEXT NOT NULL,
		sheet TEXT NOT NULL,
		label TEXT NOT NULL,
		subject TEXT NOT NULL,
		offset_s INTEGER NOT NULL,
		value REAL,
		PRIMARY KEY (sheet, label, offset_s)
	);

	CREATE INDEX IF NOT EXISTS aligned_run ON aligned(run_id);
`

// Row is one stored grid point. Value is invalid where the point is missing.
type Row struct {
	RunID   string
	Sheet   string
	Label   string
	Subject string
	Offset  int
	Value   sql.NullFloat64
}

// Store writes aligned tables to a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" is accepted.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteTables stores every column of tables under runID in one transaction.
// Rows already stored for the same sheet and label are replaced. Returns the
// number of rows written.
func (s *Store) WriteTables(ctx context.Context, runID string, tables ...model.AlignedTable) (int, error) {
	if runID == "" {
		return 0, ErrEmptyRunID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, created_at) VALUES (?, ?)`,
		runID, float64(s.now().UnixNano())/1e9); err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	del, err := tx.PrepareContext(ctx, `DELETE FROM aligned WHERE sheet = ? AND label = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare delete: %w", err)
	}
	defer func() { _ = del.Close() }()

	ins, err := tx.PrepareContext(ctx, `
		INSERT INTO aligned (run_id, sheet, label, subject, offset_s, value)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = ins.Close() }()

	n := 0
	for _, tbl := range tables {
		sheet := tbl.Modality.Title()
		for _, col := range tbl.Columns {
			if _, err := del.ExecContext(ctx, sheet, col.Label); err != nil {
				return 0, fmt.Errorf("clear %s/%s: %w", sheet, col.Label, err)
			}
			for i, off := range tbl.Offsets {
				var v sql.NullFloat64
				if i < len(col.Values) && !math.IsNaN(col.Values[i]) {
					v = sql.NullFloat64{Float64: col.Values[i], Valid: true}
				}
				if _, err := ins.ExecContext(ctx, runID, sheet, col.Label, col.Subject, off, v); err != nil {
					return 0, fmt.Errorf("insert %s/%s@%d: %w", sheet, col.Label, off, err)
				}
				n++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Rows returns the stored grid points of one column, ordered by offset.
func (s *Store) Rows(ctx context.Context, sheet, label string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, sheet, label, subject, offset_s, value
		FROM aligned
		WHERE sheet = ? AND label = ?
		ORDER BY offset_s ASC
	`, sheet, label)
	if err != nil {
		return nil, fmt.Errorf("query aligned: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RunID, &r.Sheet, &r.Label, &r.Subject, &r.Offset, &r.Value); err != nil {
			return nil, fmt.Errorf("scan aligned: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs returns the stored run ids, oldest first.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY created_at ASC, run_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
