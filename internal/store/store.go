// Package store persists captured traces to SQLite, giving sessions a
// durable history that survives restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS traces (
	id          TEXT PRIMARY KEY,
	instrument  TEXT NOT NULL,
	source      TEXT NOT NULL,
	x           BLOB NOT NULL,
	y           BLOB NOT NULL,
	x_units     TEXT NOT NULL DEFAULT '',
	y_units     TEXT NOT NULL DEFAULT '',
	captured_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_traces_instrument ON traces(instrument, captured_at);
CREATE INDEX IF NOT EXISTS idx_traces_captured_at ON traces(captured_at);
`

// Store is a SQLite-backed trace archive
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the trace database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace database %s: %w", path, err)
	}
	// SQLite writes are single-threaded; one connection avoids lock
	// contention errors under concurrent acquisition.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply trace schema: %w", err)
	}
	logger.Info("trace store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing database handle. The caller owns schema
// setup; tests use this with a mock.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Save persists one trace
func (s *Store) Save(ctx context.Context, t *trace.Trace) error {
	if err := t.Validate(); err != nil {
		return err
	}
	x, err := json.Marshal(t.X)
	if err != nil {
		return fmt.Errorf("encode x axis: %w", err)
	}
	y, err := json.Marshal(t.Y)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO traces (id, instrument, source, x, y, x_units, y_units, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Instrument, t.Source, x, y, t.XUnits, t.YUnits, t.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert trace %s: %w", t.ID, err)
	}
	s.logger.Debug("trace saved",
		zap.String("id", t.ID.String()),
		zap.String("source", t.Source),
		zap.Int("points", t.Points()))
	return nil
}

// Get fetches one trace by id
func (s *Store) Get(ctx context.Context, id string) (*trace.Trace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, instrument, source, x, y, x_units, y_units, captured_at
		 FROM traces WHERE id = ?`, id)
	t, err := scanTrace(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trace %s not found", id)
	}
	return t, err
}

// Query selects the filter and page for List
type Query struct {
	Instrument string
	Source     string
	Since      time.Time
	Limit      int
}

// List returns traces matching the query, newest first
func (s *Store) List(ctx context.Context, q Query) ([]*trace.Trace, error) {
	where := "1=1"
	args := make([]any, 0, 4)
	if q.Instrument != "" {
		where += " AND instrument = ?"
		args = append(args, q.Instrument)
	}
	if q.Source != "" {
		where += " AND source = ?"
		args = append(args, q.Source)
	}
	if !q.Since.IsZero() {
		where += " AND captured_at >= ?"
		args = append(args, q.Since)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instrument, source, x, y, x_units, y_units, captured_at
		 FROM traces WHERE `+where+` ORDER BY captured_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var traces []*trace.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

// Delete removes one trace by id
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM traces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete trace %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("trace %s not found", id)
	}
	return nil
}

// Prune deletes traces captured before the cutoff and reports how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM traces WHERE captured_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune traces: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("traces pruned", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrace(row rowScanner) (*trace.Trace, error) {
	var (
		t        trace.Trace
		id       string
		xb, yb   []byte
		captured time.Time
	)
	if err := row.Scan(&id, &t.Instrument, &t.Source, &xb, &yb, &t.XUnits, &t.YUnits, &captured); err != nil {
		return nil, err
	}
	parsed, err := parseID(id)
	if err != nil {
		return nil, err
	}
	t.ID = parsed
	t.CapturedAt = captured
	if err := json.Unmarshal(xb, &t.X); err != nil {
		return nil, fmt.Errorf("decode x axis for trace %s: %w", id, err)
	}
	if err := json.Unmarshal(yb, &t.Y); err != nil {
		return nil, fmt.Errorf("decode samples for trace %s: %w", id, err)
	}
	return &t, nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid trace id %q: %w", s, err)
	}
	return id, nil
}
