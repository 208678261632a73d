// Package store persists reconstructed traces in SQLite so costs can be
// compared across many executions.
//
// Labels are interned in their own table; spans reference their execution,
// their label and their parent span.
package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/meterz"
)

var (
	// ErrNotFound is returned when a requested execution does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrExists is returned when an execution ID has already been saved.
	ErrExists = errors.New("storage: execution already exists")
	// ErrCounterRange is returned for counter values SQLite integers cannot hold.
	ErrCounterRange = errors.New("storage: counter exceeds int64")
)

// Memory is the path that opens a private in-memory database.
const Memory = ":memory:"

const createDDL = `
CREATE TABLE IF NOT EXISTS executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT NOT NULL UNIQUE,
	overhead INT NOT NULL,
	spans INT NOT NULL,
	skipped INT NOT NULL,
	total INT NOT NULL,
	created_at INT NOT NULL
);

CREATE TABLE IF NOT EXISTS labels (
	id INTEGER NOT NULL PRIMARY KEY,
	label TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS spans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id INT NOT NULL,
	parent_id INT,
	label_id INT NOT NULL,
	sequence INT NOT NULL,
	depth INT NOT NULL,
	enter INT NOT NULL,
	exit INT NOT NULL,
	gross INT NOT NULL,
	net INT NOT NULL,
	inclusive INT NOT NULL,
	FOREIGN KEY(execution_id) REFERENCES executions(id),
	FOREIGN KEY(parent_id) REFERENCES spans(id),
	FOREIGN KEY(label_id) REFERENCES labels(id)
);

CREATE INDEX IF NOT EXISTS spans_execution ON spans(execution_id);
CREATE INDEX IF NOT EXISTS spans_label ON spans(label_id);
`

// Execution is one saved trace.
type Execution struct {
	ID        string    `db:"execution_id" json:"id"`
	Overhead  uint64    `db:"overhead" json:"overhead"`
	Spans     int       `db:"spans" json:"spans"`
	Skipped   int       `db:"skipped" json:"skipped"`
	Total     uint64    `db:"total" json:"total"`
	CreatedAt time.Time `db:"-" json:"created_at"`
}

// SpanRow is one saved span.
type SpanRow struct {
	ID        int64         `db:"id" json:"id"`
	ParentID  sql.NullInt64 `db:"parent_id" json:"-"`
	Label     string        `db:"label" json:"label"`
	Sequence  int           `db:"sequence" json:"sequence"`
	Depth     int           `db:"depth" json:"depth"`
	Enter     uint64        `db:"enter" json:"enter"`
	Exit      uint64        `db:"exit" json:"exit"`
	Gross     uint64        `db:"gross" json:"gross"`
	Net       uint64        `db:"net" json:"net"`
	Inclusive uint64        `db:"inclusive" json:"inclusive"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp saved executions.
func WithClock(clock clockz.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Store is a SQLite-backed trace store. It is safe for concurrent use.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	clock  clockz.Clock

	mu     sync.Mutex
	labels map[string]int64
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path + "?cache=shared&mode=rwc&_journal_mode=WAL&_foreign_keys=on"
	if path == Memory {
		dsn = "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// SQLite serializes writers; one connection also keeps a shared
	// in-memory database alive for the life of the store.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: logger,
		clock:  clockz.RealClock,
		labels: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadLabels(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("storage: opened", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createDDL); err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

func (s *Store) loadLabels(ctx context.Context) error {
	type label struct {
		ID    int64  `db:"id"`
		Label string `db:"label"`
	}

	var labels []label
	if err := s.db.SelectContext(ctx, &labels, "SELECT id, label FROM labels"); err != nil {
		return fmt.Errorf("storage: load labels: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range labels {
		s.labels[l.Label] = l.ID
	}
	return nil
}

// SaveTrace stores trace with costs computed under overhead and returns the
// execution ID it was saved under. A trace without an ID is given a new one.
func (s *Store) SaveTrace(ctx context.Context, trace *meterz.Trace, overhead meterz.Overhead) (string, error) {
	id := trace.ID
	if id == "" {
		id = uuid.NewString()
	}

	report := meterz.NewReport(overhead, trace)
	// Enter sequence order is pre-order, so parents are inserted first.
	occurrences := report.Occurrences()
	slices.SortFunc(occurrences, func(a, b meterz.Occurrence) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})

	total, err := toInt64(report.Total())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO executions(execution_id, overhead, spans, skipped, total, created_at) VALUES(?, ?, ?, ?, ?, ?)",
		id, int64(overhead), len(occurrences), trace.Skipped, total, s.clock.Now().UnixNano())
	if err != nil {
		var n int
		if qerr := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM executions WHERE execution_id = ?", id); qerr == nil && n > 0 {
			return "", fmt.Errorf("storage: execution %s: %w", id, ErrExists)
		}
		return "", fmt.Errorf("storage: insert execution %s: %w", id, err)
	}
	execution, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("storage: insert execution %s: %w", id, err)
	}

	insert, err := tx.PreparexContext(ctx,
		"INSERT INTO spans(execution_id, parent_id, label_id, sequence, depth, enter, exit, gross, net, inclusive) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return "", fmt.Errorf("storage: prepare spans: %w", err)
	}
	defer insert.Close()

	added := make(map[string]int64)
	rows := make(map[*meterz.Span]int64, len(occurrences))
	for _, occ := range occurrences {
		label, ok := s.labels[occ.Label]
		if !ok {
			if label, ok = added[occ.Label]; !ok {
				res, err := tx.ExecContext(ctx, "INSERT INTO labels(label) VALUES(?)", occ.Label)
				if err != nil {
					return "", fmt.Errorf("storage: insert label %q: %w", occ.Label, err)
				}
				if label, err = res.LastInsertId(); err != nil {
					return "", fmt.Errorf("storage: insert label %q: %w", occ.Label, err)
				}
				added[occ.Label] = label
			}
		}

		var parent sql.NullInt64
		if p := occ.Span.Parent(); p != nil {
			parent = sql.NullInt64{Int64: rows[p], Valid: true}
		}

		values, err := toInt64s(occ.Enter, occ.Exit, occ.Gross, occ.Net, occ.Inclusive)
		if err != nil {
			return "", fmt.Errorf("storage: span %q at sequence %d: %w", occ.Label, occ.Sequence, err)
		}

		res, err := insert.ExecContext(ctx, execution, parent, label, occ.Sequence, occ.Depth,
			values[0], values[1], values[2], values[3], values[4])
		if err != nil {
			return "", fmt.Errorf("storage: insert span %q: %w", occ.Label, err)
		}
		if rows[occ.Span], err = res.LastInsertId(); err != nil {
			return "", fmt.Errorf("storage: insert span %q: %w", occ.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("storage: commit %s: %w", id, err)
	}
	for label, lid := range added {
		s.labels[label] = lid
	}

	s.logger.Debug("storage: saved trace", "execution", id, "spans", len(occurrences), "labels_added", len(added))
	return id, nil
}

// Executions returns every saved execution, oldest first.
func (s *Store) Executions(ctx context.Context) ([]Execution, error) {
	type row struct {
		Execution
		CreatedAt int64 `db:"created_at"`
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT execution_id, overhead, spans, skipped, total, created_at FROM executions ORDER BY id"); err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}

	out := make([]Execution, len(rows))
	for i, r := range rows {
		out[i] = r.Execution
		out[i].CreatedAt = time.Unix(0, r.CreatedAt).UTC()
	}
	return out, nil
}

// Spans returns the spans of one execution in sequence order.
func (s *Store) Spans(ctx context.Context, executionID string) ([]SpanRow, error) {
	var id int64
	if err := s.db.GetContext(ctx, &id, "SELECT id FROM executions WHERE execution_id = ?", executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("storage: execution %s: %w", executionID, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: execution %s: %w", executionID, err)
	}

	var rows []SpanRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT s.id, s.parent_id, l.label, s.sequence, s.depth, s.enter, s.exit, s.gross, s.net, s.inclusive
		FROM spans s JOIN labels l ON l.id = s.label_id
		WHERE s.execution_id = ?
		ORDER BY s.sequence`, id); err != nil {
		return nil, fmt.Errorf("storage: spans of %s: %w", executionID, err)
	}
	return rows, nil
}

// Sites aggregates net cost per label over every saved execution, ordered
// by total net cost descending.
func (s *Store) Sites(ctx context.Context) ([]meterz.Site, error) {
	type site struct {
		Label          string `db:"label"`
		Count          int    `db:"count"`
		TotalNet       uint64 `db:"total_net"`
		MinNet         uint64 `db:"min_net"`
		MaxNet         uint64 `db:"max_net"`
		TotalInclusive uint64 `db:"total_inclusive"`
	}

	var rows []site
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT l.label AS label,
			COUNT(*) AS count,
			SUM(s.net) AS total_net,
			MIN(s.net) AS min_net,
			MAX(s.net) AS max_net,
			SUM(s.inclusive) AS total_inclusive
		FROM spans s JOIN labels l ON l.id = s.label_id
		GROUP BY l.label
		ORDER BY total_net DESC, l.label`); err != nil {
		return nil, fmt.Errorf("storage: sites: %w", err)
	}

	sites := make([]meterz.Site, len(rows))
	for i, r := range rows {
		sites[i] = meterz.Site{
			Label:          r.Label,
			Count:          r.Count,
			TotalNet:       r.TotalNet,
			MinNet:         r.MinNet,
			MaxNet:         r.MaxNet,
			MeanNet:        r.TotalNet / uint64(r.Count),
			TotalInclusive: r.TotalInclusive,
		}
	}
	return sites, nil
}

func toInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrCounterRange, v)
	}
	return int64(v), nil
}

func toInt64s(vs ...uint64) ([]int64, error) {
	out := make([]int64, len(vs))
	for i, v := range vs {
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
