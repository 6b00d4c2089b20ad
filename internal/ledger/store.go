// Package ledger keeps a local SQLite history of batch runs and chapter
// state transitions.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/protocol"
)

// Fixed width so timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Event is one recorded chapter transition.
type Event struct {
	ID        int64
	RunID     string
	BookID    int
	Chapter   int
	State     protocol.ChapterState
	Message   string
	CreatedAt time.Time
}

// Store wraps the SQLite ledger. With retention mode "off" every method is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.LedgerConfig
	log   *slog.Logger
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.LedgerConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "ledger"))
	if cfg.RetentionMode == "off" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("ledger prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    testament TEXT NOT NULL,
    total INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT
);
CREATE TABLE IF NOT EXISTS chapter_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    book_id INTEGER NOT NULL,
    chapter INTEGER NOT NULL,
    state TEXT NOT NULL,
    message TEXT,
    created_at TEXT NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_chapter_events_run ON chapter_events(run_id, id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) enabled() bool { return s.cfg.RetentionMode != "off" && s.db != nil }

// StartRun records a new run.
func (s *Store) StartRun(ctx context.Context, runID, testament string) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, testament, started_at) VALUES(?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET testament=excluded.testament`,
		runID, testament, s.clock().UTC().Format(timeLayout))
	return err
}

// Observe appends a chapter transition.
func (s *Store) Observe(ctx context.Context, evt protocol.ChapterEvent) error {
	if !s.enabled() {
		return nil
	}
	created := evt.Timestamp
	if created.IsZero() {
		created = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chapter_events(run_id, book_id, chapter, state, message, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.RunID, evt.BookID, evt.Chapter, string(evt.State), evt.Error, created.UTC().Format(timeLayout))
	return err
}

// FinishRun stores the final counts.
func (s *Store) FinishRun(ctx context.Context, summary protocol.RunSummary) error {
	if !s.enabled() {
		return nil
	}
	finished := summary.FinishedAt
	if finished.IsZero() {
		finished = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET total=?, processed=?, skipped=?, failed=?, finished_at=? WHERE run_id=?`,
		summary.Total, summary.Processed, summary.Skipped, summary.Failed, finished.UTC().Format(timeLayout), summary.RunID)
	return err
}

// ListRunEvents returns up to limit transitions of a run in insertion order.
// A limit of zero or less returns every transition.
func (s *Store) ListRunEvents(ctx context.Context, runID string, limit int) ([]Event, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, book_id, chapter, state, COALESCE(message, ''), created_at
		 FROM chapter_events WHERE run_id = ? ORDER BY id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			state   string
			created string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.BookID, &e.Chapter, &state, &e.Message, &created); err != nil {
			return nil, err
		}
		e.State = protocol.ChapterState(state)
		if ts, err := time.Parse(timeLayout, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastState returns the most recent recorded state of every chapter in a run.
func (s *Store) LastState(ctx context.Context, runID string) (map[[2]int]protocol.ChapterState, error) {
	events, err := s.ListRunEvents(ctx, runID, -1)
	if err != nil {
		return nil, err
	}
	states := make(map[[2]int]protocol.ChapterState)
	for _, e := range events {
		states[[2]int{e.BookID, e.Chapter}] = e.State
	}
	return states, nil
}

// Prune drops runs older than RetentionDays and keeps at most MaxRuns.
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.enabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC().Format(timeLayout)
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxRuns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
			SELECT run_id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRuns)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
