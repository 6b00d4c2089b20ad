package scripture

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/database"
)

const DefaultPageSize = 1000

// Source reads verses from the verse table in fixed-size pages.
type Source struct {
	db       *database.DB
	table    string
	pageSize int
	logger   *slog.Logger
}

func NewSource(db *database.DB, cfg config.DatabaseConfig, log *slog.Logger) (*Source, error) {
	if !database.ValidIdentifier(cfg.VerseTable) {
		return nil, fmt.Errorf("invalid verse table name %q", cfg.VerseTable)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Source{
		db:       db,
		table:    cfg.VerseTable,
		pageSize: pageSize,
		logger:   log.With(slog.String("component", "verse-source")),
	}, nil
}

// Load returns every verse of the testament within the book bounds of r,
// ordered by (book, chapter, verse). Paging stops at the first short page;
// any page error fails the whole load.
func (s *Source) Load(ctx context.Context, testament Testament, r Range) ([]VerseRow, error) {
	var (
		where = []string{"testament = ?"}
		args  = []any{string(testament)}
	)
	if r.StartBook > 0 {
		where = append(where, "book_id >= ?")
		args = append(args, r.StartBook)
	}
	if r.EndBook > 0 {
		where = append(where, "book_id <= ?")
		args = append(args, r.EndBook)
	}
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT book_id, book_name, chapter, verse, content FROM %s WHERE %s ORDER BY book_id, chapter, verse LIMIT ? OFFSET ?`,
		s.table, strings.Join(where, " AND ")))

	var rows []VerseRow
	for page, offset := 0, 0; ; page, offset = page+1, offset+s.pageSize {
		batch, err := s.fetchPage(ctx, query, append(args[:len(args):len(args)], s.pageSize, offset), testament)
		if err != nil {
			return nil, fmt.Errorf("load verses page %d: %w", page, err)
		}
		rows = append(rows, batch...)
		if len(batch) < s.pageSize {
			break
		}
	}
	s.logger.Debug("verses loaded", slog.String("testament", string(testament)), slog.Int("rows", len(rows)))
	return rows, nil
}

func (s *Source) fetchPage(ctx context.Context, query string, args []any, testament Testament) ([]VerseRow, error) {
	result, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var rows []VerseRow
	for result.Next() {
		var (
			bookID, chapter, verse any
			bookName, text         sql.NullString
		)
		if err := result.Scan(&bookID, &bookName, &chapter, &verse, &text); err != nil {
			return nil, err
		}
		row := VerseRow{Testament: testament}
		// Unparseable identifiers become zero and are dropped when grouping.
		row.BookID, _ = parseID(bookID)
		row.Chapter, _ = parseID(chapter)
		row.Verse, _ = parseID(verse)
		row.BookName = bookName.String
		row.Text = text.String
		rows = append(rows, row)
	}
	return rows, result.Err()
}

// LoadChapters loads, groups and range-filters the chapters of a testament.
func (s *Source) LoadChapters(ctx context.Context, testament Testament, r Range) ([]ChapterJob, error) {
	rows, err := s.Load(ctx, testament, r)
	if err != nil {
		return nil, err
	}
	var jobs []ChapterJob
	for _, job := range GroupChapters(rows) {
		if r.Contains(job.Key()) {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w for testament %s", ErrNoVerses, testament)
	}
	return jobs, nil
}

func parseID(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case int:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case []byte:
		return parseID(string(n))
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return parseID(f)
		}
	}
	return 0, false
}

// EnsureSchema creates the verse table when missing.
func EnsureSchema(ctx context.Context, db *database.DB, table string) error {
	if !database.ValidIdentifier(table) {
		return fmt.Errorf("invalid verse table name %q", table)
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    testament TEXT NOT NULL,
    book_id INTEGER NOT NULL,
    book_name TEXT NOT NULL,
    chapter INTEGER NOT NULL,
    verse INTEGER NOT NULL,
    content TEXT NOT NULL,
    PRIMARY KEY (book_id, chapter, verse)
)`, table))
	return err
}
