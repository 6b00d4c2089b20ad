package scripture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/database"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestDB(t *testing.T) (*database.DB, config.DatabaseConfig) {
	t.Helper()
	cfg := config.Default().Database
	cfg.Driver = database.DriverSQLite
	cfg.DSN = filepath.Join(t.TempDir(), "verses.db")
	db, err := database.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(context.Background(), db, cfg.VerseTable); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db, cfg
}

func insertVerse(t *testing.T, db *database.DB, table, testament string, book any, name string, chapter, verse any, text string) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf(`INSERT INTO %s(testament, book_id, book_name, chapter, verse, content) VALUES(?, ?, ?, ?, ?, ?)`, table),
		testament, book, name, chapter, verse, text)
	if err != nil {
		t.Fatalf("insert verse: %v", err)
	}
}

func TestLoadPagesThroughAllRows(t *testing.T) {
	db, cfg := openTestDB(t)
	cfg.PageSize = 2
	for v := 1; v <= 5; v++ {
		insertVerse(t, db, cfg.VerseTable, "OT", 1, "창세기", 1, v, fmt.Sprintf("구절 %d", v))
	}
	insertVerse(t, db, cfg.VerseTable, "NT", 40, "마태복음", 1, 1, "신약 구절")

	src, err := NewSource(db, cfg, newLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	rows, err := src.Load(context.Background(), OldTestament, Range{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Verse != i+1 || row.Testament != OldTestament {
			t.Fatalf("row %d out of order: %+v", i, row)
		}
	}

	// an exact multiple of the page size needs one extra empty page
	insertVerse(t, db, cfg.VerseTable, "OT", 1, "창세기", 1, 6, "구절 6")
	rows, err = src.Load(context.Background(), OldTestament, Range{})
	if err != nil || len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d (%v)", len(rows), err)
	}
}

func TestLoadFailsOnPageError(t *testing.T) {
	db, cfg := openTestDB(t)
	cfg.VerseTable = "missing_table"
	src, err := NewSource(db, cfg, newLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, err := src.Load(context.Background(), OldTestament, Range{}); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestLoadReadsExternalVerseTable(t *testing.T) {
	cfg := config.Default().Database
	cfg.Driver = database.DriverSQLite
	cfg.DSN = filepath.Join(t.TempDir(), "external.db")
	db, err := database.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// created outside EnsureSchema, as the hosted verse table is
	_, err = db.Exec(`CREATE TABLE bible_verses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    testament TEXT,
    book_id INTEGER,
    book_name TEXT,
    chapter INTEGER,
    verse INTEGER,
    content TEXT
)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	insertVerse(t, db, "bible_verses", "NT", 43, "요한복음", 1, 1, "태초에 말씀이 계시니라")

	src, err := NewSource(db, cfg, newLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	jobs, err := src.LoadChapters(context.Background(), NewTestament, Range{})
	if err != nil {
		t.Fatalf("load chapters: %v", err)
	}
	if len(jobs) != 1 || len(jobs[0].Verses) != 1 || jobs[0].Verses[0].Text != "태초에 말씀이 계시니라" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
}

func TestLoadChaptersGroupsAndFilters(t *testing.T) {
	db, cfg := openTestDB(t)
	insertVerse(t, db, cfg.VerseTable, "OT", 1, "창세기", 2, 2, "둘째 장 둘째 절")
	insertVerse(t, db, cfg.VerseTable, "OT", 1, "창세기", 2, 1, "둘째 장 첫째 절")
	insertVerse(t, db, cfg.VerseTable, "OT", 1, "창세기", 1, 1, "첫째 장")
	insertVerse(t, db, cfg.VerseTable, "OT", 2, "출애굽기", 1, 1, "출애굽기 첫째 장")
	insertVerse(t, db, cfg.VerseTable, "OT", 2, "출애굽기", 0, 1, "잘못된 장")
	insertVerse(t, db, cfg.VerseTable, "OT", "x", "알 수 없음", 1, 2, "잘못된 책")

	src, err := NewSource(db, cfg, newLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	jobs, err := src.LoadChapters(context.Background(), OldTestament, Range{})
	if err != nil {
		t.Fatalf("load chapters: %v", err)
	}
	want := []ChapterKey{{1, 1}, {1, 2}, {2, 1}}
	if len(jobs) != len(want) {
		t.Fatalf("expected %d jobs, got %d", len(want), len(jobs))
	}
	for i, key := range want {
		if jobs[i].Key() != key {
			t.Fatalf("job %d: expected %s, got %s", i, key, jobs[i].Key())
		}
	}
	if v := jobs[1].Verses; len(v) != 2 || v[0].Verse != 1 || v[1].Verse != 2 {
		t.Fatalf("verses not ordered: %+v", v)
	}

	jobs, err = src.LoadChapters(context.Background(), OldTestament, Range{StartBook: 1, StartChapter: 2, EndBook: 2, EndChapter: 1})
	if err != nil {
		t.Fatalf("load range: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Key() != (ChapterKey{1, 2}) {
		t.Fatalf("unexpected ranged jobs: %+v", jobs)
	}

	if _, err := src.LoadChapters(context.Background(), NewTestament, Range{}); !errors.Is(err, ErrNoVerses) {
		t.Fatalf("expected ErrNoVerses, got %v", err)
	}
}

func TestRangeContains(t *testing.T) {
	cases := []struct {
		r    Range
		key  ChapterKey
		want bool
	}{
		{Range{}, ChapterKey{5, 3}, true},
		{Range{StartBook: 5}, ChapterKey{5, 1}, true},
		{Range{StartBook: 5, StartChapter: 3}, ChapterKey{5, 2}, false},
		{Range{StartBook: 5, StartChapter: 3}, ChapterKey{6, 1}, true},
		{Range{EndBook: 5}, ChapterKey{5, 50}, true},
		{Range{EndBook: 5}, ChapterKey{6, 1}, false},
		{Range{EndBook: 5, EndChapter: 2}, ChapterKey{5, 3}, false},
		{Single(19, 23), ChapterKey{19, 23}, true},
		{Single(19, 23), ChapterKey{19, 24}, false},
	}
	for _, c := range cases {
		if got := c.r.Contains(c.key); got != c.want {
			t.Errorf("%+v contains %s = %v, want %v", c.r, c.key, got, c.want)
		}
	}
}

func TestParseTestament(t *testing.T) {
	if tm, err := ParseTestament(" nt "); err != nil || tm != NewTestament {
		t.Fatalf("unexpected %v %v", tm, err)
	}
	if _, err := ParseTestament("apocrypha"); err == nil {
		t.Fatal("expected error")
	}
	if OldTestament.KeySegment() != "ot" {
		t.Fatal("expected lowercase key segment")
	}
}

func TestGroupChaptersDiscardsInvalidRows(t *testing.T) {
	jobs := GroupChapters([]VerseRow{
		{BookID: 1, Chapter: 1, Verse: 1, Text: "a"},
		{BookID: -1, Chapter: 1, Verse: 1, Text: "b"},
		{BookID: 1, Chapter: 1, Verse: 0, Text: "c"},
	})
	if len(jobs) != 1 || len(jobs[0].Verses) != 1 {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
}

func TestParseID(t *testing.T) {
	cases := []struct {
		in   any
		want int
		ok   bool
	}{
		{int64(3), 3, true},
		{float64(4), 4, true},
		{4.5, 0, false},
		{"12", 12, true},
		{[]byte("7"), 7, true},
		{"abc", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := parseID(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("parseID(%v) = %d,%v want %d,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
