// Package catalog stores per-chapter audio metadata keyed by (book, chapter).
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dailyword/bibleaudio/internal/assemble"
	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/database"
	"github.com/dailyword/bibleaudio/internal/scripture"
)

var ErrNotFound = errors.New("chapter audio not found")

// Params records the generation settings that shaped an artifact.
type Params struct {
	VerseGapMS      int     `json:"verse_gap_ms"`
	IntroGapMS      int     `json:"intro_gap_ms"`
	BraceGapMS      int     `json:"brace_gap_ms"`
	BraceSplit      bool    `json:"brace_split"`
	MaxChars        int     `json:"max_chars"`
	SplitVerses     int     `json:"split_verse_count"`
	EscalatedVerses int     `json:"escalated_verse_count"`
	Speed           float64 `json:"speed"`
	Pitch           float64 `json:"pitch"`
	Volume          float64 `json:"volume"`
	Codec           string  `json:"codec"`
	BitrateKbps     int     `json:"bitrate_kbps"`
}

// Artifact is one published chapter.
type Artifact struct {
	Testament     scripture.Testament
	BookID        int
	BookName      string
	Chapter       int
	Key           string
	URL           string
	ContentType   string
	ByteSize      int64
	DurationMs    int64
	Format        audio.Format
	Provider      string
	Speaker       string
	VoiceTag      string
	Version       string
	SchemaVersion int
	Params        Params
	Timings       []assemble.VerseTiming
	GeneratedAt   time.Time
}

type Store struct {
	db    *database.DB
	table string
	clock func() time.Time
}

func NewStore(db *database.DB, table string) (*Store, error) {
	if !database.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid audio table name %q", table)
	}
	return &Store{db: db, table: table, clock: time.Now}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    book_id INTEGER NOT NULL,
    chapter INTEGER NOT NULL,
    testament TEXT NOT NULL,
    book_name TEXT NOT NULL,
    storage_key TEXT NOT NULL,
    public_url TEXT NOT NULL,
    content_type TEXT NOT NULL,
    byte_size BIGINT NOT NULL,
    duration_ms BIGINT NOT NULL,
    audio_format TEXT NOT NULL,
    provider TEXT NOT NULL,
    speaker TEXT NOT NULL,
    voice_tag TEXT NOT NULL,
    artifact_version TEXT NOT NULL,
    schema_version INTEGER NOT NULL,
    params TEXT NOT NULL,
    verse_timings TEXT NOT NULL,
    generated_at TEXT NOT NULL,
    PRIMARY KEY (book_id, chapter)
)`, s.table))
	return err
}

// Upsert writes the artifact, replacing every column of an existing row.
func (s *Store) Upsert(ctx context.Context, a Artifact) error {
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = s.clock()
	}
	format, err := json.Marshal(a.Format)
	if err != nil {
		return err
	}
	params, err := json.Marshal(a.Params)
	if err != nil {
		return err
	}
	timings := a.Timings
	if timings == nil {
		timings = []assemble.VerseTiming{}
	}
	timingJSON, err := json.Marshal(timings)
	if err != nil {
		return err
	}

	query := s.db.Rebind(fmt.Sprintf(`
INSERT INTO %s (book_id, chapter, testament, book_name, storage_key, public_url, content_type,
    byte_size, duration_ms, audio_format, provider, speaker, voice_tag, artifact_version,
    schema_version, params, verse_timings, generated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (book_id, chapter) DO UPDATE SET
    testament = excluded.testament,
    book_name = excluded.book_name,
    storage_key = excluded.storage_key,
    public_url = excluded.public_url,
    content_type = excluded.content_type,
    byte_size = excluded.byte_size,
    duration_ms = excluded.duration_ms,
    audio_format = excluded.audio_format,
    provider = excluded.provider,
    speaker = excluded.speaker,
    voice_tag = excluded.voice_tag,
    artifact_version = excluded.artifact_version,
    schema_version = excluded.schema_version,
    params = excluded.params,
    verse_timings = excluded.verse_timings,
    generated_at = excluded.generated_at`, s.table))

	_, err = s.db.ExecContext(ctx, query,
		a.BookID, a.Chapter, string(a.Testament), a.BookName, a.Key, a.URL, a.ContentType,
		a.ByteSize, a.DurationMs, string(format), a.Provider, a.Speaker, a.VoiceTag, a.Version,
		a.SchemaVersion, string(params), string(timingJSON), a.GeneratedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", scripture.ChapterKey{BookID: a.BookID, Chapter: a.Chapter}, err)
	}
	return nil
}

// Get loads one chapter's metadata.
func (s *Store) Get(ctx context.Context, bookID, chapter int) (Artifact, error) {
	query := s.db.Rebind(fmt.Sprintf(`
SELECT book_id, chapter, testament, book_name, storage_key, public_url, content_type,
    byte_size, duration_ms, audio_format, provider, speaker, voice_tag, artifact_version,
    schema_version, params, verse_timings, generated_at
FROM %s WHERE book_id = ? AND chapter = ?`, s.table))

	var (
		a                             Artifact
		testament, format, params, vt string
		generated                     string
	)
	err := s.db.QueryRowContext(ctx, query, bookID, chapter).Scan(
		&a.BookID, &a.Chapter, &testament, &a.BookName, &a.Key, &a.URL, &a.ContentType,
		&a.ByteSize, &a.DurationMs, &format, &a.Provider, &a.Speaker, &a.VoiceTag, &a.Version,
		&a.SchemaVersion, &params, &vt, &generated)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, err
	}
	a.Testament = scripture.Testament(testament)
	if err := json.Unmarshal([]byte(format), &a.Format); err != nil {
		return Artifact{}, fmt.Errorf("decode audio format: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &a.Params); err != nil {
		return Artifact{}, fmt.Errorf("decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(vt), &a.Timings); err != nil {
		return Artifact{}, fmt.Errorf("decode verse timings: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, generated); err == nil {
		a.GeneratedAt = ts
	}
	return a, nil
}

// ExistingChapters returns the chapters of a testament that already have
// published audio.
func (s *Store) ExistingChapters(ctx context.Context, testament scripture.Testament) (map[scripture.ChapterKey]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(fmt.Sprintf(`SELECT book_id, chapter FROM %s WHERE testament = ?`, s.table)),
		string(testament))
	if err != nil {
		return nil, fmt.Errorf("load existing chapters: %w", err)
	}
	defer rows.Close()

	existing := make(map[scripture.ChapterKey]bool)
	for rows.Next() {
		var key scripture.ChapterKey
		if err := rows.Scan(&key.BookID, &key.Chapter); err != nil {
			return nil, err
		}
		existing[key] = true
	}
	return existing, rows.Err()
}
