// Package scripture loads verse rows and groups them into chapter jobs.
package scripture

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Testament selects the Old ("OT") or New ("NT") Testament.
type Testament string

const (
	OldTestament Testament = "OT"
	NewTestament Testament = "NT"
)

func ParseTestament(s string) (Testament, error) {
	switch t := Testament(strings.ToUpper(strings.TrimSpace(s))); t {
	case OldTestament, NewTestament:
		return t, nil
	}
	return "", fmt.Errorf("unknown testament %q", s)
}

// KeySegment is the lowercase form used in storage keys.
func (t Testament) KeySegment() string { return strings.ToLower(string(t)) }

// ErrNoVerses is returned when a scope contains no usable verses.
var ErrNoVerses = errors.New("no verses found")

// VerseRow is one verse as stored.
type VerseRow struct {
	Testament Testament
	BookID    int
	BookName  string
	Chapter   int
	Verse     int
	Text      string
}

// ChapterKey identifies a chapter across the whole Bible.
type ChapterKey struct {
	BookID  int
	Chapter int
}

func (k ChapterKey) Less(o ChapterKey) bool {
	if k.BookID != o.BookID {
		return k.BookID < o.BookID
	}
	return k.Chapter < o.Chapter
}

func (k ChapterKey) String() string {
	return fmt.Sprintf("b%03d/c%03d", k.BookID, k.Chapter)
}

// ChapterJob is the unit of work for the batch: one chapter with its verses
// in ascending verse order.
type ChapterJob struct {
	Testament Testament
	BookID    int
	BookName  string
	Chapter   int
	Verses    []VerseRow
}

func (j ChapterJob) Key() ChapterKey { return ChapterKey{BookID: j.BookID, Chapter: j.Chapter} }

// Label is a human readable chapter name used in logs and failure reports.
func (j ChapterJob) Label() string {
	return fmt.Sprintf("%s %d (%s)", j.BookName, j.Chapter, j.Key())
}

// Range bounds chapters inclusively. Zero values leave a side open; a zero
// chapter with a set book covers the whole book.
type Range struct {
	StartBook    int
	StartChapter int
	EndBook      int
	EndChapter   int
}

func (r Range) Contains(k ChapterKey) bool {
	if r.StartBook > 0 && k.Less(ChapterKey{BookID: r.StartBook, Chapter: r.StartChapter}) {
		return false
	}
	if r.EndBook > 0 {
		if k.BookID > r.EndBook {
			return false
		}
		if k.BookID == r.EndBook && r.EndChapter > 0 && k.Chapter > r.EndChapter {
			return false
		}
	}
	return true
}

// Single returns the range covering exactly one chapter.
func Single(bookID, chapter int) Range {
	return Range{StartBook: bookID, StartChapter: chapter, EndBook: bookID, EndChapter: chapter}
}

// GroupChapters groups verse rows into chapter jobs ordered by
// (book, chapter), with verses ordered by number. Rows with non-positive
// identifiers are discarded.
func GroupChapters(rows []VerseRow) []ChapterJob {
	index := make(map[ChapterKey]int)
	var jobs []ChapterJob
	for _, row := range rows {
		if row.BookID <= 0 || row.Chapter <= 0 || row.Verse <= 0 {
			continue
		}
		key := ChapterKey{BookID: row.BookID, Chapter: row.Chapter}
		i, ok := index[key]
		if !ok {
			i = len(jobs)
			index[key] = i
			jobs = append(jobs, ChapterJob{
				Testament: row.Testament,
				BookID:    row.BookID,
				BookName:  row.BookName,
				Chapter:   row.Chapter,
			})
		}
		jobs[i].Verses = append(jobs[i].Verses, row)
	}
	sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].Key().Less(jobs[b].Key()) })
	for i := range jobs {
		verses := jobs[i].Verses
		sort.SliceStable(verses, func(a, b int) bool { return verses[a].Verse < verses[b].Verse })
	}
	return jobs
}
