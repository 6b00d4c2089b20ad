package protocol

import "time"

// ChapterState is the lifecycle of one chapter within a run:
// pending -> skipped | processing -> done | failed.
type ChapterState string

const (
	StatePending    ChapterState = "pending"
	StateSkipped    ChapterState = "skipped"
	StateProcessing ChapterState = "processing"
	StateDone       ChapterState = "done"
	StateFailed     ChapterState = "failed"
)

func (s ChapterState) Terminal() bool {
	return s == StateSkipped || s == StateDone || s == StateFailed
}

// ChapterEvent is emitted on every chapter state transition.
type ChapterEvent struct {
	RunID      string       `json:"run_id"`
	Testament  string       `json:"testament"`
	BookID     int          `json:"book_id"`
	BookName   string       `json:"book_name"`
	Chapter    int          `json:"chapter"`
	State      ChapterState `json:"state"`
	Key        string       `json:"key,omitempty"`
	URL        string       `json:"url,omitempty"`
	DurationMs int64        `json:"duration_ms,omitempty"`
	Error      string       `json:"error,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// RunSummary is emitted once when a run finishes.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Testament  string    `json:"testament"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

const (
	subjectChapter     = "chapter"
	subjectRunFinished = "run.finished"
)

// ChapterSubject is "<prefix>.chapter.<state>".
func ChapterSubject(prefix string, state ChapterState) string {
	return prefix + "." + subjectChapter + "." + string(state)
}

// RunFinishedSubject is "<prefix>.run.finished".
func RunFinishedSubject(prefix string) string {
	return prefix + "." + subjectRunFinished
}
