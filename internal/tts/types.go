package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/text"
)

// Request carries one chunk of sanitized text.
type Request struct {
	Text string
}

// Synthesizer is the contract for producing audio from text. Implementations
// return decoded PCM so callers can validate the format before assembly.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (audio.Segment, error)
}

// ErrEmptyAudio is returned when a provider answers with no samples.
var ErrEmptyAudio = errors.New("provider returned empty audio")

// ErrNothingToSpeak is returned when sanitization leaves no text.
var ErrNothingToSpeak = errors.New("no speakable text after sanitization")

const maxErrorBody = 300

// SynthesisError is a failed provider call.
type SynthesisError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *SynthesisError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" synthesis failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e *SynthesisError) Unwrap() error { return e.Err }

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(s) <= maxErrorBody {
		return s
	}
	return string([]rune(s)[:maxErrorBody]) + "..."
}

// LevelFailure records why one sanitization level was abandoned.
type LevelFailure struct {
	Level text.Level
	Err   error
}

// LadderError is returned when every sanitization level failed.
type LadderError struct {
	Label    string
	Failures []LevelFailure
}

func (e *LadderError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("synthesis of %s failed", e.Label)
	}
	last := e.Failures[len(e.Failures)-1]
	return fmt.Sprintf("synthesis of %s failed at all %d sanitization levels, last (%s): %v", e.Label, len(e.Failures), last.Level, last.Err)
}

func (e *LadderError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}
