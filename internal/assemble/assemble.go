// Package assemble builds one continuous waveform per chapter and records
// where every verse starts and ends within it.
package assemble

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/scripture"
	"github.com/dailyword/bibleaudio/internal/text"
	"github.com/dailyword/bibleaudio/internal/tts"
)

// Speaker turns text into decoded audio segments.
type Speaker interface {
	Speak(ctx context.Context, label, raw string) (tts.Result, error)
}

type Options struct {
	VerseGapMS int
	IntroGapMS int
	BraceGapMS int
	BraceSplit bool
}

func OptionsFromConfig(cfg config.AssemblyConfig) Options {
	return Options{
		VerseGapMS: cfg.VerseGapMS,
		IntroGapMS: cfg.IntroGapMS,
		BraceGapMS: cfg.BraceGapMS,
		BraceSplit: cfg.BraceSplit,
	}
}

// VerseTiming locates one verse in the chapter audio. EndSample is
// exclusive and excludes the silence that follows the verse.
type VerseTiming struct {
	Verse          int   `json:"verse"`
	StartSample    int64 `json:"start_sample"`
	EndSample      int64 `json:"end_sample"`
	StartMs        int64 `json:"start_ms"`
	EndMs          int64 `json:"end_ms"`
	DurationSample int64 `json:"duration_samples"`
	DurationMs     int64 `json:"duration_ms"`
}

// Chapter is the assembled result.
type Chapter struct {
	Format          audio.Format
	PCM             []byte
	Timings         []VerseTiming
	SplitVerses     int
	EscalatedVerses int
	SkippedVerses   int
}

func (c Chapter) Frames() int64 { return c.Format.Frames(len(c.PCM)) }

func (c Chapter) DurationMs() int64 { return c.Format.Millis(c.Frames()) }

type Assembler struct {
	speaker Speaker
	opts    Options
	logger  *slog.Logger
}

func New(speaker Speaker, opts Options, log *slog.Logger) *Assembler {
	return &Assembler{
		speaker: speaker,
		opts:    opts,
		logger:  log.With(slog.String("component", "assembler")),
	}
}

// Assemble speaks the chapter intro and every verse in order. Any segment
// whose format differs from the intro's aborts the chapter.
func (a *Assembler) Assemble(ctx context.Context, job scripture.ChapterJob) (Chapter, error) {
	var b builder
	label := job.Label()

	intro := text.IntroLine(job.BookName, job.BookID, job.Chapter)
	res, err := a.speaker.Speak(ctx, label+" intro", intro)
	if err != nil {
		return Chapter{}, fmt.Errorf("synthesize intro: %w", err)
	}
	for _, seg := range res.Segments {
		if err := b.append(seg, "intro"); err != nil {
			return Chapter{}, err
		}
	}
	b.silence(a.opts.IntroGapMS)

	var chapter Chapter
	for _, verse := range job.Verses {
		parts := a.split(verse.Text)
		if len(parts) == 0 {
			chapter.SkippedVerses++
			a.logger.Debug("skipping blank verse", slog.String("chapter", label), slog.Int("verse", verse.Verse))
			continue
		}
		if len(chapter.Timings) > 0 {
			b.silence(a.opts.VerseGapMS)
		}

		verseLabel := fmt.Sprintf("%s:%d", label, verse.Verse)
		start := b.frames()
		end := start
		split, escalated := false, false
		for i, part := range parts {
			res, err := a.speaker.Speak(ctx, verseLabel, part.Text)
			if err != nil {
				return Chapter{}, fmt.Errorf("verse %d: %w", verse.Verse, err)
			}
			split = split || res.Chunks > 1
			escalated = escalated || res.Level != text.LevelCosmetic
			for _, seg := range res.Segments {
				if err := b.append(seg, fmt.Sprintf("verse %d part %d", verse.Verse, i+1)); err != nil {
					return Chapter{}, err
				}
			}
			end = b.frames()
			// the verse gap already separates a verse's last part from the next verse
			if part.PauseAfter && i < len(parts)-1 {
				b.silence(a.opts.BraceGapMS)
			}
		}

		chapter.Timings = append(chapter.Timings, b.timing(verse.Verse, start, end))
		if split {
			chapter.SplitVerses++
		}
		if escalated {
			chapter.EscalatedVerses++
		}
	}

	if len(chapter.Timings) == 0 {
		return Chapter{}, fmt.Errorf("%w: every verse of %s is blank", scripture.ErrNoVerses, label)
	}
	chapter.Format = b.format
	chapter.PCM = b.pcm
	return chapter, nil
}

func (a *Assembler) split(raw string) []text.Part {
	if a.opts.BraceSplit {
		return text.SplitBraces(raw)
	}
	return text.WholeVerse(raw)
}

// builder accumulates PCM in a single established format.
type builder struct {
	format audio.Format
	pcm    []byte
}

func (b *builder) append(seg audio.Segment, where string) error {
	if b.format.IsZero() {
		b.format = seg.Format
	} else if !b.format.Compatible(seg.Format) {
		return &audio.FormatMismatchError{Expected: b.format, Actual: seg.Format, Context: where}
	}
	b.pcm = append(b.pcm, seg.PCM...)
	return nil
}

func (b *builder) silence(ms int) {
	b.pcm = append(b.pcm, b.format.Silence(ms)...)
}

func (b *builder) frames() int64 { return b.format.Frames(len(b.pcm)) }

func (b *builder) timing(verse int, start, end int64) VerseTiming {
	return VerseTiming{
		Verse:          verse,
		StartSample:    start,
		EndSample:      end,
		StartMs:        b.format.Millis(start),
		EndMs:          b.format.Millis(end),
		DurationSample: end - start,
		DurationMs:     b.format.Millis(end - start),
	}
}
