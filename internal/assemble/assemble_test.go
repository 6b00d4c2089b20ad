package assemble

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/scripture"
	"github.com/dailyword/bibleaudio/internal/text"
	"github.com/dailyword/bibleaudio/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

const framesPerRune = 100

var testFormat = audio.NewFormat(24000, 1, 16)

// fakeSpeaker returns framesPerRune frames of non-silent audio per rune.
type fakeSpeaker struct {
	calls    []string
	formatOf func(text string) audio.Format
	failOn   string
}

func (f *fakeSpeaker) Speak(_ context.Context, _ string, raw string) (tts.Result, error) {
	f.calls = append(f.calls, raw)
	if f.failOn != "" && strings.Contains(raw, f.failOn) {
		return tts.Result{}, errors.New("provider down")
	}
	format := testFormat
	if f.formatOf != nil {
		format = f.formatOf(raw)
	}
	frames := utf8.RuneCountInString(raw) * framesPerRune
	pcm := make([]byte, frames*format.BlockAlign)
	for i := range pcm {
		pcm[i] = 1
	}
	chunks := 1
	if utf8.RuneCountInString(raw) > 20 {
		chunks = 2
	}
	return tts.Result{Segments: []audio.Segment{{Format: format, PCM: pcm}}, Level: text.LevelCosmetic, Chunks: chunks}, nil
}

func job(verses ...string) scripture.ChapterJob {
	j := scripture.ChapterJob{Testament: scripture.OldTestament, BookID: 1, BookName: "창세기", Chapter: 1}
	for i, v := range verses {
		j.Verses = append(j.Verses, scripture.VerseRow{BookID: 1, BookName: "창세기", Chapter: 1, Verse: i + 1, Text: v})
	}
	return j
}

func defaultOptions() Options {
	return Options{VerseGapMS: 450, IntroGapMS: 450, BraceGapMS: 450, BraceSplit: true}
}

func runes(s string) int64 { return int64(utf8.RuneCountInString(s)) }

func TestAssembleThreeVerses(t *testing.T) {
	speaker := &fakeSpeaker{}
	verses := []string{"태초에 하나님이", "땅이 혼돈하고", "빛이 있으라"}
	ch, err := New(speaker, defaultOptions(), newLogger()).Assemble(context.Background(), job(verses...))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	intro := text.IntroLine("창세기", 1, 1)
	if speaker.calls[0] != intro {
		t.Fatalf("expected intro first, got %q", speaker.calls[0])
	}
	if len(ch.Timings) != 3 {
		t.Fatalf("expected 3 timings, got %d", len(ch.Timings))
	}

	gap := int64(10800) // 450ms at 24kHz
	wantStart := runes(intro)*framesPerRune + gap
	for i, timing := range ch.Timings {
		if timing.Verse != i+1 {
			t.Fatalf("timing %d has verse %d", i, timing.Verse)
		}
		if timing.StartSample != wantStart {
			t.Fatalf("verse %d: expected start %d, got %d", i+1, wantStart, timing.StartSample)
		}
		wantLen := runes(verses[i]) * framesPerRune
		if timing.DurationSample != wantLen || timing.EndSample != timing.StartSample+wantLen {
			t.Fatalf("verse %d: unexpected bounds %+v", i+1, timing)
		}
		if timing.StartMs != testFormat.Millis(timing.StartSample) || timing.EndMs != testFormat.Millis(timing.EndSample) {
			t.Fatalf("verse %d: ms do not match samples %+v", i+1, timing)
		}
		wantStart = timing.EndSample + gap
	}

	// no gap after the final verse
	if last := ch.Timings[2]; ch.Frames() != last.EndSample {
		t.Fatalf("expected audio to end at %d, got %d", last.EndSample, ch.Frames())
	}
	if ch.Format != testFormat {
		t.Fatalf("unexpected format %s", ch.Format)
	}
}

func TestAssembleTimingsAreMonotonic(t *testing.T) {
	speaker := &fakeSpeaker{}
	ch, err := New(speaker, defaultOptions(), newLogger()).Assemble(context.Background(),
		job("가", "나다라 {pause} 마바", "", "사아자차카타파하", "거"))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	total := ch.Frames()
	for i, timing := range ch.Timings {
		if timing.StartSample > timing.EndSample || timing.EndSample > total {
			t.Fatalf("timing %d out of bounds: %+v (total %d)", i, timing, total)
		}
		if i > 0 && ch.Timings[i-1].EndSample > timing.StartSample {
			t.Fatalf("timing %d overlaps previous", i)
		}
	}
	if ch.DurationMs() != testFormat.Millis(total) {
		t.Fatalf("duration mismatch")
	}
}

func TestAssembleBraceSplitInsertsPause(t *testing.T) {
	speaker := &fakeSpeaker{}
	ch, err := New(speaker, defaultOptions(), newLogger()).Assemble(context.Background(), job("Hello {pause} world"))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if got := speaker.calls[1:]; len(got) != 2 || got[0] != "Hello" || got[1] != "world" {
		t.Fatalf("unexpected verse calls %q", got)
	}
	timing := ch.Timings[0]
	want := (runes("Hello")+runes("world"))*framesPerRune + 10800
	if timing.DurationSample != want {
		t.Fatalf("expected %d frames including the brace gap, got %d", want, timing.DurationSample)
	}
}

func TestAssembleTrailingBraceDoesNotStackGaps(t *testing.T) {
	speaker := &fakeSpeaker{}
	ch, err := New(speaker, defaultOptions(), newLogger()).Assemble(context.Background(), job("첫 구절 {끝}", "둘째"))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	first, second := ch.Timings[0], ch.Timings[1]
	if first.DurationSample != runes("첫 구절")*framesPerRune {
		t.Fatalf("unexpected first verse length %d", first.DurationSample)
	}
	// only the 450ms verse gap separates the verses
	if gap := second.StartSample - first.EndSample; gap != 10800 {
		t.Fatalf("expected a single 10800-frame gap, got %d", gap)
	}
	if ch.Frames() != second.EndSample {
		t.Fatalf("chapter should end with the last verse: %d vs %d", ch.Frames(), second.EndSample)
	}
}

func TestAssembleWithoutBraceSplit(t *testing.T) {
	speaker := &fakeSpeaker{}
	opts := defaultOptions()
	opts.BraceSplit = false
	if _, err := New(speaker, opts, newLogger()).Assemble(context.Background(), job("Hello {pause} world")); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if got := speaker.calls[1:]; len(got) != 1 || got[0] != "Hello pause world" {
		t.Fatalf("expected one whole-verse call, got %q", got)
	}
}

func TestAssembleRejectsFormatMismatch(t *testing.T) {
	speaker := &fakeSpeaker{formatOf: func(s string) audio.Format {
		if s == "둘째" {
			return audio.NewFormat(22050, 1, 16)
		}
		return testFormat
	}}
	_, err := New(speaker, defaultOptions(), newLogger()).Assemble(context.Background(), job("첫째", "둘째", "셋째"))
	var mismatch *audio.FormatMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected FormatMismatchError, got %v", err)
	}
	if mismatch.Expected.SampleRate != 24000 || mismatch.Actual.SampleRate != 22050 {
		t.Fatalf("unexpected mismatch %+v", mismatch)
	}
	if len(speaker.calls) != 3 {
		t.Fatalf("expected assembly to stop at the mismatching verse, got %d calls", len(speaker.calls))
	}
}

func TestAssembleSkipsBlankVerses(t *testing.T) {
	speaker := &fakeSpeaker{}
	ch, err := New(speaker, defaultOptions(), newLogger()).Assemble(context.Background(), job("첫째", "  ​ ", "셋째"))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(ch.Timings) != 2 || ch.Timings[0].Verse != 1 || ch.Timings[1].Verse != 3 {
		t.Fatalf("unexpected timings %+v", ch.Timings)
	}
	if ch.SkippedVerses != 1 {
		t.Fatalf("expected 1 skipped verse, got %d", ch.SkippedVerses)
	}
	if ch.Timings[1].StartSample-ch.Timings[0].EndSample != 10800 {
		t.Fatal("blank verse must not add an extra gap")
	}
}

func TestAssembleCountsSplitVerses(t *testing.T) {
	speaker := &fakeSpeaker{}
	ch, err := New(speaker, defaultOptions(), newLogger()).Assemble(context.Background(),
		job("짧은 구절", strings.Repeat("긴", 30)))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if ch.SplitVerses != 1 {
		t.Fatalf("expected 1 split verse, got %d", ch.SplitVerses)
	}
}

func TestAssembleFailsOnSynthesisError(t *testing.T) {
	speaker := &fakeSpeaker{failOn: "둘째"}
	_, err := New(speaker, defaultOptions(), newLogger()).Assemble(context.Background(), job("첫째", "둘째"))
	if err == nil || !strings.Contains(err.Error(), "verse 2") {
		t.Fatalf("expected verse 2 failure, got %v", err)
	}
}

func TestAssembleAllBlank(t *testing.T) {
	_, err := New(&fakeSpeaker{}, defaultOptions(), newLogger()).Assemble(context.Background(), job(" ", "{}"))
	if !errors.Is(err, scripture.ErrNoVerses) {
		t.Fatalf("expected ErrNoVerses, got %v", err)
	}
}
