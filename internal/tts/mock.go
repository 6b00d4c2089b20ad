package tts

import (
	"context"
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/dailyword/bibleaudio/internal/audio"
)

type mockSynth struct {
	format audio.Format
}

// NewMockSynth returns a deterministic offline synthesizer: a quiet tone
// lasting 60ms per character.
func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{format: audio.NewFormat(sampleRate, 1, 16)}
}

func (m *mockSynth) Name() string { return "mock" }

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (audio.Segment, error) {
	if err := ctx.Err(); err != nil {
		return audio.Segment{}, err
	}
	frames := utf8.RuneCountInString(req.Text) * m.format.SampleRate * 60 / 1000
	pcm := make([]byte, frames*m.format.BlockAlign)
	for i := 0; i < frames; i++ {
		v := int16(2000 * math.Sin(2*math.Pi*220*float64(i)/float64(m.format.SampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.Segment{Format: m.format, PCM: pcm}, nil
}
