package audio

import (
	"fmt"
	"math"
)

// Format describes linear PCM audio.
type Format struct {
	Channels      int `json:"channels"`
	SampleRate    int `json:"sample_rate"`
	BitsPerSample int `json:"bits_per_sample"`
	BlockAlign    int `json:"block_align"`
	ByteRate      int `json:"byte_rate"`
}

// NewFormat derives block align and byte rate from the base parameters.
func NewFormat(sampleRate, channels, bitsPerSample int) Format {
	blockAlign := channels * (bitsPerSample / 8)
	return Format{
		Channels:      channels,
		SampleRate:    sampleRate,
		BitsPerSample: bitsPerSample,
		BlockAlign:    blockAlign,
		ByteRate:      sampleRate * blockAlign,
	}
}

func (f Format) IsZero() bool { return f == Format{} }

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample)
}

// Compatible reports whether PCM in o can be appended to PCM in f byte for byte.
func (f Format) Compatible(o Format) bool {
	return f.SampleRate == o.SampleRate &&
		f.Channels == o.Channels &&
		f.BitsPerSample == o.BitsPerSample &&
		f.BlockAlign == o.BlockAlign
}

// Frames converts a PCM byte length into sample frames.
func (f Format) Frames(byteLen int) int64 {
	if f.BlockAlign <= 0 {
		return 0
	}
	return int64(byteLen / f.BlockAlign)
}

// Millis converts a sample frame offset into rounded milliseconds.
func (f Format) Millis(frames int64) int64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return int64(math.Round(float64(frames) / float64(f.SampleRate) * 1000))
}

// Silence returns block-aligned silent PCM lasting roughly ms milliseconds.
func (f Format) Silence(ms int) []byte {
	if ms <= 0 || f.BlockAlign <= 0 {
		return nil
	}
	frames := int(math.Round(float64(f.SampleRate) * float64(ms) / 1000))
	buf := make([]byte, frames*f.BlockAlign)
	if f.BitsPerSample == 8 {
		// 8-bit PCM is unsigned; the midpoint is silence.
		for i := range buf {
			buf[i] = 0x80
		}
	}
	return buf
}

func (f Format) validate() error {
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	switch f.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth %d", f.BitsPerSample)
	}
	if f.BlockAlign != f.Channels*(f.BitsPerSample/8) {
		return fmt.Errorf("block align %d does not match %d channels at %d bits", f.BlockAlign, f.Channels, f.BitsPerSample)
	}
	return nil
}

// Segment is one decoded synthesis result.
type Segment struct {
	Format Format
	PCM    []byte
}

func (s Segment) Frames() int64 { return s.Format.Frames(len(s.PCM)) }

func (s Segment) DurationMs() int64 { return s.Format.Millis(s.Frames()) }

// FormatMismatchError reports a segment whose format differs from the
// format established earlier in the same chapter.
type FormatMismatchError struct {
	Expected Format
	Actual   Format
	Context  string
}

func (e *FormatMismatchError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("audio format mismatch in %s: expected %s, got %s", e.Context, e.Expected, e.Actual)
	}
	return fmt.Sprintf("audio format mismatch: expected %s, got %s", e.Expected, e.Actual)
}
