package tts

import (
	"context"
	"fmt"

	"github.com/dailyword/bibleaudio/internal/config"
)

// New builds the synthesizer selected by cfg.Provider.
func New(ctx context.Context, cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Provider {
	case "naver":
		return NewNaverSynth(cfg), nil
	case "google":
		return NewGoogleSynth(ctx, cfg)
	case "openai":
		return NewOpenAISynth(cfg), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg)
	case "mock":
		return NewMockSynth(cfg.SampleRate), nil
	}
	return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
}
