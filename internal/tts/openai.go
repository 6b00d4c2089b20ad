package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/config"
)

type openaiSynth struct {
	api *openai.Client
	cfg config.TTSConfig
}

// NewOpenAISynth uses the OpenAI speech endpoint with WAV output.
func NewOpenAISynth(cfg config.TTSConfig) Synthesizer {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" && cfg.Endpoint != config.DefaultNaverEndpoint {
		c.BaseURL = cfg.Endpoint
	}
	if cfg.TimeoutMS > 0 {
		c.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
	}
	return &openaiSynth{api: openai.NewClientWithConfig(c), cfg: cfg}
}

func (o *openaiSynth) Name() string { return "openai" }

func (o *openaiSynth) Synthesize(ctx context.Context, req Request) (audio.Segment, error) {
	speed := o.cfg.Speed
	if speed == 0 {
		speed = 1
	}
	resp, err := o.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.cfg.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(o.cfg.Speaker),
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          speed,
	})
	if err != nil {
		se := &SynthesisError{Provider: o.Name(), Err: err}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			se.Status = apiErr.HTTPStatusCode
		}
		return audio.Segment{}, se
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return audio.Segment{}, &SynthesisError{Provider: o.Name(), Err: fmt.Errorf("read speech body: %w", err)}
	}
	seg, err := audio.Decode(data)
	if err != nil {
		return audio.Segment{}, &SynthesisError{Provider: o.Name(), Body: truncateBody(data), Err: err}
	}
	return seg, nil
}
