package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/config"
)

type googleSynth struct {
	client *texttospeech.Client
	cfg    config.TTSConfig
}

// NewGoogleSynth creates a Cloud Text-to-Speech backed synthesizer. LINEAR16
// responses carry a WAV header, so they decode like every other provider.
func NewGoogleSynth(ctx context.Context, cfg config.TTSConfig) (Synthesizer, error) {
	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google tts client: %w", err)
	}
	return &googleSynth{client: client, cfg: cfg}, nil
}

func (g *googleSynth) Name() string { return "google" }

func (g *googleSynth) Synthesize(ctx context.Context, req Request) (audio.Segment, error) {
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.cfg.LanguageCode,
			Name:         g.cfg.Speaker,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(g.cfg.SampleRate),
			SpeakingRate:    g.cfg.Speed,
			Pitch:           g.cfg.Pitch,
			VolumeGainDb:    g.cfg.Volume,
		},
	})
	if err != nil {
		return audio.Segment{}, &SynthesisError{Provider: g.Name(), Err: err}
	}
	seg, err := audio.Decode(resp.GetAudioContent())
	if err != nil {
		return audio.Segment{}, &SynthesisError{Provider: g.Name(), Err: err}
	}
	return seg, nil
}

func (g *googleSynth) Close() error {
	return g.client.Close()
}
