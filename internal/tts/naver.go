package tts

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/config"
)

type naverSynth struct {
	client *resty.Client
	cfg    config.TTSConfig
}

// NewNaverSynth calls the Naver Cloud premium voice API and requests WAV output.
func NewNaverSynth(cfg config.TTSConfig) Synthesizer {
	client := resty.New().
		SetHeader("X-NCP-APIGW-API-KEY-ID", cfg.ClientID).
		SetHeader("X-NCP-APIGW-API-KEY", cfg.ClientSecret)
	if cfg.TimeoutMS > 0 {
		client.SetTimeout(time.Duration(cfg.TimeoutMS) * time.Millisecond)
	}
	return &naverSynth{client: client, cfg: cfg}
}

func (n *naverSynth) Name() string { return "naver" }

func (n *naverSynth) Synthesize(ctx context.Context, req Request) (audio.Segment, error) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"speaker":       n.cfg.Speaker,
			"text":          req.Text,
			"speed":         formatParam(n.cfg.Speed),
			"pitch":         formatParam(n.cfg.Pitch),
			"volume":        formatParam(n.cfg.Volume),
			"format":        "wav",
			"sampling-rate": strconv.Itoa(n.cfg.SampleRate),
		}).
		Post(n.cfg.Endpoint)
	if err != nil {
		return audio.Segment{}, &SynthesisError{Provider: n.Name(), Err: err}
	}
	if resp.IsError() {
		return audio.Segment{}, &SynthesisError{Provider: n.Name(), Status: resp.StatusCode(), Body: truncateBody(resp.Body())}
	}
	seg, err := audio.Decode(resp.Body())
	if err != nil {
		return audio.Segment{}, &SynthesisError{Provider: n.Name(), Status: resp.StatusCode(), Body: truncateBody(resp.Body()), Err: err}
	}
	return seg, nil
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
