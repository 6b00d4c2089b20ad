package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/config"
)

type execSynth struct {
	cmd []string
	cfg config.TTSConfig
}

type execRequest struct {
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker"`
	LanguageCode string  `json:"language_code,omitempty"`
	SampleRate   int     `json:"sample_rate"`
	Speed        float64 `json:"speed"`
	Pitch        float64 `json:"pitch"`
	Volume       float64 `json:"volume"`
}

// NewExecSynth runs a local command per chunk. The command receives a JSON
// request on stdin and must write a WAV file to stdout.
func NewExecSynth(command string, cfg config.TTSConfig) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, cfg: cfg}, nil
}

func (e *execSynth) Name() string { return "exec" }

func (e *execSynth) Synthesize(ctx context.Context, req Request) (audio.Segment, error) {
	payload, err := json.Marshal(execRequest{
		Text:         req.Text,
		Speaker:      e.cfg.Speaker,
		LanguageCode: e.cfg.LanguageCode,
		SampleRate:   e.cfg.SampleRate,
		Speed:        e.cfg.Speed,
		Pitch:        e.cfg.Pitch,
		Volume:       e.cfg.Volume,
	})
	if err != nil {
		return audio.Segment{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return audio.Segment{}, &SynthesisError{Provider: e.Name(), Body: truncateBody(stderr.Bytes()), Err: err}
	}

	seg, err := audio.Decode(stdout.Bytes())
	if err != nil {
		return audio.Segment{}, &SynthesisError{Provider: e.Name(), Body: truncateBody(stderr.Bytes()), Err: err}
	}
	return seg, nil
}
