// Package encode wraps chapter PCM in a WAV container and transcodes it
// with an external encoder.
package encode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/config"
)

// ErrEncoderNotFound is returned at startup when the encoder binary is missing.
var ErrEncoderNotFound = errors.New("encoder binary not found")

// Output is an encoded artifact ready to publish.
type Output struct {
	Data        []byte
	Extension   string
	ContentType string
}

type Encoder struct {
	cfg     config.EncoderConfig
	binary  string
	command []string
	logger  *slog.Logger
}

// New resolves the encoder binary so a missing encoder fails the run before
// any synthesis happens.
func New(cfg config.EncoderConfig, log *slog.Logger) (*Encoder, error) {
	e := &Encoder{cfg: cfg, logger: log.With(slog.String("component", "encoder"))}
	switch cfg.Mode {
	case "ffmpeg":
		path, err := exec.LookPath(cfg.FFmpegPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEncoderNotFound, cfg.FFmpegPath, err)
		}
		e.binary = path
	case "exec":
		args, err := shellwords.NewParser().Parse(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("parse encoder command: %w", err)
		}
		if len(args) == 0 {
			return nil, errors.New("encoder command empty")
		}
		path, err := exec.LookPath(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEncoderNotFound, args[0], err)
		}
		e.binary = path
		e.command = args[1:]
	default:
		return nil, fmt.Errorf("unknown encoder mode %q", cfg.Mode)
	}
	return e, nil
}

// Encode writes pcm as WAV into a temp directory, transcodes it and returns
// the encoded bytes. The temp directory is removed unless KeepTemp is set.
func (e *Encoder) Encode(ctx context.Context, name string, format audio.Format, pcm []byte) (Output, error) {
	dir, err := os.MkdirTemp(e.cfg.TempDir, "bibleaudio-"+name+"-")
	if err != nil {
		return Output{}, fmt.Errorf("create temp dir: %w", err)
	}
	if e.cfg.KeepTemp {
		e.logger.Info("keeping temp artifacts", slog.String("dir", dir))
	} else {
		defer os.RemoveAll(dir)
	}

	input := filepath.Join(dir, name+".wav")
	output := filepath.Join(dir, name+"."+e.cfg.Extension)
	if err := writeWAVFile(input, format, pcm); err != nil {
		return Output{}, err
	}

	cmd := exec.CommandContext(ctx, e.binary, e.args(input, output, format)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Output{}, fmt.Errorf("encoder failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return Output{}, fmt.Errorf("read encoded output: %w", err)
	}
	if len(data) == 0 {
		return Output{}, errors.New("encoder produced an empty file")
	}
	return Output{Data: data, Extension: e.cfg.Extension, ContentType: e.cfg.ContentType}, nil
}

func (e *Encoder) args(input, output string, format audio.Format) []string {
	if e.cfg.Mode == "exec" {
		replacer := strings.NewReplacer(
			"{input}", input,
			"{output}", output,
			"{bitrate}", strconv.Itoa(e.cfg.BitrateKbps)+"k",
			"{sample_rate}", strconv.Itoa(format.SampleRate),
		)
		args := make([]string, len(e.command))
		for i, arg := range e.command {
			args[i] = replacer.Replace(arg)
		}
		return args
	}
	// Mono at the source sample rate; only the codec and bitrate change.
	return ffmpeg.Input(input).
		Output(output, ffmpeg.KwArgs{
			"ac":  1,
			"ar":  format.SampleRate,
			"c:a": e.cfg.Codec,
			"b:a": fmt.Sprintf("%dk", e.cfg.BitrateKbps),
		}).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

func writeWAVFile(path string, format audio.Format, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := audio.WriteWAV(f, format, pcm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
