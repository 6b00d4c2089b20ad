package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/text"
)

// Options control chunking, retry and pacing.
type Options struct {
	MaxChars          int
	RetryCount        int
	RetryBackoff      time.Duration
	RequestDelay      time.Duration
	RequestsPerMinute int
}

func OptionsFromConfig(cfg config.TTSConfig) Options {
	return Options{
		MaxChars:          cfg.MaxChars,
		RetryCount:        cfg.RetryCount,
		RetryBackoff:      time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		RequestDelay:      time.Duration(cfg.RequestDelayMS) * time.Millisecond,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}
}

// Result is the audio for one piece of text at the level that succeeded.
type Result struct {
	Segments []audio.Segment
	Level    text.Level
	Chunks   int
}

// Client wraps a Synthesizer with chunking, bounded retry and the
// sanitization ladder.
type Client struct {
	synth   Synthesizer
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger

	requests    metric.Int64Counter
	escalations metric.Int64Counter
}

func NewClient(synth Synthesizer, opts Options, log *slog.Logger) *Client {
	if opts.RetryCount < 1 {
		opts.RetryCount = 1
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = text.DefaultMaxChars
	}
	c := &Client{
		synth:  synth,
		opts:   opts,
		logger: log.With(slog.String("component", "tts"), slog.String("provider", synth.Name())),
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	meter := otel.Meter("github.com/dailyword/bibleaudio/internal/tts")
	c.requests, _ = meter.Int64Counter("bibleaudio.tts.requests",
		metric.WithDescription("Provider calls by outcome"))
	c.escalations, _ = meter.Int64Counter("bibleaudio.tts.escalations",
		metric.WithDescription("Sanitization level escalations"))
	return c
}

func (c *Client) Provider() string { return c.synth.Name() }

// Speak synthesizes raw text, escalating through the sanitization levels
// until one level produces audio for every chunk. Audio from a failed level
// is discarded.
func (c *Client) Speak(ctx context.Context, label, raw string) (Result, error) {
	var failures []LevelFailure
	for i, level := range text.Levels {
		chunks := text.Segment(text.Sanitize(raw, level), c.opts.MaxChars)
		var (
			segments []audio.Segment
			err      error
		)
		if len(chunks) == 0 {
			err = ErrNothingToSpeak
		} else {
			segments, err = c.speakLevel(ctx, label, chunks)
		}
		if err == nil {
			if level != text.LevelCosmetic {
				c.logger.Info("synthesis succeeded after escalation",
					slog.String("item", label),
					slog.String("level", level.String()))
			}
			return Result{Segments: segments, Level: level, Chunks: len(chunks)}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}

		failures = append(failures, LevelFailure{Level: level, Err: err})
		if i < len(text.Levels)-1 {
			c.escalations.Add(ctx, 1)
			c.logger.Warn("escalating sanitization",
				slog.String("item", label),
				slog.String("from", level.String()),
				slog.String("to", text.Levels[i+1].String()),
				slogError(err))
		}
	}
	return Result{}, &LadderError{Label: label, Failures: failures}
}

func (c *Client) speakLevel(ctx context.Context, label string, chunks []string) ([]audio.Segment, error) {
	segments := make([]audio.Segment, 0, len(chunks))
	for i, chunk := range chunks {
		seg, err := c.synthesizeWithRetry(ctx, label, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func (c *Client) synthesizeWithRetry(ctx context.Context, label, chunk string) (audio.Segment, error) {
	attempt := 0
	operation := func() (audio.Segment, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return audio.Segment{}, backoff.Permanent(err)
			}
		}
		seg, err := c.synth.Synthesize(ctx, Request{Text: chunk})
		if err == nil && len(seg.PCM) == 0 {
			err = &SynthesisError{Provider: c.synth.Name(), Err: ErrEmptyAudio}
		}
		if err != nil {
			c.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failure")))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return audio.Segment{}, backoff.Permanent(ctxErr)
			}
			c.logger.Warn("synthesis attempt failed",
				slog.String("item", label),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", c.opts.RetryCount),
				slogError(err))
			return audio.Segment{}, err
		}
		c.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
		if err := sleep(ctx, c.opts.RequestDelay); err != nil {
			return audio.Segment{}, backoff.Permanent(err)
		}
		return seg, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(&linearBackOff{step: c.opts.RetryBackoff}),
		backoff.WithMaxTries(uint(c.opts.RetryCount)),
		backoff.WithMaxElapsedTime(0),
	)
}

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step     time.Duration
	attempts int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempts++
	return time.Duration(b.attempts) * b.step
}

func (b *linearBackOff) Reset() { b.attempts = 0 }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
