// Package batch drives a run over every selected chapter and aggregates the
// outcome.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dailyword/bibleaudio/internal/catalog"
	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/protocol"
	"github.com/dailyword/bibleaudio/internal/scripture"
)

type ChapterSource interface {
	LoadChapters(ctx context.Context, testament scripture.Testament, r scripture.Range) ([]scripture.ChapterJob, error)
}

type ExistingIndex interface {
	ExistingChapters(ctx context.Context, testament scripture.Testament) (map[scripture.ChapterKey]bool, error)
}

type Processor interface {
	Process(ctx context.Context, job scripture.ChapterJob) (catalog.Artifact, error)
}

// Observer receives every chapter state transition. Observers may also
// implement StartRun and FinishRun to see run boundaries.
type Observer interface {
	Observe(ctx context.Context, evt protocol.ChapterEvent) error
}

type runStarter interface {
	StartRun(ctx context.Context, runID, testament string) error
}

type runFinisher interface {
	FinishRun(ctx context.Context, summary protocol.RunSummary) error
}

type Options struct {
	Testament    scripture.Testament
	Range        scripture.Range
	MaxChapters  int
	SkipExisting bool
	Concurrency  int
}

func OptionsFromConfig(cfg config.BatchConfig) (Options, error) {
	testament, err := scripture.ParseTestament(cfg.Testament)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Testament: testament,
		Range: scripture.Range{
			StartBook:    cfg.StartBook,
			StartChapter: cfg.StartChapter,
			EndBook:      cfg.EndBook,
			EndChapter:   cfg.EndChapter,
		},
		MaxChapters:  cfg.MaxChapters,
		SkipExisting: cfg.SkipExisting,
		Concurrency:  cfg.Concurrency,
	}, nil
}

type Failure struct {
	Label   string
	Message string
}

type Summary struct {
	RunID     string
	Total     int
	Processed int
	Skipped   int
	Failed    int
	Failures  []Failure
}

// ExitCode is 1 when any chapter failed.
func (s Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

type Controller struct {
	source    ChapterSource
	existing  ExistingIndex
	processor Processor
	observers []Observer
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     func() time.Time

	chapters metric.Int64Counter
	duration metric.Int64Histogram

	emitMu sync.Mutex
}

func NewController(source ChapterSource, existing ExistingIndex, processor Processor, opts Options, log *slog.Logger, observers ...Observer) *Controller {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	c := &Controller{
		source:    source,
		existing:  existing,
		processor: processor,
		observers: observers,
		opts:      opts,
		logger:    log.With(slog.String("component", "batch")),
		tracer:    otel.Tracer("github.com/dailyword/bibleaudio/internal/batch"),
		clock:     time.Now,
	}
	meter := otel.Meter("github.com/dailyword/bibleaudio/internal/batch")
	c.chapters, _ = meter.Int64Counter("bibleaudio.chapters",
		metric.WithDescription("Chapters by terminal state"))
	c.duration, _ = meter.Int64Histogram("bibleaudio.chapter.duration_ms",
		metric.WithDescription("Published chapter audio duration"),
		metric.WithUnit("ms"))
	return c
}

type outcome struct {
	state    protocol.ChapterState
	artifact catalog.Artifact
	err      error
}

// Run processes every selected chapter. A chapter failure is recorded in the
// summary and never stops the run; the returned error is reserved for
// failures that prevent the run itself (loading, existing-key lookup,
// cancellation).
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	ctx, span := c.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("run_id", summary.RunID),
		attribute.String("testament", string(c.opts.Testament)),
	))
	defer span.End()

	summary, err := c.run(ctx, summary)
	span.SetAttributes(
		attribute.Int("processed", summary.Processed),
		attribute.Int("skipped", summary.Skipped),
		attribute.Int("failed", summary.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return summary, err
}

func (c *Controller) run(ctx context.Context, summary Summary) (Summary, error) {
	started := c.clock()
	jobs, err := c.source.LoadChapters(ctx, c.opts.Testament, c.opts.Range)
	if err != nil {
		return summary, fmt.Errorf("load chapters: %w", err)
	}
	if c.opts.MaxChapters > 0 && len(jobs) > c.opts.MaxChapters {
		jobs = jobs[:c.opts.MaxChapters]
	}
	summary.Total = len(jobs)

	existing := map[scripture.ChapterKey]bool{}
	if c.opts.SkipExisting && c.existing != nil {
		existing, err = c.existing.ExistingChapters(ctx, c.opts.Testament)
		if err != nil {
			return summary, fmt.Errorf("load existing chapters: %w", err)
		}
	}

	for _, o := range c.observers {
		if s, ok := o.(runStarter); ok {
			if err := s.StartRun(ctx, summary.RunID, string(c.opts.Testament)); err != nil {
				c.logger.Warn("observer failed to start run", slog.String("error", err.Error()))
			}
		}
	}

	c.logger.Info("batch starting",
		slog.String("run_id", summary.RunID),
		slog.String("testament", string(c.opts.Testament)),
		slog.Int("chapters", len(jobs)),
		slog.Int("existing", len(existing)),
		slog.Bool("skip_existing", c.opts.SkipExisting),
		slog.Int("concurrency", c.opts.Concurrency))

	for _, job := range jobs {
		c.emit(ctx, summary.RunID, job, outcome{state: protocol.StatePending})
	}

	outcomes := make([]outcome, len(jobs))
	if c.opts.Concurrency == 1 {
		for i, job := range jobs {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = c.runChapter(ctx, summary.RunID, i, len(jobs), job, existing)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.Concurrency)
		for i, job := range jobs {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				outcomes[i] = c.runChapter(gctx, summary.RunID, i, len(jobs), job, existing)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, job := range jobs {
		switch outcomes[i].state {
		case protocol.StateDone:
			summary.Processed++
		case protocol.StateSkipped:
			summary.Skipped++
		case protocol.StateFailed:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Label: job.Label(), Message: outcomes[i].err.Error()})
		}
	}

	c.finish(ctx, summary, started)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (c *Controller) runChapter(ctx context.Context, runID string, i, total int, job scripture.ChapterJob, existing map[scripture.ChapterKey]bool) outcome {
	progress := fmt.Sprintf("%d/%d", i+1, total)
	if existing[job.Key()] {
		c.logger.Info("skip",
			slog.String("progress", progress),
			slog.String("chapter", job.Label()),
			slog.String("reason", "already exists"))
		out := outcome{state: protocol.StateSkipped}
		c.emit(ctx, runID, job, out)
		return out
	}

	c.logger.Info("process",
		slog.String("progress", progress),
		slog.String("chapter", job.Label()),
		slog.Int("verses", len(job.Verses)))
	c.emit(ctx, runID, job, outcome{state: protocol.StateProcessing})

	artifact, err := c.processor.Process(ctx, job)
	if err != nil {
		c.logger.Error("fail",
			slog.String("progress", progress),
			slog.String("chapter", job.Label()),
			slog.String("error", err.Error()))
		out := outcome{state: protocol.StateFailed, err: err}
		c.emit(ctx, runID, job, out)
		return out
	}

	c.duration.Record(ctx, artifact.DurationMs)
	c.logger.Info("done",
		slog.String("progress", progress),
		slog.String("chapter", job.Label()),
		slog.String("key", artifact.Key),
		slog.Int64("duration_ms", artifact.DurationMs))
	out := outcome{state: protocol.StateDone, artifact: artifact}
	c.emit(ctx, runID, job, out)
	return out
}

func (c *Controller) emit(ctx context.Context, runID string, job scripture.ChapterJob, out outcome) {
	if out.state.Terminal() {
		c.chapters.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(out.state))))
	}
	if len(c.observers) == 0 {
		return
	}
	evt := protocol.ChapterEvent{
		RunID:      runID,
		Testament:  string(job.Testament),
		BookID:     job.BookID,
		BookName:   job.BookName,
		Chapter:    job.Chapter,
		State:      out.state,
		Key:        out.artifact.Key,
		URL:        out.artifact.URL,
		DurationMs: out.artifact.DurationMs,
		Timestamp:  c.clock(),
	}
	if out.err != nil {
		evt.Error = out.err.Error()
	}

	// observers see transitions one at a time even with a worker pool
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for _, o := range c.observers {
		if err := o.Observe(context.WithoutCancel(ctx), evt); err != nil {
			c.logger.Warn("observer failed",
				slog.String("chapter", job.Label()),
				slog.String("state", string(out.state)),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Controller) finish(ctx context.Context, summary Summary, started time.Time) {
	c.logger.Info("batch finished",
		slog.String("run_id", summary.RunID),
		slog.Int("total", summary.Total),
		slog.Int("processed", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Duration("elapsed", c.clock().Sub(started)))
	for _, f := range summary.Failures {
		c.logger.Error("failed chapter", slog.String("chapter", f.Label), slog.String("error", f.Message))
	}

	report := protocol.RunSummary{
		RunID:      summary.RunID,
		Testament:  string(c.opts.Testament),
		Total:      summary.Total,
		Processed:  summary.Processed,
		Skipped:    summary.Skipped,
		Failed:     summary.Failed,
		StartedAt:  started,
		FinishedAt: c.clock(),
	}
	for _, o := range c.observers {
		if f, ok := o.(runFinisher); ok {
			if err := f.FinishRun(context.WithoutCancel(ctx), report); err != nil {
				c.logger.Warn("observer failed to finish run", slog.String("error", err.Error()))
			}
		}
	}
}
