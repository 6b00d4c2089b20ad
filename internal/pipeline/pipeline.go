// Package pipeline turns one chapter job into a published artifact.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dailyword/bibleaudio/internal/assemble"
	"github.com/dailyword/bibleaudio/internal/audio"
	"github.com/dailyword/bibleaudio/internal/catalog"
	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/encode"
	"github.com/dailyword/bibleaudio/internal/scripture"
	"github.com/dailyword/bibleaudio/internal/storage"
)

type Assembler interface {
	Assemble(ctx context.Context, job scripture.ChapterJob) (assemble.Chapter, error)
}

type Encoder interface {
	Encode(ctx context.Context, name string, format audio.Format, pcm []byte) (encode.Output, error)
}

type Catalog interface {
	Upsert(ctx context.Context, a catalog.Artifact) error
}

// Settings carry the provenance recorded with every artifact.
type Settings struct {
	Version       string
	VoiceTag      string
	SchemaVersion int
	PublicBaseURL string
	Provider      string
	Speaker       string
	Params        catalog.Params
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Version:       cfg.Artifact.Version,
		VoiceTag:      cfg.Artifact.VoiceTag,
		SchemaVersion: cfg.Artifact.SchemaVersion,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		Provider:      cfg.TTS.Provider,
		Speaker:       cfg.TTS.Speaker,
		Params: catalog.Params{
			VerseGapMS:  cfg.Assembly.VerseGapMS,
			IntroGapMS:  cfg.Assembly.IntroGapMS,
			BraceGapMS:  cfg.Assembly.BraceGapMS,
			BraceSplit:  cfg.Assembly.BraceSplit,
			MaxChars:    cfg.TTS.MaxChars,
			Speed:       cfg.TTS.Speed,
			Pitch:       cfg.TTS.Pitch,
			Volume:      cfg.TTS.Volume,
			Codec:       cfg.Encoder.Codec,
			BitrateKbps: cfg.Encoder.BitrateKbps,
		},
	}
}

type Processor struct {
	assembler Assembler
	encoder   Encoder
	publisher storage.Publisher
	catalog   Catalog
	settings  Settings
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewProcessor(a Assembler, e Encoder, p storage.Publisher, c Catalog, settings Settings, log *slog.Logger) *Processor {
	return &Processor{
		assembler: a,
		encoder:   e,
		publisher: p,
		catalog:   c,
		settings:  settings,
		logger:    log.With(slog.String("component", "pipeline")),
		tracer:    otel.Tracer("github.com/dailyword/bibleaudio/internal/pipeline"),
	}
}

// Process assembles, encodes, uploads and records one chapter. The metadata
// row is written only after the upload succeeded.
func (p *Processor) Process(ctx context.Context, job scripture.ChapterJob) (catalog.Artifact, error) {
	ctx, span := p.tracer.Start(ctx, "chapter.process", trace.WithAttributes(
		attribute.Int("book_id", job.BookID),
		attribute.Int("chapter", job.Chapter),
		attribute.String("testament", string(job.Testament)),
	))
	defer span.End()

	artifact, err := p.process(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return artifact, err
}

func (p *Processor) process(ctx context.Context, job scripture.ChapterJob) (catalog.Artifact, error) {
	chapter, err := p.assembler.Assemble(ctx, job)
	if err != nil {
		return catalog.Artifact{}, fmt.Errorf("assemble: %w", err)
	}

	name := fmt.Sprintf("b%03d_c%03d", job.BookID, job.Chapter)
	out, err := p.encoder.Encode(ctx, name, chapter.Format, chapter.PCM)
	if err != nil {
		return catalog.Artifact{}, fmt.Errorf("encode: %w", err)
	}

	key := storage.Key(p.settings.Version, p.settings.VoiceTag, job.Testament, job.BookID, job.Chapter, out.Extension)
	if err := p.publisher.Put(ctx, key, out.Data, out.ContentType); err != nil {
		return catalog.Artifact{}, fmt.Errorf("publish: %w", err)
	}

	params := p.settings.Params
	params.SplitVerses = chapter.SplitVerses
	params.EscalatedVerses = chapter.EscalatedVerses
	artifact := catalog.Artifact{
		Testament:     job.Testament,
		BookID:        job.BookID,
		BookName:      job.BookName,
		Chapter:       job.Chapter,
		Key:           key,
		URL:           storage.PublicURL(p.settings.PublicBaseURL, key),
		ContentType:   out.ContentType,
		ByteSize:      int64(len(out.Data)),
		DurationMs:    chapter.DurationMs(),
		Format:        chapter.Format,
		Provider:      p.settings.Provider,
		Speaker:       p.settings.Speaker,
		VoiceTag:      p.settings.VoiceTag,
		Version:       p.settings.Version,
		SchemaVersion: p.settings.SchemaVersion,
		Params:        params,
		Timings:       chapter.Timings,
	}
	if err := p.catalog.Upsert(ctx, artifact); err != nil {
		return catalog.Artifact{}, fmt.Errorf("record metadata: %w", err)
	}

	p.logger.Debug("chapter published",
		slog.String("chapter", job.Label()),
		slog.String("key", key),
		slog.Int64("duration_ms", artifact.DurationMs),
		slog.Int("verses", len(chapter.Timings)))
	return artifact, nil
}
