package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dailyword/bibleaudio/internal/protocol"
)

const defaultPrefix = "bibleaudio"

// Sink is the subset of a NATS connection the event publisher needs.
type Sink interface {
	Publish(subject string, data []byte) error
}

// EventPublisher announces chapter transitions and run summaries as JSON.
// Publish failures are logged and never fail the batch.
type EventPublisher struct {
	sink   Sink
	prefix string
	log    *slog.Logger
}

func NewEventPublisher(sink Sink, prefix string, log *slog.Logger) *EventPublisher {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &EventPublisher{sink: sink, prefix: prefix, log: log}
}

func (p *EventPublisher) Observe(_ context.Context, evt protocol.ChapterEvent) error {
	return p.publish(protocol.ChapterSubject(p.prefix, evt.State), evt)
}

func (p *EventPublisher) FinishRun(_ context.Context, summary protocol.RunSummary) error {
	return p.publish(protocol.RunFinishedSubject(p.prefix), summary)
}

func (p *EventPublisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.sink.Publish(subject, data); err != nil {
		p.log.Warn("publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
		return err
	}
	return nil
}
