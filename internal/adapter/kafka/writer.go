// Package kafka publishes run results to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/export"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Message kinds carried in the "kind" header.
const (
	KindOutcome = "station_outcome"
	KindSummary = "run_summary"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per station outcome and one summary
// message per run, all keyed by run id.
// It implements pipeline.Publisher.
type Publisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured run topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// summaryMessage is the run_summary payload.
type summaryMessage struct {
	RunID       string         `json:"run_id"`
	Source      domain.Source  `json:"source"`
	Product     domain.Product `json:"product"`
	BBox        domain.BBox    `json:"bbox"`
	Start       string         `json:"start_date"`
	End         string         `json:"end_date"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Counts      export.Counts  `json:"counts"`
	Cancelled   bool           `json:"cancelled"`
	EmptyFilter bool           `json:"empty_filter"`
}

// outcomeMessage is the station_outcome payload.
type outcomeMessage struct {
	RunID string `json:"run_id"`
	export.OutcomeRecord
}

// PublishRun writes every outcome followed by the summary in a single
// WriteMessages call.
func (p *Publisher) PublishRun(ctx context.Context, s *domain.RunSummary) error {
	msgs := make([]kafkago.Message, 0, len(s.Outcomes)+1)
	for _, o := range s.Outcomes {
		msg, err := serializeToMessage(s, KindOutcome, outcomeMessage{RunID: s.RunID, OutcomeRecord: export.NewOutcomeRecord(o)})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	msg, err := serializeToMessage(s, KindSummary, newSummaryMessage(s))
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run %s: %w", s.RunID, err)
	}
	p.metrics.MessagesProduced.Add(float64(len(msgs)))
	p.logger.Info("run published", "run_id", s.RunID, "messages", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newSummaryMessage(s *domain.RunSummary) summaryMessage {
	return summaryMessage{
		RunID:      s.RunID,
		Source:     s.Source,
		Product:    s.Product,
		BBox:       s.Boundary,
		Start:      s.Window.Start.Format(domain.DateLayout),
		End:        s.Window.End.Format(domain.DateLayout),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Counts: export.Counts{
			Considered: s.Considered,
			Attempted:  s.Attempted,
			Succeeded:  s.Succeeded,
			Failed:     s.Failed,
			NoData:     s.NoData,
		},
		Cancelled:   s.Cancelled,
		EmptyFilter: s.EmptyFilter,
	}
}

// serializeToMessage marshals a payload into a Kafka message keyed by run id.
func serializeToMessage(s *domain.RunSummary, kind string, payload any) (kafkago.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s: %w", kind, err)
	}
	return kafkago.Message{
		Key:   []byte(s.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(s.Source)},
			{Key: "product", Value: []byte(s.Product.String())},
			{Key: "kind", Value: []byte(kind)},
		},
	}, nil
}
