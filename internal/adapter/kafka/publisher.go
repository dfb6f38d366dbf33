package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/config"
	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Event kinds, sent in the "kind" header.
const (
	KindArtifact = "artifact"
	KindPass     = "pass"
)

// Publisher announces persisted artifacts and finished passes on a Kafka topic.
// It implements acquire.ArtifactSink and acquire.PassRecorder.
type Publisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured event topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		// Single-message writes from the fetch loop flush without waiting for a batch.
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// ArtifactStored publishes an artifact event keyed by station.
func (p *Publisher) ArtifactStored(ctx context.Context, ev domain.ArtifactEvent) error {
	msg, err := serializeArtifact(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish artifact event: %w", err)
	}
	p.metrics.EventsPublished.WithLabelValues(KindArtifact).Inc()
	return nil
}

// RecordPass publishes a pass summary keyed by period.
func (p *Publisher) RecordPass(ctx context.Context, ev domain.PassEvent) error {
	msg, err := serializePass(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish pass event: %w", err)
	}
	p.metrics.EventsPublished.WithLabelValues(KindPass).Inc()
	p.logger.Debug("pass event published", "period", ev.Period.String(), "attempt", ev.Attempt)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeArtifact marshals an ArtifactEvent into a Kafka message.
func serializeArtifact(ev domain.ArtifactEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize artifact event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.StationID + "/" + ev.Period.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(KindArtifact)},
			{Key: "run_id", Value: []byte(ev.RunID)},
			{Key: "fetched_at", Value: []byte(ev.FetchedAt.Format(time.RFC3339))},
		},
	}, nil
}

// serializePass marshals a PassEvent into a Kafka message.
func serializePass(ev domain.PassEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize pass event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.Period.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(KindPass)},
			{Key: "run_id", Value: []byte(ev.RunID)},
			{Key: "outcome", Value: []byte(ev.Outcome)},
		},
	}, nil
}
