package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/water-compliance-api/internal/config"
	"github.com/couchcryptid/water-compliance-api/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces messages to a Kafka topic. Messages are keyed by
// quarter and violation ID so every version of a violation lands on the
// same partition.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(cfg *config.Config, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes generated explanations in a single WriteMessages call.
// It implements pipeline.BatchLoader.
func (w *Writer) LoadBatch(ctx context.Context, explanations []domain.Explanation) error {
	if len(explanations) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(explanations))
	for i := range explanations {
		msg, err := serializeExplanation(explanations[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

// PublishRequests enqueues violations for explanation.
func (w *Writer) PublishRequests(ctx context.Context, violations []domain.ViolationContext) error {
	if len(violations) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(violations))
	for i := range violations {
		msg, err := serializeRequest(violations[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish explanation requests: %w", err)
	}
	w.logger.Info("published explanation requests", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeExplanation(e domain.Explanation) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize explanation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.SubmissionYearQuarter + "|" + e.ViolationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "health_risk_level", Value: []byte(e.HealthRiskLevel)},
			{Key: "model_version", Value: []byte(e.ModelVersion)},
			{Key: "generated_at", Value: []byte(e.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}

func serializeRequest(v domain.ViolationContext) (kafkago.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize violation context: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(v.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "pwsid", Value: []byte(v.PWSID)},
			{Key: "violation_status", Value: []byte(v.Status)},
		},
	}, nil
}
