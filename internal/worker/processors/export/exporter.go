package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalogsync/internal/config"
	"catalogsync/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	EventVariantDeleted  = "variant.deleted"
	EventVariantRepriced = "variant.repriced"
)

// Event is published once per variant a live run changes.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	VariantID string                 `json:"variant_id"`
	ItemID    string                 `json:"item_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func NewEvent(eventType, variantID, itemID string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		VariantID: variantID,
		ItemID:    itemID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Exporter struct {
	logger *logger.Logger
	writer MessageWriter
}

// New returns an exporter writing to cfg.KafkaTopic, or a disabled one when
// no brokers are configured.
func New(cfg *config.Config, logger *logger.Logger) *Exporter {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return &Exporter{logger: logger}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewWithWriter(writer, logger)
}

func NewWithWriter(writer MessageWriter, logger *logger.Logger) *Exporter {
	return &Exporter{
		logger: logger,
		writer: writer,
	}
}

func (e *Exporter) Enabled() bool {
	return e.writer != nil
}

// Publish writes events keyed by variant id so a variant's history stays on
// one partition.
func (e *Exporter) Publish(ctx context.Context, events []Event) error {
	if !e.Enabled() || len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.VariantID),
			Value: value,
			Time:  ev.Timestamp,
		})
	}

	if err := e.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d events: %w", len(events), err)
	}
	e.logger.Debug("Published %d events", len(events))
	return nil
}

func (e *Exporter) Close() error {
	if !e.Enabled() {
		return nil
	}
	return e.writer.Close()
}
