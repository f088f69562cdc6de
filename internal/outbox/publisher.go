package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/models"
)

// envelope - формат сообщения в шине.
type envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func encode(event models.OutboxEvent) ([]byte, error) {
	return json.Marshal(envelope{
		ID:            event.ID.String(),
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID.String(),
		EventType:     event.EventType,
		Payload:       event.Payload,
		OccurredAt:    event.CreatedAt,
	})
}

// KafkaPublisher пишет события в топик Kafka. Ключ сообщения - id агрегата,
// поэтому события одного заказа попадают в одну партицию по порядку.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher создаёт синхронный writer с подтверждением от всех реплик.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	log := logger.For("kafka")
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Logger:       kafka.LoggerFunc(log.Debugf),
			ErrorLogger:  kafka.LoggerFunc(log.Errorf),
		},
	}
}

// Publish реализует Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	value, err := encode(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: encode %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
}

// Close закрывает writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher пишет события в лог. Используется, когда брокеры не заданы.
type LogPublisher struct {
	log *logrus.Entry
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.For("outbox")}
}

// Publish реализует Publisher.
func (p *LogPublisher) Publish(_ context.Context, event models.OutboxEvent) error {
	p.log.WithFields(logrus.Fields{
		"event_id":       event.ID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"payload":        string(event.Payload),
	}).Info("outbox событие")
	return nil
}
