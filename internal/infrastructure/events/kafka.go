// Package events relays order outbox rows to the event bus.
package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events to a kafka topic, keyed by order id so
// events for one order stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher for cfg.Topic on cfg.KafkaBrokers
func NewKafkaPublisher(cfg config.EventsConfig) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: w, topic: cfg.Topic}
}

// Publish implements order.EventPublisher
func (p *KafkaPublisher) Publish(ctx context.Context, event order.OrderEvent) error {
	if err := p.writer.WriteMessages(ctx, message(event)); err != nil {
		return fmt.Errorf("failed to publish %s for order %s to %s: %w", event.Type, event.OrderID, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func message(event order.OrderEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(event.OrderID),
		Value: []byte(event.Payload),
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(strconv.FormatUint(uint64(event.ID), 10))},
		},
	}
}

// LogPublisher logs events instead of shipping them. Used when no brokers
// are configured.
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements order.EventPublisher
func (p *LogPublisher) Publish(_ context.Context, event order.OrderEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
	}).Info(event.Payload)
	return nil
}

// NewPublisher picks kafka when brokers are configured
func NewPublisher(cfg config.EventsConfig, logger *logrus.Logger) order.EventPublisher {
	if len(cfg.KafkaBrokers) == 0 {
		return NewLogPublisher(logger)
	}
	return NewKafkaPublisher(cfg)
}
