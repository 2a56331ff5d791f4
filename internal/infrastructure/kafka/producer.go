package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/honeynil/IdentityService/internal/infrastructure/observability"
	"github.com/honeynil/IdentityService/internal/models"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes mail events. The writer is async, so a successful
// Send only means the message was queued.
type Producer struct {
	writer    messageWriter
	mailTopic string
}

func NewProducer(brokers []string, mailTopic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		Async:                  true,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				observability.MailEvents.WithLabelValues("publish", "error").Add(float64(len(messages)))
				slog.Error("failed to deliver Kafka messages", "count", len(messages), "error", err)
			}
		},
	}
	return &Producer{writer: writer, mailTopic: mailTopic}
}

func (p *Producer) Send(ctx context.Context, topic string, key int64, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(fmt.Sprintf("%d", key)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("failed to send Kafka message", "topic", topic, "key", key, "error", err)
		return err
	}
	slog.Info("Kafka message sent", "topic", topic, "key", key)
	return nil
}

// PublishMail queues event on the mail topic keyed by user id, so mails for
// one user keep their order.
func (p *Producer) PublishMail(ctx context.Context, event models.MailEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		observability.MailEvents.WithLabelValues("publish", "error").Inc()
		return fmt.Errorf("failed to marshal mail event: %w", err)
	}
	if err := p.Send(ctx, p.mailTopic, event.UserID, value); err != nil {
		observability.MailEvents.WithLabelValues("publish", "error").Inc()
		return err
	}
	observability.MailEvents.WithLabelValues("publish", "queued").Inc()
	return nil
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		slog.Error("failed to close Kafka writer", "error", err)
		return err
	}
	slog.Info("Kafka writer closed")
	return nil
}
