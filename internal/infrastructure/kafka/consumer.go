package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/IdentityService/internal/infrastructure/observability"
	"github.com/honeynil/IdentityService/internal/models"
	"github.com/segmentio/kafka-go"
)

// Mailer delivers a rendered mail event.
type Mailer interface {
	Send(ctx context.Context, event models.MailEvent) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	sendAttempts  = 3
	retryBackoff  = time.Second
	commitTimeout = 5 * time.Second
)

// Consumer reads the mail topic and hands every event to the Mailer.
// Offsets are committed after delivery or after the event is given up on.
// An event interrupted by shutdown stays uncommitted.
type Consumer struct {
	reader  messageReader
	mailer  Mailer
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, mailer Mailer) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		mailer:  mailer,
		backoff: retryBackoff,
	}
}

// Consume blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("mail consumer stopped")
				return
			}
			slog.Error("failed to read Kafka message", "error", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset)
		if err := c.handle(ctx, msg.Value); err != nil {
			if ctx.Err() != nil {
				// Left uncommitted; the event is redelivered on the next start.
				slog.Info("mail consumer stopped before delivery", "offset", msg.Offset)
				return
			}
			slog.Error("dropping mail event", "topic", msg.Topic, "key", string(msg.Key), "error", err)
		}

		// A delivered mail is committed even during shutdown, or the restart
		// would send it twice.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "offset", msg.Offset, "error", err)
		}
		cancel()
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var event models.MailEvent
	if err := json.Unmarshal(value, &event); err != nil {
		observability.MailEvents.WithLabelValues("deliver", "invalid").Inc()
		return fmt.Errorf("failed to unmarshal mail event: %w", err)
	}
	if event.To == "" {
		observability.MailEvents.WithLabelValues("deliver", "invalid").Inc()
		return errors.New("mail event has no recipient")
	}

	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = c.mailer.Send(ctx, event); err == nil {
			observability.MailEvents.WithLabelValues("deliver", "sent").Inc()
			slog.Info("mail sent", "type", event.Type, "user_id", event.UserID)
			return nil
		}
		slog.Warn("mail delivery failed", "type", event.Type, "user_id", event.UserID, "attempt", attempt, "error", err)
		if attempt < sendAttempts && !sleep(ctx, c.backoff*time.Duration(attempt)) {
			break
		}
	}
	observability.MailEvents.WithLabelValues("deliver", "failed").Inc()
	return fmt.Errorf("mail delivery failed after retries: %w", err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
