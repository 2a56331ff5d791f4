package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/IdentityService/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, event models.MailEvent) error {
	return m.Called(ctx, event).Error(0)
}

// chanReader serves queued messages, then blocks until ctx is done.
type chanReader struct {
	mu        sync.Mutex
	msgs      chan kafka.Message
	committed []int64
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *chanReader) Close() error { return nil }

func (r *chanReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestProducer_PublishMail(t *testing.T) {
	w := new(MockWriter)
	p := &Producer{writer: w, mailTopic: "mail"}
	event := models.MailEvent{Type: models.MailEmailVerification, UserID: 7, To: "a@example.com", Subject: "Verify"}

	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || msgs[0].Topic != "mail" || string(msgs[0].Key) != "7" {
			return false
		}
		var got models.MailEvent
		return json.Unmarshal(msgs[0].Value, &got) == nil && got.To == "a@example.com"
	})).Return(nil).Once()

	require.NoError(t, p.PublishMail(context.Background(), event))
	w.AssertExpectations(t)
}

func TestProducer_PublishMailError(t *testing.T) {
	w := new(MockWriter)
	p := &Producer{writer: w, mailTopic: "mail"}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	err := p.PublishMail(context.Background(), models.MailEvent{UserID: 1, To: "a@example.com"})
	assert.EqualError(t, err, "broker down")
}

func TestConsumer_Handle(t *testing.T) {
	event := models.MailEvent{Type: models.MailPasswordReset, UserID: 3, To: "c@example.com", Subject: "Reset", Body: "link"}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	t.Run("delivers", func(t *testing.T) {
		m := new(MockMailer)
		m.On("Send", mock.Anything, event).Return(nil).Once()
		c := &Consumer{mailer: m, backoff: time.Millisecond}

		assert.NoError(t, c.handle(context.Background(), raw))
		m.AssertExpectations(t)
	})

	t.Run("retries then gives up", func(t *testing.T) {
		m := new(MockMailer)
		m.On("Send", mock.Anything, event).Return(errors.New("smtp down")).Times(sendAttempts)
		c := &Consumer{mailer: m, backoff: time.Millisecond}

		err := c.handle(context.Background(), raw)
		assert.ErrorContains(t, err, "smtp down")
		m.AssertExpectations(t)
	})

	t.Run("recovers on retry", func(t *testing.T) {
		m := new(MockMailer)
		m.On("Send", mock.Anything, event).Return(errors.New("busy")).Once()
		m.On("Send", mock.Anything, event).Return(nil).Once()
		c := &Consumer{mailer: m, backoff: time.Millisecond}

		assert.NoError(t, c.handle(context.Background(), raw))
		m.AssertExpectations(t)
	})

	t.Run("invalid payload", func(t *testing.T) {
		m := new(MockMailer)
		c := &Consumer{mailer: m, backoff: time.Millisecond}

		assert.Error(t, c.handle(context.Background(), []byte("{not json")))
		assert.Error(t, c.handle(context.Background(), []byte(`{"type":"password_reset"}`)))
		m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestConsumer_ConsumeCommitsAndStops(t *testing.T) {
	event := models.MailEvent{Type: models.MailPasswordChanged, UserID: 9, To: "z@example.com"}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	reader := &chanReader{msgs: make(chan kafka.Message, 2)}
	reader.msgs <- kafka.Message{Topic: "mail", Offset: 1, Value: raw}
	reader.msgs <- kafka.Message{Topic: "mail", Offset: 2, Value: []byte("garbage")}

	m := new(MockMailer)
	m.On("Send", mock.Anything, event).Return(nil).Once()
	c := &Consumer{reader: reader, mailer: m, backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Consume(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []int64{1, 2}, reader.commits())
	m.AssertExpectations(t)
}

func TestConsumer_ShutdownDuringDelivery(t *testing.T) {
	event := models.MailEvent{Type: models.MailPasswordChanged, UserID: 3, To: "s@example.com"}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	run := func(t *testing.T, sendErr error) []int64 {
		reader := &chanReader{msgs: make(chan kafka.Message, 1)}
		reader.msgs <- kafka.Message{Topic: "mail", Offset: 7, Value: raw}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m := new(MockMailer)
		m.On("Send", mock.Anything, event).Run(func(mock.Arguments) { cancel() }).Return(sendErr)
		c := &Consumer{reader: reader, mailer: m, backoff: time.Millisecond}

		done := make(chan struct{})
		go func() {
			c.Consume(ctx)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("consumer did not stop")
		}
		return reader.commits()
	}

	t.Run("delivered mail is committed", func(t *testing.T) {
		assert.Equal(t, []int64{7}, run(t, nil))
	})

	t.Run("undelivered mail is left for redelivery", func(t *testing.T) {
		assert.Empty(t, run(t, errors.New("smtp: connection reset")))
	})
}
