package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs/retry"
)

// fakeWriter fails the first failures writes with err, or every write when failures is 0.
type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	failures int
	calls    int
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestOutcomeProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newOutcomeProducer(w, "outcomes", zap.NewNop())

	o := notification.Outcome{
		NotificationID: uuid.New(),
		SubjectID:      "appt-1",
		ChannelType:    notification.ChannelEmailReminder,
		Kind:           notification.OutcomeFailed,
		Error:          "smtp: 550",
		RetryCount:     2,
		At:             time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishOutcome(context.Background(), o))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, o.NotificationID.String(), string(msg.Key))
	assert.Equal(t, "application/json", headerValue(msg.Headers, "content-type"))

	var got notification.Outcome
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, o, got)
}

// quickProducer keeps the kafka retry budget but skips the waits.
func quickProducer(w messageWriter) *OutcomeProducer {
	p := newOutcomeProducer(w, "outcomes", zap.NewNop())
	p.policy.Backoff = retry.Steps{}
	return p
}

func TestOutcomeProducer_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	w := &fakeWriter{err: boom}
	p := quickProducer(w)

	err := p.PublishOutcome(context.Background(), notification.Outcome{NotificationID: uuid.New()})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, retry.KafkaPolicy(nil).Attempts, w.calls)
}

func TestOutcomeProducer_RetriesTransientWrite(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available"), failures: 1}
	p := quickProducer(w)

	id := uuid.New()
	require.NoError(t, p.PublishOutcome(context.Background(), notification.Outcome{NotificationID: id, Kind: notification.OutcomeSent}))
	assert.Equal(t, 2, w.calls)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, id.String(), string(w.msgs[0].Key))
}

func TestOutcomeProducer_CancelledContextNotRetried(t *testing.T) {
	w := &fakeWriter{err: context.Canceled}
	p := quickProducer(w)

	err := p.PublishOutcome(context.Background(), notification.Outcome{NotificationID: uuid.New()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, w.calls)
}

func TestBootstrapOutcomePublisher_Disabled(t *testing.T) {
	pub, closeFn := BootstrapOutcomePublisher(context.Background(), PublisherConfig{}, zap.NewNop())
	assert.IsType(t, NoopPublisher{}, pub)
	assert.NoError(t, pub.PublishOutcome(context.Background(), notification.Outcome{}))
	assert.NoError(t, closeFn())
}
