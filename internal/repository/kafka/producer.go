package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs/retry"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ notification.OutcomePublisher = (*OutcomeProducer)(nil)

// OutcomeProducer publishes delivery outcomes as JSON, keyed by notification id so
// events for one notification stay ordered within a partition.
type OutcomeProducer struct {
	w      messageWriter
	topic  string
	policy retry.Policy
	log    *zap.Logger
}

func NewOutcomeProducer(brokers []string, topic string, log *zap.Logger) *OutcomeProducer {
	return newOutcomeProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}, topic, log)
}

func newOutcomeProducer(w messageWriter, topic string, log *zap.Logger) *OutcomeProducer {
	if log == nil {
		log = zap.L()
	}
	log = log.With(zap.String("component", "kafka.producer"), zap.String("topic", topic))
	return &OutcomeProducer{
		w:      w,
		topic:  topic,
		policy: retry.KafkaPolicy(log),
		log:    log,
	}
}

func (p *OutcomeProducer) PublishOutcome(ctx context.Context, o notification.Outcome) error {
	value, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	ctx, span := otel.Tracer("kafka.producer").Start(ctx, "kafka.produce "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingOperationPublish,
		),
	)
	defer span.End()

	hdrs := mapCarrierHeaders{"content-type": "application/json"}
	otel.GetTextMapPropagator().Inject(ctx, hdrs)

	msg := kafka.Message{
		Key:     []byte(o.NotificationID.String()),
		Value:   value,
		Headers: hdrs.ToKafka(),
	}
	err = retry.Do(ctx, func() error { return p.w.WriteMessages(ctx, msg) }, p.policy)
	if err != nil {
		span.RecordError(err)
		p.log.Error("kafka write failed", zap.Stringer("notification_id", o.NotificationID), zap.Error(err))
		return fmt.Errorf("publish outcome: %w", err)
	}
	p.log.Debug("outcome published",
		zap.Stringer("notification_id", o.NotificationID),
		zap.String("kind", string(o.Kind)),
	)
	return nil
}

func (p *OutcomeProducer) Close() error { return p.w.Close() }

// NoopPublisher drops every outcome. Used when kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutcome(context.Context, notification.Outcome) error { return nil }
