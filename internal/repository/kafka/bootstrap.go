package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

type PublisherConfig struct {
	Enable  bool
	Brokers []string
	Topic   string
}

// BootstrapOutcomePublisher returns a producer for cfg.Topic, or a NoopPublisher when
// kafka is disabled. The close func is always non-nil.
func BootstrapOutcomePublisher(ctx context.Context, cfg PublisherConfig, log *zap.Logger) (notification.OutcomePublisher, func() error) {
	if !cfg.Enable {
		return NoopPublisher{}, func() error { return nil }
	}
	if err := EnsureTopic(ctx, cfg.Brokers, TopicSpec{
		Name:    cfg.Topic,
		MaxWait: 5 * time.Second,
	}, log); err != nil {
		log.Warn("outcome topic not ensured, relying on auto-create", zap.Error(err))
	}
	p := NewOutcomeProducer(cfg.Brokers, cfg.Topic, log)
	return p, p.Close
}
