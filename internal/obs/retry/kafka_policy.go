package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// KafkaPolicy retries one outcome publish. The publish sits on the dispatch path, so
// the budget stays in the low seconds.
func KafkaPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "kafka_publish",
		Attempts: 4,
		Backoff:  ExpoJitter{Base: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("kafka publish retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("kafka publish retries exhausted", zap.Error(err))
			}
		},
	}
}
