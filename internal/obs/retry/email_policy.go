package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultEmailDelays is the wait table between low-level SMTP attempts.
var DefaultEmailDelays = Steps{1 * time.Second, 2 * time.Second, 5 * time.Second}

// EmailPolicy retries a single SMTP delivery inside one dispatch attempt.
// attempts <= 0 means the first send plus one retry per delay. A smaller attempts
// drops the delays it never reaches. Context cancellation is never retried.
func EmailPolicy(log *zap.Logger, attempts int, delays Steps) Policy {
	if delays == nil {
		delays = DefaultEmailDelays
	}
	if attempts <= 0 {
		attempts = len(delays) + 1
	}
	if attempts-1 < len(delays) {
		delays = delays[:attempts-1]
	}
	return Policy{
		Name:     "email_send",
		Attempts: attempts,
		Backoff:  delays,
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("email send retry", zap.Int("attempt", i+1), zap.Int("max_attempts", attempts), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("email send retries exhausted", zap.Error(err))
			}
		},
	}
}
