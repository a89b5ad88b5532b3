package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs"
)

// RetryCoordinator puts FAILED notifications back into the pending pool with send_at
// = now. retry_count is never reset, so the ceiling holds across retries.
type RetryCoordinator struct {
	store      notification.Store
	clock      notification.Clock
	maxRetries int
	log        *zap.Logger
}

func NewRetryCoordinator(store notification.Store, clock notification.Clock, maxRetries int, log *zap.Logger) *RetryCoordinator {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	if maxRetries <= 0 {
		maxRetries = notification.MaxRetries
	}
	return &RetryCoordinator{store: store, clock: clock, maxRetries: maxRetries, log: obs.Component(log, "retry")}
}

func (c *RetryCoordinator) RetryOne(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	ctx, span := otel.Tracer("delivery.retry").Start(ctx, "retry.one",
		trace.WithAttributes(attribute.String("notification.id", id.String())))
	defer span.End()

	n, err := c.store.Get(ctx, id)
	if err != nil {
		obs.FailSpan(span, "get", err)
		return nil, err
	}
	if err := CanRetry(n, c.maxRetries); err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			mRetryRejected.WithLabelValues(string(rej.Reason)).Inc()
		}
		return nil, err
	}
	if err := c.requeue(ctx, n); err != nil {
		obs.FailSpan(span, "requeue", err)
		return nil, err
	}
	return c.store.Get(ctx, id)
}

// RetryBatch requeues up to limit FAILED notifications, skipping the ones CanRetry
// refuses, and returns how many were requeued.
func (c *RetryCoordinator) RetryBatch(ctx context.Context, limit int) (int, error) {
	ctx, span := otel.Tracer("delivery.retry").Start(ctx, "retry.batch",
		trace.WithAttributes(attribute.Int("batch.limit", limit)))
	defer span.End()

	failed, err := c.store.FindFailed(ctx, limit)
	if err != nil {
		obs.FailSpan(span, "find failed", err)
		return 0, fmt.Errorf("find failed: %w", err)
	}

	log := obs.WithTrace(ctx, c.log)
	requeued := 0
	for _, n := range failed {
		if err := CanRetry(n, c.maxRetries); err != nil {
			var rej *Rejection
			if errors.As(err, &rej) {
				mRetryRejected.WithLabelValues(string(rej.Reason)).Inc()
			}
			continue
		}
		if err := c.requeue(ctx, n); err != nil {
			log.Warn("requeue failed", zap.Stringer("notification_id", n.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	span.SetAttributes(attribute.Int("batch.requeued", requeued))
	if requeued > 0 {
		log.Info("failed notifications requeued", zap.Int("requeued", requeued), zap.Int("examined", len(failed)))
	}
	return requeued, nil
}

func (c *RetryCoordinator) requeue(ctx context.Context, n *notification.Notification) error {
	if err := c.store.Requeue(ctx, n.ID, c.clock.Now()); err != nil {
		return fmt.Errorf("requeue %s: %w", n.ID, err)
	}
	mRequeued.Inc()
	return nil
}
