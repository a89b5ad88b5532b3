package delivery

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs"
)

const DefaultStaleClaimTimeout = 10 * time.Minute

// Reclaimer returns leases abandoned by an interrupted dispatch run to PENDING.
type Reclaimer struct {
	store   notification.Store
	timeout time.Duration
	log     *zap.Logger
}

func NewReclaimer(store notification.Store, timeout time.Duration, log *zap.Logger) *Reclaimer {
	if timeout <= 0 {
		timeout = DefaultStaleClaimTimeout
	}
	return &Reclaimer{store: store, timeout: timeout, log: obs.Component(log, "reclaimer")}
}

func (r *Reclaimer) Run(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("delivery.reclaimer").Start(ctx, "reclaim.run",
		trace.WithAttributes(attribute.String("stale_timeout", r.timeout.String())))
	defer span.End()

	stale, err := r.store.FindStaleClaims(ctx, r.timeout)
	if err != nil {
		obs.FailSpan(span, "find stale", err)
		return 0, fmt.Errorf("find stale claims: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	log := obs.WithTrace(ctx, r.log)
	reset := 0
	for _, n := range stale {
		if err := r.store.ResetToPending(ctx, n.ID); err != nil {
			log.Error("reset stale claim", zap.Stringer("notification_id", n.ID), zap.Error(err))
			continue
		}
		reset++
	}
	mReclaimed.Add(float64(reset))
	span.SetAttributes(attribute.Int("reclaimed", reset))
	log.Warn("stale claims returned to pending", zap.Int("count", reset), zap.Duration("timeout", r.timeout))
	return reset, nil
}
