package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs"
)

const DefaultBatchSize = 50

// ChannelLookup resolves the transport for a channel type.
type ChannelLookup interface {
	Lookup(kind notification.ChannelType) (notification.Channel, error)
}

type Summary struct {
	Processed  int           `json:"processed"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Dispatcher claims a batch of due notifications and delivers them one by one.
// Only a failing query or claim aborts a run; every per-item failure is recorded on
// the notification and the run moves on.
type Dispatcher struct {
	store      notification.Store
	recipients notification.RecipientResolver
	channels   ChannelLookup
	outcomes   notification.OutcomePublisher
	clock      notification.Clock
	batchSize  int
	log        *zap.Logger
}

type DispatcherConfig struct {
	BatchSize int
	Clock     notification.Clock
	Outcomes  notification.OutcomePublisher
}

func NewDispatcher(
	store notification.Store,
	recipients notification.RecipientResolver,
	channels ChannelLookup,
	cfg DispatcherConfig,
	log *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		recipients: recipients,
		channels:   channels,
		outcomes:   cfg.Outcomes,
		clock:      cfg.Clock,
		batchSize:  cfg.BatchSize,
		log:        obs.Component(log, "dispatcher"),
	}
	if d.batchSize <= 0 {
		d.batchSize = DefaultBatchSize
	}
	if d.clock == nil {
		d.clock = notification.SystemClock{}
	}
	return d
}

func (d *Dispatcher) Run(ctx context.Context) (sum Summary, err error) {
	start := time.Now()
	defer func() {
		sum.Duration = time.Since(start)
		mRunDur.Observe(sum.Duration.Seconds())
	}()

	tr := otel.Tracer("delivery.dispatcher")
	ctx, span := tr.Start(ctx, "dispatch.run", trace.WithAttributes(attribute.Int("batch.limit", d.batchSize)))
	defer span.End()
	log := obs.WithTrace(ctx, d.log)

	due, err := d.store.FindDue(ctx, d.batchSize)
	if err != nil {
		mRuns.WithLabelValues("error").Inc()
		obs.FailSpan(span, "find due", err)
		return sum, fmt.Errorf("find due: %w", err)
	}
	if len(due) == 0 {
		mBatchSize.Set(0)
		mRuns.WithLabelValues("empty").Inc()
		return sum, nil
	}

	ids := make([]uuid.UUID, len(due))
	for i, n := range due {
		ids[i] = n.ID
	}
	claimedIDs, err := d.store.ClaimBatch(ctx, ids)
	if err != nil {
		mRuns.WithLabelValues("error").Inc()
		obs.FailSpan(span, "claim", err)
		return sum, fmt.Errorf("claim batch: %w", err)
	}
	batch := leasedOnly(due, claimedIDs)
	mBatchSize.Set(float64(len(batch)))
	if lost := len(due) - len(batch); lost > 0 {
		mClaimLost.Add(float64(lost))
		log.Info("due notifications changed before claim", zap.Int("skipped", lost))
	}

	for _, n := range batch {
		sum.Processed++
		mProcessed.Inc()
		if d.deliver(ctx, tr, n) {
			sum.Successful++
		} else {
			sum.Failed++
		}
	}

	mRuns.WithLabelValues("ok").Inc()
	span.SetAttributes(
		attribute.Int("batch.processed", sum.Processed),
		attribute.Int("batch.successful", sum.Successful),
		attribute.Int("batch.failed", sum.Failed),
	)
	log.Info("dispatch run finished",
		zap.Int("processed", sum.Processed),
		zap.Int("successful", sum.Successful),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sum, nil
}

// leasedOnly keeps the rows of due this run actually leased, in due order.
func leasedOnly(due []*notification.Notification, claimed []uuid.UUID) []*notification.Notification {
	held := make(map[uuid.UUID]struct{}, len(claimed))
	for _, id := range claimed {
		held[id] = struct{}{}
	}
	out := make([]*notification.Notification, 0, len(claimed))
	for _, n := range due {
		if _, ok := held[n.ID]; ok {
			out = append(out, n)
		}
	}
	return out
}

// deliver attempts one claimed notification. n is the snapshot taken before the claim,
// so validation sees the status the dispatcher selected it in.
func (d *Dispatcher) deliver(ctx context.Context, tr trace.Tracer, n *notification.Notification) bool {
	ctx, span := tr.Start(ctx, "dispatch.deliver", trace.WithAttributes(
		attribute.String("notification.id", n.ID.String()),
		attribute.String("notification.channel_type", string(n.ChannelType)),
		attribute.Int("notification.retry_count", n.RetryCount),
	))
	defer span.End()

	cause, err := d.attempt(ctx, n)
	if err != nil {
		obs.FailSpan(span, cause, err)
		d.fail(ctx, n, cause, err)
		return false
	}

	if err := d.store.ConfirmSent(ctx, n.ID); err != nil {
		// delivered, but the lease stays; the reclaimer will hand it out again
		obs.FailSpan(span, "confirm", err)
		mFailed.WithLabelValues(string(n.ChannelType), "confirm").Inc()
		obs.WithTrace(ctx, d.log).Error("confirm sent failed",
			zap.Stringer("notification_id", n.ID), zap.Error(err))
		return false
	}
	mDelivered.WithLabelValues(string(n.ChannelType)).Inc()
	d.publish(ctx, n, notification.OutcomeSent, "", n.RetryCount)
	return true
}

func (d *Dispatcher) attempt(ctx context.Context, n *notification.Notification) (string, error) {
	rcpt, err := d.recipients.Resolve(ctx, n.SubjectID)
	if err != nil && !errors.Is(err, notification.ErrRecipientNotFound) {
		return "recipient", fmt.Errorf("resolve recipient: %w", err)
	}
	if err := CanSend(n, rcpt); err != nil {
		return "rejected", err
	}
	ch, err := d.channels.Lookup(n.ChannelType)
	if err != nil {
		return "channel", err
	}
	msg, err := ch.Render(ctx, n, rcpt)
	if err != nil {
		return "render", fmt.Errorf("render: %w", err)
	}
	if err := ch.Send(ctx, msg); err != nil {
		return "send", err
	}
	return "", nil
}

func (d *Dispatcher) fail(ctx context.Context, n *notification.Notification, cause string, reason error) {
	mFailed.WithLabelValues(string(n.ChannelType), cause).Inc()
	log := obs.WithTrace(ctx, d.log).With(
		zap.Stringer("notification_id", n.ID),
		zap.String("channel_type", string(n.ChannelType)),
		zap.String("cause", cause),
	)
	log.Warn("delivery failed", zap.Error(reason))

	if err := d.store.MarkFailed(ctx, n.ID, reason.Error()); err != nil {
		log.Error("mark failed", zap.Error(err))
		return
	}
	d.publish(ctx, n, notification.OutcomeFailed, reason.Error(), n.RetryCount+1)
}

func (d *Dispatcher) publish(ctx context.Context, n *notification.Notification, kind notification.OutcomeKind, reason string, retries int) {
	if d.outcomes == nil {
		return
	}
	err := d.outcomes.PublishOutcome(ctx, notification.Outcome{
		NotificationID: n.ID,
		SubjectID:      n.SubjectID,
		ChannelType:    n.ChannelType,
		Kind:           kind,
		Error:          reason,
		RetryCount:     retries,
		At:             d.clock.Now(),
	})
	if err != nil {
		obs.WithTrace(ctx, d.log).Warn("publish outcome", zap.Stringer("notification_id", n.ID), zap.Error(err))
	}
}
