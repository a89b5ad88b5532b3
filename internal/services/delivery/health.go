package delivery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs"
)

const DefaultFailedAlarm = 100

// HealthReporter logs notification statistics and raises an alarm when too many
// notifications sit in FAILED.
type HealthReporter struct {
	store     notification.Store
	threshold int
	log       *zap.Logger
}

func NewHealthReporter(store notification.Store, threshold int, log *zap.Logger) *HealthReporter {
	if threshold <= 0 {
		threshold = DefaultFailedAlarm
	}
	return &HealthReporter{store: store, threshold: threshold, log: obs.Component(log, "health")}
}

// Report returns the statistics and whether the FAILED count is above the threshold.
func (h *HealthReporter) Report(ctx context.Context) (*notification.Statistics, bool, error) {
	st, err := h.store.Statistics(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("statistics: %w", err)
	}

	mByStatus.WithLabelValues(string(notification.StatusPending)).Set(float64(st.Pending))
	mByStatus.WithLabelValues(string(notification.StatusSent)).Set(float64(st.Sent))
	mByStatus.WithLabelValues(string(notification.StatusFailed)).Set(float64(st.Failed))
	mScheduled.WithLabelValues("today").Set(float64(st.ScheduledToday))
	mScheduled.WithLabelValues("week").Set(float64(st.ScheduledThisWeek))

	log := obs.WithTrace(ctx, h.log)
	log.Info("notification statistics",
		zap.Int("total", st.Total),
		zap.Int("pending", st.Pending),
		zap.Int("sent", st.Sent),
		zap.Int("failed", st.Failed),
		zap.Int("scheduled_today", st.ScheduledToday),
		zap.Int("scheduled_this_week", st.ScheduledThisWeek),
	)

	alarm := st.Failed > h.threshold
	if alarm {
		mFailedAlarm.Set(1)
		log.Warn("failed notifications above threshold", zap.Int("failed", st.Failed), zap.Int("threshold", h.threshold))
	} else {
		mFailedAlarm.Set(0)
	}
	return st, alarm, nil
}
