package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_runs_total", Help: "Dispatch runs by result (ok, empty, error).",
	}, []string{"result"})
	mProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_processed_total", Help: "Notifications claimed and attempted.",
	})
	mClaimLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_claim_lost_total", Help: "Due notifications that changed state before they could be claimed.",
	})
	mDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_delivered_total", Help: "Successful deliveries by channel type.",
	}, []string{"channel_type"})
	mFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_failed_total", Help: "Failed deliveries by channel type and cause.",
	}, []string{"channel_type", "cause"})
	mRunDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "dispatch_run_duration_seconds", Help: "Dispatch run duration.",
		Buckets: prometheus.DefBuckets,
	})
	mBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_last_batch_size", Help: "Size of the last claimed batch.",
	})
	mReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reclaim_reset_total", Help: "Stale claims returned to PENDING.",
	})
	mRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retry_requeued_total", Help: "FAILED notifications requeued for delivery.",
	})
	mRetryRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_rejected_total", Help: "Retry requests refused by reason.",
	}, []string{"reason"})
	mByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notifications", Help: "Notifications by status at the last health report.",
	}, []string{"status"})
	mScheduled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notifications_scheduled", Help: "PENDING notifications due in the window.",
	}, []string{"window"})
	mFailedAlarm = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifications_failed_alarm", Help: "1 when FAILED notifications exceed the alarm threshold.",
	})
)
