package reminder

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/appointment"
	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs"
)

var (
	mScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_scheduled_total",
		Help: "Reminder notifications created, by channel type.",
	}, []string{"channel_type"})
	mUnschedulable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminder_unschedulable_total",
		Help: "Appointments for which no reminder could be scheduled.",
	})
	mCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminder_cancelled_total",
		Help: "Pending reminders cancelled by appointment changes.",
	})
)

// Service is the entry point the appointment workflow calls when an appointment is
// created, cancelled or moved.
type Service struct {
	store    notification.Store
	tx       notification.Transactor
	clock    notification.Clock
	timing   Timing
	channels []notification.ChannelType
	log      *zap.Logger
}

type Option func(*Service)

// WithChannels sets the channel types a reminder is created for. Default is email only.
func WithChannels(kinds ...notification.ChannelType) Option {
	return func(s *Service) { s.channels = kinds }
}

func WithClock(c notification.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func NewService(store notification.Store, tx notification.Transactor, timing Timing, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tx:       tx,
		clock:    notification.SystemClock{},
		timing:   timing,
		channels: []notification.ChannelType{notification.ChannelEmailReminder},
		log:      obs.Component(log, "reminder"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule creates one PENDING notification per configured channel. It returns an
// empty slice, not an error, when the appointment is too close or its data is unusable.
func (s *Service) Schedule(ctx context.Context, a appointment.Appointment) ([]*notification.Notification, error) {
	ctx, span := otel.Tracer("reminder.uc").Start(ctx, "reminder.schedule",
		trace.WithAttributes(attribute.String("appointment.id", a.ID)),
	)
	defer span.End()

	log := obs.WithTrace(ctx, s.log)
	at, ok := ComputeReminderTime(a, s.clock.Now(), s.timing, log)
	if !ok {
		mUnschedulable.Inc()
		log.Debug("reminder not scheduled", zap.String("appointment_id", a.ID))
		return nil, nil
	}

	out := make([]*notification.Notification, 0, len(s.channels))
	for _, kind := range s.channels {
		n := &notification.Notification{
			SubjectID:   a.ID,
			ChannelType: kind,
			Status:      notification.StatusPending,
			SendAt:      at,
		}
		if err := s.store.Create(ctx, n); err != nil {
			span.RecordError(err)
			return out, fmt.Errorf("create %s reminder: %w", kind, err)
		}
		mScheduled.WithLabelValues(string(kind)).Inc()
		out = append(out, n)
	}
	log.Info("reminder scheduled",
		zap.String("appointment_id", a.ID),
		zap.Time("send_at", at),
		zap.Int("notifications", len(out)),
	)
	return out, nil
}

// Cancel moves every PENDING notification of the appointment to FAILED and reports how many moved.
func (s *Service) Cancel(ctx context.Context, appointmentID string) (int, error) {
	return s.cancel(ctx, appointmentID, notification.ReasonAppointmentCancelled)
}

func (s *Service) cancel(ctx context.Context, appointmentID, reason string) (int, error) {
	n, err := s.store.CancelPendingForSubject(ctx, appointmentID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}
	if n > 0 {
		mCancelled.Add(float64(n))
		obs.WithTrace(ctx, s.log).Info("reminders cancelled",
			zap.String("appointment_id", appointmentID),
			zap.String("reason", reason),
			zap.Int("affected", n),
		)
	}
	return n, nil
}

// Reschedule cancels the appointment's pending reminders and schedules new ones in
// a single transaction.
func (s *Service) Reschedule(ctx context.Context, a appointment.Appointment) (cancelled int, created []*notification.Notification, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var e error
		if cancelled, e = s.cancel(ctx, a.ID, notification.ReasonAppointmentRescheduled); e != nil {
			return e
		}
		created, e = s.Schedule(ctx, a)
		return e
	})
	if err != nil {
		return 0, nil, err
	}
	return cancelled, created, nil
}
