package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/channel"
	config "github.com/NordCoder/Reminderus/internal/config/notifier"
	"github.com/NordCoder/Reminderus/internal/domain/appointment"
	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs"
	"github.com/NordCoder/Reminderus/internal/repository/kafka"
	"github.com/NordCoder/Reminderus/internal/repository/memory"
	pg "github.com/NordCoder/Reminderus/internal/repository/postgres"
	"github.com/NordCoder/Reminderus/internal/services/api"
	"github.com/NordCoder/Reminderus/internal/services/delivery"
	"github.com/NordCoder/Reminderus/internal/services/reminder"
	"github.com/NordCoder/Reminderus/internal/services/scheduler"
)

type application struct {
	orchestrator *scheduler.Orchestrator
	router       *gin.Engine
	healthChecks map[string]obs.HealthCheck
	closers      []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type storage struct {
	store      notification.Store
	tx         notification.Transactor
	recipients notification.RecipientResolver
	directory  *memory.Directory
}

func openStorage(ctx context.Context, cfg *config.Config, l *zap.Logger, app *application) (storage, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		s := memory.NewStore(notification.SystemClock{})
		dir := memory.NewDirectory()
		l.Warn("using in-memory store, notifications are lost on restart")
		return storage{store: s, tx: s, recipients: dir, directory: dir}, nil
	}

	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		return storage{}, fmt.Errorf("db connect: %w", err)
	}
	app.closers = append(app.closers, db.Close)
	app.healthChecks["postgres"] = db.Ping
	if err := db.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
		l.Warn("db pool metrics", zap.Error(err))
	}
	l.Info("db connected")

	return storage{
		store:      pg.NewNotificationRepo(db),
		tx:         pg.NewTransactor(db, l),
		recipients: pg.NewAppointmentRepo(db),
	}, nil
}

func buildChannels(cfg *config.Config, l *zap.Logger) (*channel.Registry, []notification.ChannelType, error) {
	reg := channel.NewRegistry()
	email := channel.NewEmail(channel.EmailConfig{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		User:       cfg.SMTP.User,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		UseTLS:     cfg.SMTP.UseTLS,
		Timeout:    cfg.SMTP.Timeout,
		SubjPrefix: cfg.SMTP.SubjPrefix,
		RatePerSec: cfg.SMTP.RatePerSec,
		Burst:      cfg.SMTP.Burst,
		Attempts:   cfg.EmailRetry.Attempts,
		Delays:     cfg.EmailRetry.Delays,
	}, l)
	if err := reg.Register(notification.ChannelEmailReminder, email); err != nil {
		return nil, nil, err
	}

	if cfg.Twilio.Enable {
		tc := channel.TwilioConfig{
			AccountSID:   cfg.Twilio.AccountSID,
			AuthToken:    cfg.Twilio.AuthToken,
			From:         cfg.Twilio.From,
			WhatsAppFrom: cfg.Twilio.WhatsAppFrom,
		}
		if err := reg.Register(notification.ChannelSMSReminder, channel.NewTwilioSMS(tc, l)); err != nil {
			return nil, nil, err
		}
		if err := reg.Register(notification.ChannelWhatsAppConfirmation, channel.NewTwilioWhatsApp(tc, l)); err != nil {
			return nil, nil, err
		}
	}
	return reg, reg.Registered(), nil
}

func build(ctx context.Context, cfg *config.Config, l *zap.Logger) (*application, error) {
	app := &application{healthChecks: map[string]obs.HealthCheck{}}

	st, err := openStorage(ctx, cfg, l, app)
	if err != nil {
		return nil, err
	}

	registry, kinds, err := buildChannels(cfg, l)
	if err != nil {
		app.close()
		return nil, err
	}
	l.Info("channels registered", zap.Any("kinds", kinds))

	outcomes, closeOutcomes := kafka.BootstrapOutcomePublisher(ctx, kafka.PublisherConfig{
		Enable:  cfg.Kafka.Enable,
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, l)
	app.closers = append(app.closers, func() { _ = closeOutcomes() })

	clock := notification.SystemClock{}
	dispatcher := delivery.NewDispatcher(st.store, st.recipients, registry, delivery.DispatcherConfig{
		BatchSize: cfg.Sched.BatchSize,
		Clock:     clock,
		Outcomes:  outcomes,
	}, l)
	reclaimer := delivery.NewReclaimer(st.store, cfg.Sched.StaleClaimTimeout, l)
	health := delivery.NewHealthReporter(st.store, cfg.Sched.FailedAlarm, l)
	retries := delivery.NewRetryCoordinator(st.store, clock, cfg.Sched.MaxRetries, l)

	orch, err := scheduler.New(scheduler.Config{
		DispatchEvery: cfg.Sched.DispatchEvery,
		ReclaimEvery:  cfg.Sched.ReclaimEvery,
		HealthEvery:   cfg.Sched.HealthEvery,
	}, dispatcher, reclaimer, health, l)
	if err != nil {
		app.close()
		return nil, err
	}
	app.orchestrator = orch

	var reminders api.Reminders = reminder.NewService(st.store, st.tx, reminder.Timing{
		SendHour: reminder.Hour(cfg.Reminder.SendHour),
		LeadDays: cfg.Reminder.LeadDays,
	}, l, reminder.WithChannels(kinds...))
	if st.directory != nil {
		reminders = directoryHooks{Reminders: reminders, dir: st.directory}
	}

	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := api.NewHandler(orch, retries, st.store, reminders, cfg.Sched.RetryBatchLimit, l)
	app.router = api.NewRouter(h, l)
	return app, nil
}

// directoryHooks keeps the in-memory recipient directory in sync with the
// appointment hooks, since there is no appointments table to read from.
type directoryHooks struct {
	api.Reminders
	dir *memory.Directory
}

func (d directoryHooks) remember(a appointment.Appointment) {
	r := notification.Recipient{
		SubjectID: a.ID,
		Name:      a.Customer,
		Email:     a.Email,
		Phone:     a.Phone,
		Service:   a.Service,
	}
	if at, err := a.StartsAt(); err == nil {
		r.AppointmentAt = at
	}
	d.dir.Put(r)
}

func (d directoryHooks) Schedule(ctx context.Context, a appointment.Appointment) ([]*notification.Notification, error) {
	d.remember(a)
	return d.Reminders.Schedule(ctx, a)
}

func (d directoryHooks) Reschedule(ctx context.Context, a appointment.Appointment) (int, []*notification.Notification, error) {
	d.remember(a)
	return d.Reminders.Reschedule(ctx, a)
}
