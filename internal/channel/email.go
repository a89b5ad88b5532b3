package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/mail.v2"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs/retry"
)

var emailSends = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reminder_email_sends_total",
	Help: "Email delivery attempts by result, after the nested SMTP retry.",
}, []string{"result"})

var ErrNoEmailAddress = errors.New("recipient has no email address")

// mailSender is satisfied by *mail.Dialer.
type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

type EmailConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	UseTLS     bool
	Timeout    time.Duration
	SubjPrefix string
	RatePerSec float64
	Burst      int
	Attempts   int
	Delays     []time.Duration
}

var _ notification.Channel = (*Email)(nil)

type Email struct {
	sender     mailSender
	limiter    *rate.Limiter
	policy     retry.Policy
	from       string
	subjPrefix string
	log        *zap.Logger
}

func NewEmail(cfg EmailConfig, log *zap.Logger) *Email {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.SSL = cfg.UseTLS
	d.Timeout = cfg.Timeout
	if !cfg.UseTLS {
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	return newEmail(d, cfg, log)
}

func newEmail(sender mailSender, cfg EmailConfig, log *zap.Logger) *Email {
	log = log.With(zap.String("component", "channel.email"))

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	var delays retry.Steps
	if len(cfg.Delays) > 0 {
		delays = retry.Steps(cfg.Delays)
	}
	return &Email{
		sender:     sender,
		limiter:    rate.NewLimiter(limit, burst),
		policy:     retry.EmailPolicy(log, cfg.Attempts, delays),
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        log,
	}
}

func (e *Email) Render(_ context.Context, n *notification.Notification, r *notification.Recipient) (notification.Message, error) {
	if r == nil || strings.TrimSpace(r.Email) == "" {
		return notification.Message{}, ErrNoEmailAddress
	}
	subject := reminderSubject(r)
	if e.subjPrefix != "" {
		subject = e.subjPrefix + " " + subject
	}
	return notification.Message{
		Channel: n.ChannelType,
		To:      r.Email,
		Subject: subject,
		Body:    reminderBody(r),
	}, nil
}

// Send delivers m over SMTP, retrying transient failures with the configured step table.
// One call is one delivery attempt from the dispatcher's point of view.
func (e *Email) Send(ctx context.Context, m notification.Message) error {
	if m.To == "" {
		return ErrNoEmailAddress
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email rate limit: %w", err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", e.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)

	start := time.Now()
	err := retry.Do(ctx, func() error { return e.sender.DialAndSend(msg) }, e.policy)
	if err != nil {
		emailSends.WithLabelValues("error").Inc()
		return fmt.Errorf("smtp send: %w", err)
	}
	emailSends.WithLabelValues("ok").Inc()
	e.log.Debug("email sent", zap.String("to", m.To), zap.Duration("elapsed", time.Since(start)))
	return nil
}
