package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

var ErrNoPhoneNumber = errors.New("recipient has no phone number")

// messageCreator is satisfied by twilio.RestClient.Api.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	From         string
	WhatsAppFrom string
}

var _ notification.Channel = (*Twilio)(nil)

// Twilio delivers SMS reminders and WhatsApp confirmations through the Twilio REST API.
type Twilio struct {
	api  messageCreator
	kind notification.ChannelType
	from string
	log  *zap.Logger
}

func newTwilioClient(cfg TwilioConfig) messageCreator {
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	}).Api
}

func NewTwilioSMS(cfg TwilioConfig, log *zap.Logger) *Twilio {
	return newTwilio(newTwilioClient(cfg), notification.ChannelSMSReminder, cfg.From, log)
}

func NewTwilioWhatsApp(cfg TwilioConfig, log *zap.Logger) *Twilio {
	from := cfg.WhatsAppFrom
	if from == "" {
		from = cfg.From
	}
	return newTwilio(newTwilioClient(cfg), notification.ChannelWhatsAppConfirmation, whatsappAddr(from), log)
}

func newTwilio(api messageCreator, kind notification.ChannelType, from string, log *zap.Logger) *Twilio {
	return &Twilio{
		api:  api,
		kind: kind,
		from: from,
		log:  log.With(zap.String("component", "channel.twilio"), zap.String("channel", string(kind))),
	}
}

func whatsappAddr(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

func (t *Twilio) Render(_ context.Context, n *notification.Notification, r *notification.Recipient) (notification.Message, error) {
	if r == nil || strings.TrimSpace(r.Phone) == "" {
		return notification.Message{}, ErrNoPhoneNumber
	}
	m := notification.Message{Channel: n.ChannelType, To: r.Phone}
	if t.kind == notification.ChannelWhatsAppConfirmation {
		m.To = whatsappAddr(r.Phone)
		m.Body = confirmationText(r)
	} else {
		m.Body = shortReminder(r)
	}
	return m, nil
}

func (t *Twilio) Send(ctx context.Context, m notification.Message) error {
	if m.To == "" {
		return ErrNoPhoneNumber
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(m.To)
	params.SetFrom(t.from)
	params.SetBody(m.Body)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		t.log.Debug("message accepted", zap.String("sid", *resp.Sid))
	}
	return nil
}
