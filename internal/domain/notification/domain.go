package notification

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// StatusClaimed is the value a dispatch run writes when it leases a notification.
// It equals StatusSent; stores tell a lease apart from a confirmed send by ClaimedAt.
const StatusClaimed = StatusSent

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

type ChannelType string

const (
	ChannelEmailReminder        ChannelType = "EMAIL_REMINDER"
	ChannelSMSReminder          ChannelType = "SMS_REMINDER"
	ChannelWhatsAppConfirmation ChannelType = "WHATSAPP_CONFIRMATION"
)

// ChannelTypes lists every recognised channel kind.
var ChannelTypes = []ChannelType{ChannelEmailReminder, ChannelSMSReminder, ChannelWhatsAppConfirmation}

func (c ChannelType) Valid() bool {
	switch c {
	case ChannelEmailReminder, ChannelSMSReminder, ChannelWhatsAppConfirmation:
		return true
	}
	return false
}

// MaxRetries is the retry ceiling: a notification that failed this many times is not requeued.
const MaxRetries = 3

type Notification struct {
	ID           uuid.UUID   `json:"id"`
	SubjectID    string      `json:"subject_id"`
	ChannelType  ChannelType `json:"channel_type"`
	Status       Status      `json:"status"`
	SendAt       time.Time   `json:"send_at"`
	SentAt       *time.Time  `json:"sent_at,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	RetryCount   int         `json:"retry_count"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// ClaimedAt is the lease timestamp of an unfinished dispatch run; nil once the
	// outcome has been recorded.
	ClaimedAt *time.Time `json:"-"`
}

// Reasons recorded on notifications withdrawn because their appointment changed.
const (
	ReasonAppointmentCancelled   = "appointment cancelled"
	ReasonAppointmentRescheduled = "appointment rescheduled"
)

// Withdrawn reports whether n was moved to FAILED by an appointment change rather
// than by a delivery failure.
func (n *Notification) Withdrawn() bool {
	if n.Status != StatusFailed || n.ErrorMessage == nil {
		return false
	}
	switch *n.ErrorMessage {
	case ReasonAppointmentCancelled, ReasonAppointmentRescheduled:
		return true
	}
	return false
}

// Due reports whether n can be picked by a dispatch run at now.
func (n *Notification) Due(now time.Time) bool {
	return n.Status == StatusPending && !n.SendAt.After(now)
}

type Statistics struct {
	Total             int                 `json:"total"`
	Pending           int                 `json:"pending"`
	Sent              int                 `json:"sent"`
	Failed            int                 `json:"failed"`
	ScheduledToday    int                 `json:"scheduled_today"`
	ScheduledThisWeek int                 `json:"scheduled_this_week"`
	ByChannelType     map[ChannelType]int `json:"by_channel_type"`
}

// Recipient is the resolved addressee of a notification.
type Recipient struct {
	SubjectID     string
	Name          string
	Email         string
	Phone         string
	AppointmentAt time.Time
	Service       string
}

// Message is fully rendered content ready for a channel to deliver.
type Message struct {
	Channel ChannelType
	To      string
	Subject string
	Body    string
}

type OutcomeKind string

const (
	OutcomeSent   OutcomeKind = "sent"
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome describes the result of a single delivery attempt.
type Outcome struct {
	NotificationID uuid.UUID   `json:"notification_id"`
	SubjectID      string      `json:"subject_id"`
	ChannelType    ChannelType `json:"channel_type"`
	Kind           OutcomeKind `json:"kind"`
	Error          string      `json:"error,omitempty"`
	RetryCount     int         `json:"retry_count"`
	At             time.Time   `json:"at"`
}
