package delivery

import (
	"fmt"
	"strings"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

type RejectionReason string

const (
	NoRecipientAddress  RejectionReason = "no_recipient_address"
	AlreadySent         RejectionReason = "already_sent"
	NotFailed           RejectionReason = "not_failed"
	RetryCeilingReached RejectionReason = "retry_ceiling_reached"
	Withdrawn           RejectionReason = "withdrawn"
)

// Rejection is a business rule refusing to send or retry a notification.
type Rejection struct {
	Reason RejectionReason
	Msg    string
}

func (r *Rejection) Error() string { return r.Msg }

func reject(reason RejectionReason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// Address returns the recipient address the channel type delivers to.
func Address(kind notification.ChannelType, r *notification.Recipient) string {
	if r == nil {
		return ""
	}
	switch kind {
	case notification.ChannelEmailReminder:
		return strings.TrimSpace(r.Email)
	case notification.ChannelSMSReminder, notification.ChannelWhatsAppConfirmation:
		return strings.TrimSpace(r.Phone)
	}
	return ""
}

// CanSend rejects notifications that have no deliverable address or were already sent.
func CanSend(n *notification.Notification, r *notification.Recipient) error {
	if Address(n.ChannelType, r) == "" {
		return reject(NoRecipientAddress, "recipient of %s has no address for %s", n.SubjectID, n.ChannelType)
	}
	if n.Status == notification.StatusSent {
		return reject(AlreadySent, "notification %s was already sent", n.ID)
	}
	return nil
}

// CanRetry accepts only FAILED notifications below the retry ceiling that were not
// withdrawn by an appointment change.
func CanRetry(n *notification.Notification, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = notification.MaxRetries
	}
	if n.Status != notification.StatusFailed {
		return reject(NotFailed, "notification %s is %s, only FAILED can be retried", n.ID, n.Status)
	}
	if n.RetryCount >= maxRetries {
		return reject(RetryCeilingReached, "exceeded maximum retry attempts (%d)", maxRetries)
	}
	if n.Withdrawn() {
		return reject(Withdrawn, "notification %s was withdrawn: %s", n.ID, *n.ErrorMessage)
	}
	return nil
}
