package reminder

import (
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/appointment"
)

const (
	DefaultSendHour = 9
	DefaultLeadDays = 1
)

type Timing struct {
	// SendHour is the UTC hour reminders fire at. nil or an hour outside 0..23 means
	// DefaultSendHour.
	SendHour *int
	LeadDays int
}

// Hour is a SendHour value.
func Hour(h int) *int { return &h }

func (t Timing) hour() int {
	if t.SendHour == nil || *t.SendHour < 0 || *t.SendHour > 23 {
		return DefaultSendHour
	}
	return *t.SendHour
}

func (t Timing) leadDays() int {
	if t.LeadDays <= 0 {
		return DefaultLeadDays
	}
	return t.LeadDays
}

// ComputeReminderTime returns the moment a reminder for a should fire: LeadDays before
// the appointment's date, at SendHour:00 UTC whatever the appointment's own hour is.
// ok is false when that moment is not strictly after now or the appointment data is
// unusable; bad data is logged as a warning and never returned as an error.
func ComputeReminderTime(a appointment.Appointment, now time.Time, t Timing, log *zap.Logger) (time.Time, bool) {
	startsAt, err := a.StartsAt()
	if err != nil {
		if log != nil {
			log.Warn("cannot schedule reminder: bad appointment data",
				zap.String("appointment_id", a.ID),
				zap.String("time", a.TimeOfDay),
				zap.Error(err),
			)
		}
		return time.Time{}, false
	}

	day := startsAt.AddDate(0, 0, -t.leadDays())
	at := time.Date(day.Year(), day.Month(), day.Day(), t.hour(), 0, 0, 0, time.UTC)
	if !at.After(now) {
		return time.Time{}, false
	}
	return at, true
}
