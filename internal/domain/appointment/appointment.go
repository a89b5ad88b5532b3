package appointment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDate   = errors.New("appointment date is missing")
	ErrMalformedTime = errors.New("malformed appointment time")
)

// Appointment is the slice of an appointment record the reminder pipeline needs.
// Date carries only the calendar day; TimeOfDay is the "HH:MM" slot string as entered.
type Appointment struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	TimeOfDay string    `json:"time"`
	Customer  string    `json:"customer"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Service   string    `json:"service"`
}

// StartsAt combines Date and TimeOfDay into a UTC instant.
func (a Appointment) StartsAt() (time.Time, error) {
	if a.Date.IsZero() {
		return time.Time{}, ErrMissingDate
	}
	h, m, err := ParseTimeOfDay(a.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := a.Date.Date()
	return time.Date(y, mo, d, h, m, 0, 0, time.UTC), nil
}

// ParseTimeOfDay parses a 24h "HH:MM" slot.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q: want HH:MM", ErrMalformedTime, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q: hour out of range", ErrMalformedTime, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q: minute out of range", ErrMalformedTime, s)
	}
	return hour, minute, nil
}
