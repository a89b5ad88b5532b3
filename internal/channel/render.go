package channel

import (
	"fmt"
	"strings"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

const appointmentLayout = "Monday, 02 Jan 2006 at 15:04 MST"

func greeting(r *notification.Recipient) string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return "Hello " + name + ","
	}
	return "Hello,"
}

func describeAppointment(r *notification.Recipient) string {
	var sb strings.Builder
	sb.WriteString("your appointment")
	if r.Service != "" {
		fmt.Fprintf(&sb, " for %s", r.Service)
	}
	if !r.AppointmentAt.IsZero() {
		fmt.Fprintf(&sb, " is scheduled for %s", r.AppointmentAt.UTC().Format(appointmentLayout))
	} else {
		sb.WriteString(" is coming up soon")
	}
	return sb.String()
}

func reminderSubject(r *notification.Recipient) string {
	if r.Service != "" {
		return "Appointment reminder: " + r.Service
	}
	return "Appointment reminder"
}

func reminderBody(r *notification.Recipient) string {
	return fmt.Sprintf("%s\n\nThis is a reminder that %s.\nIf you cannot make it, please let us know in advance.\n",
		greeting(r), describeAppointment(r))
}

func shortReminder(r *notification.Recipient) string {
	return fmt.Sprintf("Reminder: %s.", describeAppointment(r))
}

func confirmationText(r *notification.Recipient) string {
	return fmt.Sprintf("%s %s. Reply YES to confirm.", greeting(r), describeAppointment(r))
}
