package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/NordCoder/Reminderus/internal/domain/appointment"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestComputeReminderTime(t *testing.T) {
	now := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)
	timing := Timing{SendHour: Hour(9), LeadDays: 1}

	tests := []struct {
		name   string
		appt   appointment.Appointment
		wantOK bool
		want   time.Time
	}{
		{
			name:   "future slot fires the day before at nine",
			appt:   appointment.Appointment{ID: "a", Date: day(2026, 5, 14), TimeOfDay: "16:45"},
			wantOK: true,
			want:   time.Date(2026, 5, 13, 9, 0, 0, 0, time.UTC),
		},
		{
			name:   "early morning slot ignores its own hour",
			appt:   appointment.Appointment{ID: "a", Date: day(2026, 5, 12), TimeOfDay: "07:05"},
			wantOK: true,
			want:   time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "next day after nine already passed",
			appt: appointment.Appointment{ID: "a", Date: day(2026, 5, 11), TimeOfDay: "15:00"},
		},
		{
			name: "same day",
			appt: appointment.Appointment{ID: "a", Date: day(2026, 5, 10), TimeOfDay: "18:00"},
		},
		{
			name: "past appointment",
			appt: appointment.Appointment{ID: "a", Date: day(2026, 4, 1), TimeOfDay: "10:00"},
		},
		{
			name: "malformed time",
			appt: appointment.Appointment{ID: "a", Date: day(2026, 6, 1), TimeOfDay: "1030"},
		},
		{
			name: "hour out of range",
			appt: appointment.Appointment{ID: "a", Date: day(2026, 6, 1), TimeOfDay: "25:00"},
		},
		{
			name: "missing date",
			appt: appointment.Appointment{ID: "a", TimeOfDay: "10:00"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ComputeReminderTime(tt.appt, now, timing, zap.NewNop())
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(now))
		})
	}
}

func TestComputeReminderTime_ExactlyNowIsNotFuture(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	_, ok := ComputeReminderTime(appointment.Appointment{Date: day(2026, 5, 11), TimeOfDay: "12:00"}, now, Timing{SendHour: Hour(9), LeadDays: 1}, nil)
	assert.False(t, ok)
}

func TestComputeReminderTime_PropertyOverSlots(t *testing.T) {
	now := time.Date(2026, 1, 15, 13, 37, 0, 0, time.UTC)
	for d := -3; d <= 20; d++ {
		for _, slot := range []string{"00:00", "08:59", "09:00", "12:30", "23:59"} {
			date := day(2026, 1, 15).AddDate(0, 0, d)
			got, ok := ComputeReminderTime(appointment.Appointment{Date: date, TimeOfDay: slot}, now, Timing{SendHour: Hour(9), LeadDays: 1}, nil)
			if !ok {
				expected := date.AddDate(0, 0, -1).Add(9 * time.Hour)
				assert.False(t, expected.After(now), "date %s slot %s should be schedulable", date, slot)
				continue
			}
			assert.True(t, got.After(now))
			assert.Equal(t, 9, got.Hour())
			assert.Zero(t, got.Minute())
			assert.Zero(t, got.Second())
			assert.Equal(t, time.UTC, got.Location())
			assert.Equal(t, date.AddDate(0, 0, -1).YearDay(), got.YearDay())
		}
	}
}

func TestComputeReminderTime_LogsBadData(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	_, ok := ComputeReminderTime(appointment.Appointment{ID: "appt-9", Date: day(2026, 6, 1), TimeOfDay: "9-30"},
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), Timing{}, zap.New(core))
	require.False(t, ok)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "appt-9", logs.All()[0].ContextMap()["appointment_id"])
}

func TestComputeReminderTime_ZeroTimingFiresAtNine(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := appointment.Appointment{Date: day(2026, 5, 14), TimeOfDay: "15:00"}

	got, ok := ComputeReminderTime(a, now, Timing{}, nil)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 5, 13, 9, 0, 0, 0, time.UTC), got)

	got, ok = ComputeReminderTime(a, now, Timing{SendHour: Hour(0)}, nil)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC), got)

	got, ok = ComputeReminderTime(a, now, Timing{SendHour: Hour(24), LeadDays: 2}, nil)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC), got)
}
