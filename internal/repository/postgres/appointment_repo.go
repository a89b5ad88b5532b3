package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Reminderus/internal/domain/appointment"
	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

var _ notification.RecipientResolver = (*AppointmentRepo)(nil)

// AppointmentRepo reads the appointments table owned by the booking workflow.
type AppointmentRepo struct{ db *DB }

func NewAppointmentRepo(db *DB) *AppointmentRepo { return &AppointmentRepo{db: db} }

const qAppointmentByID = `
SELECT id, appt_date, appt_time, customer_name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(service_name, '')
FROM appointments
WHERE id = $1;`

func (r *AppointmentRepo) GetByID(ctx context.Context, id string) (*appointment.Appointment, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		a    appointment.Appointment
		date *time.Time
	)
	err := r.db.execQueryer(ctx).QueryRow(ctx, qAppointmentByID, id).
		Scan(&a.ID, &date, &a.TimeOfDay, &a.Customer, &a.Email, &a.Phone, &a.Service)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notification.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if date != nil {
		a.Date = *date
	}
	return &a, nil
}

func (r *AppointmentRepo) Resolve(ctx context.Context, subjectID string) (*notification.Recipient, error) {
	a, err := r.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	rcpt := &notification.Recipient{
		SubjectID: a.ID,
		Name:      a.Customer,
		Email:     a.Email,
		Phone:     a.Phone,
		Service:   a.Service,
	}
	if at, err := a.StartsAt(); err == nil {
		rcpt.AppointmentAt = at
	}
	return rcpt, nil
}
