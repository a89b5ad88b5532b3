package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newPending(t *testing.T, s *Store, subject string, sendAt time.Time) *notification.Notification {
	t.Helper()
	n := &notification.Notification{
		SubjectID:   subject,
		ChannelType: notification.ChannelEmailReminder,
		SendAt:      sendAt,
	}
	require.NoError(t, s.Create(context.Background(), n))
	return n
}

func claim(t *testing.T, s *Store, ids ...uuid.UUID) {
	t.Helper()
	claimed, err := s.ClaimBatch(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, claimed, len(ids))
}

func TestStore_FindDueOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))

	late := newPending(t, s, "a", t0.Add(-time.Minute))
	early := newPending(t, s, "b", t0.Add(-time.Hour))
	newPending(t, s, "c", t0.Add(time.Hour))

	due, err := s.FindDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, late.ID, due[1].ID)

	due, err = s.FindDue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, early.ID, due[0].ID)
}

func TestStore_ClaimSetsLease(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))
	n := newPending(t, s, "a", t0)

	claimed, err := s.ClaimBatch(ctx, []uuid.UUID{n.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{n.ID}, claimed)

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	require.NotNil(t, got.ClaimedAt)
	assert.Equal(t, t0, *got.SentAt)

	due, err := s.FindDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStore_ClaimSkipsRowsThatLeftPending(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))
	keep := newPending(t, s, "a", t0)
	gone := newPending(t, s, "b", t0)

	_, err := s.CancelPendingForSubject(ctx, "b", notification.ReasonAppointmentCancelled)
	require.NoError(t, err)

	claimed, err := s.ClaimBatch(ctx, []uuid.UUID{keep.ID, gone.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{keep.ID}, claimed)

	got, err := s.Get(ctx, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, got.Status)
	assert.Nil(t, got.ClaimedAt)
}

func TestStore_ConfirmSentTwice(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(t0)
	s := NewStore(clock)
	n := newPending(t, s, "a", t0)
	claim(t, s, n.ID)

	require.NoError(t, s.ConfirmSent(ctx, n.ID))
	clock.Advance(time.Minute)
	require.NoError(t, s.ConfirmSent(ctx, n.ID))

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
	assert.Nil(t, got.ClaimedAt)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, t0, *got.SentAt)

	assert.ErrorIs(t, s.ConfirmSent(ctx, uuid.New()), notification.ErrNotFound)
}

func TestStore_SettlingUnleasedRowKeepsIt(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))
	n := newPending(t, s, "a", t0)
	_, err := s.CancelPendingForSubject(ctx, "a", notification.ReasonAppointmentCancelled)
	require.NoError(t, err)

	assert.ErrorIs(t, s.ConfirmSent(ctx, n.ID), notification.ErrNotFound)
	assert.ErrorIs(t, s.MarkFailed(ctx, n.ID, "smtp down"), notification.ErrNotFound)

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, notification.ReasonAppointmentCancelled, *got.ErrorMessage)
}

func TestStore_MarkFailed(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))
	n := newPending(t, s, "a", t0)
	claim(t, s, n.ID)

	require.NoError(t, s.MarkFailed(ctx, n.ID, "smtp down"))

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "smtp down", *got.ErrorMessage)
	assert.Nil(t, got.SentAt)
}

func TestStore_StaleClaims(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(t0)
	s := NewStore(clock)

	stale := newPending(t, s, "a", t0)
	confirmed := newPending(t, s, "b", t0)
	claim(t, s, stale.ID, confirmed.ID)
	require.NoError(t, s.ConfirmSent(ctx, confirmed.ID))

	clock.Advance(15 * time.Minute)

	found, err := s.FindStaleClaims(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)

	require.NoError(t, s.ResetToPending(ctx, stale.ID))
	got, err := s.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, got.Status)
	assert.Nil(t, got.SentAt)

	// a confirmed send is not a lease
	require.NoError(t, s.ResetToPending(ctx, confirmed.ID))
	got, err = s.Get(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
}

func TestStore_CancelPendingForSubject(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))
	n := newPending(t, s, "appt-1", t0.Add(time.Hour))
	newPending(t, s, "appt-2", t0.Add(time.Hour))

	affected, err := s.CancelPendingForSubject(ctx, "appt-1", "appointment cancelled")
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	affected, err = s.CancelPendingForSubject(ctx, "appt-1", "appointment cancelled")
	require.NoError(t, err)
	assert.Equal(t, 0, affected)

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestStore_Statistics(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))

	newPending(t, s, "today", t0.Add(3*time.Hour))
	newPending(t, s, "week", t0.Add(72*time.Hour))
	newPending(t, s, "later", t0.Add(30*24*time.Hour))
	sms := &notification.Notification{
		SubjectID:   "sms",
		ChannelType: notification.ChannelSMSReminder,
		Status:      notification.StatusFailed,
		SendAt:      t0,
	}
	require.NoError(t, s.Create(ctx, sms))

	st, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 3, st.Pending)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 0, st.Sent)
	assert.Equal(t, 1, st.ScheduledToday)
	assert.Equal(t, 2, st.ScheduledThisWeek)
	assert.Equal(t, 3, st.ByChannelType[notification.ChannelEmailReminder])
	assert.Equal(t, 1, st.ByChannelType[notification.ChannelSMSReminder])
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))
	n := newPending(t, s, "appt-1", t0.Add(time.Hour))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.CancelPendingForSubject(ctx, "appt-1", "x")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, got.Status)
}

func TestStore_WithTxRollbackKeepsOutsideWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))
	cancelled := newPending(t, s, "appt-1", t0.Add(time.Hour))
	inFlight := newPending(t, s, "appt-2", t0)
	claim(t, s, inFlight.ID)

	var created *notification.Notification
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		_, err := s.CancelPendingForSubject(txCtx, "appt-1", "x")
		require.NoError(t, err)
		created = &notification.Notification{SubjectID: "appt-1", ChannelType: notification.ChannelEmailReminder, SendAt: t0}
		require.NoError(t, s.Create(txCtx, created))

		// a dispatch run settling its lease while the transaction is open
		require.NoError(t, s.MarkFailed(ctx, inFlight.ID, "smtp down"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, got.Status)

	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, notification.ErrNotFound)

	got, err = s.Get(ctx, inFlight.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestStore_WithTxNested(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewManualClock(t0))
	n := newPending(t, s, "appt-1", t0.Add(time.Hour))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			_, err := s.CancelPendingForSubject(ctx, "appt-1", "x")
			require.NoError(t, err)
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, got.Status)
}

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	d.Put(notification.Recipient{SubjectID: "a", Email: "a@example.com"})

	r, err := d.Resolve(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", r.Email)

	_, err = d.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, notification.ErrRecipientNotFound)
}
