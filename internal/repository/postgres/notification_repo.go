package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

var _ notification.Store = (*NotificationRepo)(nil)

type NotificationRepo struct {
	db  *DB
	now func() time.Time
}

func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const notifCols = `id, subject_id, channel_type, status, send_at, sent_at, claimed_at, error_message, retry_count, created_at, updated_at`

const (
	qNotifInsert = `
INSERT INTO notifications (id, subject_id, channel_type, status, send_at, retry_count)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at;`

	qNotifGet = `
SELECT ` + notifCols + `
FROM notifications
WHERE id = $1;`

	qNotifFindDue = `
SELECT ` + notifCols + `
FROM notifications
WHERE status = 'PENDING' AND send_at <= now()
ORDER BY send_at
LIMIT $1;`

	qNotifFindStale = `
SELECT ` + notifCols + `
FROM notifications
WHERE status = $1
  AND claimed_at IS NOT NULL
  AND claimed_at < now() - $2::interval
ORDER BY claimed_at;`

	qNotifFindFailed = `
SELECT ` + notifCols + `
FROM notifications
WHERE status = 'FAILED'
ORDER BY updated_at
LIMIT $1;`

	qNotifClaim = `
UPDATE notifications
SET status = $2, sent_at = now(), claimed_at = now(), updated_at = now()
WHERE id = ANY($1::uuid[]) AND status = 'PENDING'
RETURNING id;`

	qNotifConfirm = `
UPDATE notifications
SET status = 'SENT', sent_at = now(), claimed_at = NULL, error_message = NULL, updated_at = now()
WHERE id = $1 AND claimed_at IS NOT NULL;`

	qNotifMarkFailed = `
UPDATE notifications
SET status = 'FAILED', error_message = $2, retry_count = retry_count + 1,
    sent_at = NULL, claimed_at = NULL, updated_at = now()
WHERE id = $1 AND claimed_at IS NOT NULL;`

	qNotifReleaseClaim = `
UPDATE notifications
SET status = 'PENDING', sent_at = NULL, claimed_at = NULL, updated_at = now()
WHERE id = $1 AND status = $2 AND claimed_at IS NOT NULL;`

	qNotifRequeue = `
UPDATE notifications
SET status = 'PENDING', send_at = $2, sent_at = NULL, claimed_at = NULL, error_message = NULL, updated_at = now()
WHERE id = $1;`

	qNotifCancelForSubject = `
UPDATE notifications
SET status = 'FAILED', error_message = $2, updated_at = now()
WHERE subject_id = $1 AND status = 'PENDING';`

	qNotifStats = `
SELECT count(*),
       count(*) FILTER (WHERE status = 'PENDING'),
       count(*) FILTER (WHERE status = 'SENT'),
       count(*) FILTER (WHERE status = 'FAILED'),
       count(*) FILTER (WHERE status = 'PENDING' AND send_at >= $1 AND send_at < $2),
       count(*) FILTER (WHERE status = 'PENDING' AND send_at >= $1 AND send_at < $3)
FROM notifications;`

	qNotifStatsByChannel = `
SELECT channel_type, count(*)
FROM notifications
GROUP BY channel_type;`
)

func scanNotification(row pgx.Row, n *notification.Notification) error {
	var (
		channel string
		status  string
	)
	if err := row.Scan(
		&n.ID,
		&n.SubjectID,
		&channel,
		&status,
		&n.SendAt,
		&n.SentAt,
		&n.ClaimedAt,
		&n.ErrorMessage,
		&n.RetryCount,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.ErrNotFound
		}
		return fmt.Errorf("scan notification: %w", err)
	}
	n.ChannelType = notification.ChannelType(channel)
	n.Status = notification.Status(status)
	return nil
}

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = notification.StatusPending
	}

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qNotifInsert,
		n.ID, n.SubjectID, string(n.ChannelType), string(n.Status), n.SendAt, n.RetryCount,
	).Scan(&n.CreatedAt, &n.UpdatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) Get(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	if err := scanNotification(r.db.execQueryer(ctx).QueryRow(ctx, qNotifGet, id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) FindDue(ctx context.Context, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, "find due", qNotifFindDue, limit)
}

func (r *NotificationRepo) FindStaleClaims(ctx context.Context, timeout time.Duration) ([]*notification.Notification, error) {
	return r.list(ctx, "find stale claims", qNotifFindStale, string(notification.StatusClaimed), intervalArg(timeout))
}

func (r *NotificationRepo) FindFailed(ctx context.Context, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, "find failed", qNotifFindFailed, limit)
}

func (r *NotificationRepo) list(ctx context.Context, op, q string, args ...any) ([]*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return out, nil
}

// ClaimBatch leases the rows of ids that are still PENDING and returns their ids.
func (r *NotificationRepo) ClaimBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qNotifClaim, uuidStrings(ids), string(notification.StatusClaimed))
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	claimed := make([]uuid.UUID, 0, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claimed id: %w", err)
		}
		claimed = append(claimed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim batch rows: %w", err)
	}
	return claimed, nil
}

// ConfirmSent and MarkFailed settle a live lease; a row nobody holds reports ErrNotFound.
// A second ConfirmSent of a confirmed row is a no-op.
func (r *NotificationRepo) ConfirmSent(ctx context.Context, id uuid.UUID) error {
	err := r.updateOne(ctx, "confirm sent", qNotifConfirm, id)
	if !errors.Is(err, notification.ErrNotFound) {
		return err
	}
	n, getErr := r.Get(ctx, id)
	if getErr == nil && n.Status == notification.StatusSent && n.ClaimedAt == nil {
		// already confirmed
		return nil
	}
	return err
}

func (r *NotificationRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.updateOne(ctx, "mark failed", qNotifMarkFailed, id, reason)
}

func (r *NotificationRepo) Requeue(ctx context.Context, id uuid.UUID, sendAt time.Time) error {
	return r.updateOne(ctx, "requeue", qNotifRequeue, id, sendAt)
}

func (r *NotificationRepo) updateOne(ctx context.Context, op, q string, id uuid.UUID, args ...any) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if cmd.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

// ResetToPending releases a lease. A row that is no longer claimed is left untouched.
func (r *NotificationRepo) ResetToPending(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qNotifReleaseClaim, id, string(notification.StatusClaimed)); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (r *NotificationRepo) CancelPendingForSubject(ctx context.Context, subjectID, reason string) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qNotifCancelForSubject, subjectID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel pending: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *NotificationRepo) Statistics(ctx context.Context) (*notification.Statistics, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	now := r.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	st := notification.Statistics{ByChannelType: map[notification.ChannelType]int{}}
	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qNotifStats, dayStart, dayStart.AddDate(0, 0, 1), dayStart.AddDate(0, 0, 7)).Scan(
		&st.Total, &st.Pending, &st.Sent, &st.Failed, &st.ScheduledToday, &st.ScheduledThisWeek,
	); err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}

	rows, err := eq.Query(ctx, qNotifStatsByChannel)
	if err != nil {
		return nil, fmt.Errorf("statistics by channel: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			channel string
			count   int
		)
		if err := rows.Scan(&channel, &count); err != nil {
			return nil, fmt.Errorf("scan channel stats: %w", err)
		}
		st.ByChannelType[notification.ChannelType(channel)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statistics rows: %w", err)
	}
	return &st, nil
}
