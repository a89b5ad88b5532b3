package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable home of notifications. Every mutation is scoped by primary key
// or by a status/send_at predicate.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)

	FindDue(ctx context.Context, limit int) ([]*Notification, error)
	FindStaleClaims(ctx context.Context, timeout time.Duration) ([]*Notification, error)
	FindFailed(ctx context.Context, limit int) ([]*Notification, error)

	// ClaimBatch leases the listed notifications that are still PENDING and returns the
	// ids it actually leased. Rows that changed since they were selected are skipped.
	ClaimBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	// ConfirmSent and MarkFailed only apply to a leased notification; anything else
	// reports ErrNotFound, except that confirming an already confirmed send is a no-op.
	ConfirmSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ResetToPending(ctx context.Context, id uuid.UUID) error
	Requeue(ctx context.Context, id uuid.UUID, sendAt time.Time) error
	CancelPendingForSubject(ctx context.Context, subjectID, reason string) (int, error)

	Statistics(ctx context.Context) (*Statistics, error)
}

// Transactor runs fn inside a single store transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type RecipientResolver interface {
	Resolve(ctx context.Context, subjectID string) (*Recipient, error)
}

// Channel delivers rendered messages for one channel type.
type Channel interface {
	Render(ctx context.Context, n *Notification, r *Recipient) (Message, error)
	Send(ctx context.Context, m Message) error
}

type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, o Outcome) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
