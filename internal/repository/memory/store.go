// Package memory holds in-process implementations of the notification ports.
// They back the service tests and the store.driver=memory mode for local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

var (
	_ notification.Store      = (*Store)(nil)
	_ notification.Transactor = (*Store)(nil)
)

type Store struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	clock notification.Clock
	rows  map[uuid.UUID]*notification.Notification
}

func NewStore(clock notification.Clock) *Store {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &Store{clock: clock, rows: make(map[uuid.UUID]*notification.Notification)}
}

func clone(n *notification.Notification) *notification.Notification {
	cp := *n
	if n.SentAt != nil {
		t := *n.SentAt
		cp.SentAt = &t
	}
	if n.ClaimedAt != nil {
		t := *n.ClaimedAt
		cp.ClaimedAt = &t
	}
	if n.ErrorMessage != nil {
		s := *n.ErrorMessage
		cp.ErrorMessage = &s
	}
	return &cp
}

func (s *Store) Create(ctx context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	s.touch(ctx, n.ID)
	if n.Status == "" {
		n.Status = notification.StatusPending
	}
	now := s.clock.Now()
	n.CreatedAt, n.UpdatedAt = now, now
	s.rows[n.ID] = clone(n)
	return nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return clone(n), nil
}

// selectSorted returns copies of matching rows ordered by key, at most limit of them
// when limit > 0.
func (s *Store) selectSorted(match func(*notification.Notification) bool, key func(*notification.Notification) time.Time, limit int) []*notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*notification.Notification
	for _, n := range s.rows {
		if match(n) {
			out = append(out, clone(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]).Before(key(out[j])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) FindDue(_ context.Context, limit int) ([]*notification.Notification, error) {
	now := s.clock.Now()
	return s.selectSorted(
		func(n *notification.Notification) bool { return n.Due(now) },
		func(n *notification.Notification) time.Time { return n.SendAt },
		limit,
	), nil
}

func (s *Store) FindStaleClaims(_ context.Context, timeout time.Duration) ([]*notification.Notification, error) {
	cutoff := s.clock.Now().Add(-timeout)
	return s.selectSorted(
		func(n *notification.Notification) bool {
			return n.Status == notification.StatusClaimed && n.ClaimedAt != nil && n.ClaimedAt.Before(cutoff)
		},
		func(n *notification.Notification) time.Time { return *n.ClaimedAt },
		0,
	), nil
}

func (s *Store) FindFailed(_ context.Context, limit int) ([]*notification.Notification, error) {
	return s.selectSorted(
		func(n *notification.Notification) bool { return n.Status == notification.StatusFailed },
		func(n *notification.Notification) time.Time { return n.UpdatedAt },
		limit,
	), nil
}

func (s *Store) ClaimBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var claimed []uuid.UUID
	for _, id := range ids {
		n, ok := s.rows[id]
		if !ok || n.Status != notification.StatusPending {
			continue
		}
		s.touch(ctx, id)
		n.Status = notification.StatusClaimed
		n.SentAt = ptr(now)
		n.ClaimedAt = ptr(now)
		n.UpdatedAt = now
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func leased(n *notification.Notification) bool {
	return n.Status == notification.StatusClaimed && n.ClaimedAt != nil
}

// update applies fn to row id. With onlyLeased set, a row without a live lease
// reports ErrNotFound and stays as it is.
func (s *Store) update(ctx context.Context, id uuid.UUID, onlyLeased bool, fn func(n *notification.Notification, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok || (onlyLeased && !leased(n)) {
		return notification.ErrNotFound
	}
	s.touch(ctx, id)
	now := s.clock.Now()
	fn(n, now)
	n.UpdatedAt = now
	return nil
}

func (s *Store) ConfirmSent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	switch {
	case !ok:
		return notification.ErrNotFound
	case n.Status == notification.StatusSent && n.ClaimedAt == nil:
		// already confirmed
		return nil
	case !leased(n):
		return notification.ErrNotFound
	}
	s.touch(ctx, id)
	now := s.clock.Now()
	n.Status = notification.StatusSent
	n.SentAt = ptr(now)
	n.ClaimedAt = nil
	n.ErrorMessage = nil
	n.UpdatedAt = now
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.update(ctx, id, true, func(n *notification.Notification, _ time.Time) {
		n.Status = notification.StatusFailed
		n.ErrorMessage = ptr(reason)
		n.RetryCount++
		n.SentAt = nil
		n.ClaimedAt = nil
	})
}

func (s *Store) ResetToPending(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok || !leased(n) {
		return nil
	}
	s.touch(ctx, id)
	n.Status = notification.StatusPending
	n.SentAt = nil
	n.ClaimedAt = nil
	n.UpdatedAt = s.clock.Now()
	return nil
}

func (s *Store) Requeue(ctx context.Context, id uuid.UUID, sendAt time.Time) error {
	return s.update(ctx, id, false, func(n *notification.Notification, _ time.Time) {
		n.Status = notification.StatusPending
		n.SendAt = sendAt
		n.SentAt = nil
		n.ClaimedAt = nil
		n.ErrorMessage = nil
	})
}

func (s *Store) CancelPendingForSubject(ctx context.Context, subjectID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	affected := 0
	for _, n := range s.rows {
		if n.SubjectID != subjectID || n.Status != notification.StatusPending {
			continue
		}
		s.touch(ctx, n.ID)
		n.Status = notification.StatusFailed
		n.ErrorMessage = ptr(reason)
		n.UpdatedAt = now
		affected++
	}
	return affected, nil
}

func (s *Store) Statistics(_ context.Context) (*notification.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	weekEnd := dayStart.AddDate(0, 0, 7)

	st := &notification.Statistics{ByChannelType: map[notification.ChannelType]int{}}
	for _, n := range s.rows {
		st.Total++
		st.ByChannelType[n.ChannelType]++
		switch n.Status {
		case notification.StatusPending:
			st.Pending++
			if !n.SendAt.Before(dayStart) && n.SendAt.Before(dayEnd) {
				st.ScheduledToday++
			}
			if !n.SendAt.Before(dayStart) && n.SendAt.Before(weekEnd) {
				st.ScheduledThisWeek++
			}
		case notification.StatusSent:
			st.Sent++
		case notification.StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

type txKey struct{}

// journal holds the pre-image of every row a transaction touched. A nil pre-image
// marks a row the transaction created.
type journal struct {
	before map[uuid.UUID]*notification.Notification
}

// touch records the current state of row id in the transaction carried by ctx, once.
// Callers hold s.mu.
func (s *Store) touch(ctx context.Context, id uuid.UUID) {
	j, ok := ctx.Value(txKey{}).(*journal)
	if !ok {
		return
	}
	if _, seen := j.before[id]; seen {
		return
	}
	if n, ok := s.rows[id]; ok {
		j.before[id] = clone(n)
		return
	}
	j.before[id] = nil
}

// WithTx serialises transactions. If fn fails, the rows fn touched are put back as
// they were; writes made outside the transaction are kept. A nested call joins the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{before: make(map[uuid.UUID]*notification.Notification)}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		s.mu.Lock()
		for id, prev := range j.before {
			if prev == nil {
				delete(s.rows, id)
				continue
			}
			s.rows[id] = prev
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
