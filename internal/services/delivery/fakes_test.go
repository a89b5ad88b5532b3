package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeChannel delivers everything except messages addressed to failFor.
type fakeChannel struct {
	mu      sync.Mutex
	failFor map[string]error
	sent    []notification.Message
}

func (c *fakeChannel) Render(_ context.Context, n *notification.Notification, r *notification.Recipient) (notification.Message, error) {
	return notification.Message{Channel: n.ChannelType, To: Address(n.ChannelType, r), Body: "hi " + r.Name}, nil
}

func (c *fakeChannel) Send(_ context.Context, m notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failFor[m.To]; ok {
		return err
	}
	c.sent = append(c.sent, m)
	return nil
}

type channelMap map[notification.ChannelType]notification.Channel

func (m channelMap) Lookup(kind notification.ChannelType) (notification.Channel, error) {
	ch, ok := m[kind]
	if !ok {
		return nil, notification.ErrChannelNotImplemented
	}
	return ch, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	outcomes []notification.Outcome
	err      error
}

func (p *recordingPublisher) PublishOutcome(_ context.Context, o notification.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return p.err
}

// countingStore counts every call that reaches the underlying store.
type countingStore struct {
	*memory.Store
	mu    sync.Mutex
	calls map[string]int
}

func newCountingStore(s *memory.Store) *countingStore {
	return &countingStore{Store: s, calls: map[string]int{}}
}

func (c *countingStore) hit(name string) {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingStore) FindDue(ctx context.Context, limit int) ([]*notification.Notification, error) {
	c.hit("FindDue")
	return c.Store.FindDue(ctx, limit)
}

func (c *countingStore) ClaimBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	c.hit("ClaimBatch")
	return c.Store.ClaimBatch(ctx, ids)
}

func (c *countingStore) ConfirmSent(ctx context.Context, id uuid.UUID) error {
	c.hit("ConfirmSent")
	return c.Store.ConfirmSent(ctx, id)
}

func (c *countingStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	c.hit("MarkFailed")
	return c.Store.MarkFailed(ctx, id, reason)
}

type brokenStore struct {
	*memory.Store
	findErr  error
	claimErr error
}

func (b brokenStore) FindDue(ctx context.Context, limit int) ([]*notification.Notification, error) {
	if b.findErr != nil {
		return nil, b.findErr
	}
	return b.Store.FindDue(ctx, limit)
}

func (b brokenStore) ClaimBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if b.claimErr != nil {
		return nil, b.claimErr
	}
	return b.Store.ClaimBatch(ctx, ids)
}

// racingStore runs beforeClaim between the due query and the claim, the way a
// concurrent cancellation would land.
type racingStore struct {
	*memory.Store
	beforeClaim func()
}

func (r racingStore) ClaimBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	r.beforeClaim()
	return r.Store.ClaimBatch(ctx, ids)
}

var errSMTP = errors.New("smtp: 554 transaction failed")

type fixture struct {
	clock *memory.ManualClock
	store *memory.Store
	dir   *memory.Directory
	email *fakeChannel
	pub   *recordingPublisher
}

func newFixture() *fixture {
	clock := memory.NewManualClock(t0)
	return &fixture{
		clock: clock,
		store: memory.NewStore(clock),
		dir:   memory.NewDirectory(),
		email: &fakeChannel{failFor: map[string]error{}},
		pub:   &recordingPublisher{},
	}
}

func (f *fixture) dispatcher(store notification.Store) *Dispatcher {
	return NewDispatcher(store, f.dir, channelMap{notification.ChannelEmailReminder: f.email},
		DispatcherConfig{BatchSize: 50, Clock: f.clock, Outcomes: f.pub}, nil)
}

func (f *fixture) due(t *testing.T, subject, email string, sendAt time.Time) *notification.Notification {
	t.Helper()
	f.dir.Put(notification.Recipient{SubjectID: subject, Name: subject, Email: email})
	n := &notification.Notification{
		SubjectID:   subject,
		ChannelType: notification.ChannelEmailReminder,
		SendAt:      sendAt,
	}
	require.NoError(t, f.store.Create(context.Background(), n))
	return n
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *notification.Notification {
	t.Helper()
	n, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return n
}

func (f *fixture) claim(t *testing.T, ids ...uuid.UUID) {
	t.Helper()
	claimed, err := f.store.ClaimBatch(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, claimed, len(ids))
}
