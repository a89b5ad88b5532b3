package delivery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

func TestHealthReporter_Alarm(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	msg := "boom"
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.Create(ctx, &notification.Notification{
			SubjectID: "s", ChannelType: notification.ChannelEmailReminder,
			Status: notification.StatusFailed, ErrorMessage: &msg, SendAt: t0,
		}))
	}

	core, logs := observer.New(zap.WarnLevel)
	st, alarm, err := NewHealthReporter(f.store, 2, zap.New(core)).Report(ctx)
	require.NoError(t, err)
	assert.True(t, alarm)
	assert.Equal(t, 3, st.Failed)
	assert.Equal(t, 1, logs.FilterMessage("failed notifications above threshold").Len())

	_, alarm, err = NewHealthReporter(f.store, 3, zap.NewNop()).Report(ctx)
	require.NoError(t, err)
	assert.False(t, alarm)
}
