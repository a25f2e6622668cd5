package audit_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "attestry/pkg/platform/audit"
	auditmemory "attestry/pkg/platform/audit/store/memory"
	"attestry/pkg/platform/audit/worker"
)

func TestEmitFillsDefaults(t *testing.T) {
	pub := audit.NewChannelPublisher(1)

	err := pub.Emit(context.Background(), audit.Event{Action: audit.ActionFeeCollected})
	require.NoError(t, err)

	event := <-pub.Inbox()
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, audit.ActionFeeCollected, event.Action)
}

func TestEmitHonorsContextWhenFull(t *testing.T) {
	pub := audit.NewChannelPublisher(1)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionFeeCollected}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pub.Emit(ctx, audit.Event{Action: audit.ActionLevyCollected})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPersistsEvents(t *testing.T) {
	pub := audit.NewChannelPublisher(8)
	store := auditmemory.New()
	w := worker.NewWorker(store, pub.Inbox(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.ActionFeeCollected, Authority: "GAUTH", Amount: 100}))
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.ActionLevyCollected, Authority: "GAUTH", Amount: 10}))
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.ActionFeeCollected, Authority: "GOTHER", Amount: 100}))

	require.Eventually(t, func() bool {
		return len(store.All()) == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	events, err := store.ListByAuthority(context.Background(), "GAUTH")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
