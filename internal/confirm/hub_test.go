package confirm

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAwaitResolvedApproved(t *testing.T) {
	hub := NewHub(testLogger())

	got := make(chan bool, 1)
	go func() {
		approved, err := hub.Await(context.Background(), Request{ID: "r1", Title: "Create event"})
		require.NoError(t, err)
		got <- approved
	}()

	require.Eventually(t, func() bool { return len(hub.Pending()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, hub.Resolve("r1", true))

	select {
	case approved := <-got:
		assert.True(t, approved)
	case <-time.After(time.Second):
		t.Fatal("await did not settle")
	}
	assert.Empty(t, hub.Pending())
}

func TestResolveUnknownID(t *testing.T) {
	hub := NewHub(testLogger())
	assert.Error(t, hub.Resolve("nope", true))
}

func TestResolveSettlesExactlyOnce(t *testing.T) {
	hub := NewHub(testLogger())

	got := make(chan bool, 2)
	go func() {
		approved, err := hub.Await(context.Background(), Request{ID: "r1"})
		require.NoError(t, err)
		got <- approved
	}()

	require.Eventually(t, func() bool { return len(hub.Pending()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, hub.Resolve("r1", false))
	// A second resolution of the same id is an error, not a second settle.
	assert.Error(t, hub.Resolve("r1", true))

	assert.False(t, <-got)
	select {
	case <-got:
		t.Fatal("promise settled twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAwaitContextCancelled(t *testing.T) {
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	approved, err := hub.Await(ctx, Request{ID: "r1"})
	assert.False(t, approved)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, hub.Pending())
}

func TestSubscribeSeesLifecycle(t *testing.T) {
	hub := NewHub(testLogger())
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	go func() {
		_, _ = hub.Await(context.Background(), Request{ID: "r1", Service: "calendar"})
	}()

	ev := <-events
	assert.Equal(t, "pending", ev.Kind)
	assert.Equal(t, "r1", ev.Request.ID)

	require.NoError(t, hub.Resolve("r1", true))
	ev = <-events
	assert.Equal(t, "resolved", ev.Kind)
	assert.True(t, ev.Approved)
}
