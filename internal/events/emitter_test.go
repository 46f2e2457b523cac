package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitEventCallsAllHandlers(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())

	var seen []string
	boom := errors.New("boom")
	emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *ProgressEvent) error {
		seen = append(seen, "first")
		return boom
	}))
	emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *ProgressEvent) error {
		seen = append(seen, "second")
		return nil
	}))

	err := emitter.EmitEvent(context.Background(), NewProgressEvent("t1", "pending", 0, "", "", false))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestEmitEventWithoutListeners(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())
	assert.NoError(t, emitter.EmitEvent(context.Background(), NewProgressEvent("t1", "pending", 0, "", "", false)))
}

func TestSubscribeReceivesOnlyOwnTask(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())
	ch, cancel := emitter.Subscribe("t1")
	defer cancel()

	ctx := context.Background()
	require.NoError(t, emitter.EmitEvent(ctx, NewProgressEvent("t2", "running", 10, "", "", false)))
	require.NoError(t, emitter.EmitEvent(ctx, NewProgressEvent("t1", "running", 20, "fetch-image", "", false)))

	select {
	case e := <-ch:
		assert.Equal(t, "t1", e.TaskID)
		assert.Equal(t, 20, e.Progress)
	default:
		t.Fatal("expected an event for t1")
	}
	assert.Empty(t, ch)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())
	ch, cancel := emitter.Subscribe("t1")
	defer cancel()

	for i := 0; i < subscriberBuffer*3; i++ {
		require.NoError(t, emitter.EmitEvent(context.Background(), NewProgressEvent("t1", "running", i, "", "", false)))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestSlowSubscriberStillReceivesTerminalEvent(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())
	ch, cancel := emitter.Subscribe("t1")
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		require.NoError(t, emitter.EmitEvent(context.Background(), NewProgressEvent("t1", "running", i, "", "", false)))
	}
	require.NoError(t, emitter.EmitEvent(context.Background(), NewProgressEvent("t1", "completed", 100, "", "", true)))
	require.Len(t, ch, subscriberBuffer)

	var last *ProgressEvent
	for len(ch) > 0 {
		last = <-ch
	}
	require.NotNil(t, last)
	assert.True(t, last.Terminal)
	assert.Equal(t, "completed", last.State)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())
	ch, cancel := emitter.Subscribe("t1")
	assert.Equal(t, 1, emitter.SubscriberCount("t1"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, emitter.SubscriberCount("t1"))
	assert.NoError(t, emitter.EmitEvent(context.Background(), NewProgressEvent("t1", "running", 1, "", "", false)))
}
