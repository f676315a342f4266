package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMemoryBus_FansOutToAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	ev := Event{Type: TypePinSuccess, FileID: "f1", OwnerID: "o1", CID: "bafy"}
	require.NoError(t, bus.Publish(context.Background(), ev))

	got1 := recv(t, ch1)
	got2 := recv(t, ch2)
	assert.Equal(t, ev, got1)
	assert.Equal(t, ev, got2)
}

func TestMemoryBus_NoReplayForLateSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	require.NoError(t, bus.Publish(context.Background(), Event{Type: TypePinStart, FileID: "f1"}))

	ch, cancel := bus.Subscribe()
	defer cancel()

	select {
	case ev := <-ch:
		t.Fatalf("late subscriber must not see past events, got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_CancelClosesChannel(t *testing.T) {
	bus := NewMemoryBus()

	ch, cancel := bus.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Cancelling twice must not panic.
	cancel()

	// Publishing after cancel must not reach the closed channel.
	require.NoError(t, bus.Publish(context.Background(), Event{Type: TypePinStart}))
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewMemoryBus()

	slow, cancelSlow := bus.Subscribe()
	defer cancelSlow()
	_ = slow // never read; its buffer fills and further sends are dropped

	fast, cancelFast := bus.Subscribe()
	defer cancelFast()

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{Type: TypeVerifyStart, JobID: "j"}))
	}

	// The fast subscriber still holds a full buffer it can drain.
	for i := 0; i < subscriberBuffer; i++ {
		recv(t, fast)
	}
}

func TestDecode(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"verify:success","fileId":"f1","ownerId":"o1","verified":true,"computedSha256":"abc"}`))
		require.NoError(t, err)
		assert.Equal(t, TypeVerifySuccess, ev.Type)
		assert.Equal(t, "f1", ev.FileID)
		require.NotNil(t, ev.Verified)
		assert.True(t, *ev.Verified)
		assert.Equal(t, "abc", ev.ComputedSHA256)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := Decode([]byte(`{not json`))
		require.Error(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := Decode([]byte(`{"fileId":"f1"}`))
		require.Error(t, err)
	})
}
