package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type folderChange struct {
	Folder string
	Files  int
}

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed early")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event[T]{}
	}
}

func requireClosed[T any](t *testing.T, ch <-chan Event[T]) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "subscription still open")
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestBroker_FansOutToEverySubscriber(t *testing.T) {
	b := NewBroker[folderChange]()
	defer b.Close()

	subs := []<-chan Event[folderChange]{
		b.Subscribe(context.Background()),
		b.Subscribe(context.Background()),
	}
	require.Equal(t, 2, b.SubscriberCount())

	b.Publish(UpdatedEvent, folderChange{Folder: "/data/cvrs", Files: 12})

	for _, ch := range subs {
		ev := receive(t, ch)
		require.Equal(t, UpdatedEvent, ev.Type)
		require.Equal(t, "/data/cvrs", ev.Payload.Folder)
		require.Equal(t, 12, ev.Payload.Files)
		require.False(t, ev.Timestamp.IsZero())
	}
}

func TestBroker_UnsubscribesOnCancel(t *testing.T) {
	b := NewBroker[string]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	requireClosed(t, ch)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestBroker_FullSubscriberMissesEvents(t *testing.T) {
	b := NewBrokerWithBuffer[string](1)
	defer b.Close()
	ch := b.Subscribe(context.Background())

	published := make(chan struct{})
	go func() {
		b.Publish(CreatedEvent, "first")
		b.Publish(CreatedEvent, "second")
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	require.Equal(t, "first", receive(t, ch).Payload)
	require.Empty(t, ch)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker[string]()
	ch := b.Subscribe(context.Background())

	b.Close()
	b.Close()

	requireClosed(t, ch)
	require.Zero(t, b.SubscriberCount())
	requireClosed(t, b.Subscribe(context.Background()))
	require.NotPanics(t, func() { b.Publish(DeletedEvent, "late") })
}
