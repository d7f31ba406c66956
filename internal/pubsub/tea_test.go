package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenCmd(t *testing.T) {
	t.Run("delivers the next event as a message", func(t *testing.T) {
		b := NewBroker[string]()
		defer b.Close()
		ch := b.Subscribe(context.Background())
		b.Publish(CreatedEvent, "INFO [proc] spawned")

		msg := ListenCmd(context.Background(), ch)()
		ev, ok := msg.(Event[string])
		require.True(t, ok)
		require.Equal(t, "INFO [proc] spawned", ev.Payload)
	})

	t.Run("nil once the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.Nil(t, ListenCmd(ctx, make(chan Event[string]))())
	})

	t.Run("nil once the channel is closed", func(t *testing.T) {
		ch := make(chan Event[string])
		close(ch)
		require.Nil(t, ListenCmd(context.Background(), ch)())
	})
}

func TestContinuousListener_KeepsOrder(t *testing.T) {
	b := NewBroker[folderChange]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewContinuousListener(ctx, b)

	for i := 1; i <= 3; i++ {
		b.Publish(UpdatedEvent, folderChange{Folder: "/data/cvrs", Files: i})
	}
	for want := 1; want <= 3; want++ {
		ev, ok := l.Listen()().(Event[folderChange])
		require.True(t, ok)
		require.Equal(t, want, ev.Payload.Files)
	}

	cancel()
	require.Nil(t, l.Listen()())
}
