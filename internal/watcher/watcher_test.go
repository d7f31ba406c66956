package watcher_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cvrexport/internal/pubsub"
	"github.com/zjrosen/cvrexport/internal/watcher"
)

func isCVR(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "cvrexport")
}

func startWatcher(t *testing.T, dir string) <-chan pubsub.Event[watcher.Change] {
	t.Helper()
	w, err := watcher.New(watcher.Config{
		Folder:      dir,
		DebounceDur: 50 * time.Millisecond,
		Match:       isCVR,
	})
	require.NoError(t, err, "failed to create watcher")
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	events := w.Broker().Subscribe(ctx)

	require.NoError(t, w.Start(), "failed to start watcher")
	return events
}

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CvrExport_1.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	events := startWatcher(t, dir)

	// Rapid writes should coalesce into single notification
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`{"n":%d}`, i)), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case ev := <-events:
		assert.Equal(t, pubsub.UpdatedEvent, ev.Type)
		assert.Equal(t, []string{"CvrExport_1.json"}, ev.Payload.Names)
		assert.Equal(t, filepath.Clean(dir), ev.Payload.Folder)
	case <-time.After(time.Second):
		t.Fatal("expected notification but got timeout")
	}

	select {
	case <-events:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_CollectsNamesInBurst(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "CvrExport_2.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CvrExport_1.json"), []byte("{}"), 0644))

	select {
	case ev := <-events:
		assert.Equal(t, []string{"CvrExport_1.json", "CvrExport_2.json"}, ev.Payload.Names)
	case <-time.After(time.Second):
		t.Fatal("expected notification but got timeout")
	}
}

func TestWatcher_IgnoresUnmatchedFiles(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("initial"), 0644))

	events := startWatcher(t, dir)
	require.NoError(t, os.WriteFile(other, []byte("other content"), 0644))

	select {
	case <-events:
		t.Fatal("should not notify for unrelated files")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_ReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CvrExport_9.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	events := startWatcher(t, dir)
	require.NoError(t, os.Remove(path))

	select {
	case ev := <-events:
		assert.Equal(t, []string{"CvrExport_9.json"}, ev.Payload.Names)
	case <-time.After(time.Second):
		t.Fatal("expected notification for removal")
	}
}

func TestWatcher_StopClosesSubscriptions(t *testing.T) {
	dir := t.TempDir()
	w, err := watcher.New(watcher.DefaultConfig(dir))
	require.NoError(t, err)
	events := w.Broker().Subscribe(context.Background())
	require.NoError(t, w.Start())

	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Stop(), "Stop returned error")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}

	_, ok := <-events
	assert.False(t, ok, "subscription closed on stop")
}

func TestWatcher_StartMissingFolder(t *testing.T) {
	w, err := watcher.New(watcher.DefaultConfig(filepath.Join(t.TempDir(), "gone")))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	require.Error(t, w.Start())
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("/data/cvrs")

	assert.Equal(t, "/data/cvrs", cfg.Folder)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceDur)
	assert.Nil(t, cfg.Match)
}
