// Package watcher reports debounced changes to the files in a CVR folder.
package watcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/cvrexport/internal/log"
	"github.com/zjrosen/cvrexport/internal/pubsub"
)

// Change describes a burst of file system events in the watched folder.
type Change struct {
	Folder string
	// Names are the base names touched during the burst, sorted.
	Names []string
}

// Watcher monitors a folder and publishes a Change once events settle.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	folder    string
	debounce  time.Duration
	match     func(name string) bool
	broker    *pubsub.Broker[Change]
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Folder      string
	DebounceDur time.Duration
	// Match filters base names; nil accepts every file.
	Match func(name string) bool
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(folder string) Config {
	return Config{
		Folder:      folder,
		DebounceDur: 250 * time.Millisecond,
	}
}

// New creates a new folder watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		folder:    filepath.Clean(cfg.Folder),
		debounce:  cfg.DebounceDur,
		match:     cfg.Match,
		broker:    pubsub.NewBroker[Change](),
		done:      make(chan struct{}),
	}, nil
}

// Folder returns the watched folder.
func (w *Watcher) Folder() string {
	return w.folder
}

// Broker returns the broker Change events are published on. Subscribe
// before calling Start to see every event.
func (w *Watcher) Broker() *pubsub.Broker[Change] {
	return w.broker
}

// Start begins watching the folder.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.folder); err != nil {
		return fmt.Errorf("watching directory %s: %w", w.folder, err)
	}
	log.Debug(log.CatWatcher, "Watching folder", "folder", w.folder, "debounce", w.debounce)

	go w.loop()
	return nil
}

// Stop terminates the watcher, closes the broker and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.fsWatcher.Close()
	w.broker.Close()
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer *time.Timer
		names = map[string]struct{}{}
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}
			names[filepath.Base(event.Name)] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if len(names) > 0 {
				w.publish(names)
				names = map[string]struct{}{}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "Watcher error", "folder", w.folder, "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) publish(names map[string]struct{}) {
	change := Change{Folder: w.folder, Names: make([]string, 0, len(names))}
	for n := range names {
		change.Names = append(change.Names, n)
	}
	sort.Strings(change.Names)
	log.Debug(log.CatWatcher, "Folder changed", "folder", w.folder, "files", len(change.Names))
	w.broker.Publish(pubsub.UpdatedEvent, change)
}

// isRelevantEvent checks if the event should trigger a refresh.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if filepath.Dir(event.Name) != w.folder {
		return false
	}
	return w.match == nil || w.match(filepath.Base(event.Name))
}
