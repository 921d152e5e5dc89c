// Package reload lets a running process pick up configuration changes,
// pairing a polling file watcher with a handler that validates and applies
// the new config.
package reload

import (
	"context"
	"os"
	"sync"
	"time"
)

const defaultInterval = 5 * time.Second

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// ConfigPath names the file to watch.
	ConfigPath string

	// PollInterval sets how often the file is stat'ed. Zero means the
	// 5 second default.
	PollInterval time.Duration
}

func (c WatcherConfig) interval() time.Duration {
	if c.PollInterval <= 0 {
		return defaultInterval
	}
	return c.PollInterval
}

// Event is a change notification for the watched file.
type Event struct {
	ConfigPath string
	ModTime    time.Time
}

// fileStamp identifies one observed state of the file. Comparing both
// fields catches a rewrite that lands within the modtime granularity.
type fileStamp struct {
	modTime time.Time
	size    int64
}

// Watcher polls a configuration file and publishes an Event whenever its
// stamp changes.
type Watcher struct {
	cfg    WatcherConfig
	events chan Event

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	stopped   chan struct{}
}

// NewWatcher returns an unstarted watcher over cfg.ConfigPath.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stopped: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

// Start launches the poll goroutine. Later calls are no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.poll(ctx)
	})
}

// Events returns the change notification channel. It holds one pending
// event; changes observed while it is full are coalesced into it.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop halts polling and waits for the goroutine to exit. Safe to call
// repeatedly. Calling Stop before Start consumes the start slot, so a
// later Start will not spawn a goroutine.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.startOnce.Do(func() {
		close(w.stopped)
	})
	<-w.stopped
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)
	tick := time.NewTicker(w.cfg.interval())
	defer tick.Stop()

	baseline := w.stamp()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			baseline = w.compare(baseline)
		}
	}
}

// compare stats the file, publishes an event when it no longer matches
// last, and returns the stamp future polls measure against.
func (w *Watcher) compare(last fileStamp) fileStamp {
	current := w.stamp()
	if current.modTime.IsZero() {
		// Missing or unreadable. Keep the old baseline so the next
		// successful stat still compares against real state.
		return last
	}
	if current == last {
		return last
	}

	select {
	case w.events <- Event{ConfigPath: w.cfg.ConfigPath, ModTime: current.modTime}:
	default:
		// A pending event already covers this change.
	}
	return current
}

func (w *Watcher) stamp() fileStamp {
	info, err := os.Stat(w.cfg.ConfigPath)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}
