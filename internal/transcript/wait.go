package transcript

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Defaults for WaitStable.
const (
	DefaultQuietInterval = 100 * time.Millisecond
	DefaultMaxWait       = 2 * time.Second
)

// WaitStable blocks until path has gone one interval without a write, maxWait
// has elapsed, or ctx is done. A missing file returns immediately. When the
// directory cannot be watched it falls back to comparing file sizes.
func WaitStable(ctx context.Context, path string, interval, maxWait time.Duration) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		pollStable(ctx, path, interval, deadline.C)
		return
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		pollStable(ctx, path, interval, deadline.C)
		return
	}

	quiet := time.NewTimer(interval)
	defer quiet.Stop()
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-quiet.C:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(interval)
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func pollStable(ctx context.Context, path string, interval time.Duration, deadline <-chan time.Time) {
	last := size(path)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-tick.C:
			n := size(path)
			if n == last {
				return
			}
			last = n
		}
	}
}

func size(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return fi.Size()
}
