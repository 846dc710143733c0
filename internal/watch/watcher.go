// Package watch re-triggers work when an artifact file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mender/internal/logging"
)

// FileWatcher calls OnChange after path settles following a write.
// The parent directory is watched so editors that save by rename are seen.
type FileWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	debounceDur time.Duration
	pending     time.Time
	onChange    func(ctx context.Context, path string)

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	Events    int
	Triggered int
	Errors    int
	LastEvent time.Time
}

// New creates a watcher for path. debounce <= 0 uses 300ms.
func New(path string, debounce time.Duration, onChange func(ctx context.Context, path string)) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileWatcher{
		watcher:     w,
		path:        abs,
		debounceDur: debounce,
		onChange:    onChange,
	}, nil
}

// Run blocks until ctx ends, then closes the watcher.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.watcher.Close()

	ticker := time.NewTicker(fw.debounceDur / 3)
	defer ticker.Stop()

	logging.Runner("watching %s", fw.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.mu.Lock()
			fw.stats.Errors++
			fw.mu.Unlock()
			logging.RunnerWarn("watcher error: %v", err)

		case <-ticker.C:
			fw.fireIfSettled(ctx)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != fw.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.stats.Events++
	fw.stats.LastEvent = time.Now()
	fw.pending = time.Now()
	logging.RunnerDebug("watch event: %s %s", event.Op, event.Name)
}

func (fw *FileWatcher) fireIfSettled(ctx context.Context) {
	fw.mu.Lock()
	if fw.pending.IsZero() || time.Since(fw.pending) < fw.debounceDur {
		fw.mu.Unlock()
		return
	}
	fw.pending = time.Time{}
	fw.stats.Triggered++
	fw.mu.Unlock()

	fw.onChange(ctx, fw.path)
}

// Stats returns a copy of the watcher's counters.
func (fw *FileWatcher) Stats() Stats {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.stats
}
