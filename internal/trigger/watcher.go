// Package trigger fires out-of-cycle runs when marker files appear in a
// watched directory. Dropping a file named "refresh" requests an
// immediate run; "reset" clears persisted state before running.
package trigger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Request is an out-of-cycle run request.
type Request int

const (
	// Refresh requests an immediate run.
	Refresh Request = iota
	// Reset requests state clearing followed by an immediate run.
	Reset
)

const (
	refreshMarker = "refresh"
	resetMarker   = "reset"
)

// Watcher watches a directory for marker files and delivers requests on
// its channel. Marker files are removed after delivery so a single drop
// fires a single run.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	requests chan Request
	logger   zerolog.Logger
}

// NewWatcher creates a watcher on dir, creating the directory if needed.
func NewWatcher(dir string, logger zerolog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trigger directory %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch add: %w", err)
	}

	return &Watcher{
		dir:      dir,
		watcher:  w,
		requests: make(chan Request, 1),
		logger:   logger,
	}, nil
}

// Requests returns the channel run requests are delivered on.
func (w *Watcher) Requests() <-chan Request {
	return w.requests
}

// Run processes filesystem events until ctx is cancelled. Markers that
// already exist at startup are honored first.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info().Str("dir", w.dir).Msg("Watching for run triggers")

	w.scanExisting()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.watcher.Events:
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.handle(ev.Name)
		case err := <-w.watcher.Errors:
			if err != nil {
				w.logger.Warn().Err(err).Msg("Trigger watch error")
			}
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to scan trigger directory")
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.handle(filepath.Join(w.dir, e.Name()))
	}
}

func (w *Watcher) handle(path string) {
	var request Request
	switch strings.ToLower(filepath.Base(path)) {
	case refreshMarker:
		request = Refresh
	case resetMarker:
		request = Reset
	default:
		return
	}

	// Consume the marker before delivering so re-creation fires again.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove trigger marker")
	}

	select {
	case w.requests <- request:
		w.logger.Info().Str("marker", filepath.Base(path)).Msg("Run trigger received")
	default:
		// A request is already pending; collapse duplicates.
		w.logger.Debug().Str("marker", filepath.Base(path)).Msg("Run trigger dropped, one already pending")
	}
}
