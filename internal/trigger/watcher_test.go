package trigger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func startWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	return w
}

func waitForRequest(t *testing.T, w *Watcher) Request {
	t.Helper()
	select {
	case request := <-w.Requests():
		return request
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for trigger request")
		return 0
	}
}

func TestWatcherFiresOnRefreshMarker(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	marker := filepath.Join(dir, "refresh")
	if err := os.WriteFile(marker, nil, 0644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}

	if request := waitForRequest(t, w); request != Refresh {
		t.Errorf("expected Refresh, got %v", request)
	}

	// Marker consumed after delivery.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(marker); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("marker file was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherFiresOnResetMarker(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "reset"), nil, 0644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}

	if request := waitForRequest(t, w); request != Reset {
		t.Errorf("expected Reset, got %v", request)
	}
}

func TestWatcherHonorsPreexistingMarker(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "refresh"), nil, 0644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}

	w := startWatcher(t, dir)
	if request := waitForRequest(t, w); request != Refresh {
		t.Errorf("expected Refresh for preexisting marker, got %v", request)
	}
}

func TestWatcherIgnoresUnknownFiles(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	select {
	case request := <-w.Requests():
		t.Errorf("unexpected request %v for unrelated file", request)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewWatcherCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "triggers")
	w, err := NewWatcher(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("trigger directory not created: %v", err)
	}
}
