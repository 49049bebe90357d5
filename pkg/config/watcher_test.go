package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherFiresOnReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "expectations.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, 10*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reloaded := make(chan struct{}, 1)
	go w.Watch(ctx, func() error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`[{"id":"e1"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("expected onReload to fire after the file was written")
	}
}
