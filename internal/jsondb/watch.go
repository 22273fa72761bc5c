package jsondb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Watch calls fn with the decoded content of store's file every time the file
// is written, created, removed or renamed, until ctx is done.
//
// The parent directory is watched so the atomic rename done by Overwrite and
// the removal done by Clear are both seen. Reads are paced by limiter: events
// arriving while waiting for a token are coalesced into the next read. A nil
// limiter does not pace reads.
func Watch[T any](ctx context.Context, store *Store[T], limiter *rate.Limiter, fn func([]T, error)) error {
	dir := filepath.Dir(store.Path())
	base := filepath.Base(store.Path())
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	const interesting = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base || event.Op&interesting == 0 {
				continue
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			drainEvents(w.Events)
			fn(store.Read())
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching database", "path", store.Path(), "err", err)
		}
	}
}

// drainEvents discards the events already buffered.
func drainEvents(events <-chan fsnotify.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
