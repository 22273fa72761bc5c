package jsondb

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type watchResult struct {
	rows []testRow
	err  error
}

func TestWatch(t *testing.T) {
	store, path := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan watchResult, 100)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, store, rate.NewLimiter(rate.Inf, 1), func(rows []testRow, err error) {
			select {
			case results <- watchResult{rows, err}:
			default:
			}
		})
	}()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch() = %v", err)
		}
	}()

	// The watcher may not be registered yet; keep writing until it reports.
	writer := NewStore[testRow](path, nil)
	expect := func(t *testing.T, write func() error, want []testRow) {
		t.Helper()
		deadline := time.After(10 * time.Second)
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		if err := write(); err != nil {
			t.Fatal(err)
		}
		for {
			select {
			case r := <-results:
				if r.err == nil && reflect.DeepEqual(r.rows, want) {
					return
				}
			case <-tick.C:
				if err := write(); err != nil {
					t.Fatal(err)
				}
			case <-deadline:
				t.Fatalf("never observed %v", want)
			}
		}
	}

	t.Run("external write", func(t *testing.T) {
		want := []testRow{{"cat", "meow"}}
		expect(t, func() error { return writer.Overwrite(want) }, want)
	})

	t.Run("removal", func(t *testing.T) {
		expect(t, writer.Delete, []testRow{})
	})

	t.Run("malformed file", func(t *testing.T) {
		deadline := time.After(10 * time.Second)
		for {
			if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
				t.Fatal(err)
			}
			select {
			case r := <-results:
				if r.err != nil {
					return
				}
			case <-time.After(20 * time.Millisecond):
			case <-deadline:
				t.Fatal("decode error never reported")
			}
		}
	})

	t.Run("other files ignored", func(t *testing.T) {
		for len(results) > 0 {
			<-results
		}
		if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other"), []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case r := <-results:
			// A late event for the database file itself is fine.
			if r.err == nil {
				t.Errorf("unexpected notification %v", r.rows)
			}
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestWatchMissingDir(t *testing.T) {
	store := NewStore[testRow](filepath.Join(t.TempDir(), "missing", "dict"), nil)
	if err := Watch(context.Background(), store, nil, func([]testRow, error) {}); err == nil {
		t.Error("Watch() on a missing directory succeeded")
	}
}
