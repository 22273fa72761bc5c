package jsondb

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestForeground(t *testing.T) {
	t.Run("runs in post order", func(t *testing.T) {
		fg := NewForeground(nil)
		defer fg.Close()

		var got []int
		for i := range 100 {
			fg.Post(func() { got = append(got, i) })
		}
		if err := fg.Flush(context.Background()); err != nil {
			t.Fatal(err)
		}
		if len(got) != 100 {
			t.Fatalf("ran %d callbacks, want 100", len(got))
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("callback %d ran at position %d", v, i)
			}
		}
	})

	t.Run("single goroutine", func(t *testing.T) {
		fg := NewForeground(nil)
		defer fg.Close()

		var mu sync.Mutex
		active, maxActive := 0, 0
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 20 {
					fg.Post(func() {
						mu.Lock()
						active++
						maxActive = max(maxActive, active)
						mu.Unlock()
						time.Sleep(10 * time.Microsecond)
						mu.Lock()
						active--
						mu.Unlock()
					})
				}
			}()
		}
		wg.Wait()
		if err := fg.Flush(context.Background()); err != nil {
			t.Fatal(err)
		}
		if maxActive != 1 {
			t.Errorf("max concurrent callbacks = %d, want 1", maxActive)
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		fg := NewForeground(nil)
		defer fg.Close()

		ran := false
		fg.Post(func() { panic("boom") })
		fg.Post(func() { ran = true })
		if err := fg.Flush(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !ran {
			t.Error("callback after panic did not run")
		}
	})

	t.Run("Close drains then runs inline", func(t *testing.T) {
		fg := NewForeground(nil)
		count := 0
		for range 10 {
			fg.Post(func() { count++ })
		}
		fg.Close()
		if count != 10 {
			t.Errorf("ran %d callbacks before close, want 10", count)
		}
		fg.Post(func() { count++ })
		if count != 11 {
			t.Errorf("callback posted after close did not run inline")
		}
		fg.Close()
		if err := fg.Flush(context.Background()); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("Close from a callback", func(t *testing.T) {
		fg := NewForeground(nil)
		var got []string
		returned := make(chan struct{})
		fg.Post(func() {
			got = append(got, "first")
			fg.Close()
			close(returned)
			fg.Post(func() { got = append(got, "posted while draining") })
			got = append(got, "first done")
		})
		select {
		case <-returned:
		case <-time.After(10 * time.Second):
			t.Fatal("Close called from a callback did not return")
		}
		fg.Close()
		want := []string{"first", "first done", "posted while draining"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})

	t.Run("Flush honours context", func(t *testing.T) {
		fg := NewForeground(nil)
		defer fg.Close()

		release := make(chan struct{})
		fg.Post(func() { <-release })
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := fg.Flush(ctx); err != context.DeadlineExceeded {
			t.Errorf("Flush() = %v, want deadline exceeded", err)
		}
		close(release)
	})
}
