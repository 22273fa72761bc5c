package jsondb

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zyedidia/generic/queue"
)

// Executor runs callbacks later, in the order they were posted, on a single
// execution context.
type Executor interface {
	Post(fn func())
}

// Foreground is an Executor backed by one goroutine.
//
// Post never blocks: callbacks are buffered in an unbounded FIFO.
type Foreground struct {
	logger *slog.Logger
	loopID atomic.Uint64

	mu      sync.Mutex
	pending *queue.Queue[func()]
	closed  bool
	exited  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewForeground starts a foreground executor.
func NewForeground(logger *slog.Logger) *Foreground {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Foreground{
		logger:  logger,
		pending: queue.New[func()](),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	started := make(chan struct{})
	go f.loop(started)
	<-started
	return f
}

// Post implements [Executor].
//
// Callbacks posted while Close drains the queue still run in order on the
// loop. Once the loop has exited they run synchronously on the caller's
// goroutine so that completions are never lost.
func (f *Foreground) Post(fn func()) {
	f.mu.Lock()
	if f.exited {
		f.mu.Unlock()
		f.logger.Debug("Running callback posted after close inline")
		f.run(fn)
		return
	}
	f.pending.Enqueue(fn)
	f.mu.Unlock()
	f.signal()
}

// Flush waits until every callback posted before the call has run. It must
// not be called from a callback.
func (f *Foreground) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	f.Post(func() { close(ch) })
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs the callbacks already posted and stops the goroutine.
//
// Called from a callback, Close returns without waiting; the loop exits once
// the current callback and the ones queued behind it have run.
func (f *Foreground) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.signal()
	if goroutineID() == f.loopID.Load() {
		return
	}
	<-f.done
}

func (f *Foreground) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Foreground) loop(started chan<- struct{}) {
	defer close(f.done)
	f.loopID.Store(goroutineID())
	close(started)
	for {
		f.mu.Lock()
		if f.pending.Empty() {
			if f.closed {
				f.exited = true
				f.mu.Unlock()
				return
			}
			f.mu.Unlock()
			<-f.wake
			continue
		}
		fn := f.pending.Dequeue()
		f.mu.Unlock()
		f.run(fn)
	}
}

func (f *Foreground) run(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			f.logger.Error("Foreground callback panicked", "panic", v)
		}
	}()
	fn()
}

// goroutineID returns the current goroutine's ID as printed in stack traces.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(string(buf[:n]))[1]
	id, _ := strconv.ParseUint(idField, 10, 64)
	return id
}
