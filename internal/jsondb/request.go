package jsondb

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"github.com/maruel/ksid"
)

// Kind identifies the mutation carried by a request.
type Kind string

const (
	// KindAdd appends records.
	KindAdd Kind = "add"
	// KindUpdate replaces the record at an index.
	KindUpdate Kind = "update"
	// KindDelete removes the record at an index.
	KindDelete Kind = "delete"
	// KindClear empties the list and removes the file.
	KindClear Kind = "clear"
)

// Request states.
const (
	StateAdmitted  = "admitted"
	StateExecuting = "executing"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Request events.
const (
	eventStart   = "start"
	eventSucceed = "succeed"
	eventFail    = "fail"
)

// Future is resolved exactly once when a queued mutation finishes.
type Future struct {
	id   ksid.ID
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{id: ksid.NewID(), done: make(chan struct{})}
}

// failedFuture returns a Future already resolved with err.
func failedFuture(err error) *Future {
	f := newFuture()
	f.resolve(err)
	return f
}

// ID identifies the request in logs.
func (f *Future) ID() ksid.ID {
	return f.id
}

// Done is closed once the request has completed or failed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the outcome. It is only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the request is resolved or ctx is done.
//
// Cancelling ctx stops the wait, not the request.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// request is one admitted mutation.
type request struct {
	kind   Kind
	op     func() error
	done   func(error)
	future *Future

	mu    sync.Mutex
	state *fsm.FSM
}

func newRequest(kind Kind, op func() error, done func(error)) *request {
	return &request{
		kind:   kind,
		op:     op,
		done:   done,
		future: newFuture(),
		state: fsm.NewFSM(
			StateAdmitted,
			fsm.Events{
				{Name: eventStart, Src: []string{StateAdmitted}, Dst: StateExecuting},
				{Name: eventSucceed, Src: []string{StateExecuting}, Dst: StateCompleted},
				{Name: eventFail, Src: []string{StateExecuting}, Dst: StateFailed},
			},
			fsm.Callbacks{},
		),
	}
}

// Current returns the request state.
func (r *request) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Current()
}

// transition fires event; an event not allowed from the current state is an
// error and leaves the state unchanged.
func (r *request) transition(event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.state.Event(context.Background(), event); err != nil {
		return fmt.Errorf("request %s: %w", r.future.id, err)
	}
	return nil
}

// execute runs the operation, converting a panic into an error.
func (r *request) execute() (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%s operation panicked: %v", r.kind, v)
		}
	}()
	return r.op()
}

// deliver runs the caller's callback then resolves the Future. Called on the
// foreground executor.
func (r *request) deliver(err error) {
	defer r.future.resolve(err)
	if r.done != nil {
		r.done(err)
	}
}
