package jsondb

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zyedidia/generic/queue"

	"github.com/maruel/krawldb/internal/errors"
)

// Pool runs tasks on background goroutines. *ants.Pool implements it.
type Pool interface {
	Submit(task func()) error
}

// goPool runs every task on a new goroutine.
type goPool struct{}

func (goPool) Submit(task func()) error {
	go task()
	return nil
}

// MutationQueue executes mutations one at a time, in admission order.
//
// The first request admitted into an idle queue is submitted to the Pool;
// that task keeps running the following requests until the queue is empty, so
// at most one request of a queue executes at any time. Outcomes are posted to
// the Executor before the pending count is decremented.
type MutationQueue struct {
	name    string
	pool    Pool
	exec    Executor
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	idle    *sync.Cond
	pending *queue.Queue[*request]
	depth   int
	running bool
	closed  bool
}

// NewMutationQueue returns an empty queue. pool, logger and metrics may be nil.
func NewMutationQueue(name string, pool Pool, exec Executor, logger *slog.Logger, metrics *Metrics) *MutationQueue {
	if pool == nil {
		pool = goPool{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	q := &MutationQueue{
		name:    name,
		pool:    pool,
		exec:    exec,
		logger:  logger,
		metrics: metrics,
		pending: queue.New[*request](),
	}
	q.idle = sync.NewCond(&q.mu)
	metrics.Pending.WithLabelValues(name).Set(0)
	return q
}

// Pending returns the number of admitted requests that have not finished.
func (q *MutationQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Enqueue admits op. done, if not nil, is called on the Executor with the
// outcome, then the returned Future is resolved.
//
// A closed queue rejects the request with an UNAVAILABLE error.
func (q *MutationQueue) Enqueue(kind Kind, op func() error, done func(error)) *Future {
	r := newRequest(kind, op, done)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		err := errors.Unavailable(q.name)
		q.exec.Post(func() { r.deliver(err) })
		return r.future
	}
	q.depth++
	q.metrics.Pending.WithLabelValues(q.name).Set(float64(q.depth))
	start := !q.running
	if start {
		q.running = true
	} else {
		q.pending.Enqueue(r)
	}
	depth := q.depth
	q.mu.Unlock()

	q.logger.Debug("Mutation admitted", "db", q.name, "req", r.future.id, "kind", kind, "pending", depth)
	if start {
		q.submit(r)
	}
	return r.future
}

// Close rejects new requests and waits for the admitted ones to finish.
func (q *MutationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for q.depth > 0 {
		q.idle.Wait()
	}
}

// submit hands r to the pool. If the pool refuses, r and its successors fail
// until one is accepted or the queue is empty.
func (q *MutationQueue) submit(r *request) {
	for r != nil {
		if err := r.transition(eventStart); err != nil {
			r = q.finish(r, err, 0)
			continue
		}
		next := r
		err := q.pool.Submit(func() { q.drain(next) })
		if err == nil {
			return
		}
		r = q.finish(r, fmt.Errorf("failed to schedule %s: %w", r.kind, err), 0)
	}
}

// drain executes r and every request admitted behind it.
func (q *MutationQueue) drain(r *request) {
	for {
		start := time.Now()
		err := r.execute()
		r = q.finish(r, err, time.Since(start))
		if r == nil {
			return
		}
		if err := r.transition(eventStart); err != nil {
			q.logger.Error("Mutation could not start", "db", q.name, "req", r.future.id, "err", err)
			r = q.finish(r, err, 0)
			if r == nil {
				return
			}
		}
	}
}

// finish records the outcome of r, schedules its delivery and returns the
// next request to run, if any.
func (q *MutationQueue) finish(r *request, err error, d time.Duration) *request {
	event := eventSucceed
	if err != nil {
		event = eventFail
	}
	if terr := r.transition(event); terr != nil {
		q.logger.Error("Invalid mutation transition", "db", q.name, "req", r.future.id, "state", r.Current(), "err", terr)
	}
	q.metrics.observe(q.name, r.kind, err, d)
	if err != nil {
		q.logger.Warn("Mutation failed", "db", q.name, "req", r.future.id, "kind", r.kind, "err", err)
	} else {
		q.logger.Debug("Mutation completed", "db", q.name, "req", r.future.id, "kind", r.kind, "duration", d)
	}
	q.exec.Post(func() { r.deliver(err) })

	q.mu.Lock()
	defer q.mu.Unlock()
	q.depth--
	q.metrics.Pending.WithLabelValues(q.name).Set(float64(q.depth))
	if q.depth == 0 {
		q.idle.Broadcast()
	}
	if q.pending.Empty() {
		q.running = false
		return nil
	}
	return q.pending.Dequeue()
}
