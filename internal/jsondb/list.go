package jsondb

import (
	"slices"
	"sync"

	"github.com/tiendc/go-deepcopy"

	"github.com/maruel/krawldb/internal/errors"
)

// Cloner is implemented by record types that can clone themselves.
//
// Records that don't implement it are deep copied by reflection.
type Cloner[T any] interface {
	Clone() T
}

// ObservableList is the in-memory list of records of a database.
//
// Every successful [ObservableList.Mutate] publishes a snapshot to all
// subscribers on the Executor. Snapshots are copies: mutating one never
// affects the list or other subscribers.
type ObservableList[T any] struct {
	exec Executor

	// wmu serializes writers; mu only guards the fields below so readers never
	// wait on the I/O done inside Mutate.
	wmu sync.Mutex
	mu  sync.RWMutex

	rows   []T
	latest []T
	subs   map[uint64]func([]T)
	nextID uint64
}

// NewObservableList returns a list holding rows. Notifications run on exec.
func NewObservableList[T any](rows []T, exec Executor) *ObservableList[T] {
	if rows == nil {
		rows = []T{}
	}
	return &ObservableList[T]{
		exec:   exec,
		rows:   rows,
		latest: cloneRows(rows),
		subs:   make(map[uint64]func([]T)),
	}
}

// Len returns the number of records.
func (l *ObservableList[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows)
}

// Snapshot returns a copy of the current list.
func (l *ObservableList[T]) Snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneRows(l.rows)
}

// Latest returns a copy of the last snapshot delivered to subscribers.
//
// It trails Snapshot while a publication is waiting on the Executor.
func (l *ObservableList[T]) Latest() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneRows(l.latest)
}

// Get returns a copy of the record at index.
func (l *ObservableList[T]) Get(index int) (T, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := checkIndex(index, len(l.rows)); err != nil {
		var zero T
		return zero, err
	}
	return cloneRow(l.rows[index]), nil
}

// Mutate applies fn to a working copy of the list.
//
// If fn succeeds its result becomes the list, is published, and a copy is
// returned. If fn fails the list is left unchanged and nothing is published.
func (l *ObservableList[T]) Mutate(fn func(rows []T) ([]T, error)) ([]T, error) {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	l.mu.RLock()
	work := cloneRows(l.rows)
	l.mu.RUnlock()

	next, err := fn(work)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = []T{}
	}
	l.mu.Lock()
	l.rows = next
	l.mu.Unlock()

	l.publish(cloneRows(next))
	return cloneRows(next), nil
}

// Subscribe registers fn to receive every snapshot published from now on,
// in publish order, on the Executor.
//
// Call Snapshot after subscribing to get the current value. The returned
// function unsubscribes; it is safe to call more than once.
func (l *ObservableList[T]) Subscribe(fn func([]T)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (l *ObservableList[T]) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

func (l *ObservableList[T]) publish(snap []T) {
	l.exec.Post(func() {
		l.mu.Lock()
		l.latest = snap
		ids := make([]uint64, 0, len(l.subs))
		for id := range l.subs {
			ids = append(ids, id)
		}
		l.mu.Unlock()
		slices.Sort(ids)
		for _, id := range ids {
			// Skip subscribers removed by an earlier callback in this loop.
			l.mu.RLock()
			fn, ok := l.subs[id]
			l.mu.RUnlock()
			if ok {
				fn(cloneRows(snap))
			}
		}
	})
}

func checkIndex(index, size int) error {
	if index < 0 || index >= size {
		return errors.IndexOutOfRange(index, size)
	}
	return nil
}

// setAt replaces the record at index.
func setAt[T any](rows []T, index int, v T) ([]T, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return nil, err
	}
	rows[index] = v
	return rows, nil
}

// removeAt deletes the record at index, shifting later records down.
func removeAt[T any](rows []T, index int) ([]T, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return nil, err
	}
	return slices.Delete(rows, index, index+1), nil
}

// cloneRow copies one record. It goes through the slice path because
// deepcopy drops unexported and time.Time fields when copying a bare struct.
func cloneRow[T any](row T) T {
	if c, ok := any(row).(Cloner[T]); ok {
		return c.Clone()
	}
	return cloneRows([]T{row})[0]
}

func cloneRows[T any](rows []T) []T {
	out := make([]T, len(rows))
	if len(rows) == 0 {
		return out
	}
	var zero T
	if _, ok := any(zero).(Cloner[T]); ok {
		for i, r := range rows {
			out[i] = any(r).(Cloner[T]).Clone()
		}
		return out
	}
	if err := deepcopy.Copy(&out, rows); err != nil {
		copy(out, rows)
	}
	return out
}
