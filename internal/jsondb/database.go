package jsondb

import (
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/maruel/krawldb/internal/errors"
	"github.com/maruel/krawldb/internal/storage"
)

// Option configures OpenDatabase.
type Option func(*options)

type options struct {
	pool    Pool
	exec    Executor
	logger  *slog.Logger
	metrics *Metrics
}

// WithPool runs mutations on pool instead of a new goroutine per queue drain.
func WithPool(pool Pool) Option {
	return func(o *options) { o.pool = pool }
}

// WithExecutor delivers callbacks and notifications on exec. When not set the
// Database starts its own Foreground and stops it on Close.
func WithExecutor(exec Executor) Option {
	return func(o *options) { o.exec = exec }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records queue metrics in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Database is a list of records persisted to a single JSON file.
//
// Asynchronous mutations are executed one at a time in admission order and
// their outcome is delivered on the Executor. A nil *Database, or one that
// was closed, fails every operation with an UNAVAILABLE error.
type Database[T any] struct {
	name   string
	store  *Store[T]
	list   *ObservableList[T]
	queue  *MutationQueue
	exec   Executor
	fg     *Foreground // Owned executor, if any.
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// OpenDatabase opens the database name in loc, loading the current content of
// its file. It fails if the name is invalid or the file cannot be decoded.
func OpenDatabase[T any](loc *storage.Location, name string, codec Codec[T], opts ...Option) (*Database[T], error) {
	path, err := loc.Path(name)
	if err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	store := NewStore(path, codec)
	rows, err := store.Read()
	if err != nil {
		return nil, err
	}
	d := &Database[T]{
		name:   name,
		store:  store,
		exec:   o.exec,
		logger: o.logger,
	}
	if d.exec == nil {
		d.fg = NewForeground(o.logger)
		d.exec = d.fg
	}
	d.list = NewObservableList(rows, d.exec)
	d.queue = NewMutationQueue(name, o.pool, d.exec, o.logger, o.metrics)
	o.logger.Debug("Database opened", "db", name, "path", path, "records", len(rows))
	return d, nil
}

// Name returns the database name.
func (d *Database[T]) Name() string {
	if d == nil {
		return ""
	}
	return d.name
}

// Path returns the backing file path.
func (d *Database[T]) Path() string {
	if d == nil {
		return ""
	}
	return d.store.Path()
}

// Len returns the number of records.
func (d *Database[T]) Len() int {
	if d == nil {
		return 0
	}
	return d.list.Len()
}

// Pending returns the number of queued mutations that have not finished.
func (d *Database[T]) Pending() int {
	if d == nil {
		return 0
	}
	return d.queue.Pending()
}

// Snapshot returns a copy of the current records.
func (d *Database[T]) Snapshot() []T {
	if d == nil {
		return nil
	}
	return d.list.Snapshot()
}

// Latest returns a copy of the last list delivered to subscribers.
func (d *Database[T]) Latest() []T {
	if d == nil {
		return nil
	}
	return d.list.Latest()
}

// Subscribe registers fn to receive every list published after a successful
// mutation. It returns the function that unsubscribes.
func (d *Database[T]) Subscribe(fn func([]T)) (func(), error) {
	if err := d.check(); err != nil {
		return func() {}, err
	}
	return d.list.Subscribe(fn), nil
}

// Add appends records in argument order and rewrites the file.
//
// done, if not nil, is called on the Executor before the Future resolves.
func (d *Database[T]) Add(done func(error), records ...T) *Future {
	if d == nil {
		return rejected(done)
	}
	return d.queue.Enqueue(KindAdd, d.addOp(cloneRows(records)), done)
}

// Update replaces the record at index and rewrites the file.
func (d *Database[T]) Update(done func(error), index int, v T) *Future {
	if d == nil {
		return rejected(done)
	}
	return d.queue.Enqueue(KindUpdate, d.updateOp(index, cloneRow(v)), done)
}

// Delete removes the record at index and rewrites the file.
func (d *Database[T]) Delete(done func(error), index int) *Future {
	if d == nil {
		return rejected(done)
	}
	return d.queue.Enqueue(KindDelete, d.deleteOp(index), done)
}

// Clear empties the list and removes the file.
func (d *Database[T]) Clear(done func(error)) *Future {
	if d == nil {
		return rejected(done)
	}
	return d.queue.Enqueue(KindClear, d.clearOp(), done)
}

// AddSync is Add executed on the caller's goroutine, outside the queue.
func (d *Database[T]) AddSync(records ...T) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.addOp(cloneRows(records))()
}

// UpdateSync is Update executed on the caller's goroutine, outside the queue.
func (d *Database[T]) UpdateSync(index int, v T) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.updateOp(index, cloneRow(v))()
}

// DeleteSync is Delete executed on the caller's goroutine, outside the queue.
func (d *Database[T]) DeleteSync(index int) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.deleteOp(index)()
}

// ClearSync is Clear executed on the caller's goroutine, outside the queue.
func (d *Database[T]) ClearSync() error {
	if err := d.check(); err != nil {
		return err
	}
	return d.clearOp()()
}

// Get reads the record at index on the Executor and passes it to done.
func (d *Database[T]) Get(done func(T, error), index int) {
	if err := d.check(); err != nil {
		var zero T
		done(zero, err)
		return
	}
	d.exec.Post(func() { done(d.list.Get(index)) })
}

// GetSync returns a copy of the record at index.
func (d *Database[T]) GetSync(index int) (T, error) {
	if err := d.check(); err != nil {
		var zero T
		return zero, err
	}
	return d.list.Get(index)
}

// ReadSync decodes the backing file without touching the in-memory list.
func (d *Database[T]) ReadSync() ([]T, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return d.store.Read()
}

// Filter returns the records for which pred returns true, in order.
//
// The first error returned by pred is returned and no records are.
func (d *Database[T]) Filter(pred func(T) (bool, error)) ([]T, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	out := []T{}
	for _, row := range d.list.Snapshot() {
		ok, err := pred(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// FilterIndexed is like Filter but keys each matching record by its index in
// the full list.
func (d *Database[T]) FilterIndexed(pred func(T) (bool, error)) (map[int]T, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	out := map[int]T{}
	for i, row := range d.list.Snapshot() {
		ok, err := pred(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = row
		}
	}
	return out, nil
}

// ResolveIndex runs ResolveIndexSync on the Executor and passes the result to
// done.
func (d *Database[T]) ResolveIndex(done func(int, error), filtered map[int]T, position int) {
	if err := d.check(); err != nil {
		done(-1, err)
		return
	}
	d.exec.Post(func() { done(d.resolveIndex(filtered, position)) })
}

// ResolveIndexSync translates position in a view built by FilterIndexed,
// ordered by original index, to the index of the first equal record in the
// current list.
//
// The list may have changed since filtered was built; duplicates resolve to
// the first match. It returns a NOT_FOUND error if no record is equal.
func (d *Database[T]) ResolveIndexSync(filtered map[int]T, position int) (int, error) {
	if err := d.check(); err != nil {
		return -1, err
	}
	return d.resolveIndex(filtered, position)
}

func (d *Database[T]) resolveIndex(filtered map[int]T, position int) (int, error) {
	keys := make([]int, 0, len(filtered))
	for k := range filtered {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if err := checkIndex(position, len(keys)); err != nil {
		return -1, err
	}
	want := filtered[keys[position]]
	for i, row := range d.list.Snapshot() {
		if reflect.DeepEqual(row, want) {
			return i, nil
		}
	}
	return -1, errors.NotFound("record").WithDetail("position", position)
}

// Close rejects further requests and waits for the queued ones to finish.
// Calling Close again is a no-op.
func (d *Database[T]) Close() error {
	if d == nil {
		return errors.Unavailable("")
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	d.queue.Close()
	if d.fg != nil {
		d.fg.Close()
	}
	d.logger.Debug("Database closed", "db", d.name)
	return nil
}

func (d *Database[T]) check() error {
	if d == nil {
		return errors.Unavailable("")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.Unavailable(d.name)
	}
	return nil
}

func (d *Database[T]) addOp(records []T) func() error {
	return d.mutation(func(rows []T) ([]T, error) {
		rows = append(rows, records...)
		return rows, d.store.Overwrite(rows)
	})
}

func (d *Database[T]) updateOp(index int, v T) func() error {
	return d.mutation(func(rows []T) ([]T, error) {
		rows, err := setAt(rows, index, v)
		if err != nil {
			return nil, err
		}
		return rows, d.store.Overwrite(rows)
	})
}

func (d *Database[T]) deleteOp(index int) func() error {
	return d.mutation(func(rows []T) ([]T, error) {
		rows, err := removeAt(rows, index)
		if err != nil {
			return nil, err
		}
		return rows, d.store.Overwrite(rows)
	})
}

func (d *Database[T]) clearOp() func() error {
	return d.mutation(func([]T) ([]T, error) {
		return []T{}, d.store.Delete()
	})
}

// mutation wraps fn so the list only changes when fn, including its file
// write, succeeds.
func (d *Database[T]) mutation(fn func([]T) ([]T, error)) func() error {
	return func() error {
		_, err := d.list.Mutate(fn)
		return err
	}
}

// rejected reports an UNAVAILABLE error for a request on a nil Database.
func rejected(done func(error)) *Future {
	err := errors.Unavailable("")
	if done != nil {
		done(err)
	}
	return failedFuture(err)
}
