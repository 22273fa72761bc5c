package jsondb

import (
	"fmt"
	"log/slog"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maruel/krawldb/internal/errors"
	"github.com/maruel/krawldb/internal/storage"
)

// DefaultName is the database opened when no name is given.
const DefaultName = "krawldb"

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	workers    int
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithWorkers bounds the background pool. 0 means unbounded.
func WithWorkers(n int) RegistryOption {
	return func(o *registryOptions) { o.workers = n }
}

// WithRegistryLogger sets the logger shared by every database.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) { o.logger = logger }
}

// WithRegisterer registers the queue metrics with reg.
func WithRegisterer(reg prometheus.Registerer) RegistryOption {
	return func(o *registryOptions) { o.registerer = reg }
}

// Registry keeps at most one open Database per name in a Location.
//
// Every database shares the Registry's background pool, Foreground and
// metrics.
type Registry struct {
	loc     *storage.Location
	logger  *slog.Logger
	pool    *ants.Pool
	fg      *Foreground
	metrics *Metrics

	mu     sync.Mutex
	dbs    map[string]closer
	closed bool
}

type closer interface {
	Close() error
}

// NewRegistry creates the shared pool and Foreground.
func NewRegistry(loc *storage.Location, opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 0 {
		return nil, errors.Newf(errors.ErrInvalidConfig, "workers must not be negative, got %d", o.workers)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	size := o.workers
	if size == 0 {
		size = -1
	}
	logger := o.logger
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		logger.Error("Background task panicked", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Registry{
		loc:     loc,
		logger:  logger,
		pool:    pool,
		fg:      NewForeground(logger),
		metrics: NewMetrics(o.registerer),
		dbs:     map[string]closer{},
	}, nil
}

// Location returns the storage location.
func (r *Registry) Location() *storage.Location {
	return r.loc
}

// Foreground returns the executor delivering callbacks and notifications.
func (r *Registry) Foreground() *Foreground {
	return r.fg
}

// Names returns the databases present on disk.
func (r *Registry) Names() ([]string, error) {
	return r.loc.List()
}

// Open returns the open Database called name, opening it if needed. An empty
// name means DefaultName.
//
// It fails with INVALID_NAME if name is already open with another record type.
// codec is only used when the database is opened by this call.
func Open[T any](r *Registry, name string, codec Codec[T]) (*Database[T], error) {
	if name == "" {
		name = DefaultName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Unavailable(name)
	}
	if h, ok := r.dbs[name]; ok {
		db, ok := h.(*Database[T])
		if !ok {
			return nil, errors.Newf(errors.ErrInvalidName, "database %q is open with a different record type", name)
		}
		if db.check() == nil {
			return db, nil
		}
	}
	db, err := OpenDatabase(r.loc, name, codec,
		WithPool(r.pool),
		WithExecutor(r.fg),
		WithLogger(r.logger),
		WithMetrics(r.metrics))
	if err != nil {
		return nil, err
	}
	r.dbs[name] = db
	return db, nil
}

// Lookup returns the open Database called name.
func Lookup[T any](r *Registry, name string) (*Database[T], error) {
	if name == "" {
		name = DefaultName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.dbs[name]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("database %q", name))
	}
	db, ok := h.(*Database[T])
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidName, "database %q is open with a different record type", name)
	}
	return db, nil
}

// Close closes every database then stops the Foreground and the pool.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	dbs := r.dbs
	r.dbs = map[string]closer{}
	r.mu.Unlock()

	var result *multierror.Error
	for name, db := range dbs {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %q: %w", name, err))
		}
	}
	r.fg.Close()
	r.pool.Release()
	return result.ErrorOrNil()
}
