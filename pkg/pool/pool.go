// Package pool provides a free list for objects that are checked out and returned explicitly.
// The simulation recycles components, records and frame snapshots through pools so its steady state
// memory is bounded by the pools' high-water marks instead of growing with every tick.
package pool

import (
	"github.com/rotisserie/eris"
)

const (
	// DefaultSize is the number of objects built when a pool is created. It is also the size of the
	// first growth batch. Every subsequent batch doubles.
	DefaultSize = 5

	// DefaultAlertSize is the number of outstanding checkouts above which Get fails. Crossing it
	// almost always means objects are not being returned.
	DefaultAlertSize = 700
)

var (
	// ErrPoolExhausted is returned by Get when the number of checked out objects exceeds the alert size.
	ErrPoolExhausted = eris.New("pool checkout count exceeded alert size")

	// ErrPoolMisuse is returned by Put when the object is not currently checked out from the pool.
	ErrPoolMisuse = eris.New("object was not checked out from this pool")
)

// Pool is a geometrically growing free list. Objects are reset when returned. A Pool is not safe
// for concurrent use.
type Pool[T comparable] struct {
	name  string
	free  []T
	inUse map[T]struct{}
	batch int // Size of the next growth batch
	alert int
	built int

	build func() T
	reset func(T)

	ledger ledger[T]
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	name  string
	size  int
	alert int
}

// WithName sets the name used in error messages.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithInitialSize sets the number of objects built up front.
func WithInitialSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.size = size
		}
	}
}

// WithAlertSize sets the outstanding checkout threshold.
func WithAlertSize(alert int) Option {
	return func(o *options) {
		if alert > 0 {
			o.alert = alert
		}
	}
}

// New creates a pool that uses build to create objects and reset to clear them on return. reset may
// be nil.
func New[T comparable](build func() T, reset func(T), opts ...Option) *Pool[T] {
	o := options{name: "pool", size: DefaultSize, alert: DefaultAlertSize}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pool[T]{
		name:   o.name,
		free:   make([]T, 0, o.size),
		inUse:  make(map[T]struct{}, o.size),
		batch:  o.size,
		alert:  o.alert,
		build:  build,
		reset:  reset,
		ledger: newLedger[T](),
	}
	for range o.size {
		p.free = append(p.free, p.build())
	}
	p.built = o.size
	return p
}

// Get checks an object out of the pool, growing the pool if it is empty.
func (p *Pool[T]) Get() (T, error) {
	if len(p.inUse) > p.alert {
		var zero T
		return zero, eris.Wrapf(ErrPoolExhausted, "pool %s has %d objects checked out (alert size %d)",
			p.name, len(p.inUse), p.alert)
	}

	if len(p.free) == 0 {
		p.grow()
	}

	last := len(p.free) - 1
	obj := p.free[last]
	var zero T
	p.free[last] = zero
	p.free = p.free[:last]

	p.inUse[obj] = struct{}{}
	p.ledger.checkout(obj)
	return obj, nil
}

// MustGet is Get for callers that treat exhaustion as fatal.
func (p *Pool[T]) MustGet() T {
	obj, err := p.Get()
	if err != nil {
		panic(err)
	}
	return obj
}

// Put resets obj and returns it to the pool.
func (p *Pool[T]) Put(obj T) error {
	if _, ok := p.inUse[obj]; !ok {
		return eris.Wrapf(ErrPoolMisuse, "pool %s%s", p.name, p.ledger.describe(obj))
	}
	delete(p.inUse, obj)

	if p.reset != nil {
		p.reset(obj)
	}
	p.free = append(p.free, obj)
	p.ledger.returned(obj)
	return nil
}

// PutAll returns every checked out object.
func (p *Pool[T]) PutAll() error {
	outstanding := make([]T, 0, len(p.inUse))
	for obj := range p.inUse {
		outstanding = append(outstanding, obj)
	}
	for _, obj := range outstanding {
		if err := p.Put(obj); err != nil {
			return err
		}
	}
	return nil
}

// InUse returns the number of objects currently checked out.
func (p *Pool[T]) InUse() int {
	return len(p.inUse)
}

// Free returns the number of objects ready to be checked out.
func (p *Pool[T]) Free() int {
	return len(p.free)
}

// Built returns the number of objects the pool has ever created.
func (p *Pool[T]) Built() int {
	return p.built
}

// grow builds the next batch and doubles the batch size.
func (p *Pool[T]) grow() {
	for range p.batch {
		p.free = append(p.free, p.build())
	}
	p.built += p.batch
	p.batch *= 2
}
