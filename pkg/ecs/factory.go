package ecs

import (
	"fmt"

	"github.com/argus-labs/lockstep/pkg/pool"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Factory is the default ComponentFactory. It keeps one pool per registered component type plus
// pools for component groups and snapshot entities. Field-less component types carry no state, so
// they get one shared instance instead of a pool.
type Factory struct {
	registry *Registry
	pools    []*pool.Pool[Component] // nil for field-less types
	shared   []Component             // set for field-less types
	groups   *pool.Pool[*ComponentGroup]
	entities *pool.Pool[*EntityData]
}

var _ ComponentFactory = (*Factory)(nil)

// NewFactory creates a factory for every component type registered so far. Component types
// registered afterwards are not known to the factory.
func NewFactory(r *Registry, opts ...pool.Option) *Factory {
	f := &Factory{
		registry: r,
		pools:    make([]*pool.Pool[Component], len(r.types)),
		shared:   make([]Component, len(r.types)),
	}
	for i := range r.types {
		ct := &r.types[i]
		if ct.zeroSize {
			f.shared[i] = ct.newFn()
			continue
		}
		typeOpts := append([]pool.Option{pool.WithName(ct.name)}, opts...)
		f.pools[i] = pool.New(ct.newFn, ct.resetFn, typeOpts...)
	}

	f.groups = pool.New(
		func() *ComponentGroup { return newComponentGroup() },
		func(g *ComponentGroup) { g.clear() },
		append([]pool.Option{pool.WithName("component-group")}, opts...)...,
	)
	f.entities = pool.New(
		func() *EntityData { return &EntityData{ComponentGroup: *newComponentGroup()} },
		func(e *EntityData) {
			e.clear()
			e.ID = 0
			e.New = false
		},
		append([]pool.Option{pool.WithName("entity-data")}, opts...)...,
	)
	return f
}

func (f *Factory) Get(idx ComponentTypeIndex) (Component, error) {
	if int(idx) >= len(f.pools) {
		return nil, eris.Wrapf(ErrComponentNotRegistered, "type index %d", idx)
	}
	if f.shared[idx] != nil {
		return f.shared[idx], nil
	}
	return f.pools[idx].Get()
}

func (f *Factory) Put(c Component) error {
	idx, ok := f.registry.Index(c)
	if !ok || int(idx) >= len(f.pools) {
		return eris.Wrapf(ErrComponentNotRegistered, "component %s", c.Name())
	}
	if f.shared[idx] != nil {
		return nil
	}
	return f.pools[idx].Put(c)
}

func (f *Factory) Copy(dst, src Component) {
	idx, ok := f.registry.Index(src)
	if !ok {
		panic(fmt.Sprintf("copy of unregistered component %s", src.Name()))
	}
	f.registry.types[idx].copyFn(dst, src)
}

func (f *Factory) Reset(c Component) {
	idx, ok := f.registry.Index(c)
	if !ok {
		panic(fmt.Sprintf("reset of unregistered component %s", c.Name()))
	}
	f.registry.types[idx].resetFn(c)
}

func (f *Factory) String(c Component) string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%s{!%v}", c.Name(), err)
	}
	return c.Name() + string(b)
}

func (f *Factory) GetGroup() (*ComponentGroup, error) {
	return f.groups.Get()
}

// PutGroup returns the group's components to their pools, then the group itself.
func (f *Factory) PutGroup(g *ComponentGroup) error {
	if err := g.releaseComponents(f); err != nil {
		return err
	}
	return f.groups.Put(g)
}

func (f *Factory) GetEntityData() (*EntityData, error) {
	return f.entities.Get()
}

// PutEntityData returns the entity's components to their pools, then the entity itself.
func (f *Factory) PutEntityData(e *EntityData) error {
	if err := e.releaseComponents(f); err != nil {
		return err
	}
	return f.entities.Put(e)
}

// InUse returns the number of checked out objects across all pools. A steady number across ticks
// means nothing is leaking.
func (f *Factory) InUse() int {
	n := f.groups.InUse() + f.entities.InUse()
	for _, p := range f.pools {
		if p == nil {
			continue
		}
		n += p.InUse()
	}
	return n
}
