package ecs

import (
	"cmp"
	"slices"
	"unsafe"

	"github.com/argus-labs/lockstep/pkg/assert"
	"github.com/rotisserie/eris"
)

// componentType is one entry of the dispatch table built at registration. Every function is a
// closure over the concrete type, so copying, resetting and key comparison never go through
// reflection.
type componentType struct {
	name        string
	index       ComponentTypeIndex
	singleton   bool
	singleFrame bool
	zeroSize    bool // Every instance shares one address, so instances are not pooled.

	newFn   func() Component
	copyFn  func(dst, src Component)
	resetFn func(Component)
	keyFn   func(Component) int64 // nil when the type has no key field
}

// alias is a named archetype. Input aliases also carry the component whose key orders them.
type alias struct {
	name       string
	components []ComponentTypeIndex
	archetype  Archetype
	input      bool
	key        ComponentTypeIndex
	hasKey     bool
}

// Registry is the default ComponentDefinitions and AliasLookup. Register every component type and
// alias before creating a world; the world reads the registry once at construction.
type Registry struct {
	types   []componentType
	catalog map[string]ComponentTypeIndex // Component name -> type index

	aliases     []alias
	aliasByArch map[Archetype]AliasID
	inputs      []AliasID

	singletons   []ComponentTypeIndex
	singleFrames []ComponentTypeIndex
}

var (
	_ ComponentDefinitions = (*Registry)(nil)
	_ AliasLookup          = (*Registry)(nil)
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:       make([]componentType, 0),
		catalog:     make(map[string]ComponentTypeIndex),
		aliases:     make([]alias, 0),
		aliasByArch: make(map[Archetype]AliasID),
	}
}

// componentPtr constrains registration to pointer types implementing Component.
type componentPtr[T any] interface {
	*T
	Component
}

// ComponentOption configures a component type at registration.
type ComponentOption func(*componentType)

// AsSingleton marks the component type as living only on the singleton entity.
func AsSingleton() ComponentOption {
	return func(ct *componentType) { ct.singleton = true }
}

// SingleFrame marks the component type as living for exactly one tick. Entities holding it are
// destroyed at the start of the next tick.
func SingleFrame() ComponentOption {
	return func(ct *componentType) { ct.singleFrame = true }
}

// KeyField sets the field used to order input entities and to match query key filters.
func KeyField[T any](fn func(*T) int64) ComponentOption {
	return func(ct *componentType) {
		ct.keyFn = func(c Component) int64 { return fn(any(c).(*T)) } //nolint:errcheck // type is fixed by registration
	}
}

// CopyWith replaces the default shallow copy. Use it for components holding slices or maps.
func CopyWith[T any](fn func(dst, src *T)) ComponentOption {
	return func(ct *componentType) {
		ct.copyFn = func(dst, src Component) {
			fn(any(dst).(*T), any(src).(*T)) //nolint:errcheck // type is fixed by registration
		}
	}
}

// ResetWith replaces the default zeroing reset. Use it to keep allocated capacity across reuse.
func ResetWith[T any](fn func(*T)) ComponentOption {
	return func(ct *componentType) {
		ct.resetFn = func(c Component) { fn(any(c).(*T)) } //nolint:errcheck // type is fixed by registration
	}
}

// Register registers a component type and returns its type index. Registering the same type twice
// returns the existing index.
func Register[T any, PT componentPtr[T]](r *Registry, opts ...ComponentOption) (ComponentTypeIndex, error) {
	name := PT(new(T)).Name()
	if name == "" {
		return 0, eris.New("component name cannot be empty")
	}

	// If component already exists, no-op.
	if idx, exists := r.catalog[name]; exists {
		return idx, nil
	}

	if len(r.types) >= MaxComponentTypes {
		return 0, eris.Wrapf(ErrArchetypeCapacityExceeded, "cannot register component %s", name)
	}

	ct := componentType{
		name:     name,
		index:    ComponentTypeIndex(len(r.types)),
		zeroSize: unsafe.Sizeof(*new(T)) == 0,
		newFn:    func() Component { return PT(new(T)) },
		copyFn: func(dst, src Component) {
			*(dst.(PT)) = *(src.(PT)) //nolint:errcheck // type is fixed by registration
		},
		resetFn: func(c Component) {
			var zero T
			*(c.(PT)) = zero //nolint:errcheck // type is fixed by registration
		},
	}
	for _, opt := range opts {
		opt(&ct)
	}
	if ct.singleton && ct.singleFrame {
		return 0, eris.Errorf("component %s cannot be both singleton and single-frame", name)
	}

	r.catalog[name] = ct.index
	r.types = append(r.types, ct)
	if ct.singleton {
		r.singletons = append(r.singletons, ct.index)
	}
	if ct.singleFrame {
		r.singleFrames = append(r.singleFrames, ct.index)
	}
	assert.That(len(r.catalog) == len(r.types), "component catalog doesn't match dispatch table")

	return ct.index, nil
}

// IndexOf returns the type index of a registered component type.
func IndexOf[T any, PT componentPtr[T]](r *Registry) (ComponentTypeIndex, error) {
	name := PT(new(T)).Name()
	idx, ok := r.catalog[name]
	if !ok {
		return 0, eris.Wrapf(ErrComponentNotRegistered, "component %s", name)
	}
	return idx, nil
}

// IndexByName returns the type index of a component name.
func (r *Registry) IndexByName(name string) (ComponentTypeIndex, bool) {
	idx, ok := r.catalog[name]
	return idx, ok
}

// -------------------------------------------------------------------------------------------------
// ComponentDefinitions
// -------------------------------------------------------------------------------------------------

func (r *Registry) Count() int {
	return len(r.types)
}

func (r *Registry) Index(c Component) (ComponentTypeIndex, bool) {
	idx, ok := r.catalog[c.Name()]
	return idx, ok
}

func (r *Registry) Name(idx ComponentTypeIndex) string {
	return r.types[idx].name
}

func (r *Registry) IsSingleton(idx ComponentTypeIndex) bool {
	return int(idx) < len(r.types) && r.types[idx].singleton
}

func (r *Registry) SingletonComponents() []ComponentTypeIndex {
	return r.singletons
}

func (r *Registry) SingleFrameComponents() []ComponentTypeIndex {
	return r.singleFrames
}

func (r *Registry) MatchesComponentFieldKey(c Component, key int64) bool {
	idx, ok := r.Index(c)
	if !ok || r.types[idx].keyFn == nil {
		return false
	}
	return r.types[idx].keyFn(c) == key
}

func (r *Registry) CompareComponentFieldKeys(a, b Component) int {
	idx, ok := r.Index(a)
	if !ok || r.types[idx].keyFn == nil {
		return 0
	}
	return cmp.Compare(r.types[idx].keyFn(a), r.types[idx].keyFn(b))
}

// -------------------------------------------------------------------------------------------------
// Aliases
// -------------------------------------------------------------------------------------------------

// AliasOption configures an alias at registration.
type AliasOption func(*alias)

// AsInput marks the alias as external input ordered by the key field of the key component.
func AsInput(key ComponentTypeIndex) AliasOption {
	return func(a *alias) {
		a.input = true
		a.key = key
		a.hasKey = true
	}
}

// RegisterAlias registers a named archetype made of the given component types.
func (r *Registry) RegisterAlias(name string, components []ComponentTypeIndex, opts ...AliasOption) (AliasID, error) {
	if len(components) == 0 {
		return 0, eris.Errorf("alias %s has no components", name)
	}

	a := alias{name: name, components: slices.Clone(components)}
	for _, idx := range components {
		if int(idx) >= len(r.types) {
			return 0, eris.Wrapf(ErrComponentNotRegistered, "alias %s uses type index %d", name, idx)
		}
		if r.types[idx].singleton {
			return 0, eris.Wrapf(ErrSingletonComponentMisuse, "alias %s uses %s", name, r.types[idx].name)
		}
		a.archetype = a.archetype.union(singleArchetype(int(idx)))
	}
	for _, opt := range opts {
		opt(&a)
	}
	if a.hasKey && !a.archetype.Contains(a.key) {
		return 0, eris.Errorf("alias %s key component is not one of its components", name)
	}
	if a.hasKey && r.types[a.key].keyFn == nil {
		return 0, eris.Errorf("alias %s key component %s has no key field", name, r.types[a.key].name)
	}
	if existing, ok := r.aliasByArch[a.archetype]; ok {
		return 0, eris.Errorf("alias %s has the same components as alias %s", name, r.aliases[existing].name)
	}

	id := AliasID(len(r.aliases))
	r.aliases = append(r.aliases, a)
	r.aliasByArch[a.archetype] = id
	if a.input {
		r.inputs = append(r.inputs, id)
	}
	return id, nil
}

// AliasName returns the registered name of an alias.
func (r *Registry) AliasName(id AliasID) string {
	if int(id) < 0 || int(id) >= len(r.aliases) {
		return ""
	}
	return r.aliases[id].name
}

func (r *Registry) AssociatedComponents(id AliasID) ([]ComponentTypeIndex, error) {
	if int(id) < 0 || int(id) >= len(r.aliases) {
		return nil, eris.Wrapf(ErrUnknownAlias, "alias %d", id)
	}
	return r.aliases[id].components, nil
}

func (r *Registry) InputAliases() []AliasID {
	return r.inputs
}

func (r *Registry) KeyComponent(id AliasID) (ComponentTypeIndex, bool) {
	if int(id) < 0 || int(id) >= len(r.aliases) {
		return 0, false
	}
	return r.aliases[id].key, r.aliases[id].hasKey
}

func (r *Registry) AliasFor(a Archetype) (AliasID, bool) {
	id, ok := r.aliasByArch[a]
	return id, ok
}
