package ecs

// Component is the interface that all components must implement. Components are plain data attached
// to entities. Registered component types are always handled through pointers (*T).
type Component interface { //nolint:iface // We may add more methods in the future.
	// Name returns a unique string identifier for the component type.
	// This should be consistent across program executions.
	Name() string
}

// AliasID identifies a predefined archetype registered with an alias lookup.
type AliasID int

// ComponentDefinitions describes the registered component types.
type ComponentDefinitions interface {
	// Count returns the number of registered component types.
	Count() int
	// Index returns the type index of a component instance.
	Index(c Component) (ComponentTypeIndex, bool)
	// Name returns the name of a component type.
	Name(idx ComponentTypeIndex) string
	// IsSingleton returns true if the component type may only live on the singleton entity.
	IsSingleton(idx ComponentTypeIndex) bool
	// SingletonComponents returns every singleton component type.
	SingletonComponents() []ComponentTypeIndex
	// SingleFrameComponents returns every component type that lives for exactly one tick.
	SingleFrameComponents() []ComponentTypeIndex
	// MatchesComponentFieldKey returns true if the component's key field equals key.
	MatchesComponentFieldKey(c Component, key int64) bool
	// CompareComponentFieldKeys orders two components of the same type by their key field.
	CompareComponentFieldKeys(a, b Component) int
}

// AliasLookup resolves aliases to their component types and back.
type AliasLookup interface {
	// AssociatedComponents returns the component types of an alias.
	AssociatedComponents(id AliasID) ([]ComponentTypeIndex, error)
	// InputAliases returns the aliases used for external input, in ascending id order.
	InputAliases() []AliasID
	// KeyComponent returns the component whose key field orders entities of an input alias.
	KeyComponent(id AliasID) (ComponentTypeIndex, bool)
	// AliasFor returns the alias whose archetype is exactly a.
	AliasFor(a Archetype) (AliasID, bool)
}

// ComponentFactory owns the lifetime of components, component groups and snapshot entities.
type ComponentFactory interface {
	// Get checks out a zeroed component of the given type.
	Get(idx ComponentTypeIndex) (Component, error)
	// Put resets a component and returns it.
	Put(c Component) error
	// Copy copies the data of src into dst. Both must be of the same type.
	Copy(dst, src Component)
	// Reset zeroes a component in place.
	Reset(c Component)
	// String renders a component for logs and state dumps.
	String(c Component) string

	GetGroup() (*ComponentGroup, error)
	PutGroup(g *ComponentGroup) error
	GetEntityData() (*EntityData, error)
	PutEntityData(e *EntityData) error
}
