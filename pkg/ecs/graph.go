package ecs

import (
	"github.com/rotisserie/eris"
)

// nodeHandle indexes a node in the graph's node arena.
type nodeHandle int32

// graphNode memoizes the transitions out of one archetype. Both maps are keyed by the delta
// archetype, which may hold any number of component types.
type graphNode struct {
	archetype Archetype
	add       map[Archetype]Archetype
	remove    map[Archetype]Archetype
	indices   []ComponentTypeIndex // Decomposition, nil until first requested
}

// ArchetypeGraph creates archetypes on demand and memoizes every add/remove transition between
// them. Archetypes only ever change through the graph, so every archetype the engine sees has a node
// here. The graph also resolves alias archetypes and the single-frame and singleton archetypes.
type ArchetypeGraph struct {
	nodes  []graphNode
	lookup map[Archetype]nodeHandle

	// Canonical single component archetypes, keyed directly by type index.
	single     [MaxComponentTypes]Archetype
	singleDone [MaxComponentTypes]bool

	aliases     AliasLookup
	aliasArch   map[AliasID]Archetype
	singleFrame Archetype
	singleton   Archetype
	input       []Archetype
}

// NewArchetypeGraph creates a graph and resolves the single-frame, singleton and input archetypes.
func NewArchetypeGraph(defs ComponentDefinitions, aliases AliasLookup) (*ArchetypeGraph, error) {
	if defs.Count() > MaxComponentTypes {
		return nil, eris.Wrapf(ErrArchetypeCapacityExceeded, "%d component types", defs.Count())
	}

	g := &ArchetypeGraph{
		nodes:     make([]graphNode, 0, 64),
		lookup:    make(map[Archetype]nodeHandle, 64),
		aliases:   aliases,
		aliasArch: make(map[AliasID]Archetype),
	}
	g.node(EmptyArchetype)

	for _, idx := range defs.SingleFrameComponents() {
		g.singleFrame = g.With(g.singleFrame, idx)
	}
	for _, idx := range defs.SingletonComponents() {
		g.singleton = g.With(g.singleton, idx)
	}

	inputAliases := aliases.InputAliases()
	g.input = make([]Archetype, 0, len(inputAliases))
	for _, id := range inputAliases {
		arch, err := g.AliasArchetype(id)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve input alias %d", id)
		}
		g.input = append(g.input, arch)
	}

	return g, nil
}

// node returns the node handle for an archetype, creating the node if it doesn't exist.
func (g *ArchetypeGraph) node(a Archetype) nodeHandle {
	if h, ok := g.lookup[a]; ok {
		return h
	}
	h := nodeHandle(len(g.nodes))
	g.nodes = append(g.nodes, graphNode{
		archetype: a,
		add:       make(map[Archetype]Archetype),
		remove:    make(map[Archetype]Archetype),
	})
	g.lookup[a] = h
	return h
}

// Empty returns the archetype without component types.
func (g *ArchetypeGraph) Empty() Archetype {
	return EmptyArchetype
}

// Single returns the canonical archetype holding exactly one component type.
func (g *ArchetypeGraph) Single(idx ComponentTypeIndex) Archetype {
	if !g.singleDone[idx] {
		g.single[idx] = singleArchetype(int(idx))
		g.singleDone[idx] = true
		g.node(g.single[idx])
	}
	return g.single[idx]
}

// With returns the archetype of cur plus one component type.
func (g *ArchetypeGraph) With(cur Archetype, idx ComponentTypeIndex) Archetype {
	return g.Added(cur, g.Single(idx))
}

// Without returns the archetype of cur minus one component type.
func (g *ArchetypeGraph) Without(cur Archetype, idx ComponentTypeIndex) Archetype {
	return g.Removed(cur, g.Single(idx))
}

// Added returns the archetype of cur plus every component type of delta.
func (g *ArchetypeGraph) Added(cur, delta Archetype) Archetype {
	n := &g.nodes[g.node(cur)]
	if next, ok := n.add[delta]; ok {
		return next
	}
	next := cur.union(delta)
	n.add[delta] = next
	g.node(next)
	return next
}

// Removed returns the archetype of cur minus every component type of delta.
func (g *ArchetypeGraph) Removed(cur, delta Archetype) Archetype {
	n := &g.nodes[g.node(cur)]
	if next, ok := n.remove[delta]; ok {
		return next
	}
	next := cur.difference(delta)
	n.remove[delta] = next
	g.node(next)
	return next
}

// ArchetypeFor builds the archetype holding the given component types.
func (g *ArchetypeGraph) ArchetypeFor(indices ...ComponentTypeIndex) Archetype {
	cur := EmptyArchetype
	for _, idx := range indices {
		cur = g.With(cur, idx)
	}
	return cur
}

// ComponentIndices returns the component type indices of an archetype in ascending order. The slice
// is cached and shared, callers must not modify it.
func (g *ArchetypeGraph) ComponentIndices(a Archetype) []ComponentTypeIndex {
	n := &g.nodes[g.node(a)]
	if n.indices == nil {
		n.indices = a.decompose(make([]ComponentTypeIndex, 0, a.Count()))
	}
	return n.indices
}

// AliasArchetype returns the archetype of an alias. The result is cached per alias.
func (g *ArchetypeGraph) AliasArchetype(id AliasID) (Archetype, error) {
	if arch, ok := g.aliasArch[id]; ok {
		return arch, nil
	}

	components, err := g.aliases.AssociatedComponents(id)
	if err != nil {
		return EmptyArchetype, err
	}
	cur := EmptyArchetype
	for _, idx := range components {
		cur = g.With(cur, idx)
	}
	g.aliasArch[id] = cur
	return cur, nil
}

// SingleFrameArchetype returns the union of every single-frame component type.
func (g *ArchetypeGraph) SingleFrameArchetype() Archetype {
	return g.singleFrame
}

// SingletonArchetype returns the union of every singleton component type.
func (g *ArchetypeGraph) SingletonArchetype() Archetype {
	return g.singleton
}

// InputArchetypes returns the archetypes of every input alias, in input alias order.
func (g *ArchetypeGraph) InputArchetypes() []Archetype {
	return g.input
}

// IsInputArchetype returns true if a is the archetype of an input alias.
func (g *ArchetypeGraph) IsInputArchetype(a Archetype) bool {
	for _, in := range g.input {
		if in == a {
			return true
		}
	}
	return false
}

// Len returns the number of archetypes the graph has seen.
func (g *ArchetypeGraph) Len() int {
	return len(g.nodes)
}
