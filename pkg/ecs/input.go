package ecs

import (
	"github.com/rotisserie/eris"
)

// ComponentGroup is a set of components detached from any entity. It carries tick input and the
// components of snapshot entities. Groups are pooled by the ComponentFactory.
type ComponentGroup struct {
	arch  Archetype
	comps map[ComponentTypeIndex]Component
}

func newComponentGroup() *ComponentGroup {
	return &ComponentGroup{comps: make(map[ComponentTypeIndex]Component)}
}

// Archetype returns the union of the group's component types.
func (g *ComponentGroup) Archetype() Archetype {
	return g.arch
}

// Len returns the number of components in the group.
func (g *ComponentGroup) Len() int {
	return len(g.comps)
}

// Get returns the component of the given type.
func (g *ComponentGroup) Get(idx ComponentTypeIndex) (Component, bool) {
	c, ok := g.comps[idx]
	return c, ok
}

// Set places c in the group under idx, replacing any component of the same type. The replaced
// component is returned so the caller can give it back to its factory.
func (g *ComponentGroup) Set(idx ComponentTypeIndex, c Component) Component {
	old := g.comps[idx]
	g.comps[idx] = c
	g.arch = g.arch.union(singleArchetype(int(idx)))
	return old
}

// Indices returns the group's component types in ascending order.
func (g *ComponentGroup) Indices() []ComponentTypeIndex {
	return g.arch.decompose(make([]ComponentTypeIndex, 0, len(g.comps)))
}

func (g *ComponentGroup) clear() {
	clear(g.comps)
	g.arch = EmptyArchetype
}

func (g *ComponentGroup) releaseComponents(f ComponentFactory) error {
	for _, idx := range g.Indices() {
		if err := f.Put(g.comps[idx]); err != nil {
			return eris.Wrap(err, "failed to release group component")
		}
	}
	g.clear()
	return nil
}

// copyGroup deep copies every component of src into dst with components checked out of f.
func copyGroup(f ComponentFactory, dst, src *ComponentGroup) error {
	for _, idx := range src.Indices() {
		c, err := f.Get(idx)
		if err != nil {
			return eris.Wrap(err, "failed to get component for copy")
		}
		f.Copy(c, src.comps[idx])
		if old := dst.Set(idx, c); old != nil {
			if err := f.Put(old); err != nil {
				return err
			}
		}
	}
	return nil
}

// EntityData is an entity captured in a frame snapshot.
type EntityData struct {
	ComponentGroup

	ID  EntityID
	New bool // Created during the captured frame
}

// InputData is the external input of one tick.
type InputData interface {
	// Frame returns the frame the input is for.
	Frame() uint64
	// Groups returns the input component groups in application order.
	Groups() []*ComponentGroup
}

// FrameInput is the input of one tick. Groups are kept ordered by alias id, then by the key field of
// the alias key component. Groups with equal keys keep their insertion order.
type FrameInput struct {
	frame   uint64
	groups  []*ComponentGroup
	aliasOf []AliasID // Parallel to groups

	defs    ComponentDefinitions
	aliases AliasLookup
	factory ComponentFactory
}

var _ InputData = (*FrameInput)(nil)

// NewFrameInput creates an empty input for frame.
func NewFrameInput(
	frame uint64, defs ComponentDefinitions, aliases AliasLookup, factory ComponentFactory,
) *FrameInput {
	return &FrameInput{
		frame:   frame,
		groups:  make([]*ComponentGroup, 0, 8),
		aliasOf: make([]AliasID, 0, 8),
		defs:    defs,
		aliases: aliases,
		factory: factory,
	}
}

func (in *FrameInput) Frame() uint64 {
	return in.frame
}

func (in *FrameInput) SetFrame(frame uint64) {
	in.frame = frame
}

func (in *FrameInput) Groups() []*ComponentGroup {
	return in.groups
}

// NewGroup checks out a group holding one fresh component per type of an input alias. The group is
// not part of the input until it is passed to AddGroup.
func (in *FrameInput) NewGroup(id AliasID) (*ComponentGroup, error) {
	components, err := in.aliases.AssociatedComponents(id)
	if err != nil {
		return nil, err
	}
	g, err := in.factory.GetGroup()
	if err != nil {
		return nil, err
	}
	for _, idx := range components {
		c, err := in.factory.Get(idx)
		if err != nil {
			return nil, eris.Wrap(err, "failed to get input component")
		}
		g.Set(idx, c)
	}
	return g, nil
}

// AddGroup inserts g at its ordered position. The input takes ownership of g. Groups whose archetype
// is not exactly an input alias are rejected.
func (in *FrameInput) AddGroup(g *ComponentGroup) error {
	id, ok := in.aliases.AliasFor(g.Archetype())
	if !ok || !in.isInputAlias(id) {
		return eris.Wrapf(ErrUnknownAlias, "no input alias for archetype %s", g.Archetype())
	}

	pos := len(in.groups)
	for pos > 0 && in.less(id, g, in.aliasOf[pos-1], in.groups[pos-1]) {
		pos--
	}

	in.groups = append(in.groups, nil)
	in.aliasOf = append(in.aliasOf, 0)
	copy(in.groups[pos+1:], in.groups[pos:])
	copy(in.aliasOf[pos+1:], in.aliasOf[pos:])
	in.groups[pos] = g
	in.aliasOf[pos] = id
	return nil
}

// less reports whether group a must be applied strictly before group b.
func (in *FrameInput) less(aliasA AliasID, a *ComponentGroup, aliasB AliasID, b *ComponentGroup) bool {
	if aliasA != aliasB {
		return aliasA < aliasB
	}
	key, ok := in.aliases.KeyComponent(aliasA)
	if !ok {
		return false
	}
	return in.defs.CompareComponentFieldKeys(a.comps[key], b.comps[key]) < 0
}

func (in *FrameInput) isInputAlias(id AliasID) bool {
	for _, input := range in.aliases.InputAliases() {
		if input == id {
			return true
		}
	}
	return false
}

// Release returns every group to the factory and empties the input.
func (in *FrameInput) Release() error {
	for _, g := range in.groups {
		if err := in.factory.PutGroup(g); err != nil {
			return eris.Wrap(err, "failed to release input group")
		}
	}
	clear(in.groups)
	in.groups = in.groups[:0]
	in.aliasOf = in.aliasOf[:0]
	return nil
}

// CopyFrom appends deep copies of every group of src and takes its frame.
func (in *FrameInput) CopyFrom(src InputData) error {
	in.frame = src.Frame()
	return in.copyGroups(src.Groups())
}

// CopyFromSync rebuilds the input recorded in a sync record.
func (in *FrameInput) CopyFromSync(rec *SyncRecord) error {
	in.frame = rec.Frame
	return in.copyGroups(rec.groups)
}

// CopyFromSnapshot rebuilds the input of a captured frame from its input entities.
func (in *FrameInput) CopyFromSnapshot(snap *FrameSnapshot) error {
	in.frame = snap.Frame
	for _, e := range snap.entities {
		id, ok := in.aliases.AliasFor(e.Archetype())
		if !ok || !in.isInputAlias(id) {
			continue
		}
		if err := in.copyGroup(&e.ComponentGroup); err != nil {
			return err
		}
	}
	return nil
}

func (in *FrameInput) copyGroups(groups []*ComponentGroup) error {
	for _, src := range groups {
		if err := in.copyGroup(src); err != nil {
			return err
		}
	}
	return nil
}

func (in *FrameInput) copyGroup(src *ComponentGroup) error {
	g, err := in.factory.GetGroup()
	if err != nil {
		return err
	}
	if err := copyGroup(in.factory, g, src); err != nil {
		return err
	}
	return in.AddGroup(g)
}

// SyncInput replays the input stored in a sync record. It does not own the groups.
type SyncInput struct {
	frame  uint64
	groups []*ComponentGroup
}

var _ InputData = SyncInput{}

// NewSyncInput wraps a sync record as tick input.
func NewSyncInput(rec *SyncRecord) SyncInput {
	return SyncInput{frame: rec.Frame, groups: rec.groups}
}

func (s SyncInput) Frame() uint64 {
	return s.frame
}

func (s SyncInput) Groups() []*ComponentGroup {
	return s.groups
}
