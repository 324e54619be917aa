package ecs

import (
	"github.com/argus-labs/lockstep/pkg/assert"
	"github.com/rotisserie/eris"
)

// recordHandle indexes a record in the repo's record arena.
type recordHandle int32

// record holds the components of one entity. The key set of comps always equals the decomposition
// of arch.
type record struct {
	id    EntityID
	arch  Archetype
	comps map[ComponentTypeIndex]Component
	live  bool
}

func (r *record) get(idx ComponentTypeIndex) (Component, bool) {
	c, ok := r.comps[idx]
	return c, ok
}

// add places c on the record. The caller moves the record to the table of the new archetype.
func (r *record) add(g *ArchetypeGraph, idx ComponentTypeIndex, c Component) {
	assert.That(!r.arch.Contains(idx), "component already on record")
	r.comps[idx] = c
	r.arch = g.With(r.arch, idx)
}

// removeOverlapping returns every component whose type is in filter to the factory and reports
// whether the archetype changed.
func (r *record) removeOverlapping(g *ArchetypeGraph, f ComponentFactory, filter Archetype) (bool, error) {
	if !r.arch.Overlaps(filter) {
		return false, nil
	}
	for _, idx := range g.ComponentIndices(r.arch) {
		if !filter.Contains(idx) {
			continue
		}
		if err := f.Put(r.comps[idx]); err != nil {
			return false, eris.Wrapf(err, "failed to release component of entity %d", r.id)
		}
		delete(r.comps, idx)
	}
	r.arch = g.Removed(r.arch, filter)
	assert.That(len(r.comps) == r.arch.Count(), "record components don't match archetype")
	return true, nil
}

// teardown returns every component to the factory.
func (r *record) teardown(f ComponentFactory) error {
	for idx, c := range r.comps {
		if err := f.Put(c); err != nil {
			return eris.Wrapf(err, "failed to release component of entity %d", r.id)
		}
		delete(r.comps, idx)
	}
	r.arch = EmptyArchetype
	return nil
}

// recordArena stores records by handle and recycles the handles of destroyed records.
type recordArena struct {
	records []record
	free    []recordHandle
}

func (a *recordArena) alloc(id EntityID, arch Archetype) recordHandle {
	var h recordHandle
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		h = recordHandle(len(a.records))
		a.records = append(a.records, record{comps: make(map[ComponentTypeIndex]Component)})
	}
	r := &a.records[h]
	assert.That(!r.live && len(r.comps) == 0, "allocated record is in use")
	r.id = id
	r.arch = arch
	r.live = true
	return h
}

func (a *recordArena) get(h recordHandle) *record {
	r := &a.records[h]
	assert.That(r.live, "record handle is stale")
	return r
}

func (a *recordArena) release(h recordHandle) {
	r := &a.records[h]
	assert.That(len(r.comps) == 0, "released record still holds components")
	r.id = 0
	r.arch = EmptyArchetype
	r.live = false
	a.free = append(a.free, h)
}
