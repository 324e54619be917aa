package ecs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/argus-labs/lockstep/pkg/assert"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// EntityID is a unique identifier for an entity. IDs are never reused within a timeline.
type EntityID uint64

const (
	// InvalidEntityID is never assigned to an entity.
	InvalidEntityID EntityID = 0
	// SingletonEntityID is the entity holding every singleton component.
	SingletonEntityID EntityID = 1
)

// CloneMode selects the entities copied into a frame snapshot.
type CloneMode uint8

const (
	// CloneAll copies every entity.
	CloneAll CloneMode = iota
	// CloneInputOnly copies the entities whose archetype is exactly an input alias archetype.
	CloneInputOnly
)

// entityLocation is where an entity's record lives.
type entityLocation struct {
	table  tableHandle
	record recordHandle
}

// tableMatch caches the tables whose archetype contains a query archetype. Tables are never
// deleted, so only tables created after the last scan need to be checked.
type tableMatch struct {
	tables  bitmap.Bitmap
	scanned int
}

// EntityRepo stores the entities of one world in tables keyed by exact archetype.
type EntityRepo struct {
	graph   *ArchetypeGraph
	defs    ComponentDefinitions
	factory ComponentFactory
	log     *WorldLogger

	records     recordArena
	tables      []*table
	tableByArch map[Archetype]tableHandle
	matches     map[Archetype]*tableMatch

	entities map[EntityID]entityLocation
	ids      []EntityID // Ascending
	nextID   EntityID
	created  map[EntityID]struct{} // Entities created during the current tick
}

// NewEntityRepo creates a repo holding only the singleton entity.
func NewEntityRepo(
	graph *ArchetypeGraph, defs ComponentDefinitions, factory ComponentFactory, log *WorldLogger,
) (*EntityRepo, error) {
	r := &EntityRepo{
		graph:       graph,
		defs:        defs,
		factory:     factory,
		log:         log,
		tables:      make([]*table, 0, 16),
		tableByArch: make(map[Archetype]tableHandle, 16),
		matches:     make(map[Archetype]*tableMatch),
		entities:    make(map[EntityID]entityLocation, 64),
		ids:         make([]EntityID, 0, 64),
		nextID:      SingletonEntityID,
		created:     make(map[EntityID]struct{}),
	}
	if err := r.ensureSingleton(); err != nil {
		return nil, err
	}
	return r, nil
}

// -------------------------------------------------------------------------------------------------
// Entity lifecycle
// -------------------------------------------------------------------------------------------------

// CreateEntity creates an entity with a zeroed component for every type of a.
func (r *EntityRepo) CreateEntity(a Archetype) (EntityID, error) {
	if a.Overlaps(r.graph.SingletonArchetype()) {
		return InvalidEntityID, eris.Wrapf(ErrSingletonComponentMisuse, "archetype %s", a)
	}
	id := r.nextID
	if _, err := r.createWithID(id, a); err != nil {
		return InvalidEntityID, err
	}
	r.nextID++
	r.created[id] = struct{}{}
	return id, nil
}

// CreateAliasEntity creates an entity with the archetype of an alias.
func (r *EntityRepo) CreateAliasEntity(id AliasID) (EntityID, error) {
	a, err := r.graph.AliasArchetype(id)
	if err != nil {
		return InvalidEntityID, err
	}
	return r.CreateEntity(a)
}

// createWithID creates an entity with a known id. The caller maintains nextID and the created set.
func (r *EntityRepo) createWithID(id EntityID, a Archetype) (*record, error) {
	assert.That(id != InvalidEntityID, "entity id is invalid")
	if _, exists := r.entities[id]; exists {
		return nil, eris.Errorf("entity %d already exists", id)
	}

	th := r.tableFor(a)
	rh := r.records.alloc(id, a)
	rec := r.records.get(rh)
	for _, idx := range r.graph.ComponentIndices(a) {
		c, err := r.factory.Get(idx)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to create component for entity %d", id)
		}
		rec.comps[idx] = c
	}
	if err := r.tables[th].add(&r.records, rh); err != nil {
		return nil, err
	}

	r.entities[id] = entityLocation{table: th, record: rh}
	if n := len(r.ids); n == 0 || r.ids[n-1] < id {
		r.ids = append(r.ids, id)
	} else {
		pos, _ := slices.BinarySearch(r.ids, id)
		r.ids = slices.Insert(r.ids, pos, id)
	}

	r.log.Event(LogEntityID).Uint64("entity", uint64(id)).Stringer("archetype", a).Msg("entity created")
	return rec, nil
}

// DestroyEntity destroys an entity and returns its components to the factory. Unknown ids are
// ignored.
func (r *EntityRepo) DestroyEntity(id EntityID) error {
	loc, exists := r.entities[id]
	if !exists {
		return nil
	}

	if err := r.records.get(loc.record).teardown(r.factory); err != nil {
		return err
	}
	r.tables[loc.table].remove(id)
	r.records.release(loc.record)
	delete(r.entities, id)
	delete(r.created, id)
	if pos, found := slices.BinarySearch(r.ids, id); found {
		r.ids = slices.Delete(r.ids, pos, pos+1)
	}

	r.log.Event(LogEntityID).Uint64("entity", uint64(id)).Msg("entity destroyed")
	return nil
}

// DestroyEntitiesWithAnyOverlap destroys every entity holding at least one component type of filter.
func (r *EntityRepo) DestroyEntitiesWithAnyOverlap(filter Archetype) error {
	if filter.IsEmpty() {
		return nil
	}
	victims := r.overlapping(filter)
	for _, id := range victims {
		if err := r.DestroyEntity(id); err != nil {
			return err
		}
	}
	return nil
}

// ClearInputEntities destroys every entity whose archetype is exactly an input alias archetype.
func (r *EntityRepo) ClearInputEntities() error {
	victims := make([]EntityID, 0)
	for _, a := range r.graph.InputArchetypes() {
		if th, ok := r.tableByArch[a]; ok {
			victims = r.tables[th].extractAll(victims)
		}
	}
	slices.Sort(victims)
	for _, id := range victims {
		if err := r.DestroyEntity(id); err != nil {
			return err
		}
	}
	return nil
}

// ensureSingleton creates the singleton entity if it doesn't exist.
func (r *EntityRepo) ensureSingleton() error {
	if r.Exists(SingletonEntityID) {
		return nil
	}
	if _, err := r.createWithID(SingletonEntityID, r.graph.SingletonArchetype()); err != nil {
		return eris.Wrap(err, "failed to create singleton entity")
	}
	if r.nextID <= SingletonEntityID {
		r.nextID = SingletonEntityID + 1
	}
	return nil
}

// -------------------------------------------------------------------------------------------------
// Component operations
// -------------------------------------------------------------------------------------------------

// AddComponent adds a zeroed component of type idx to an entity and returns it. If the entity
// already has the component, the existing one is returned.
func (r *EntityRepo) AddComponent(id EntityID, idx ComponentTypeIndex) (Component, error) {
	loc, exists := r.entities[id]
	if !exists {
		return nil, eris.Wrapf(ErrUnknownEntity, "entity %d", id)
	}
	if r.defs.IsSingleton(idx) && id != SingletonEntityID {
		return nil, eris.Wrapf(ErrSingletonComponentMisuse, "%s on entity %d", r.defs.Name(idx), id)
	}

	rec := r.records.get(loc.record)
	if c, ok := rec.get(idx); ok {
		return c, nil
	}

	c, err := r.factory.Get(idx)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create component for entity %d", id)
	}
	r.tables[loc.table].remove(id)
	rec.add(r.graph, idx, c)
	if err := r.place(id, loc.record, rec.arch); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveComponentsOverlapping removes every component of an entity whose type is in filter.
func (r *EntityRepo) RemoveComponentsOverlapping(id EntityID, filter Archetype) error {
	loc, exists := r.entities[id]
	if !exists {
		return eris.Wrapf(ErrUnknownEntity, "entity %d", id)
	}
	rec := r.records.get(loc.record)
	if !rec.arch.Overlaps(filter) {
		return nil
	}

	r.tables[loc.table].remove(id)
	if _, err := rec.removeOverlapping(r.graph, r.factory, filter); err != nil {
		return err
	}
	return r.place(id, loc.record, rec.arch)
}

// RemoveOverlappingFromAll removes the component types of filter from every entity.
func (r *EntityRepo) RemoveOverlappingFromAll(filter Archetype) error {
	if filter.IsEmpty() {
		return nil
	}
	for _, id := range r.overlapping(filter) {
		if err := r.RemoveComponentsOverlapping(id, filter); err != nil {
			return err
		}
	}
	return nil
}

// place adds a record that has changed archetype to the table of its new archetype.
func (r *EntityRepo) place(id EntityID, rh recordHandle, a Archetype) error {
	th := r.tableFor(a)
	if err := r.tables[th].add(&r.records, rh); err != nil {
		return err
	}
	r.entities[id] = entityLocation{table: th, record: rh}
	return nil
}

// overlapping returns, in ascending order, the entities holding any component type of filter.
func (r *EntityRepo) overlapping(filter Archetype) []EntityID {
	ids := make([]EntityID, 0)
	for _, t := range r.tables {
		if t.len() > 0 && t.arch.Overlaps(filter) {
			ids = t.extractAll(ids)
		}
	}
	slices.Sort(ids)
	return ids
}

// tableFor returns the table of an exact archetype, creating it if needed.
func (r *EntityRepo) tableFor(a Archetype) tableHandle {
	if th, ok := r.tableByArch[a]; ok {
		return th
	}
	th := tableHandle(len(r.tables))
	r.tables = append(r.tables, newTable(a))
	r.tableByArch[a] = th
	return th
}

// -------------------------------------------------------------------------------------------------
// Accessors
// -------------------------------------------------------------------------------------------------

// Exists returns true if the entity exists.
func (r *EntityRepo) Exists(id EntityID) bool {
	_, ok := r.entities[id]
	return ok
}

// EntityArchetype returns the archetype of an entity.
func (r *EntityRepo) EntityArchetype(id EntityID) (Archetype, bool) {
	loc, ok := r.entities[id]
	if !ok {
		return EmptyArchetype, false
	}
	return r.tables[loc.table].arch, true
}

// Component returns an entity's component of type idx.
func (r *EntityRepo) Component(id EntityID, idx ComponentTypeIndex) (Component, error) {
	loc, ok := r.entities[id]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownEntity, "entity %d", id)
	}
	c, ok := r.records.get(loc.record).get(idx)
	if !ok {
		return nil, eris.Wrapf(ErrComponentMissing, "entity %d, component %s", id, r.defs.Name(idx))
	}
	return c, nil
}

// EntityIDs returns every entity in ascending order. The slice is owned by the repo.
func (r *EntityRepo) EntityIDs() []EntityID {
	return r.ids
}

// Len returns the number of entities, including the singleton entity.
func (r *EntityRepo) Len() int {
	return len(r.ids)
}

// SingletonID returns the id of the singleton entity.
func (r *EntityRepo) SingletonID() EntityID {
	return SingletonEntityID
}

// IsNewEntity returns true if the entity was created during the current tick.
func (r *EntityRepo) IsNewEntity(id EntityID) bool {
	_, ok := r.created[id]
	return ok
}

// NextEntityID returns the id the next created entity receives.
func (r *EntityRepo) NextEntityID() EntityID {
	return r.nextID
}

// TableCount returns the number of tables ever created.
func (r *EntityRepo) TableCount() int {
	return len(r.tables)
}

// Get returns an entity's component of type T.
func Get[T any, PT componentPtr[T]](r *EntityRepo, id EntityID) (PT, error) {
	idx, ok := r.defs.Index(PT(new(T)))
	if !ok {
		return nil, eris.Wrapf(ErrComponentNotRegistered, "component %s", PT(new(T)).Name())
	}
	c, err := r.Component(id, idx)
	if err != nil {
		return nil, err
	}
	return c.(PT), nil //nolint:errcheck // type is fixed by the type index
}

// Add adds a component of type T to an entity and returns it.
func Add[T any, PT componentPtr[T]](r *EntityRepo, id EntityID) (PT, error) {
	idx, ok := r.defs.Index(PT(new(T)))
	if !ok {
		return nil, eris.Wrapf(ErrComponentNotRegistered, "component %s", PT(new(T)).Name())
	}
	c, err := r.AddComponent(id, idx)
	if err != nil {
		return nil, err
	}
	return c.(PT), nil //nolint:errcheck // type is fixed by the type index
}

// Singleton returns the singleton component of type T.
func Singleton[T any, PT componentPtr[T]](r *EntityRepo) (PT, error) {
	return Get[T, PT](r, SingletonEntityID)
}

// -------------------------------------------------------------------------------------------------
// Queries
// -------------------------------------------------------------------------------------------------

// RunQuery resolves q against the stored entities.
func (r *EntityRepo) RunQuery(q *Query) error {
	q.results = q.results[:0]
	if q.flags&QueryContains != 0 {
		m := r.match(q.contains)
		m.tables.Range(func(th uint32) {
			q.results = r.tables[th].extractAll(q.results)
		})
		// Table order depends on the order archetypes first appeared, which differs between a
		// timeline and its replay.
		slices.Sort(q.results)
	} else {
		q.results = append(q.results, r.ids...)
	}

	if q.flags&(QueryMatchKey|QueryWhere) == 0 {
		return nil
	}

	kept := q.results[:0]
	for _, id := range q.results {
		rec := r.records.get(r.entities[id].record)
		if q.flags&QueryMatchKey != 0 {
			c, ok := rec.get(q.keyIdx)
			if !ok || !r.defs.MatchesComponentFieldKey(c, q.key) {
				continue
			}
		}
		if q.flags&QueryWhere != 0 {
			match, err := q.evalWhere(r.whereEnv(rec))
			if err != nil {
				return eris.Wrapf(err, "entity %d", id)
			}
			if !match {
				continue
			}
		}
		kept = append(kept, id)
	}
	q.results = kept
	return nil
}

// match returns the cached table match for a, scanning tables created since the last call.
func (r *EntityRepo) match(a Archetype) *tableMatch {
	m, ok := r.matches[a]
	if !ok {
		m = &tableMatch{}
		r.matches[a] = m
	}
	for ; m.scanned < len(r.tables); m.scanned++ {
		if IsSubsetOf(a, r.tables[m.scanned].arch) {
			m.tables.Set(uint32(m.scanned)) //nolint:gosec // table count is far below MaxUint32
		}
	}
	return m
}

func (r *EntityRepo) whereEnv(rec *record) map[string]any {
	// expr can't compare EntityID with integer literals, so the id is exposed as a plain uint64.
	env := make(map[string]any, len(rec.comps)+1)
	env["_id"] = uint64(rec.id)
	for idx, c := range rec.comps {
		env[r.defs.Name(idx)] = c
	}
	return env
}

// -------------------------------------------------------------------------------------------------
// Frame operations
// -------------------------------------------------------------------------------------------------

// PrepareNextFrame readies the repo for the next tick. The order of the steps matters: input
// entities of the previous tick must be gone before new input is applied, and single-frame entities
// are destroyed after input so input can't resurrect them.
func (r *EntityRepo) PrepareNextFrame(input InputData) error {
	clear(r.created)

	if err := r.ClearInputEntities(); err != nil {
		return eris.Wrap(err, "failed to clear input entities")
	}

	for _, g := range input.Groups() {
		if err := r.createFromGroup(r.nextID, g); err != nil {
			return eris.Wrap(err, "failed to apply input")
		}
		r.created[r.nextID] = struct{}{}
		r.nextID++
	}

	if err := r.DestroyEntitiesWithAnyOverlap(r.graph.SingleFrameArchetype()); err != nil {
		return eris.Wrap(err, "failed to destroy single-frame entities")
	}
	return nil
}

// createFromGroup creates an entity with a known id holding copies of the group's components.
func (r *EntityRepo) createFromGroup(id EntityID, g *ComponentGroup) error {
	a := g.Archetype()
	if id != SingletonEntityID && a.Overlaps(r.graph.SingletonArchetype()) {
		return eris.Wrapf(ErrSingletonComponentMisuse, "entity %d", id)
	}
	rec, err := r.createWithID(id, a)
	if err != nil {
		return err
	}
	for idx, c := range rec.comps {
		src, ok := g.Get(idx)
		assert.That(ok, "group doesn't match its archetype")
		r.factory.Copy(c, src)
	}
	return nil
}

// CloneEntities deep copies entities into target, in ascending id order.
func (r *EntityRepo) CloneEntities(target *FrameSnapshot, frame uint64, mode CloneMode) error {
	target.Frame = frame
	target.NextEntityID = r.nextID
	for _, id := range r.ids {
		rec := r.records.get(r.entities[id].record)
		if mode == CloneInputOnly && !r.graph.IsInputArchetype(rec.arch) {
			continue
		}

		e, err := r.factory.GetEntityData()
		if err != nil {
			return eris.Wrap(err, "failed to get snapshot entity")
		}
		e.ID = id
		e.New = r.IsNewEntity(id)
		if err := r.copyRecord(&e.ComponentGroup, rec); err != nil {
			return err
		}
		target.AddEntity(e)
	}
	return nil
}

// CloneInputGroups appends deep copies of the input entities to dst, in ascending id order. Input
// entities are created in application order, so this is also the order the input was applied in.
func (r *EntityRepo) CloneInputGroups(dst []*ComponentGroup) ([]*ComponentGroup, error) {
	for _, id := range r.ids {
		rec := r.records.get(r.entities[id].record)
		if !r.graph.IsInputArchetype(rec.arch) {
			continue
		}
		g, err := r.factory.GetGroup()
		if err != nil {
			return dst, eris.Wrap(err, "failed to get input group")
		}
		if err := r.copyRecord(g, rec); err != nil {
			return dst, err
		}
		dst = append(dst, g)
	}
	return dst, nil
}

func (r *EntityRepo) copyRecord(dst *ComponentGroup, rec *record) error {
	for _, idx := range r.graph.ComponentIndices(rec.arch) {
		c, err := r.factory.Get(idx)
		if err != nil {
			return eris.Wrap(err, "failed to get component for copy")
		}
		r.factory.Copy(c, rec.comps[idx])
		dst.Set(idx, c)
	}
	return nil
}

// ClearAndCopy replaces every entity with the entities of src. Entities keep their ids and the
// next id is restored, so ids assigned after the copy continue the captured timeline.
func (r *EntityRepo) ClearAndCopy(src *FrameSnapshot) error {
	if err := r.destroyAll(); err != nil {
		return err
	}
	clear(r.created)

	r.nextID = src.NextEntityID
	for _, e := range src.entities {
		if err := r.createFromGroup(e.ID, &e.ComponentGroup); err != nil {
			return eris.Wrapf(err, "failed to restore entity %d", e.ID)
		}
		if e.New {
			r.created[e.ID] = struct{}{}
		}
	}
	if err := r.ensureSingleton(); err != nil {
		return err
	}
	assert.That(slices.IsSorted(r.ids), "entity ids are not sorted")
	return nil
}

func (r *EntityRepo) destroyAll() error {
	for len(r.ids) > 0 {
		if err := r.DestroyEntity(r.ids[len(r.ids)-1]); err != nil {
			return err
		}
	}
	return nil
}

// StateString renders every entity and its components.
func (r *EntityRepo) StateString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "entities=%d next=%d\n", len(r.ids), r.nextID)
	for _, id := range r.ids {
		rec := r.records.get(r.entities[id].record)
		fmt.Fprintf(&b, "  %d %s", id, rec.arch)
		if r.IsNewEntity(id) {
			b.WriteString(" new")
		}
		for _, idx := range r.graph.ComponentIndices(rec.arch) {
			b.WriteString(" ")
			b.WriteString(r.factory.String(rec.comps[idx]))
		}
		b.WriteString("\n")
	}
	return b.String()
}
