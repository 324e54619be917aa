package ecs

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// FrameSnapshot is a deep copy of the entities of one frame.
type FrameSnapshot struct {
	Frame        uint64
	NextEntityID EntityID

	entities []*EntityData // Ascending id order
	lookup   map[EntityID]int
}

// NewFrameSnapshot creates an empty snapshot.
func NewFrameSnapshot() *FrameSnapshot {
	return &FrameSnapshot{
		entities: make([]*EntityData, 0, 16),
		lookup:   make(map[EntityID]int, 16),
	}
}

// AddEntity appends e. The snapshot takes ownership of e. Entities must be added in ascending id
// order.
func (s *FrameSnapshot) AddEntity(e *EntityData) {
	s.lookup[e.ID] = len(s.entities)
	s.entities = append(s.entities, e)
}

// Entities returns the entities in ascending id order.
func (s *FrameSnapshot) Entities() []*EntityData {
	return s.entities
}

// Entity returns the captured entity with the given id.
func (s *FrameSnapshot) Entity(id EntityID) (*EntityData, bool) {
	i, ok := s.lookup[id]
	if !ok {
		return nil, false
	}
	return s.entities[i], true
}

// IsNewEntity returns true if the entity was created during the captured frame.
func (s *FrameSnapshot) IsNewEntity(id EntityID) bool {
	e, ok := s.Entity(id)
	return ok && e.New
}

// Component returns a captured component.
func (s *FrameSnapshot) Component(id EntityID, idx ComponentTypeIndex) (Component, bool) {
	e, ok := s.Entity(id)
	if !ok {
		return nil, false
	}
	return e.Get(idx)
}

// Len returns the number of captured entities.
func (s *FrameSnapshot) Len() int {
	return len(s.entities)
}

// Release returns every entity to the factory and empties the snapshot.
func (s *FrameSnapshot) Release(f ComponentFactory) error {
	for _, e := range s.entities {
		if err := f.PutEntityData(e); err != nil {
			return eris.Wrapf(err, "failed to release entity %d of frame %d", e.ID, s.Frame)
		}
	}
	clear(s.entities)
	s.entities = s.entities[:0]
	clear(s.lookup)
	s.Frame = 0
	s.NextEntityID = InvalidEntityID
	return nil
}

// String renders the snapshot with the factory's component rendering.
func (s *FrameSnapshot) String(f ComponentFactory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "frame=%d entities=%d next=%d\n", s.Frame, len(s.entities), s.NextEntityID)
	for _, e := range s.entities {
		fmt.Fprintf(&b, "  %d %s", e.ID, e.Archetype())
		if e.New {
			b.WriteString(" new")
		}
		for _, idx := range e.Indices() {
			c, _ := e.Get(idx)
			b.WriteString(" ")
			b.WriteString(f.String(c))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SyncRecord is the input and resulting state hash of one tick. Replaying the input on top of the
// previous frame must reproduce the hash.
type SyncRecord struct {
	Frame uint64
	Hash  uint64

	groups []*ComponentGroup // Application order
}

// NewSyncRecord creates an empty sync record.
func NewSyncRecord() *SyncRecord {
	return &SyncRecord{groups: make([]*ComponentGroup, 0, 4)}
}

// Groups returns the recorded input groups in application order.
func (s *SyncRecord) Groups() []*ComponentGroup {
	return s.groups
}

// AddGroup appends an input group. The record takes ownership of g.
func (s *SyncRecord) AddGroup(g *ComponentGroup) {
	s.groups = append(s.groups, g)
}

// Release returns every group to the factory and empties the record.
func (s *SyncRecord) Release(f ComponentFactory) error {
	for _, g := range s.groups {
		if err := f.PutGroup(g); err != nil {
			return eris.Wrapf(err, "failed to release input of frame %d", s.Frame)
		}
	}
	clear(s.groups)
	s.groups = s.groups[:0]
	s.Frame = 0
	s.Hash = 0
	return nil
}

// FrameSerializer encodes frames into a deterministic byte form and hashes it. Each method appends
// to buf and returns the possibly grown buffer.
type FrameSerializer interface {
	SerializeFrame(g *ArchetypeGraph, snap *FrameSnapshot, buf []byte) ([]byte, error)
	SerializeSync(g *ArchetypeGraph, rec *SyncRecord, buf []byte) ([]byte, error)
	SerializeInput(g *ArchetypeGraph, input InputData, buf []byte) ([]byte, error)
	Hash(data []byte) uint64
}
