// Package codec is the default frame serializer. Frames, sync records and inputs are encoded with
// the protobuf wire format, written field by field in a fixed order so equal states always encode to
// equal bytes. Component payloads use encoding.BinaryMarshaler when a component implements it and
// JSON otherwise.
//
// Frame:     1 frame (varint), 2 next entity id (varint), 3 entity (repeated message)
// Entity:    1 id (varint), 2 created this frame (varint), 3 component (repeated message)
// Component: 1 type index (varint), 2 payload (bytes)
// Sync:      1 frame (varint), 2 hash (fixed64), 3 group (repeated message)
// Input:     1 frame (varint), 3 group (repeated message)
// Group:     3 component (repeated message)
package codec

import (
	"encoding"

	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldFrame     protowire.Number = 1
	fieldNextID    protowire.Number = 2
	fieldHash      protowire.Number = 2
	fieldEntity    protowire.Number = 3
	fieldGroup     protowire.Number = 3
	fieldEntityID  protowire.Number = 1
	fieldNew       protowire.Number = 2
	fieldComponent protowire.Number = 3
	fieldTypeIndex protowire.Number = 1
	fieldPayload   protowire.Number = 2
)

// Serializer encodes and decodes frames. It reuses internal buffers, so it is not safe for
// concurrent use.
type Serializer struct {
	defs    ecs.ComponentDefinitions
	factory ecs.ComponentFactory

	msg  []byte // Scratch for entity and group messages
	comp []byte // Scratch for component messages
}

var _ ecs.FrameSerializer = (*Serializer)(nil)

// New creates a serializer. The factory provides the pooled objects decoding fills.
func New(defs ecs.ComponentDefinitions, factory ecs.ComponentFactory) *Serializer {
	return &Serializer{defs: defs, factory: factory}
}

// Hash returns the xxhash64 of data.
func (s *Serializer) Hash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// -------------------------------------------------------------------------------------------------
// Encoding
// -------------------------------------------------------------------------------------------------

func (s *Serializer) SerializeFrame(g *ecs.ArchetypeGraph, snap *ecs.FrameSnapshot, buf []byte) ([]byte, error) {
	buf = protowire.AppendTag(buf, fieldFrame, protowire.VarintType)
	buf = protowire.AppendVarint(buf, snap.Frame)
	buf = protowire.AppendTag(buf, fieldNextID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(snap.NextEntityID))

	for _, e := range snap.Entities() {
		s.msg = s.msg[:0]
		s.msg = protowire.AppendTag(s.msg, fieldEntityID, protowire.VarintType)
		s.msg = protowire.AppendVarint(s.msg, uint64(e.ID))
		if e.New {
			s.msg = protowire.AppendTag(s.msg, fieldNew, protowire.VarintType)
			s.msg = protowire.AppendVarint(s.msg, 1)
		}
		msg, err := s.appendComponents(s.msg, g, &e.ComponentGroup)
		if err != nil {
			return buf, eris.Wrapf(err, "failed to encode entity %d", e.ID)
		}
		s.msg = msg

		buf = protowire.AppendTag(buf, fieldEntity, protowire.BytesType)
		buf = protowire.AppendBytes(buf, s.msg)
	}
	return buf, nil
}

func (s *Serializer) SerializeSync(g *ecs.ArchetypeGraph, rec *ecs.SyncRecord, buf []byte) ([]byte, error) {
	buf = protowire.AppendTag(buf, fieldFrame, protowire.VarintType)
	buf = protowire.AppendVarint(buf, rec.Frame)
	buf = protowire.AppendTag(buf, fieldHash, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, rec.Hash)
	return s.appendGroups(buf, g, rec.Groups())
}

func (s *Serializer) SerializeInput(g *ecs.ArchetypeGraph, input ecs.InputData, buf []byte) ([]byte, error) {
	buf = protowire.AppendTag(buf, fieldFrame, protowire.VarintType)
	buf = protowire.AppendVarint(buf, input.Frame())
	return s.appendGroups(buf, g, input.Groups())
}

func (s *Serializer) appendGroups(buf []byte, g *ecs.ArchetypeGraph, groups []*ecs.ComponentGroup) ([]byte, error) {
	for i, group := range groups {
		msg, err := s.appendComponents(s.msg[:0], g, group)
		if err != nil {
			return buf, eris.Wrapf(err, "failed to encode group %d", i)
		}
		s.msg = msg
		buf = protowire.AppendTag(buf, fieldGroup, protowire.BytesType)
		buf = protowire.AppendBytes(buf, s.msg)
	}
	return buf, nil
}

// appendComponents appends one component message per component, in ascending type index order.
func (s *Serializer) appendComponents(buf []byte, g *ecs.ArchetypeGraph, group *ecs.ComponentGroup) ([]byte, error) {
	for _, idx := range g.ComponentIndices(group.Archetype()) {
		c, ok := group.Get(idx)
		if !ok {
			return buf, eris.Wrapf(ecs.ErrComponentMissing, "type index %d", idx)
		}
		payload, err := marshal(c)
		if err != nil {
			return buf, eris.Wrapf(err, "failed to encode component %s", c.Name())
		}

		s.comp = s.comp[:0]
		s.comp = protowire.AppendTag(s.comp, fieldTypeIndex, protowire.VarintType)
		s.comp = protowire.AppendVarint(s.comp, uint64(idx))
		s.comp = protowire.AppendTag(s.comp, fieldPayload, protowire.BytesType)
		s.comp = protowire.AppendBytes(s.comp, payload)

		buf = protowire.AppendTag(buf, fieldComponent, protowire.BytesType)
		buf = protowire.AppendBytes(buf, s.comp)
	}
	return buf, nil
}

func marshal(c ecs.Component) ([]byte, error) {
	if m, ok := c.(encoding.BinaryMarshaler); ok {
		return m.MarshalBinary()
	}
	return json.Marshal(c)
}

func unmarshal(c ecs.Component, payload []byte) error {
	if u, ok := c.(encoding.BinaryUnmarshaler); ok {
		return u.UnmarshalBinary(payload)
	}
	return json.Unmarshal(payload, c)
}
