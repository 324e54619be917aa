package codec

import (
	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded top-level field.
type field struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

// eachField calls fn for every field of a message. Fields of unexpected wire types are skipped.
func eachField(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return eris.Wrap(protowire.ParseError(n), "malformed tag")
		}
		data = data[n:]

		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(data)
		case protowire.Fixed64Type:
			f.varint, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return eris.Wrapf(protowire.ParseError(n), "malformed field %d", num)
			}
			data = data[n:]
			continue
		}
		if n < 0 {
			return eris.Wrapf(protowire.ParseError(n), "malformed field %d", num)
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// DecodeFrame fills an empty snapshot with a frame encoded by SerializeFrame. Entities and
// components are checked out of the serializer's factory and owned by dst.
func (s *Serializer) DecodeFrame(data []byte, dst *ecs.FrameSnapshot) error {
	return eachField(data, func(f field) error {
		switch f.num {
		case fieldFrame:
			dst.Frame = f.varint
		case fieldNextID:
			dst.NextEntityID = ecs.EntityID(f.varint)
		case fieldEntity:
			e, err := s.factory.GetEntityData()
			if err != nil {
				return eris.Wrap(err, "failed to get snapshot entity")
			}
			if err := s.decodeEntity(f.bytes, e); err != nil {
				_ = s.factory.PutEntityData(e)
				return err
			}
			dst.AddEntity(e)
		}
		return nil
	})
}

func (s *Serializer) decodeEntity(data []byte, e *ecs.EntityData) error {
	return eachField(data, func(f field) error {
		switch f.num {
		case fieldEntityID:
			e.ID = ecs.EntityID(f.varint)
		case fieldNew:
			e.New = f.varint != 0
		case fieldComponent:
			if err := s.decodeComponent(f.bytes, &e.ComponentGroup); err != nil {
				return eris.Wrapf(err, "entity %d", e.ID)
			}
		}
		return nil
	})
}

// DecodeSync fills an empty sync record with a record encoded by SerializeSync.
func (s *Serializer) DecodeSync(data []byte, dst *ecs.SyncRecord) error {
	return eachField(data, func(f field) error {
		switch f.num {
		case fieldFrame:
			dst.Frame = f.varint
		case fieldHash:
			dst.Hash = f.varint
		case fieldGroup:
			g, err := s.decodeGroup(f.bytes)
			if err != nil {
				return err
			}
			dst.AddGroup(g)
		}
		return nil
	})
}

// DecodeInput fills an empty input with an input encoded by SerializeInput.
func (s *Serializer) DecodeInput(data []byte, dst *ecs.FrameInput) error {
	return eachField(data, func(f field) error {
		switch f.num {
		case fieldFrame:
			dst.SetFrame(f.varint)
		case fieldGroup:
			g, err := s.decodeGroup(f.bytes)
			if err != nil {
				return err
			}
			if err := dst.AddGroup(g); err != nil {
				_ = s.factory.PutGroup(g)
				return err
			}
		}
		return nil
	})
}

func (s *Serializer) decodeGroup(data []byte) (*ecs.ComponentGroup, error) {
	g, err := s.factory.GetGroup()
	if err != nil {
		return nil, eris.Wrap(err, "failed to get component group")
	}
	err = eachField(data, func(f field) error {
		if f.num != fieldComponent {
			return nil
		}
		return s.decodeComponent(f.bytes, g)
	})
	if err != nil {
		_ = s.factory.PutGroup(g)
		return nil, err
	}
	return g, nil
}

func (s *Serializer) decodeComponent(data []byte, g *ecs.ComponentGroup) error {
	var (
		idx      uint64
		payload  []byte
		hasIndex bool
	)
	err := eachField(data, func(f field) error {
		switch f.num {
		case fieldTypeIndex:
			idx = f.varint
			hasIndex = true
		case fieldPayload:
			payload = f.bytes
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !hasIndex || idx >= uint64(s.defs.Count()) { //nolint:gosec // count is at most 256
		return eris.Wrapf(ecs.ErrComponentNotRegistered, "type index %d", idx)
	}

	c, err := s.factory.Get(ecs.ComponentTypeIndex(idx))
	if err != nil {
		return eris.Wrap(err, "failed to get component")
	}
	if err := unmarshal(c, payload); err != nil {
		_ = s.factory.Put(c)
		return eris.Wrapf(err, "failed to decode component %s", c.Name())
	}
	if old := g.Set(ecs.ComponentTypeIndex(idx), c); old != nil {
		return s.factory.Put(old)
	}
	return nil
}
