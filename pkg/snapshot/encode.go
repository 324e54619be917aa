package snapshot

import (
	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Envelope fields. The frame bytes are stored as produced by the world's serializer.
const (
	fieldFrame     protowire.Number = 1
	fieldHash      protowire.Number = 2
	fieldTimestamp protowire.Number = 3
	fieldVersion   protowire.Number = 4
	fieldData      protowire.Number = 5
)

// Marshal encodes a snapshot into its storage envelope.
func Marshal(s *Snapshot) ([]byte, error) {
	ts, err := proto.Marshal(timestamppb.New(s.Timestamp))
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal timestamp")
	}

	buf := make([]byte, 0, len(s.Data)+len(ts)+32)
	buf = protowire.AppendTag(buf, fieldFrame, protowire.VarintType)
	buf = protowire.AppendVarint(buf, s.Frame)
	buf = protowire.AppendTag(buf, fieldHash, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, s.Hash)
	buf = protowire.AppendTag(buf, fieldTimestamp, protowire.BytesType)
	buf = protowire.AppendBytes(buf, ts)
	buf = protowire.AppendTag(buf, fieldVersion, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(s.Version))
	buf = protowire.AppendTag(buf, fieldData, protowire.BytesType)
	buf = protowire.AppendBytes(buf, s.Data)
	return buf, nil
}

// Unmarshal decodes a storage envelope. Snapshots from a newer version are rejected.
func Unmarshal(data []byte) (*Snapshot, error) {
	s := &Snapshot{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, eris.Wrap(protowire.ParseError(n), "malformed snapshot tag")
		}
		data = data[n:]

		switch {
		case num == fieldFrame && typ == protowire.VarintType:
			s.Frame, n = protowire.ConsumeVarint(data)
		case num == fieldHash && typ == protowire.Fixed64Type:
			s.Hash, n = protowire.ConsumeFixed64(data)
		case num == fieldVersion && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			s.Version = uint32(v) //nolint:gosec // version is written from a uint32
		case num == fieldTimestamp && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				var ts timestamppb.Timestamp
				if err := proto.Unmarshal(raw, &ts); err != nil {
					return nil, eris.Wrap(err, "failed to unmarshal timestamp")
				}
				s.Timestamp = ts.AsTime()
			}
		case num == fieldData && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(data)
			s.Data = append([]byte(nil), raw...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, eris.Wrapf(protowire.ParseError(n), "malformed snapshot field %d", num)
		}
		data = data[n:]
	}

	if s.Version == 0 || s.Version > CurrentVersion {
		return nil, eris.Errorf("unsupported snapshot version %d", s.Version)
	}
	return s, nil
}
