package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Snapshot is the latest serialized frame of a world at a point in time.
type Snapshot struct {
	Frame     uint64
	Hash      uint64
	Timestamp time.Time
	Version   uint32
	Data      []byte
}

const CurrentVersion uint32 = 1

var ErrSnapshotNotFound = eris.New("snapshot not found")

// Storage provides persistence for world snapshots.
type Storage interface {
	// Store saves the snapshot, replacing any existing snapshot.
	Store(ctx context.Context, snapshot *Snapshot) error

	// Load retrieves the current snapshot. Returns ErrSnapshotNotFound if none was stored.
	Load(ctx context.Context) (*Snapshot, error)
}

// StorageType defines the type of snapshot storage to use.
type StorageType uint8

const (
	StorageTypeUndefined StorageType = iota
	StorageTypeNop
	StorageTypeJetStream
	StorageTypeRedis
)

const (
	nopStorageString       = "NOP"
	jetStreamStorageString = "JETSTREAM"
	redisStorageString     = "REDIS"
	undefinedStorageString = "UNDEFINED"
)

func (s StorageType) String() string {
	switch s {
	case StorageTypeNop:
		return nopStorageString
	case StorageTypeJetStream:
		return jetStreamStorageString
	case StorageTypeRedis:
		return redisStorageString
	case StorageTypeUndefined:
		return undefinedStorageString
	default:
		return undefinedStorageString
	}
}

func (s StorageType) IsValid() bool {
	return s == StorageTypeNop || s == StorageTypeJetStream || s == StorageTypeRedis
}

func ParseStorageType(s string) (StorageType, error) {
	switch strings.ToUpper(s) {
	case nopStorageString:
		return StorageTypeNop, nil
	case jetStreamStorageString:
		return StorageTypeJetStream, nil
	case redisStorageString:
		return StorageTypeRedis, nil
	default:
		return StorageTypeUndefined, eris.Errorf("invalid snapshot storage type: %s", s)
	}
}

// UnmarshalText lets StorageType be read from env vars and TOML.
func (s *StorageType) UnmarshalText(text []byte) error {
	t, err := ParseStorageType(string(text))
	if err != nil {
		return err
	}
	*s = t
	return nil
}
