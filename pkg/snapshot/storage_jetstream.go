package snapshot

import (
	"context"
	"math"

	"github.com/caarlos0/env/v11"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rotisserie/eris"
)

const defaultObjectName = "snapshot"

// JetStreamStorage implements Storage using a NATS JetStream object store. Each session gets its own
// bucket holding a single object that every Store overwrites.
type JetStreamStorage struct {
	os jetstream.ObjectStore
}

var _ Storage = (*JetStreamStorage)(nil)

// NewJetStreamStorage creates the session's bucket, or opens it if it already exists.
func NewJetStreamStorage(ctx context.Context, opts JetStreamStorageOptions) (*JetStreamStorage, error) {
	if err := opts.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid options passed")
	}
	if err := env.Parse(&opts); err != nil {
		return nil, eris.Wrap(err, "failed to parse env")
	}

	js, err := jetstream.New(opts.Conn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create JetStream client")
	}

	if opts.MaxBytes > math.MaxInt64 {
		return nil, eris.New("snapshot storage max bytes exceeds maximum int64 value")
	}

	bucket := bucketName(opts.SessionID)
	cfg := jetstream.ObjectStoreConfig{
		Bucket:   bucket,
		MaxBytes: int64(opts.MaxBytes), //nolint:gosec // checked above
	}
	os, err := js.CreateObjectStore(ctx, cfg)
	if err != nil {
		if !eris.Is(err, jetstream.ErrBucketExists) {
			return nil, eris.Wrapf(err, "failed to create ObjectStore (bucket=%s, maxBytes=%d)",
				cfg.Bucket, cfg.MaxBytes)
		}
		os, err = js.ObjectStore(ctx, bucket)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to get existing ObjectStore (bucket=%s)", bucket)
		}
	}

	return &JetStreamStorage{os: os}, nil
}

func (j *JetStreamStorage) Store(ctx context.Context, snapshot *Snapshot) error {
	data, err := Marshal(snapshot)
	if err != nil {
		return err
	}
	if _, err = j.os.PutBytes(ctx, defaultObjectName, data); err != nil {
		return eris.Wrap(err, "failed to store snapshot in ObjectStore")
	}
	return nil
}

func (j *JetStreamStorage) Load(ctx context.Context) (*Snapshot, error) {
	data, err := j.os.GetBytes(ctx, defaultObjectName)
	if err != nil {
		if eris.Is(err, jetstream.ErrObjectNotFound) {
			return nil, eris.Wrap(ErrSnapshotNotFound, "no snapshot in ObjectStore")
		}
		return nil, eris.Wrap(err, "failed to get snapshot from ObjectStore")
	}
	return Unmarshal(data)
}

func (j *JetStreamStorage) Exists(ctx context.Context) bool {
	_, err := j.os.GetInfo(ctx, defaultObjectName)
	return err == nil
}

// bucketName maps a session id to a valid bucket name. Only letters, digits, '-' and '_' are allowed.
func bucketName(session string) string {
	b := []byte("lockstep_" + session + "_snapshot")
	for i, c := range b {
		ok := c == '-' || c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !ok {
			b[i] = '_'
		}
	}
	return string(b)
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type JetStreamStorageOptions struct {
	Conn      *nats.Conn
	SessionID string

	// Maximum bytes for the object store. Required by some NATS providers like Synadia Cloud.
	MaxBytes uint64 `env:"LOCKSTEP_SNAPSHOT_STORAGE_MAX_BYTES" envDefault:"0"`
}

func (opt *JetStreamStorageOptions) Validate() error {
	if opt.Conn == nil {
		return eris.New("NATS connection cannot be nil")
	}
	if opt.SessionID == "" {
		return eris.New("session id cannot be empty")
	}
	return nil
}
