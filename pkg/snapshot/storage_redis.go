package snapshot

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisStorage implements Storage with plain Redis keys. The previous snapshot is kept under a
// backup key and replaced in the same transaction as the current one.
type RedisStorage struct {
	client redis.UniversalClient
	key    string
	backup string
}

var _ Storage = (*RedisStorage)(nil)

func NewRedisStorage(opts RedisStorageOptions) (*RedisStorage, error) {
	if err := opts.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid options passed")
	}
	key := "lockstep:" + opts.SessionID + ":snapshot"
	return &RedisStorage{client: opts.Client, key: key, backup: key + ":prev"}, nil
}

func (r *RedisStorage) Store(ctx context.Context, snapshot *Snapshot) error {
	data, err := Marshal(snapshot)
	if err != nil {
		return err
	}

	prev, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil && !eris.Is(err, redis.Nil) {
		return eris.Wrap(err, "failed to read current snapshot")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != nil {
			pipe.Set(ctx, r.backup, prev, 0)
		}
		pipe.Set(ctx, r.key, data, 0)
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "failed to store snapshot in redis")
	}
	return nil
}

func (r *RedisStorage) Load(ctx context.Context) (*Snapshot, error) {
	return r.load(ctx, r.key)
}

// LoadBackup retrieves the snapshot that the latest Store replaced.
func (r *RedisStorage) LoadBackup(ctx context.Context) (*Snapshot, error) {
	return r.load(ctx, r.backup)
}

func (r *RedisStorage) load(ctx context.Context, key string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if eris.Is(err, redis.Nil) {
			return nil, eris.Wrapf(ErrSnapshotNotFound, "no snapshot at %s", key)
		}
		return nil, eris.Wrapf(err, "failed to get snapshot at %s", key)
	}
	return Unmarshal(data)
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type RedisStorageOptions struct {
	Client    redis.UniversalClient
	SessionID string
}

func (opt *RedisStorageOptions) Validate() error {
	if opt.Client == nil {
		return eris.New("redis client cannot be nil")
	}
	if opt.SessionID == "" {
		return eris.New("session id cannot be empty")
	}
	return nil
}
