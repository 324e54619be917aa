package lockstep

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/argus-labs/lockstep/pkg/assert"
	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/argus-labs/lockstep/pkg/snapshot"
	"github.com/argus-labs/lockstep/pkg/telemetry"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// InputSource supplies the input of each frame. Every peer must receive the same input for a
// frame.
type InputSource interface {
	// Input fills in, an empty input for in.Frame(). It may block until the input is available.
	Input(ctx context.Context, in *ecs.FrameInput) error
}

// Runner drives a session at a fixed tick rate and periodically exports the latest frame.
type Runner struct {
	session *Session
	source  InputSource
	storage snapshot.Storage

	options Options
	tel     telemetry.Telemetry
	log     zerolog.Logger

	buf    []byte // Reused for snapshot export
	frames uint64 // Frames ticked by this runner
	closer func()
}

// RunnerOption customizes a runner beyond its Options.
type RunnerOption func(*Runner)

// WithStorage replaces the storage selected by Options.SnapshotStorageType.
func WithStorage(s snapshot.Storage) RunnerOption {
	return func(r *Runner) {
		r.storage = s
	}
}

// NewRunner creates a runner for game. Options are layered over the config file and environment.
func NewRunner(game Game, source InputSource, opts Options, runnerOpts ...RunnerOption) (*Runner, error) {
	options, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(telemetry.Options{ServiceName: "lockstep"})
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize telemetry")
	}
	if options.SessionID == "" {
		options.SessionID = tel.InstanceID.String()
	}

	session, err := NewSession(game, SessionOptions{
		HistoryFrames:    options.HistoryFrames,
		KeyframeInterval: options.KeyframeInterval,
		Logger:           tel.GetLogger("world"),
		LogFlags:         tel.LogFlags,
	})
	if err != nil {
		return nil, err
	}

	r := &Runner{
		session: session,
		source:  source,
		options: options,
		tel:     tel,
		log:     tel.GetLogger("runner"),
		closer:  func() {},
	}
	for _, opt := range runnerOpts {
		opt(r)
	}
	if r.storage == nil {
		if err := r.setupStorage(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) setupStorage() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch r.options.SnapshotStorageType {
	case snapshot.StorageTypeNop:
		r.storage = snapshot.NewNopStorage()
	case snapshot.StorageTypeJetStream:
		nc, err := nats.Connect(r.options.NATSURL, nats.Name("lockstep-"+r.options.SessionID))
		if err != nil {
			return eris.Wrapf(err, "failed to connect to NATS at %s", r.options.NATSURL)
		}
		storage, err := snapshot.NewJetStreamStorage(ctx, snapshot.JetStreamStorageOptions{
			Conn:      nc,
			SessionID: r.options.SessionID,
		})
		if err != nil {
			nc.Close()
			return eris.Wrap(err, "failed to create jetstream snapshot storage")
		}
		r.storage = storage
		r.closer = nc.Close
	case snapshot.StorageTypeRedis:
		client := redis.NewClient(&redis.Options{Addr: r.options.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return eris.Wrapf(err, "failed to reach redis at %s", r.options.RedisAddr)
		}
		storage, err := snapshot.NewRedisStorage(snapshot.RedisStorageOptions{
			Client:    client,
			SessionID: r.options.SessionID,
		})
		if err != nil {
			_ = client.Close()
			return eris.Wrap(err, "failed to create redis snapshot storage")
		}
		r.storage = storage
		r.closer = func() { _ = client.Close() }
	case snapshot.StorageTypeUndefined:
		assert.That(false, "unreachable")
	}
	return nil
}

// Start runs the session until SIGINT, SIGTERM or MaxFrames.
func (r *Runner) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := r.Run(ctx)
	if eris.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Run ticks the session at the configured rate until ctx is done or MaxFrames frames were ticked.
// Storage connections are closed on return.
func (r *Runner) Run(ctx context.Context) error {
	defer r.shutdown()

	if r.options.LoadOnStart {
		if err := r.load(ctx); err != nil {
			return err
		}
	}

	r.log.Info().
		Str("session", r.options.SessionID).
		Float64("tick_rate", r.options.TickRate).
		Uint64("frame", r.session.World.NextFrame()).
		Msg("starting tick loop")

	ticker := time.NewTicker(time.Duration(float64(time.Second) / r.options.TickRate))
	defer ticker.Stop()

	for r.options.MaxFrames == 0 || r.frames < r.options.MaxFrames {
		select {
		case <-ticker.C:
			if err := r.Step(ctx); err != nil {
				return eris.Wrapf(err, "failed to run frame %d", r.session.World.NextFrame())
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Leave the final state in storage even when it's off the export cadence.
	if r.options.SnapshotEvery > 0 {
		return r.export(ctx)
	}
	return nil
}

// Step collects the next frame's input, ticks the world and exports the frame when it's due.
func (r *Runner) Step(ctx context.Context) error {
	w := r.session.World

	in := w.NewInput()
	defer func() {
		_ = in.Release()
	}()

	if err := r.source.Input(ctx, in); err != nil {
		return eris.Wrap(err, "failed to get input")
	}
	if err := w.Tick(in); err != nil {
		return eris.Wrap(err, "tick failed")
	}
	r.frames++

	frame := w.NextFrame() - 1
	if r.options.SnapshotEvery > 0 && frame%r.options.SnapshotEvery == 0 {
		return r.export(ctx)
	}
	return nil
}

func (r *Runner) export(ctx context.Context) error {
	w := r.session.World
	hash, ok := w.LatestFrameHash()
	if !ok {
		return nil
	}

	buf, n := w.LatestFrameSerialized(false, r.buf)
	r.buf = buf
	snap := &snapshot.Snapshot{
		Frame:     w.NextFrame() - 1,
		Hash:      hash,
		Timestamp: time.Now(),
		Version:   snapshot.CurrentVersion,
		Data:      buf[:n],
	}
	if err := r.storage.Store(ctx, snap); err != nil {
		return eris.Wrapf(err, "failed to store snapshot of frame %d", snap.Frame)
	}
	r.log.Debug().Uint64("frame", snap.Frame).Str("hash", formatHash(hash)).Msg("stored snapshot")
	return nil
}

// load resumes from the stored snapshot. A missing snapshot starts a fresh session.
func (r *Runner) load(ctx context.Context) error {
	snap, err := r.storage.Load(ctx)
	if err != nil {
		if eris.Is(err, snapshot.ErrSnapshotNotFound) {
			r.log.Info().Msg("no stored snapshot, starting from frame 1")
			return nil
		}
		return eris.Wrap(err, "failed to load snapshot")
	}

	hash, err := r.session.LoadSerialized(snap.Data)
	if err != nil {
		return eris.Wrapf(err, "failed to load frame %d", snap.Frame)
	}
	if hash != snap.Hash {
		return eris.Wrapf(ecs.ErrDesyncDetected, "snapshot of frame %d has hash %s, loaded state has %s",
			snap.Frame, formatHash(snap.Hash), formatHash(hash))
	}
	r.log.Info().Uint64("frame", snap.Frame).Str("hash", formatHash(hash)).Msg("resumed from snapshot")
	return nil
}

func (r *Runner) shutdown() {
	r.closer()
	r.closer = func() {}
	r.log.Info().Uint64("frames", r.frames).Msg("runner stopped")
}

// Session returns the runner's session.
func (r *Runner) Session() *Session {
	return r.session
}

// Options returns the resolved options.
func (r *Runner) Options() Options {
	return r.options
}

func formatHash(h uint64) string {
	return strconv.FormatUint(h, 16)
}
