package lockstep

import (
	"github.com/argus-labs/lockstep/pkg/codec"
	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/argus-labs/lockstep/pkg/pool"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Game declares the content of a world: its component types, aliases and systems.
type Game interface {
	// Register registers every component type and alias. Registration order fixes the type
	// indices, so it must be the same on every peer.
	Register(reg *ecs.Registry) error

	// AddSystems adds the game's systems to a newly created world.
	AddSystems(w *ecs.World) error
}

// Session is a world wired with the default registry, pooled factory and codec.
type Session struct {
	World    *ecs.World
	Registry *ecs.Registry
	Factory  *ecs.Factory
	Codec    *codec.Serializer
}

type SessionOptions struct {
	HistoryFrames    uint64
	KeyframeInterval uint64
	Logger           zerolog.Logger
	LogFlags         ecs.LogFlags
	PoolOptions      []pool.Option
}

// NewSession builds a world for game.
func NewSession(game Game, opts SessionOptions) (*Session, error) {
	reg := ecs.NewRegistry()
	if err := game.Register(reg); err != nil {
		return nil, eris.Wrap(err, "failed to register game types")
	}

	factory := ecs.NewFactory(reg, opts.PoolOptions...)
	serializer := codec.New(reg, factory)
	w, err := ecs.NewWorld(ecs.WorldOptions{
		Definitions:      reg,
		Aliases:          reg,
		Factory:          factory,
		Serializer:       serializer,
		Logger:           opts.Logger,
		LogFlags:         opts.LogFlags,
		HistoryFrames:    opts.HistoryFrames,
		KeyframeInterval: opts.KeyframeInterval,
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to create world")
	}
	if err := game.AddSystems(w); err != nil {
		return nil, eris.Wrap(err, "failed to add game systems")
	}

	return &Session{World: w, Registry: reg, Factory: factory, Codec: serializer}, nil
}

// LoadSerialized replaces the world with a frame encoded by the codec and returns the frame's
// hash.
func (s *Session) LoadSerialized(data []byte) (uint64, error) {
	snap := ecs.NewFrameSnapshot()
	defer func() {
		_ = snap.Release(s.Factory)
	}()

	if err := s.Codec.DecodeFrame(data, snap); err != nil {
		return 0, eris.Wrap(err, "failed to decode frame")
	}
	return s.World.LoadFrame(snap)
}
