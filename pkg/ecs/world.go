// Package ecs is the storage and time-travel core of a deterministic entity component simulation.
// Entities live in tables keyed by their exact archetype. Every tick is recorded, and the world can
// be rolled back to a recent frame and re-simulated with the recorded input.
package ecs

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// WorldOptions holds the collaborators and settings of a world.
type WorldOptions struct {
	Definitions ComponentDefinitions
	Aliases     AliasLookup
	Factory     ComponentFactory
	Serializer  FrameSerializer

	Logger   zerolog.Logger
	LogFlags LogFlags

	HistoryFrames    uint64 // Defaults to DefaultHistoryFrames
	KeyframeInterval uint64 // Defaults to DefaultKeyframeInterval
}

func (o *WorldOptions) validate() error {
	if o.Definitions == nil {
		return eris.New("component definitions are required")
	}
	if o.Aliases == nil {
		return eris.New("alias lookup is required")
	}
	if o.Factory == nil {
		return eris.New("component factory is required")
	}
	if o.Serializer == nil {
		return eris.New("frame serializer is required")
	}
	if o.HistoryFrames == 0 {
		o.HistoryFrames = DefaultHistoryFrames
	}
	if o.KeyframeInterval == 0 {
		o.KeyframeInterval = DefaultKeyframeInterval
	}
	return nil
}

// World is a deterministic simulation with rollback. A World is not safe for concurrent use.
type World struct {
	defs       ComponentDefinitions
	aliases    AliasLookup
	factory    ComponentFactory
	serializer FrameSerializer
	log        *WorldLogger

	graph   *ArchetypeGraph
	repo    *EntityRepo
	history *FrameHistory

	systems  [3][]registeredSystem // Indexed by SystemHook
	inputBuf []byte
}

// NewWorld creates a world holding only the singleton entity. The first tick is frame 1.
func NewWorld(opts WorldOptions) (*World, error) {
	if err := opts.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid world options")
	}

	log := NewWorldLogger(opts.Logger, opts.LogFlags)
	graph, err := NewArchetypeGraph(opts.Definitions, opts.Aliases)
	if err != nil {
		return nil, eris.Wrap(err, "failed to build archetype graph")
	}
	repo, err := NewEntityRepo(graph, opts.Definitions, opts.Factory, log)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create entity repo")
	}
	history, err := NewFrameHistory(
		repo, graph, opts.Factory, opts.Serializer, log, opts.HistoryFrames, opts.KeyframeInterval)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create frame history")
	}

	return &World{
		defs:       opts.Definitions,
		aliases:    opts.Aliases,
		factory:    opts.Factory,
		serializer: opts.Serializer,
		log:        log,
		graph:      graph,
		repo:       repo,
		history:    history,
	}, nil
}

// AddSystem registers a system. Systems run by hook, then in registration order.
func (w *World) AddSystem(sys System, opts ...SystemOption) {
	cfg := systemConfig{hook: Update}
	for _, opt := range opts {
		opt(&cfg)
	}
	w.systems[cfg.hook] = append(w.systems[cfg.hook], registeredSystem{
		name:   systemName(sys, cfg),
		system: sys,
	})
}

// Tick applies input and runs every system, producing the next frame. If a system fails the tick
// is aborted and the world must be restored or reloaded before it is ticked again.
func (w *World) Tick(input InputData) error {
	frame := w.history.NextFrame()
	if input.Frame() != frame {
		return eris.Wrapf(ErrWrongFrame, "got input for frame %d, next frame is %d", input.Frame(), frame)
	}

	if w.log.Enabled(LogSerializationDetails) {
		w.logInput(input)
	}

	if err := w.repo.PrepareNextFrame(input); err != nil {
		return eris.Wrapf(err, "failed to prepare frame %d", frame)
	}

	for hook := range w.systems {
		for _, s := range w.systems[hook] {
			if err := s.system.Execute(); err != nil {
				return eris.Wrapf(err, "system %s failed in frame %d", s.name, frame)
			}
		}
	}

	if err := w.history.TakeFrameSnapshot(); err != nil {
		return eris.Wrapf(err, "failed to snapshot frame %d", frame)
	}

	if w.log.Enabled(LogSerializationDetails) {
		hash, _ := w.history.LatestFrameHash()
		w.log.Event(LogSerializationDetails).
			Uint64("frame", frame).
			Str("hash", formatHash(hash)).
			Str("state", w.repo.StateString()).
			Msg("frame done")
	}

	if err := w.repo.ClearInputEntities(); err != nil {
		return eris.Wrapf(err, "failed to clear input of frame %d", frame)
	}
	return nil
}

func (w *World) logInput(input InputData) {
	buf, err := w.serializer.SerializeInput(w.graph, input, w.inputBuf[:0])
	if err != nil {
		w.log.Logger().Warn().Err(err).Uint64("frame", input.Frame()).Msg("failed to serialize input")
		return
	}
	w.inputBuf = buf
	w.log.Event(LogSerializationDetails).
		Uint64("frame", input.Frame()).
		Int("groups", len(input.Groups())).
		Int("bytes", len(buf)).
		Str("state", w.repo.StateString()).
		Msg("frame input")
}

// RestoreToFrame rolls the world back to a past frame by loading the closest keyframe and replaying
// the recorded input. Every replayed frame must reproduce its recorded hash.
func (w *World) RestoreToFrame(frame uint64) error {
	return w.history.RestoreToFrame(frame, w.Tick)
}

// LoadFrame discards the history and continues from snap. It returns the hash of the loaded state.
func (w *World) LoadFrame(snap *FrameSnapshot) (uint64, error) {
	hash, err := w.history.LoadFrame(snap)
	if err != nil {
		return 0, err
	}
	if err := w.repo.ClearInputEntities(); err != nil {
		return 0, eris.Wrap(err, "failed to clear input entities")
	}
	return hash, nil
}

// NewInput creates an empty input for the next frame.
func (w *World) NewInput() *FrameInput {
	return NewFrameInput(w.history.NextFrame(), w.defs, w.aliases, w.factory)
}

// LatestFrameSerialized forwards to FrameHistory.LatestFrameSerialized.
func (w *World) LatestFrameSerialized(backAlign bool, buf []byte) ([]byte, int) {
	return w.history.LatestFrameSerialized(backAlign, buf)
}

// LatestFrameSyncSerialized forwards to FrameHistory.LatestFrameSyncSerialized.
func (w *World) LatestFrameSyncSerialized(buf []byte) ([]byte, error) {
	return w.history.LatestFrameSyncSerialized(buf)
}

// LatestFrameHash returns the hash of the most recent frame, if any.
func (w *World) LatestFrameHash() (uint64, bool) {
	return w.history.LatestFrameHash()
}

// FrameHash returns the recorded hash of a frame still in the history.
func (w *World) FrameHash(frame uint64) (uint64, bool) {
	return w.history.FrameHash(frame)
}

// NextFrame returns the number of the frame the next Tick produces.
func (w *World) NextFrame() uint64 {
	return w.history.NextFrame()
}

// CloneLatestFrame forwards to FrameHistory.CloneLatestFrame.
func (w *World) CloneLatestFrame(target *FrameSnapshot) error {
	return w.history.CloneLatestFrame(target)
}

// Repo returns the entity repository. Systems read and write entities through it.
func (w *World) Repo() *EntityRepo {
	return w.repo
}

// Graph returns the archetype graph.
func (w *World) Graph() *ArchetypeGraph {
	return w.graph
}

// History returns the frame history.
func (w *World) History() *FrameHistory {
	return w.history
}

// Definitions returns the component definitions the world was built with.
func (w *World) Definitions() ComponentDefinitions {
	return w.defs
}

// Aliases returns the alias lookup the world was built with.
func (w *World) Aliases() AliasLookup {
	return w.aliases
}

// Factory returns the component factory.
func (w *World) Factory() ComponentFactory {
	return w.factory
}

// Logger returns the world's category logger.
func (w *World) Logger() *WorldLogger {
	return w.log
}

// StateString renders the world's entities and history.
func (w *World) StateString() string {
	return w.repo.StateString() + w.history.StateString()
}

func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
