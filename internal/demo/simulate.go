package demo

import (
	"math/rand/v2"

	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/argus-labs/lockstep/pkg/lockstep"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type SimulateOptions struct {
	Frames           uint64
	Players          int64
	Seed             uint64
	RollbackEvery    uint64 // Roll back to a random recent frame every this many frames, zero disables
	HistoryFrames    uint64
	KeyframeInterval uint64
	Logger           zerolog.Logger
	LogFlags         ecs.LogFlags
}

type SimulateResult struct {
	Hashes    []uint64 // Hashes[i] is the hash of frame i+1
	Rollbacks int
	Arena     Arena
	Entities  int
}

// Simulate runs the scripted game headless. Every rollback re-simulates up to the frame it started
// from and checks the replayed hashes against the ones first recorded.
func Simulate(opts SimulateOptions) (SimulateResult, error) {
	game := NewGame()
	session, err := lockstep.NewSession(game, lockstep.SessionOptions{
		HistoryFrames:    opts.HistoryFrames,
		KeyframeInterval: opts.KeyframeInterval,
		Logger:           opts.Logger,
		LogFlags:         opts.LogFlags,
	})
	if err != nil {
		return SimulateResult{}, err
	}

	w := session.World
	script := NewScript(game, opts.Players, opts.Seed)
	rng := rand.New(rand.NewPCG(opts.Seed, ^opts.Seed)) //nolint:gosec // rollback targets only

	result := SimulateResult{Hashes: make([]uint64, 0, opts.Frames)}
	for frame := uint64(1); frame <= opts.Frames; frame++ {
		hash, err := Step(w, script)
		if err != nil {
			return result, err
		}
		result.Hashes = append(result.Hashes, hash)

		if opts.RollbackEvery == 0 || frame%opts.RollbackEvery != 0 {
			continue
		}
		start := w.History().HistoryStart()
		target := start + rng.Uint64N(frame-start+1)
		if err := w.RestoreToFrame(target); err != nil {
			return result, eris.Wrapf(err, "failed to roll back from frame %d to %d", frame, target)
		}
		result.Rollbacks++
		for f := target + 1; f <= frame; f++ {
			hash, err := Step(w, script)
			if err != nil {
				return result, err
			}
			if hash != result.Hashes[f-1] {
				return result, eris.Wrapf(ecs.ErrDesyncDetected,
					"frame %d re-simulated to %x, first run was %x", f, hash, result.Hashes[f-1])
			}
		}
	}

	arena, err := ecs.Singleton[Arena](w.Repo())
	if err != nil {
		return result, err
	}
	result.Arena = *arena
	result.Entities = w.Repo().Len()
	return result, nil
}

// Step ticks w with the script's input for the next frame and returns the new frame's hash.
func Step(w *ecs.World, script *Script) (uint64, error) {
	in := w.NewInput()
	defer func() {
		_ = in.Release()
	}()

	if err := script.Fill(in); err != nil {
		return 0, err
	}
	if err := w.Tick(in); err != nil {
		return 0, err
	}
	hash, _ := w.LatestFrameHash()
	return hash, nil
}
