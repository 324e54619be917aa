package main

import (
	"fmt"

	"github.com/argus-labs/lockstep/internal/demo"
	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/argus-labs/lockstep/pkg/telemetry"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

func NewSimulateCmd() *cobra.Command {
	var (
		opts     demo.SimulateOptions
		logFlags string
	)
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run the arena headless, rolling back periodically to verify replays",
		Example: "lockstep simulate --frames 1000 --players 4 --rollback-every 9",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags, err := ecs.ParseLogFlags(logFlags)
			if err != nil {
				return err
			}
			tel, err := telemetry.New(telemetry.Options{ServiceName: "lockstep", LogFlags: flags})
			if err != nil {
				return eris.Wrap(err, "failed to initialize telemetry")
			}
			opts.Logger = tel.GetLogger("world")
			opts.LogFlags = tel.LogFlags

			res, err := demo.Simulate(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "frames:     %d\n", len(res.Hashes))
			fmt.Fprintf(out, "rollbacks:  %d\n", res.Rollbacks)
			fmt.Fprintf(out, "entities:   %d\n", res.Entities)
			fmt.Fprintf(out, "shots:      %d\n", res.Arena.Shots)
			fmt.Fprintf(out, "kills:      %d\n", res.Arena.Kills)
			if n := len(res.Hashes); n > 0 {
				fmt.Fprintf(out, "final hash: %016x\n", res.Hashes[n-1])
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Uint64Var(&opts.Frames, "frames", 600, "number of frames to simulate")
	f.Int64Var(&opts.Players, "players", 4, "number of scripted players")
	f.Uint64Var(&opts.Seed, "seed", 1, "seed of the scripted input")
	f.Uint64Var(&opts.RollbackEvery, "rollback-every", 10, "roll back every this many frames, 0 disables")
	f.Uint64Var(&opts.HistoryFrames, "history", ecs.DefaultHistoryFrames, "frames a rollback can reach")
	f.Uint64Var(&opts.KeyframeInterval, "keyframe-interval", ecs.DefaultKeyframeInterval, "frames between keyframes")
	f.StringVar(&logFlags, "log-flags", "", "debug log categories (serialization, entity, motion, all)")
	return cmd
}
