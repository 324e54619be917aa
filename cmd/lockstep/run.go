package main

import (
	"github.com/argus-labs/lockstep/internal/demo"
	"github.com/argus-labs/lockstep/pkg/lockstep"
	"github.com/argus-labs/lockstep/pkg/snapshot"
	"github.com/spf13/cobra"
)

func NewRunCmd() *cobra.Command {
	var (
		opts    lockstep.Options
		storage string
		players int64
		seed    uint64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the arena at a fixed tick rate, exporting snapshots",
		Long: "Run the arena at a fixed tick rate. Settings are read from the config file, then " +
			"LOCKSTEP_* environment variables, then flags.",
		Example: "lockstep run --config lockstep.toml --snapshot-storage redis --snapshot-every 30",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if storage != "" {
				t, err := snapshot.ParseStorageType(storage)
				if err != nil {
					return err
				}
				opts.SnapshotStorageType = t
			}

			game := demo.NewGame()
			r, err := lockstep.NewRunner(game, demo.NewScript(game, players, seed), opts)
			if err != nil {
				return err
			}
			return r.Start()
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigFile, "config", "", "TOML config file")
	f.StringVar(&opts.SessionID, "session", "", "session id, defaults to a random instance id")
	f.Float64Var(&opts.TickRate, "tick-rate", 0, "ticks per second")
	f.Uint64Var(&opts.MaxFrames, "frames", 0, "stop after this many frames, 0 runs until interrupted")
	f.Uint64Var(&opts.SnapshotEvery, "snapshot-every", 0, "export the latest frame every this many frames")
	f.StringVar(&storage, "snapshot-storage", "", "snapshot storage (nop, jetstream, redis)")
	f.BoolVar(&opts.LoadOnStart, "load", false, "resume from the stored snapshot")
	f.StringVar(&opts.NATSURL, "nats-url", "", "NATS server for jetstream storage")
	f.StringVar(&opts.RedisAddr, "redis-addr", "", "redis server for redis storage")
	f.Int64Var(&players, "players", 4, "number of scripted players")
	f.Uint64Var(&seed, "seed", 1, "seed of the scripted input")
	return cmd
}
