package lockstep

import (
	"github.com/BurntSushi/toml"
	"github.com/argus-labs/lockstep/pkg/snapshot"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// runnerConfig is the file and environment form of Options. Unset fields are left zero so they
// don't override values from an earlier source.
type runnerConfig struct {
	// Session the runner belongs to. Names the snapshot bucket or key.
	SessionID string `env:"LOCKSTEP_SESSION_ID" toml:"session_id"`

	// Number of ticks per second.
	TickRate float64 `env:"LOCKSTEP_TICK_RATE" toml:"tick_rate"`

	// Number of most recent frames a rollback can reach.
	HistoryFrames uint64 `env:"LOCKSTEP_HISTORY_FRAMES" toml:"history_frames"`

	// Number of frames between keyframes.
	KeyframeInterval uint64 `env:"LOCKSTEP_KEYFRAME_INTERVAL" toml:"keyframe_interval"`

	// Stop after this many frames. Zero runs until cancelled.
	MaxFrames uint64 `env:"LOCKSTEP_MAX_FRAMES" toml:"max_frames"`

	// Export the latest frame every this many frames. Zero disables export.
	SnapshotEvery uint64 `env:"LOCKSTEP_SNAPSHOT_EVERY" toml:"snapshot_every"`

	// Snapshot storage ("nop", "jetstream", "redis").
	SnapshotStorage string `env:"LOCKSTEP_SNAPSHOT_STORAGE" toml:"snapshot_storage"`

	// Resume from the stored snapshot on start.
	LoadOnStart bool `env:"LOCKSTEP_LOAD_ON_START" toml:"load_on_start"`

	NATSURL   string `env:"LOCKSTEP_NATS_URL" toml:"nats_url"`
	RedisAddr string `env:"LOCKSTEP_REDIS_ADDR" toml:"redis_addr"`
}

// loadConfigEnv loads the runner configuration from environment variables.
func loadConfigEnv() (runnerConfig, error) {
	cfg := runnerConfig{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse runner config")
	}
	return cfg, nil
}

// loadConfigFile loads the runner configuration from a TOML file. Unknown keys are rejected.
func loadConfigFile(path string) (runnerConfig, error) {
	cfg := runnerConfig{}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, eris.Wrapf(err, "failed to decode config file %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, eris.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	return cfg, nil
}

func (cfg *runnerConfig) toOptions() (Options, error) {
	opt := Options{
		SessionID:        cfg.SessionID,
		TickRate:         cfg.TickRate,
		HistoryFrames:    cfg.HistoryFrames,
		KeyframeInterval: cfg.KeyframeInterval,
		MaxFrames:        cfg.MaxFrames,
		SnapshotEvery:    cfg.SnapshotEvery,
		LoadOnStart:      cfg.LoadOnStart,
		NATSURL:          cfg.NATSURL,
		RedisAddr:        cfg.RedisAddr,
	}
	if cfg.SnapshotStorage != "" {
		t, err := snapshot.ParseStorageType(cfg.SnapshotStorage)
		if err != nil {
			return opt, err
		}
		opt.SnapshotStorageType = t
	}
	return opt, nil
}

type Options struct {
	SessionID           string               // Names the snapshot bucket or key. Defaults to the instance id
	TickRate            float64              // Number of ticks per second
	HistoryFrames       uint64               // Rollback window in frames
	KeyframeInterval    uint64               // Frames between keyframes
	MaxFrames           uint64               // Stop after this many frames, zero runs until cancelled
	SnapshotEvery       uint64               // Frames between snapshot exports, zero disables export
	SnapshotStorageType snapshot.StorageType // Snapshot storage type
	LoadOnStart         bool                 // Resume from the stored snapshot
	NATSURL             string               // NATS server for JetStream snapshot storage
	RedisAddr           string               // Redis server for Redis snapshot storage
	ConfigFile          string               // Optional TOML file read before the environment
}

func newDefaultOptions() Options {
	return Options{
		SessionID:           "",
		TickRate:            30,
		HistoryFrames:       60,
		KeyframeInterval:    4,
		MaxFrames:           0,
		SnapshotEvery:       0,
		SnapshotStorageType: snapshot.StorageTypeNop,
		LoadOnStart:         false,
		NATSURL:             "nats://127.0.0.1:4222",
		RedisAddr:           "127.0.0.1:6379",
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.SessionID != "" {
		opt.SessionID = newOpt.SessionID
	}
	if newOpt.TickRate != 0.0 {
		opt.TickRate = newOpt.TickRate
	}
	if newOpt.HistoryFrames != 0 {
		opt.HistoryFrames = newOpt.HistoryFrames
	}
	if newOpt.KeyframeInterval != 0 {
		opt.KeyframeInterval = newOpt.KeyframeInterval
	}
	if newOpt.MaxFrames != 0 {
		opt.MaxFrames = newOpt.MaxFrames
	}
	if newOpt.SnapshotEvery != 0 {
		opt.SnapshotEvery = newOpt.SnapshotEvery
	}
	if newOpt.SnapshotStorageType != snapshot.StorageTypeUndefined {
		opt.SnapshotStorageType = newOpt.SnapshotStorageType
	}
	if newOpt.LoadOnStart {
		opt.LoadOnStart = true
	}
	if newOpt.NATSURL != "" {
		opt.NATSURL = newOpt.NATSURL
	}
	if newOpt.RedisAddr != "" {
		opt.RedisAddr = newOpt.RedisAddr
	}
	if newOpt.ConfigFile != "" {
		opt.ConfigFile = newOpt.ConfigFile
	}
}

// validate checks that all required options are set and valid.
func (opt *Options) validate() error {
	if opt.TickRate <= 0.0 {
		return eris.New("tick rate must be positive")
	}
	if opt.HistoryFrames == 0 {
		return eris.New("history frames cannot be 0")
	}
	if opt.KeyframeInterval == 0 {
		return eris.New("keyframe interval cannot be 0")
	}
	if opt.KeyframeInterval > opt.HistoryFrames {
		return eris.New("keyframe interval cannot exceed history frames")
	}
	if !opt.SnapshotStorageType.IsValid() {
		return eris.New("invalid snapshot storage type")
	}
	if opt.LoadOnStart && opt.SnapshotStorageType == snapshot.StorageTypeNop {
		return eris.New("load on start needs a snapshot storage")
	}
	return nil
}

// resolveOptions layers the sources: defaults, then the config file, then the environment, then
// opts.
func resolveOptions(opts Options) (Options, error) {
	options := newDefaultOptions()

	if opts.ConfigFile != "" {
		file, err := loadConfigFile(opts.ConfigFile)
		if err != nil {
			return options, err
		}
		fileOpts, err := file.toOptions()
		if err != nil {
			return options, eris.Wrap(err, "invalid config file")
		}
		options.apply(fileOpts)
	}

	envs, err := loadConfigEnv()
	if err != nil {
		return options, err
	}
	envOpts, err := envs.toOptions()
	if err != nil {
		return options, eris.Wrap(err, "invalid runner env vars")
	}
	options.apply(envOpts)
	options.apply(opts)

	if err := options.validate(); err != nil {
		return options, eris.Wrap(err, "invalid runner options")
	}
	return options, nil
}
