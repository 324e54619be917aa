package lockstep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/argus-labs/lockstep/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lockstep.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveOptions_Precedence(t *testing.T) {
	path := writeConfig(t, `
session_id = "from-file"
tick_rate = 20.0
history_frames = 30
snapshot_storage = "redis"
snapshot_every = 10
`)
	t.Setenv("LOCKSTEP_TICK_RATE", "50")
	t.Setenv("LOCKSTEP_SESSION_ID", "from-env")

	opts, err := resolveOptions(Options{ConfigFile: path, HistoryFrames: 40})
	require.NoError(t, err)

	assert.Equal(t, "from-env", opts.SessionID)
	assert.InDelta(t, 50.0, opts.TickRate, 0)
	assert.Equal(t, uint64(40), opts.HistoryFrames)
	assert.Equal(t, uint64(4), opts.KeyframeInterval, "default")
	assert.Equal(t, uint64(10), opts.SnapshotEvery)
	assert.Equal(t, snapshot.StorageTypeRedis, opts.SnapshotStorageType)
}

func TestResolveOptions_Defaults(t *testing.T) {
	opts, err := resolveOptions(Options{})
	require.NoError(t, err)
	want := newDefaultOptions()
	assert.Equal(t, want, opts)
}

func TestResolveOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
		opts Options
	}{
		{name: "unknown file key", file: `tick_rat = 3.0`},
		{name: "bad storage in file", file: `snapshot_storage = "s3"`},
		{name: "bad storage in env", env: map[string]string{"LOCKSTEP_SNAPSHOT_STORAGE": "disk"}},
		{name: "bad number in env", env: map[string]string{"LOCKSTEP_HISTORY_FRAMES": "many"}},
		{name: "negative tick rate", opts: Options{TickRate: -1}},
		{name: "keyframe interval over history", opts: Options{HistoryFrames: 4, KeyframeInterval: 5}},
		{name: "load without storage", opts: Options{LoadOnStart: true}},
		{name: "missing file", opts: Options{ConfigFile: "/nonexistent/lockstep.toml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := tt.opts
			if tt.file != "" {
				opts.ConfigFile = writeConfig(t, tt.file)
			}
			_, err := resolveOptions(opts)
			assert.Error(t, err)
		})
	}
}
