package ecs

import (
	"bytes"
	"testing"

	"github.com/argus-labs/lockstep/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorld_NewWorldValidatesOptions(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	_, err := NewWorld(WorldOptions{})
	require.Error(t, err)

	_, err = NewWorld(WorldOptions{Definitions: reg, Aliases: reg, Factory: NewFactory(reg)})
	require.Error(t, err, "serializer is required")

	w, err := NewWorld(WorldOptions{
		Definitions: reg, Aliases: reg, Factory: NewFactory(reg), Serializer: testSerializer{},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), w.NextFrame())
	assert.Equal(t, uint64(DefaultHistoryFrames), w.History().historyFrames)
	assert.Equal(t, uint64(DefaultKeyframeInterval), w.History().keyframeInterval)
}

func TestWorld_TickRejectsWrongFrame(t *testing.T) {
	t.Parallel()
	fix := newTestFixture(t, 8, 4)

	in := fix.world.NewInput()
	in.SetFrame(2)
	require.ErrorIs(t, fix.world.Tick(in), ErrWrongFrame)
	assert.Equal(t, uint64(1), fix.world.NextFrame())
}

func TestWorld_SystemOrder(t *testing.T) {
	t.Parallel()
	fix := newTestFixture(t, 8, 4)

	var order []string
	record := func(name string) SystemFunc {
		return func() error {
			order = append(order, name)
			return nil
		}
	}
	fix.world.AddSystem(record("post"), WithHook(PostUpdate))
	fix.world.AddSystem(record("update-1"))
	fix.world.AddSystem(record("pre"), WithHook(PreUpdate))
	fix.world.AddSystem(record("update-2"), WithHook(Update))

	fix.tick(t, fix.world.NewInput())
	assert.Equal(t, []string{"pre", "update-1", "update-2", "post"}, order)
}

type failingSystem struct{}

func (failingSystem) Name() string {
	return "failing"
}

func (failingSystem) Execute() error {
	return eris.New("boom")
}

func TestWorld_SystemErrorAbortsTick(t *testing.T) {
	t.Parallel()
	fix := newTestFixture(t, 8, 4)

	ran := false
	fix.world.AddSystem(failingSystem{})
	fix.world.AddSystem(SystemFunc(func() error {
		ran = true
		return nil
	}))

	in := fix.world.NewInput()
	err := fix.world.Tick(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.False(t, ran, "systems after a failure don't run")
	assert.Equal(t, uint64(1), fix.world.NextFrame(), "failed tick records no frame")
}

func TestWorld_InputLivesForOneTick(t *testing.T) {
	t.Parallel()
	fix := newTestFixture(t, 8, 4)
	tt := fix.types
	repo := fix.world.Repo()

	var seen []int64
	fix.world.AddSystem(SystemFunc(func() error {
		q := NewQuery().Contains(fix.world.Graph().Single(tt.input))
		if err := q.Resolve(repo); err != nil {
			return err
		}
		for _, id := range q.Results() {
			in, err := Get[testutils.PlayerInput](repo, id)
			if err != nil {
				return err
			}
			assert.True(t, repo.IsNewEntity(id))
			seen = append(seen, in.Player)
		}
		return nil
	}))

	fix.tick(t, fix.input(t, testutils.PlayerInput{Player: 5}, testutils.PlayerInput{Player: 3}))
	assert.Equal(t, []int64{3, 5}, seen)
	assert.Equal(t, []EntityID{SingletonEntityID}, repo.EntityIDs(), "input entities are cleared after the tick")

	seen = nil
	fix.tick(t, fix.world.NewInput())
	assert.Empty(t, seen)
}

func TestWorld_SerializationLogging(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)

	var out bytes.Buffer
	w, err := NewWorld(WorldOptions{
		Definitions: reg,
		Aliases:     reg,
		Factory:     NewFactory(reg),
		Serializer:  testSerializer{},
		Logger:      zerolog.New(&out),
		LogFlags:    LogSerializationDetails,
	})
	require.NoError(t, err)

	in := w.NewInput()
	g, err := in.NewGroup(tt.inputAlias)
	require.NoError(t, err)
	require.NoError(t, in.AddGroup(g))
	require.NoError(t, w.Tick(in))

	logs := out.String()
	assert.Contains(t, logs, `"category":"serialization"`)
	assert.Contains(t, logs, `"message":"frame input"`)
	assert.Contains(t, logs, `"message":"frame done"`)
	assert.NotContains(t, logs, `"message":"entity created"`, "entity category is disabled")
}

func TestParseLogFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    LogFlags
		wantErr bool
	}{
		{in: "", want: LogNone},
		{in: "none", want: LogNone},
		{in: "all", want: LogAll},
		{in: "serialization", want: LogSerializationDetails},
		{in: "entity, Motion", want: LogEntityID | LogMotion},
		{in: "serialization,bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLogFlags(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			roundTrip, err := ParseLogFlags(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, roundTrip)
		})
	}
}
