package ecs

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/argus-labs/lockstep/pkg/pool"
	"github.com/argus-labs/lockstep/pkg/testutils"
	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// -------------------------------------------------------------------------------------------------
// Registry fixture
// -------------------------------------------------------------------------------------------------

type testTypes struct {
	position ComponentTypeIndex
	velocity ComponentTypeIndex
	health   ComponentTypeIndex
	tag      ComponentTypeIndex
	input    ComponentTypeIndex
	spawn    ComponentTypeIndex
	clock    ComponentTypeIndex
	owner    ComponentTypeIndex

	inputAlias AliasID // player_input
	moverAlias AliasID // owner, position, velocity
}

func newTestRegistry(t *testing.T) (*Registry, testTypes) {
	t.Helper()

	r := NewRegistry()
	var tt testTypes
	var err error

	tt.position, err = Register[testutils.Position](r)
	require.NoError(t, err)
	tt.velocity, err = Register[testutils.Velocity](r)
	require.NoError(t, err)
	tt.health, err = Register[testutils.Health](r)
	require.NoError(t, err)
	tt.tag, err = Register[testutils.Tag](r, CopyWith(func(dst, src *testutils.Tag) {
		dst.Labels = slices.Clone(src.Labels)
	}))
	require.NoError(t, err)
	tt.input, err = Register[testutils.PlayerInput](r,
		KeyField(func(p *testutils.PlayerInput) int64 { return p.Player }))
	require.NoError(t, err)
	tt.spawn, err = Register[testutils.Spawn](r, SingleFrame())
	require.NoError(t, err)
	tt.clock, err = Register[testutils.Clock](r, AsSingleton())
	require.NoError(t, err)
	tt.owner, err = Register[testutils.Owner](r,
		KeyField(func(o *testutils.Owner) int64 { return o.Player }))
	require.NoError(t, err)

	tt.inputAlias, err = r.RegisterAlias("player_input", []ComponentTypeIndex{tt.input}, AsInput(tt.input))
	require.NoError(t, err)
	tt.moverAlias, err = r.RegisterAlias("mover", []ComponentTypeIndex{tt.owner, tt.position, tt.velocity})
	require.NoError(t, err)

	return r, tt
}

// -------------------------------------------------------------------------------------------------
// Serializer fixture
// -------------------------------------------------------------------------------------------------

// testSerializer writes a plain text encoding of frames.
type testSerializer struct{}

var _ FrameSerializer = testSerializer{}

func (testSerializer) SerializeFrame(g *ArchetypeGraph, snap *FrameSnapshot, buf []byte) ([]byte, error) {
	buf = fmt.Appendf(buf, "frame=%d next=%d\n", snap.Frame, snap.NextEntityID)
	for _, e := range snap.Entities() {
		buf = fmt.Appendf(buf, "%d new=%t", e.ID, e.New)
		var err error
		if buf, err = appendGroupJSON(buf, g, &e.ComponentGroup); err != nil {
			return buf, err
		}
	}
	return buf, nil
}

func (testSerializer) SerializeSync(g *ArchetypeGraph, rec *SyncRecord, buf []byte) ([]byte, error) {
	buf = fmt.Appendf(buf, "sync=%d hash=%x\n", rec.Frame, rec.Hash)
	for _, group := range rec.Groups() {
		var err error
		if buf, err = appendGroupJSON(buf, g, group); err != nil {
			return buf, err
		}
	}
	return buf, nil
}

func (testSerializer) SerializeInput(g *ArchetypeGraph, input InputData, buf []byte) ([]byte, error) {
	buf = fmt.Appendf(buf, "input=%d\n", input.Frame())
	for _, group := range input.Groups() {
		var err error
		if buf, err = appendGroupJSON(buf, g, group); err != nil {
			return buf, err
		}
	}
	return buf, nil
}

func (testSerializer) Hash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

func appendGroupJSON(buf []byte, g *ArchetypeGraph, group *ComponentGroup) ([]byte, error) {
	for _, idx := range g.ComponentIndices(group.Archetype()) {
		c, _ := group.Get(idx)
		b, err := json.Marshal(c)
		if err != nil {
			return buf, err
		}
		buf = fmt.Appendf(buf, " %d:%s", idx, b)
	}
	return append(buf, '\n'), nil
}

// -------------------------------------------------------------------------------------------------
// World fixture
// -------------------------------------------------------------------------------------------------

type testFixture struct {
	world   *World
	reg     *Registry
	factory *Factory
	types   testTypes
}

func newTestFixture(t *testing.T, historyFrames, keyframeInterval uint64) *testFixture {
	t.Helper()

	reg, tt := newTestRegistry(t)
	factory := NewFactory(reg, pool.WithAlertSize(1<<16))
	w, err := NewWorld(WorldOptions{
		Definitions:      reg,
		Aliases:          reg,
		Factory:          factory,
		Serializer:       testSerializer{},
		Logger:           zerolog.Nop(),
		HistoryFrames:    historyFrames,
		KeyframeInterval: keyframeInterval,
	})
	require.NoError(t, err)

	return &testFixture{world: w, reg: reg, factory: factory, types: tt}
}

// addGameSystems registers a small game: input steers or spawns the player's mover, movers move,
// the clock advances, and every third tick a single-frame spawn marker appears.
func (f *testFixture) addGameSystems() {
	repo := f.world.Repo()
	g := f.world.Graph()
	tt := f.types

	inputArch := g.ArchetypeFor(tt.input)
	moverArch := g.ArchetypeFor(tt.position, tt.velocity)

	f.world.AddSystem(SystemFunc(func() error {
		q := NewQuery().Contains(inputArch)
		if err := q.Resolve(repo); err != nil {
			return err
		}
		for _, id := range slices.Clone(q.Results()) {
			in, err := Get[testutils.PlayerInput](repo, id)
			if err != nil {
				return err
			}
			owned := NewQuery().MatchKey(tt.owner, in.Player)
			if err := owned.Resolve(repo); err != nil {
				return err
			}
			var mover EntityID
			if len(owned.Results()) == 0 {
				if mover, err = repo.CreateAliasEntity(tt.moverAlias); err != nil {
					return err
				}
				owner, err := Get[testutils.Owner](repo, mover)
				if err != nil {
					return err
				}
				owner.Player = in.Player
			} else {
				mover = owned.Results()[0]
			}
			vel, err := Get[testutils.Velocity](repo, mover)
			if err != nil {
				return err
			}
			vel.DX, vel.DY = in.DX, in.DY
		}
		return nil
	}), WithName("input"), WithHook(PreUpdate))

	f.world.AddSystem(SystemFunc(func() error {
		q := NewQuery().Contains(moverArch)
		if err := q.Resolve(repo); err != nil {
			return err
		}
		for _, id := range q.Results() {
			pos, err := Get[testutils.Position](repo, id)
			if err != nil {
				return err
			}
			vel, err := Get[testutils.Velocity](repo, id)
			if err != nil {
				return err
			}
			pos.X += vel.DX
			pos.Y += vel.DY
		}
		return nil
	}), WithName("move"))

	f.world.AddSystem(SystemFunc(func() error {
		clock, err := Singleton[testutils.Clock](repo)
		if err != nil {
			return err
		}
		clock.Ticks++
		if clock.Ticks%3 == 0 {
			id, err := repo.CreateEntity(g.ArchetypeFor(tt.spawn))
			if err != nil {
				return err
			}
			spawn, err := Get[testutils.Spawn](repo, id)
			if err != nil {
				return err
			}
			spawn.X = int64(clock.Ticks) //nolint:gosec // small test values
		}
		return nil
	}), WithName("clock"), WithHook(PostUpdate))
}

// input builds the input of the next frame with a player command for each given player.
func (f *testFixture) input(t *testing.T, cmds ...testutils.PlayerInput) *FrameInput {
	t.Helper()

	in := f.world.NewInput()
	for _, cmd := range cmds {
		g, err := in.NewGroup(f.types.inputAlias)
		require.NoError(t, err)
		c, _ := g.Get(f.types.input)
		*(c.(*testutils.PlayerInput)) = cmd
		require.NoError(t, in.AddGroup(g))
	}
	return in
}

// randomInput builds the input of the next frame with random commands from up to four players.
func (f *testFixture) randomInput(t *testing.T, rng *rand.Rand) *FrameInput {
	t.Helper()

	cmds := make([]testutils.PlayerInput, 0, 4)
	for player := range int64(4) {
		if rng.IntN(3) == 0 {
			continue
		}
		cmds = append(cmds, testutils.PlayerInput{
			Player: player,
			DX:     rng.Int64N(7) - 3,
			DY:     rng.Int64N(7) - 3,
		})
	}
	return f.input(t, cmds...)
}

// tick runs one tick with in and releases it.
func (f *testFixture) tick(t *testing.T, in *FrameInput) {
	t.Helper()
	require.NoError(t, f.world.Tick(in))
	require.NoError(t, in.Release())
}
