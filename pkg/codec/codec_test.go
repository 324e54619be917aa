package codec_test

import (
	"encoding/binary"
	"testing"

	"github.com/argus-labs/lockstep/pkg/codec"
	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/argus-labs/lockstep/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// counter encodes itself as a fixed 8 byte big endian value.
type counter struct {
	N uint64
}

func (counter) Name() string { return "counter" }

func (c *counter) MarshalBinary() ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, c.N), nil
}

func (c *counter) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return eris.Errorf("counter payload has %d bytes", len(data))
	}
	c.N = binary.BigEndian.Uint64(data)
	return nil
}

type fixture struct {
	world      *ecs.World
	serializer *codec.Serializer
	reg        *ecs.Registry
	factory    *ecs.Factory
	input      ecs.ComponentTypeIndex
	inputAlias ecs.AliasID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := ecs.NewRegistry()
	pos, err := ecs.Register[testutils.Position](reg)
	require.NoError(t, err)
	tag, err := ecs.Register[testutils.Tag](reg)
	require.NoError(t, err)
	cnt, err := ecs.Register[counter](reg)
	require.NoError(t, err)
	input, err := ecs.Register[testutils.PlayerInput](reg,
		ecs.KeyField(func(p *testutils.PlayerInput) int64 { return p.Player }))
	require.NoError(t, err)
	alias, err := reg.RegisterAlias("player_input", []ecs.ComponentTypeIndex{input}, ecs.AsInput(input))
	require.NoError(t, err)

	factory := ecs.NewFactory(reg)
	serializer := codec.New(reg, factory)
	w, err := ecs.NewWorld(ecs.WorldOptions{
		Definitions: reg,
		Aliases:     reg,
		Factory:     factory,
		Serializer:  serializer,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	repo := w.Repo()
	w.AddSystem(ecs.SystemFunc(func() error {
		if w.NextFrame() != 1 {
			return nil
		}
		id, err := repo.CreateEntity(w.Graph().ArchetypeFor(pos, tag, cnt))
		if err != nil {
			return err
		}
		p, _ := ecs.Get[testutils.Position](repo, id)
		p.X, p.Y = -3, 1<<40
		tg, _ := ecs.Get[testutils.Tag](repo, id)
		tg.Labels = []string{"a", "b"}
		c, _ := ecs.Get[counter](repo, id)
		c.N = 0xDEADBEEF
		return nil
	}))

	return &fixture{world: w, serializer: serializer, reg: reg, factory: factory, input: input, inputAlias: alias}
}

func (f *fixture) tick(t *testing.T, players ...int64) {
	t.Helper()
	in := f.world.NewInput()
	for _, p := range players {
		g, err := in.NewGroup(f.inputAlias)
		require.NoError(t, err)
		c, _ := g.Get(f.input)
		c.(*testutils.PlayerInput).Player = p
		require.NoError(t, in.AddGroup(g))
	}
	require.NoError(t, f.world.Tick(in))
	require.NoError(t, in.Release())
}

func TestSerializer_FrameDecodeReproducesHash(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	fix.tick(t, 2, 1)
	fix.tick(t, 7)

	data, n := fix.world.LatestFrameSerialized(false, nil)
	data = data[:n]
	want, ok := fix.world.LatestFrameHash()
	require.True(t, ok)
	assert.Equal(t, want, fix.serializer.Hash(data))

	snap := ecs.NewFrameSnapshot()
	require.NoError(t, fix.serializer.DecodeFrame(data, snap))
	assert.Equal(t, uint64(2), snap.Frame)
	require.Equal(t, 3, snap.Len(), "singleton, the created entity and one input entity")

	again, err := fix.serializer.SerializeFrame(fix.world.Graph(), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.Equal(t, want, fix.serializer.Hash(again))

	// The decoded frame can be loaded and continues with the same hash.
	hash, err := fix.world.LoadFrame(snap)
	require.NoError(t, err)
	assert.Equal(t, want, hash)
	require.NoError(t, snap.Release(fix.factory))
}

func TestSerializer_SyncAndInput(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	fix.tick(t, 4, 2, 9)

	data, err := fix.world.LatestFrameSyncSerialized(nil)
	require.NoError(t, err)
	rec := ecs.NewSyncRecord()
	require.NoError(t, fix.serializer.DecodeSync(data, rec))
	assert.Equal(t, uint64(1), rec.Frame)
	hash, _ := fix.world.LatestFrameHash()
	assert.Equal(t, hash, rec.Hash)
	require.Len(t, rec.Groups(), 3)

	// Sync input decodes into a frame input in the same order.
	inData, err := fix.serializer.SerializeInput(fix.world.Graph(), ecs.NewSyncInput(rec), nil)
	require.NoError(t, err)
	in := ecs.NewFrameInput(0, fix.reg, fix.reg, fix.factory)
	require.NoError(t, fix.serializer.DecodeInput(inData, in))
	assert.Equal(t, uint64(1), in.Frame())

	players := make([]int64, 0, 3)
	for _, g := range in.Groups() {
		c, _ := g.Get(fix.input)
		players = append(players, c.(*testutils.PlayerInput).Player)
	}
	assert.Equal(t, []int64{2, 4, 9}, players)

	require.NoError(t, in.Release())
	require.NoError(t, rec.Release(fix.factory))
}

func TestSerializer_DecodeErrors(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)

	snap := ecs.NewFrameSnapshot()
	require.Error(t, fix.serializer.DecodeFrame([]byte{0xFF}, snap), "truncated tag")

	// An entity whose component names an unregistered type index.
	comp := protowire.AppendTag(nil, 1, protowire.VarintType)
	comp = protowire.AppendVarint(comp, 99)
	entity := protowire.AppendTag(nil, 1, protowire.VarintType)
	entity = protowire.AppendVarint(entity, 5)
	entity = protowire.AppendTag(entity, 3, protowire.BytesType)
	entity = protowire.AppendBytes(entity, comp)
	frame := protowire.AppendTag(nil, 3, protowire.BytesType)
	frame = protowire.AppendBytes(frame, entity)
	require.ErrorIs(t, fix.serializer.DecodeFrame(frame, snap), ecs.ErrComponentNotRegistered)

	// Unknown fields are skipped.
	unknown := protowire.AppendTag(nil, 15, protowire.Fixed32Type)
	unknown = protowire.AppendFixed32(unknown, 7)
	unknown = protowire.AppendTag(unknown, 1, protowire.VarintType)
	unknown = protowire.AppendVarint(unknown, 12)
	snap = ecs.NewFrameSnapshot()
	require.NoError(t, fix.serializer.DecodeFrame(unknown, snap))
	assert.Equal(t, uint64(12), snap.Frame)
}
