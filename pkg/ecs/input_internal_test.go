package ecs

import (
	"testing"

	"github.com/argus-labs/lockstep/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inputCmd is one input group to add: a player key plus a marker to observe stability.
type inputCmd struct {
	player int64
	marker int64
}

func players(in *FrameInput, idx ComponentTypeIndex) []inputCmd {
	got := make([]inputCmd, 0, len(in.Groups()))
	for _, g := range in.Groups() {
		c, _ := g.Get(idx)
		p := c.(*testutils.PlayerInput)
		got = append(got, inputCmd{player: p.Player, marker: p.DX})
	}
	return got
}

func TestFrameInput_OrderIsIndependentOfInsertionOrder(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)
	f := NewFactory(reg)

	cmds := []inputCmd{{player: 3}, {player: 1}, {player: 2}, {player: 0}, {player: 5}}
	want := []inputCmd{{player: 0}, {player: 1}, {player: 2}, {player: 3}, {player: 5}}

	gen := testutils.NewGen()
	permutations := 0
	for !gen.Done() {
		order := append([]inputCmd(nil), cmds...)
		testutils.Shuffle(gen, order)

		in := NewFrameInput(1, reg, reg, f)
		for _, cmd := range order {
			g, err := in.NewGroup(tt.inputAlias)
			require.NoError(t, err)
			c, _ := g.Get(tt.input)
			c.(*testutils.PlayerInput).Player = cmd.player
			require.NoError(t, in.AddGroup(g))
		}
		require.Equal(t, want, players(in, tt.input), "insertion order %v", order)
		require.NoError(t, in.Release())
		permutations++
	}
	assert.Equal(t, 120, permutations)
	assert.Equal(t, 0, f.InUse())
}

func TestFrameInput_EqualKeysKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)
	f := NewFactory(reg)

	in := NewFrameInput(1, reg, reg, f)
	for _, cmd := range []inputCmd{{2, 0}, {1, 1}, {2, 2}, {1, 3}, {2, 4}} {
		g, err := in.NewGroup(tt.inputAlias)
		require.NoError(t, err)
		c, _ := g.Get(tt.input)
		p := c.(*testutils.PlayerInput)
		p.Player, p.DX = cmd.player, cmd.marker
		require.NoError(t, in.AddGroup(g))
	}

	assert.Equal(t, []inputCmd{{1, 1}, {1, 3}, {2, 0}, {2, 2}, {2, 4}}, players(in, tt.input))
}

func TestFrameInput_RejectsNonInputGroups(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)
	f := NewFactory(reg)
	in := NewFrameInput(1, reg, reg, f)

	g, err := in.NewGroup(tt.moverAlias)
	require.NoError(t, err)
	require.ErrorIs(t, in.AddGroup(g), ErrUnknownAlias)
	require.NoError(t, f.PutGroup(g))

	_, err = in.NewGroup(AliasID(42))
	require.ErrorIs(t, err, ErrUnknownAlias)
	assert.Empty(t, in.Groups())
}

func TestFrameInput_Copies(t *testing.T) {
	t.Parallel()
	fix := newTestFixture(t, 60, 4)
	tt := fix.types

	src := fix.input(t, testutils.PlayerInput{Player: 4, DX: 1}, testutils.PlayerInput{Player: 2, DY: 1})
	copied := NewFrameInput(0, fix.reg, fix.reg, fix.factory)
	require.NoError(t, copied.CopyFrom(src))
	assert.Equal(t, src.Frame(), copied.Frame())
	assert.Equal(t, players(src, tt.input), players(copied, tt.input))
	assert.NotSame(t, src.Groups()[0], copied.Groups()[0])

	require.NoError(t, fix.world.Tick(src))
	require.NoError(t, src.Release())

	// The sync record of the tick holds the input in application order.
	rec := fix.world.History().syncs.back()
	fromSync := NewFrameInput(0, fix.reg, fix.reg, fix.factory)
	require.NoError(t, fromSync.CopyFromSync(rec))
	assert.Equal(t, uint64(1), fromSync.Frame())
	assert.Equal(t, players(copied, tt.input), players(fromSync, tt.input))

	sync := NewSyncInput(rec)
	assert.Equal(t, uint64(1), sync.Frame())
	assert.Len(t, sync.Groups(), 2)

	// The latest frame still holds the input entities it was captured with.
	snap := NewFrameSnapshot()
	require.NoError(t, fix.world.CloneLatestFrame(snap))
	fromSnap := NewFrameInput(0, fix.reg, fix.reg, fix.factory)
	require.NoError(t, fromSnap.CopyFromSnapshot(snap))
	assert.Equal(t, players(copied, tt.input), players(fromSnap, tt.input))

	for _, in := range []*FrameInput{copied, fromSync, fromSnap} {
		require.NoError(t, in.Release())
	}
	require.NoError(t, snap.Release(fix.factory))
}
