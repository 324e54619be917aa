package ecs

import (
	"testing"

	"github.com/argus-labs/lockstep/pkg/pool"
	"github.com/argus-labs/lockstep/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_GetPut(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)
	f := NewFactory(reg)

	c, err := f.Get(tt.health)
	require.NoError(t, err)
	hp, ok := c.(*testutils.Health)
	require.True(t, ok)
	hp.HP = 42
	assert.Equal(t, 1, f.InUse())

	require.NoError(t, f.Put(c))
	assert.Equal(t, 0, f.InUse())
	assert.Zero(t, hp.HP, "returned components are reset")

	require.ErrorIs(t, f.Put(c), pool.ErrPoolMisuse)
	require.ErrorIs(t, f.Put(&testutils.Health{}), pool.ErrPoolMisuse)

	_, err = f.Get(ComponentTypeIndex(200))
	require.ErrorIs(t, err, ErrComponentNotRegistered)
}

func TestFactory_CopyIsDeepWhenConfigured(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)
	f := NewFactory(reg)

	src, err := f.Get(tt.tag)
	require.NoError(t, err)
	dst, err := f.Get(tt.tag)
	require.NoError(t, err)

	src.(*testutils.Tag).Labels = []string{"a", "b"}
	f.Copy(dst, src)
	src.(*testutils.Tag).Labels[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, dst.(*testutils.Tag).Labels)

	pos, err := f.Get(tt.position)
	require.NoError(t, err)
	pos.(*testutils.Position).X = 9
	f.Reset(pos)
	assert.Equal(t, testutils.Position{}, *pos.(*testutils.Position))
}

func TestFactory_ResetWith(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	resets := 0
	idx, err := Register[testutils.Health](reg, ResetWith(func(h *testutils.Health) {
		resets++
		h.HP = 100
	}))
	require.NoError(t, err)
	f := NewFactory(reg)

	c, err := f.Get(idx)
	require.NoError(t, err)
	require.NoError(t, f.Put(c))
	assert.Equal(t, 1, resets)
	assert.Equal(t, int64(100), c.(*testutils.Health).HP)
}

func TestFactory_GroupsReturnTheirComponents(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)
	f := NewFactory(reg)

	g, err := f.GetGroup()
	require.NoError(t, err)
	for _, idx := range []ComponentTypeIndex{tt.position, tt.velocity} {
		c, err := f.Get(idx)
		require.NoError(t, err)
		assert.Nil(t, g.Set(idx, c))
	}
	assert.Equal(t, 3, f.InUse())
	assert.Equal(t, archetypeOf(int(tt.position), int(tt.velocity)), g.Archetype())

	require.NoError(t, f.PutGroup(g))
	assert.Equal(t, 0, f.InUse())
	assert.True(t, g.Archetype().IsEmpty())

	e, err := f.GetEntityData()
	require.NoError(t, err)
	e.ID = 12
	e.New = true
	c, err := f.Get(tt.health)
	require.NoError(t, err)
	e.Set(tt.health, c)
	require.NoError(t, f.PutEntityData(e))
	assert.Equal(t, 0, f.InUse())
	assert.Equal(t, EntityID(0), e.ID)
	assert.False(t, e.New)
}

func TestFactory_String(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)
	f := NewFactory(reg)

	assert.JSONEq(t, `{"X":1,"Y":-2}`, f.String(&testutils.Position{X: 1, Y: -2})[len("position"):])
}
