package pool_test

import (
	"testing"

	"github.com/argus-labs/lockstep/pkg/pool"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	value int
}

func newItemPool(opts ...pool.Option) (*pool.Pool[*item], *int) {
	built := 0
	p := pool.New(func() *item {
		built++
		return &item{}
	}, func(i *item) {
		i.value = 0
	}, opts...)
	return p, &built
}

func TestPool_GrowsGeometrically(t *testing.T) {
	t.Parallel()

	p, built := newItemPool()
	assert.Equal(t, pool.DefaultSize, *built)

	// Drain the initial objects, the next Get triggers the first batch.
	for range pool.DefaultSize {
		_, err := p.Get()
		require.NoError(t, err)
	}
	assert.Equal(t, 5, *built)

	_, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, 10, *built)

	for range 4 {
		_, err = p.Get()
		require.NoError(t, err)
	}
	assert.Equal(t, 10, *built)

	// Second batch is twice as large.
	_, err = p.Get()
	require.NoError(t, err)
	assert.Equal(t, 20, *built)
	assert.Equal(t, 20, p.Built())
	assert.Equal(t, 11, p.InUse())
	assert.Equal(t, 9, p.Free())
}

func TestPool_PutResetsAndReuses(t *testing.T) {
	t.Parallel()

	p, built := newItemPool(pool.WithInitialSize(1))

	obj, err := p.Get()
	require.NoError(t, err)
	obj.value = 42

	require.NoError(t, p.Put(obj))
	assert.Equal(t, 0, obj.value)

	again, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, obj, again)
	assert.Equal(t, 1, *built)
}

func TestPool_Misuse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  func(p *pool.Pool[*item]) error
	}{
		{
			name: "foreign object",
			run: func(p *pool.Pool[*item]) error {
				return p.Put(&item{})
			},
		},
		{
			name: "double return",
			run: func(p *pool.Pool[*item]) error {
				obj, err := p.Get()
				if err != nil {
					return err
				}
				if err := p.Put(obj); err != nil {
					return err
				}
				return p.Put(obj)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, _ := newItemPool(pool.WithName(tt.name))
			err := tt.run(p)
			require.Error(t, err)
			assert.True(t, eris.Is(err, pool.ErrPoolMisuse))
		})
	}
}

func TestPool_AlertSize(t *testing.T) {
	t.Parallel()

	p, _ := newItemPool(pool.WithAlertSize(3))

	// Checkouts are refused once more than the alert size are outstanding.
	for range 4 {
		_, err := p.Get()
		require.NoError(t, err)
	}
	_, err := p.Get()
	require.Error(t, err)
	assert.True(t, eris.Is(err, pool.ErrPoolExhausted))
	assert.Panics(t, func() { p.MustGet() })
}

func TestPool_PutAll(t *testing.T) {
	t.Parallel()

	p, _ := newItemPool()
	objs := make([]*item, 0, 8)
	for i := range 8 {
		obj, err := p.Get()
		require.NoError(t, err)
		obj.value = i + 1
		objs = append(objs, obj)
	}

	require.NoError(t, p.PutAll())
	assert.Equal(t, 0, p.InUse())
	for _, obj := range objs {
		assert.Equal(t, 0, obj.value)
	}
}
