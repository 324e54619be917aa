package demo_test

import (
	"flag"
	"math/rand/v2"
	"testing"

	"github.com/argus-labs/lockstep/internal/demo"
	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/argus-labs/lockstep/pkg/lockstep"
	"github.com/argus-labs/lockstep/pkg/testutils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dstNumTicks = flag.Int("dst.ticks", 1000, "number of ticks to run in DST")

type dstOp uint8

// Values are weights.
const (
	dstOpTick     dstOp = 80
	dstOpRollback dstOp = 15
	dstOpReload   dstOp = 4
	dstOpPeerLoad dstOp = 1
)

var dstOps = []dstOp{dstOpTick, dstOpRollback, dstOpReload, dstOpPeerLoad} //nolint:gochecknoglobals // test table

type dstConfig struct {
	Ticks            int
	Players          int64
	Seed             uint64
	HistoryFrames    uint64
	KeyframeInterval uint64
}

func newDSTConfig(rng *rand.Rand) dstConfig {
	history := 8 + rng.Uint64N(57)
	return dstConfig{
		Ticks:            *dstNumTicks,
		Players:          1 + rng.Int64N(6),
		Seed:             rng.Uint64(),
		HistoryFrames:    history,
		KeyframeInterval: 1 + rng.Uint64N(history),
	}
}

// dstPeer is a session with the script that feeds it.
type dstPeer struct {
	session *lockstep.Session
	script  *demo.Script
}

func newDSTPeer(t *testing.T, cfg dstConfig) *dstPeer {
	t.Helper()
	game := demo.NewGame()
	session, err := lockstep.NewSession(game, lockstep.SessionOptions{
		HistoryFrames:    cfg.HistoryFrames,
		KeyframeInterval: cfg.KeyframeInterval,
		Logger:           zerolog.Nop(),
	})
	require.NoError(t, err)
	return &dstPeer{session: session, script: demo.NewScript(game, cfg.Players, cfg.Seed)}
}

func (p *dstPeer) world() *ecs.World {
	return p.session.World
}

func (p *dstPeer) latest() uint64 {
	return p.world().NextFrame() - 1
}

// TestDST runs a peer through random ticks, rollbacks and reloads. A reference peer that only ticks
// provides the expected hash of every frame.
func TestDST(t *testing.T) {
	rng := testutils.NewRand(t)
	cfg := newDSTConfig(rng)
	t.Logf("dst config: %+v", cfg)

	ref := newDSTPeer(t, cfg)
	want := make([]uint64, 0, cfg.Ticks)
	expect := func(frame uint64) uint64 {
		for uint64(len(want)) < frame {
			hash, err := demo.Step(ref.world(), ref.script)
			require.NoError(t, err)
			want = append(want, hash)
		}
		return want[frame-1]
	}

	peer := newDSTPeer(t, cfg)
	for ticks := 0; ticks < cfg.Ticks; {
		switch testutils.RandWeightedOp(rng, dstOps) {
		case dstOpTick:
			hash, err := demo.Step(peer.world(), peer.script)
			require.NoError(t, err)
			frame := peer.latest()
			require.Equal(t, expect(frame), hash, "frame %d", frame)
			ticks++

		case dstOpRollback:
			latest := peer.latest()
			if latest == 0 {
				continue
			}
			start := peer.world().History().HistoryStart()
			target := start + rng.Uint64N(latest-start+1)
			require.NoError(t, peer.world().RestoreToFrame(target), "restore %d -> %d", latest, target)

			hash, ok := peer.world().LatestFrameHash()
			require.True(t, ok)
			require.Equal(t, expect(target), hash, "restored frame %d", target)

			// Older frames stay unreachable.
			if start > 1 {
				err := peer.world().RestoreToFrame(start - 1)
				assert.ErrorIs(t, err, ecs.ErrFrameOutOfRange)
			}

		case dstOpReload:
			// Restart the same peer from its own serialized latest frame.
			reloadInto(t, peer, peer)

		case dstOpPeerLoad:
			// A late joiner loads the frame and takes over.
			joiner := newDSTPeer(t, cfg)
			reloadInto(t, peer, joiner)
			peer = joiner
		}
	}
}

func reloadInto(t *testing.T, from, to *dstPeer) {
	t.Helper()
	latest := from.latest()
	if latest == 0 {
		return
	}
	want, ok := from.world().FrameHash(latest)
	require.True(t, ok)

	data, n := from.world().LatestFrameSerialized(true, nil)
	hash, err := to.session.LoadSerialized(data[len(data)-n:])
	require.NoError(t, err)

	require.Equal(t, want, hash, "reloaded frame %d", latest)
	require.Equal(t, latest, to.latest())
	assert.Equal(t, []uint64{latest}, to.world().History().Keyframes())
	assert.Equal(t, latest, to.world().History().HistoryStart())
}
