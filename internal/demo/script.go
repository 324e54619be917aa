package demo

import (
	"context"
	"math/rand/v2"

	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/argus-labs/lockstep/pkg/lockstep"
	"github.com/rotisserie/eris"
)

// Script generates pseudo-random commands. The commands of a frame depend only on the seed and the
// frame number, so any peer or replay produces the same input.
type Script struct {
	game    *Game
	players int64
	seed    uint64
}

var _ lockstep.InputSource = (*Script)(nil)

// NewScript creates a script for players 1 to players. Player p joins at frame 2p.
func NewScript(game *Game, players int64, seed uint64) *Script {
	return &Script{game: game, players: players, seed: seed}
}

func (s *Script) Input(_ context.Context, in *ecs.FrameInput) error {
	return s.Fill(in)
}

// Fill adds the commands of in.Frame() to in.
func (s *Script) Fill(in *ecs.FrameInput) error {
	frame := in.Frame()
	rng := rand.New(rand.NewPCG(s.seed, frame)) //nolint:gosec // input must be reproducible from the seed

	// Players are visited in reverse so the input's own ordering is exercised.
	for p := s.players; p >= 1; p-- {
		if frame < uint64(2*p) || rng.IntN(3) == 0 { //nolint:gosec // p is positive
			continue
		}
		g, err := in.NewGroup(s.game.commandAlias)
		if err != nil {
			return eris.Wrap(err, "failed to create command group")
		}
		c, _ := g.Get(s.game.command)
		cmd := c.(*Command) //nolint:errcheck // type is fixed by the type index
		cmd.Player = p
		cmd.DX = rng.Int64N(3) - 1
		cmd.DY = rng.Int64N(3) - 1
		cmd.Fire = rng.IntN(4) == 0
		if err := in.AddGroup(g); err != nil {
			return err
		}
	}
	return nil
}
