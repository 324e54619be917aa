// Package demo is a small deterministic arena game. Players steer and shoot, projectiles expire or
// hit other players, and players with no health left are removed.
package demo

import (
	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/argus-labs/lockstep/pkg/lockstep"
	"github.com/rotisserie/eris"
)

const (
	ArenaWidth    = 32
	ArenaHeight   = 32
	ProjectileTTL = 6
	StartHP       = 3
)

// Game registers the arena's types and systems. A Game is used for a single world.
type Game struct {
	position   ecs.ComponentTypeIndex
	velocity   ecs.ComponentTypeIndex
	player     ecs.ComponentTypeIndex
	health     ecs.ComponentTypeIndex
	projectile ecs.ComponentTypeIndex
	command    ecs.ComponentTypeIndex
	explosion  ecs.ComponentTypeIndex
	arena      ecs.ComponentTypeIndex

	commandAlias    ecs.AliasID
	playerAlias     ecs.AliasID
	projectileAlias ecs.AliasID
}

var _ lockstep.Game = (*Game)(nil)

func NewGame() *Game {
	return &Game{}
}

func (g *Game) Register(reg *ecs.Registry) error {
	var err error
	if g.position, err = ecs.Register[Position](reg); err != nil {
		return err
	}
	if g.velocity, err = ecs.Register[Velocity](reg); err != nil {
		return err
	}
	if g.player, err = ecs.Register[Player](reg,
		ecs.KeyField(func(p *Player) int64 { return p.ID })); err != nil {
		return err
	}
	if g.health, err = ecs.Register[Health](reg); err != nil {
		return err
	}
	if g.projectile, err = ecs.Register[Projectile](reg,
		ecs.KeyField(func(p *Projectile) int64 { return p.Owner })); err != nil {
		return err
	}
	if g.command, err = ecs.Register[Command](reg,
		ecs.KeyField(func(c *Command) int64 { return c.Player })); err != nil {
		return err
	}
	if g.explosion, err = ecs.Register[Explosion](reg, ecs.SingleFrame()); err != nil {
		return err
	}
	if g.arena, err = ecs.Register[Arena](reg, ecs.AsSingleton()); err != nil {
		return err
	}

	if g.commandAlias, err = reg.RegisterAlias("command",
		[]ecs.ComponentTypeIndex{g.command}, ecs.AsInput(g.command)); err != nil {
		return err
	}
	if g.playerAlias, err = reg.RegisterAlias("player",
		[]ecs.ComponentTypeIndex{g.player, g.position, g.velocity, g.health}); err != nil {
		return err
	}
	if g.projectileAlias, err = reg.RegisterAlias("projectile",
		[]ecs.ComponentTypeIndex{g.projectile, g.position, g.velocity}); err != nil {
		return err
	}
	return nil
}

func (g *Game) AddSystems(w *ecs.World) error {
	s, err := newSystems(g, w)
	if err != nil {
		return eris.Wrap(err, "failed to create systems")
	}
	w.AddSystem(ecs.SystemFunc(s.commands), ecs.WithName("commands"), ecs.WithHook(ecs.PreUpdate))
	w.AddSystem(ecs.SystemFunc(s.movement), ecs.WithName("movement"))
	w.AddSystem(ecs.SystemFunc(s.projectiles), ecs.WithName("projectiles"))
	w.AddSystem(ecs.SystemFunc(s.cleanup), ecs.WithName("cleanup"), ecs.WithHook(ecs.PostUpdate))
	w.AddSystem(ecs.SystemFunc(s.clock), ecs.WithName("clock"), ecs.WithHook(ecs.PostUpdate))
	return nil
}

// CommandAlias returns the input alias players send commands with.
func (g *Game) CommandAlias() ecs.AliasID {
	return g.commandAlias
}

// CommandType returns the type index of Command.
func (g *Game) CommandType() ecs.ComponentTypeIndex {
	return g.command
}
