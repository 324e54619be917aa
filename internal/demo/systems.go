package demo

import (
	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/rotisserie/eris"
)

// systems holds the queries the game's systems reuse every tick.
type systems struct {
	game *Game
	w    *ecs.World
	repo *ecs.EntityRepo

	commandQuery    *ecs.Query
	ownedQuery      *ecs.Query
	movingQuery     *ecs.Query
	projectileQuery *ecs.Query
	playerQuery     *ecs.Query
	deadQuery       *ecs.Query
}

func newSystems(g *Game, w *ecs.World) (*systems, error) {
	graph := w.Graph()
	s := &systems{
		game:            g,
		w:               w,
		repo:            w.Repo(),
		commandQuery:    ecs.NewQuery().Contains(graph.ArchetypeFor(g.command)),
		ownedQuery:      ecs.NewQuery(),
		movingQuery:     ecs.NewQuery().Contains(graph.ArchetypeFor(g.position, g.velocity)),
		projectileQuery: ecs.NewQuery().Contains(graph.ArchetypeFor(g.projectile, g.position)),
		playerQuery:     ecs.NewQuery().Contains(graph.ArchetypeFor(g.player, g.position, g.health)),
	}

	dead, err := ecs.NewQuery().Contains(graph.ArchetypeFor(g.player, g.health)).Where("health.HP <= 0")
	if err != nil {
		return nil, err
	}
	s.deadQuery = dead
	return s, nil
}

// commands spawns the player of each command on first use, then steers it and fires.
func (s *systems) commands() error {
	if err := s.commandQuery.Resolve(s.repo); err != nil {
		return err
	}
	for _, id := range s.commandQuery.Results() {
		cmd, err := ecs.Get[Command](s.repo, id)
		if err != nil {
			return err
		}
		player, err := s.playerEntity(cmd.Player)
		if err != nil {
			return err
		}

		vel, err := ecs.Get[Velocity](s.repo, player)
		if err != nil {
			return err
		}
		vel.DX, vel.DY = clampStep(cmd.DX), clampStep(cmd.DY)

		if cmd.Fire {
			if err := s.fire(player, cmd.Player, vel); err != nil {
				return err
			}
		}
	}
	return nil
}

// playerEntity returns the entity of a player, creating it at its spawn cell if needed.
func (s *systems) playerEntity(playerID int64) (ecs.EntityID, error) {
	if err := s.ownedQuery.MatchKey(s.game.player, playerID).Resolve(s.repo); err != nil {
		return ecs.InvalidEntityID, err
	}
	if found := s.ownedQuery.Results(); len(found) > 0 {
		return found[0], nil
	}

	id, err := s.repo.CreateAliasEntity(s.game.playerAlias)
	if err != nil {
		return ecs.InvalidEntityID, eris.Wrapf(err, "failed to spawn player %d", playerID)
	}
	p, err := ecs.Get[Player](s.repo, id)
	if err != nil {
		return ecs.InvalidEntityID, err
	}
	p.ID = playerID
	h, err := ecs.Get[Health](s.repo, id)
	if err != nil {
		return ecs.InvalidEntityID, err
	}
	h.HP = StartHP
	pos, err := ecs.Get[Position](s.repo, id)
	if err != nil {
		return ecs.InvalidEntityID, err
	}
	pos.X = wrap(playerID*7, ArenaWidth)
	pos.Y = wrap(playerID*13, ArenaHeight)
	return id, nil
}

func (s *systems) fire(player ecs.EntityID, owner int64, vel *Velocity) error {
	from, err := ecs.Get[Position](s.repo, player)
	if err != nil {
		return err
	}
	id, err := s.repo.CreateAliasEntity(s.game.projectileAlias)
	if err != nil {
		return eris.Wrap(err, "failed to spawn projectile")
	}

	proj, err := ecs.Get[Projectile](s.repo, id)
	if err != nil {
		return err
	}
	proj.Owner = owner
	proj.TTL = ProjectileTTL

	pos, err := ecs.Get[Position](s.repo, id)
	if err != nil {
		return err
	}
	*pos = *from

	pv, err := ecs.Get[Velocity](s.repo, id)
	if err != nil {
		return err
	}
	pv.DX, pv.DY = 2*vel.DX, 2*vel.DY
	if pv.DX == 0 && pv.DY == 0 {
		pv.DX = 2
	}

	arena, err := ecs.Singleton[Arena](s.repo)
	if err != nil {
		return err
	}
	arena.Shots++
	return nil
}

// movement moves everything with a velocity, wrapping around the arena edges.
func (s *systems) movement() error {
	if err := s.movingQuery.Resolve(s.repo); err != nil {
		return err
	}
	log := s.w.Logger()
	for _, id := range s.movingQuery.Results() {
		pos, err := ecs.Get[Position](s.repo, id)
		if err != nil {
			return err
		}
		vel, err := ecs.Get[Velocity](s.repo, id)
		if err != nil {
			return err
		}
		if vel.DX == 0 && vel.DY == 0 {
			continue
		}
		pos.X = wrap(pos.X+vel.DX, ArenaWidth)
		pos.Y = wrap(pos.Y+vel.DY, ArenaHeight)
		log.Event(ecs.LogMotion).Uint64("entity", uint64(id)).Int64("x", pos.X).Int64("y", pos.Y).Msg("moved")
	}
	return nil
}

// projectiles ages projectiles and resolves hits. A projectile ends in an explosion when it hits a
// player other than its owner or expires.
func (s *systems) projectiles() error {
	if err := s.projectileQuery.Resolve(s.repo); err != nil {
		return err
	}
	if err := s.playerQuery.Resolve(s.repo); err != nil {
		return err
	}
	for _, id := range s.projectileQuery.Results() {
		proj, err := ecs.Get[Projectile](s.repo, id)
		if err != nil {
			return err
		}
		pos, err := ecs.Get[Position](s.repo, id)
		if err != nil {
			return err
		}

		hit, err := s.hitPlayer(proj.Owner, pos)
		if err != nil {
			return err
		}
		proj.TTL--
		if !hit && proj.TTL > 0 {
			continue
		}

		at := *pos
		if err := s.repo.DestroyEntity(id); err != nil {
			return err
		}
		if err := s.explode(at, hit); err != nil {
			return err
		}
	}
	return nil
}

// hitPlayer damages the first player, in id order, standing on pos that isn't owner.
func (s *systems) hitPlayer(owner int64, pos *Position) (bool, error) {
	for _, id := range s.playerQuery.Results() {
		p, err := ecs.Get[Player](s.repo, id)
		if err != nil {
			return false, err
		}
		if p.ID == owner {
			continue
		}
		at, err := ecs.Get[Position](s.repo, id)
		if err != nil {
			return false, err
		}
		if *at != *pos {
			continue
		}
		h, err := ecs.Get[Health](s.repo, id)
		if err != nil {
			return false, err
		}
		h.HP--
		return true, nil
	}
	return false, nil
}

func (s *systems) explode(at Position, hit bool) error {
	id, err := s.repo.CreateEntity(s.w.Graph().ArchetypeFor(s.game.explosion))
	if err != nil {
		return eris.Wrap(err, "failed to spawn explosion")
	}
	e, err := ecs.Get[Explosion](s.repo, id)
	if err != nil {
		return err
	}
	e.X, e.Y, e.Hit = at.X, at.Y, hit
	return nil
}

// cleanup removes players without health.
func (s *systems) cleanup() error {
	if err := s.deadQuery.Resolve(s.repo); err != nil {
		return err
	}
	dead := s.deadQuery.Results()
	if len(dead) == 0 {
		return nil
	}
	arena, err := ecs.Singleton[Arena](s.repo)
	if err != nil {
		return err
	}
	for _, id := range dead {
		if err := s.repo.DestroyEntity(id); err != nil {
			return err
		}
		arena.Kills++
	}
	return nil
}

func (s *systems) clock() error {
	arena, err := ecs.Singleton[Arena](s.repo)
	if err != nil {
		return err
	}
	arena.Tick++
	return nil
}

func wrap(v, n int64) int64 {
	return ((v % n) + n) % n
}

func clampStep(v int64) int64 {
	return max(-1, min(1, v))
}
