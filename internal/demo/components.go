package demo

// Position is a cell of the arena.
type Position struct {
	X, Y int64
}

func (Position) Name() string { return "position" }

// Velocity is the distance moved per tick.
type Velocity struct {
	DX, DY int64
}

func (Velocity) Name() string { return "velocity" }

// Player identifies the entity a player controls.
type Player struct {
	ID int64
}

func (Player) Name() string { return "player" }

type Health struct {
	HP int64
}

func (Health) Name() string { return "health" }

// Projectile flies until it hits a player other than its owner or its TTL runs out.
type Projectile struct {
	Owner int64
	TTL   int64
}

func (Projectile) Name() string { return "projectile" }

// Command is a player's input for one tick.
type Command struct {
	Player int64
	DX, DY int64
	Fire   bool
}

func (Command) Name() string { return "command" }

// Explosion marks where a projectile ended. It lives for a single frame.
type Explosion struct {
	X, Y int64
	Hit  bool
}

func (Explosion) Name() string { return "explosion" }

// Arena is the game's global state.
type Arena struct {
	Tick  uint64
	Kills uint64
	Shots uint64
}

func (Arena) Name() string { return "arena" }
