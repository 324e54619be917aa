package testutils

// Position is a 2D integer position.
type Position struct {
	X, Y int64
}

func (Position) Name() string {
	return "position"
}

// Velocity is a per-tick position delta.
type Velocity struct {
	DX, DY int64
}

func (Velocity) Name() string {
	return "velocity"
}

// Health is a hit point counter.
type Health struct {
	HP int64
}

func (Health) Name() string {
	return "health"
}

// Tag holds variable length data. It needs a deep copy.
type Tag struct {
	Labels []string
}

func (Tag) Name() string {
	return "tag"
}

// PlayerInput is one player's command for a tick. Player is the ordering key.
type PlayerInput struct {
	Player int64
	DX, DY int64
}

func (PlayerInput) Name() string {
	return "player_input"
}

// Spawn asks for an entity to be created. It lives for one tick.
type Spawn struct {
	X, Y int64
}

func (Spawn) Name() string {
	return "spawn"
}

// Clock is a world-wide tick counter held by the singleton entity.
type Clock struct {
	Ticks uint64
}

func (Clock) Name() string {
	return "clock"
}

// Owner ties an entity to a player. Player is the key field.
type Owner struct {
	Player int64
}

func (Owner) Name() string {
	return "owner"
}
