package ecs

import "github.com/rotisserie/eris"

var (
	// ErrArchetypeCapacityExceeded is returned when more component types are registered than an
	// archetype has bits for.
	ErrArchetypeCapacityExceeded = eris.New("component type count exceeds archetype capacity")

	// ErrSingletonComponentMisuse is returned when a singleton component is placed on an entity other
	// than the singleton entity.
	ErrSingletonComponentMisuse = eris.New("singleton component on non-singleton entity")

	// ErrUnknownEntity is returned when an operation references an entity that does not exist.
	ErrUnknownEntity = eris.New("entity does not exist")

	// ErrTableArchetypeMismatch is returned when a record is inserted into a table of a different
	// archetype.
	ErrTableArchetypeMismatch = eris.New("record archetype does not match table archetype")

	// ErrFrameOutOfRange is returned when a restore targets a future frame or a frame older than the
	// retained history.
	ErrFrameOutOfRange = eris.New("frame is outside the retained history")

	// ErrDesyncDetected is returned when replay produces a state hash different from the recorded one.
	ErrDesyncDetected = eris.New("replayed frame hash does not match recorded hash")

	// ErrWrongFrame is returned when a tick is given input for a frame other than the next frame.
	ErrWrongFrame = eris.New("input is for the wrong frame")

	// ErrComponentNotRegistered is returned when a component type is used before it is registered.
	ErrComponentNotRegistered = eris.New("component type is not registered")

	// ErrComponentMissing is returned when an entity does not have the requested component.
	ErrComponentMissing = eris.New("entity does not have component")

	// ErrUnknownAlias is returned when an alias id was never registered.
	ErrUnknownAlias = eris.New("alias does not exist")
)
