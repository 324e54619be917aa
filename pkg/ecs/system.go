package ecs

import (
	"fmt"
)

// System contains game logic run once per tick. Systems must be deterministic: the same state and
// input always produce the same result.
type System interface {
	Execute() error
}

// SystemFunc adapts a function to a System.
type SystemFunc func() error

func (f SystemFunc) Execute() error {
	return f()
}

// namedSystem is implemented by systems that report their own name in logs and errors.
type namedSystem interface {
	Name() string
}

// SystemHook defines when a system is executed within a tick.
type SystemHook uint8

const (
	// PreUpdate runs before the main update.
	PreUpdate SystemHook = 0
	// Update runs during the main update phase.
	Update SystemHook = 1
	// PostUpdate runs after the main update.
	PostUpdate SystemHook = 2
)

// systemConfig holds all configurable options for system registration.
type systemConfig struct {
	hook SystemHook
	name string
}

// SystemOption configures a system at registration.
type SystemOption func(*systemConfig)

// WithHook sets the phase the system runs in.
func WithHook(hook SystemHook) SystemOption {
	return func(cfg *systemConfig) { cfg.hook = hook }
}

// WithName sets the name used for the system in logs and errors.
func WithName(name string) SystemOption {
	return func(cfg *systemConfig) { cfg.name = name }
}

type registeredSystem struct {
	name   string
	system System
}

// systemName returns the configured name, the system's own name, or its type.
func systemName(sys System, cfg systemConfig) string {
	if cfg.name != "" {
		return cfg.name
	}
	if n, ok := sys.(namedSystem); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", sys)
}
