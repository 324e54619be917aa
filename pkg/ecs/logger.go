package ecs

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// LogFlags selects the categories of debug output a world emits.
type LogFlags uint32

const (
	// LogSerializationDetails logs tick input, full state dumps and frame hashes.
	LogSerializationDetails LogFlags = 1 << iota
	// LogEntityID logs entity creation and destruction.
	LogEntityID
	// LogMotion is reserved for game systems that log movement.
	LogMotion

	LogNone LogFlags = 0
	LogAll           = LogSerializationDetails | LogEntityID | LogMotion
)

var logFlagNames = []struct { //nolint:gochecknoglobals // lookup table
	flag LogFlags
	name string
}{
	{LogSerializationDetails, "serialization"},
	{LogEntityID, "entity"},
	{LogMotion, "motion"},
}

// ParseLogFlags parses a comma separated list of categories. "none" and "all" are accepted too.
func ParseLogFlags(s string) (LogFlags, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "none":
		return LogNone, nil
	case "all":
		return LogAll, nil
	}

	var flags LogFlags
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		found := false
		for _, f := range logFlagNames {
			if f.name == part {
				flags |= f.flag
				found = true
				break
			}
		}
		if !found {
			return LogNone, eris.Errorf("unknown log category %q", part)
		}
	}
	return flags, nil
}

func (f LogFlags) String() string {
	if f == LogNone {
		return "none"
	}
	names := make([]string, 0, len(logFlagNames))
	for _, n := range logFlagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// WorldLogger gates a world's debug output by category.
type WorldLogger struct {
	log   zerolog.Logger
	flags LogFlags
}

// NewWorldLogger creates a logger that only emits the categories in flags.
func NewWorldLogger(log zerolog.Logger, flags LogFlags) *WorldLogger {
	return &WorldLogger{log: log, flags: flags}
}

// Enabled returns true if every category in flag is enabled.
func (l *WorldLogger) Enabled(flag LogFlags) bool {
	return l != nil && flag != LogNone && l.flags&flag == flag
}

// Event starts an info event for the category. It returns nil when the category is disabled, which
// zerolog treats as a no-op.
func (l *WorldLogger) Event(flag LogFlags) *zerolog.Event {
	if !l.Enabled(flag) {
		return nil
	}
	return l.log.Info().Str("category", flag.String())
}

// Log emits msg under the category.
func (l *WorldLogger) Log(flag LogFlags, msg string) {
	l.Event(flag).Msg(msg)
}

// Logger returns the underlying logger for output that is not gated.
func (l *WorldLogger) Logger() *zerolog.Logger {
	return &l.log
}
