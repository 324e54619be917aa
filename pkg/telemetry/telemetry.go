// Package telemetry builds the loggers of a lockstep process from environment configuration.
package telemetry

import (
	"io"

	"github.com/argus-labs/lockstep/pkg/ecs"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type Telemetry struct {
	Logger     zerolog.Logger
	InstanceID uuid.UUID
	LogFlags   ecs.LogFlags

	serviceName string
}

// New loads the env config, applies opts over it and builds the root logger. Every log line carries
// the instance id so runs of several processes can be told apart.
func New(opts Options) (Telemetry, error) {
	return newTelemetry(opts, nil)
}

func newTelemetry(opts Options, out io.Writer) (Telemetry, error) {
	config, err := loadConfig()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to load telemetry config")
	}

	options := newDefaultOptions()
	config.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid telemetry options")
	}

	id := uuid.New()
	logger := newLogger(options, out).With().Str("instance", id.String()).Logger()

	return Telemetry{
		Logger:      logger,
		InstanceID:  id,
		LogFlags:    options.LogFlags,
		serviceName: options.ServiceName,
	}, nil
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}
