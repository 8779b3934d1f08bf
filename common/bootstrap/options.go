package bootstrap

import (
	"github.com/lyzr/flowkernel/common/config"
	"github.com/lyzr/flowkernel/common/logger"
)

// Option configures the bootstrap process.
type Option func(*options)

type options struct {
	useMemoryStore bool
	customLogger   *logger.Logger
	customConfig   *config.Config
}

// WithMemoryStore backs the DataStore with an in-process MemoryStore
// instead of dialing Redis — used by development mode and tests.
func WithMemoryStore() Option {
	return func(o *options) {
		o.useMemoryStore = true
	}
}

// WithCustomLogger uses a custom logger instead of building one from
// config.
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from the
// environment.
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

func defaultOptions() *options {
	return &options{}
}
