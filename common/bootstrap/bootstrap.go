// Package bootstrap wires the kernel's ambient components together:
// load config, build the logger, construct the DataStore backend, and
// hand back a Components value whose Shutdown runs registered cleanup
// funcs in reverse order.
package bootstrap

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/flowkernel/common/config"
	"github.com/lyzr/flowkernel/common/logger"
	"github.com/lyzr/flowkernel/internal/datastore"
	"github.com/lyzr/flowkernel/internal/devcache"
	"github.com/lyzr/flowkernel/internal/dlq"
	"github.com/lyzr/flowkernel/internal/pool"
)

// Setup initializes every ambient component a kernel binary needs:
// config, then logger, then the DataStore client, then the pool
// executor and DLQ/DevCache layered on top of it.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service", "service", serviceName)

	if options.useMemoryStore {
		components.Logger.Info("using in-memory datastore backend")
		components.DataStore = datastore.NewMemoryStore()
	} else {
		components.Logger.Info("connecting to datastore", "addr", components.Config.DataStore.Addr())
		client := goredis.NewClient(&goredis.Options{
			Addr:     components.Config.DataStore.Addr(),
			DB:       components.Config.DataStore.DB,
			Password: components.Config.DataStore.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to datastore: %w", err)
		}
		components.DataStore = datastore.NewRedisStore(client, components.Logger)
	}
	components.addCleanup(func() error {
		components.Logger.Info("closing datastore connection")
		return components.DataStore.Close()
	})

	components.Executor = pool.New(components.Config.Pool.ThreadWorkers, components.Config.Pool.ProcessWorkers)
	components.DevCache = devcache.New(components.DataStore)
	components.DLQ = dlq.New()

	components.Logger.Info("service initialization complete", "service", serviceName)

	return components, nil
}

// MustSetup is like Setup but panics on error.
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
