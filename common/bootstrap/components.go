package bootstrap

import (
	"context"
	"fmt"

	"github.com/lyzr/flowkernel/common/config"
	"github.com/lyzr/flowkernel/common/logger"
	"github.com/lyzr/flowkernel/internal/datastore"
	"github.com/lyzr/flowkernel/internal/devcache"
	"github.com/lyzr/flowkernel/internal/dlq"
	"github.com/lyzr/flowkernel/internal/pool"
)

// Components holds every dependency Setup constructed: the loaded
// config, the logger, the DataStore backend, the pool executor, and the
// DevCache/DLQ layered on top of the store — everything an Orchestrator
// needs besides the loaded graph itself.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DataStore datastore.DataStore
	Executor  *pool.Executor
	DevCache  *devcache.DevCache
	DLQ       *dlq.DLQ

	cleanupFuncs []func() error
}

// Shutdown runs every registered cleanup func in reverse (LIFO) order.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// addCleanup registers a cleanup function, run in reverse order by
// Shutdown.
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
