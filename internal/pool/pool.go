// Package pool maps a node's preferred Pool to an execution backend and
// runs its Execute call there, bounding worker concurrency with weighted
// semaphores.
package pool

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/kerrors"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
)

// ExecuteFunc is a node's Execute call, already closed over its kind's
// exact return shape by the caller (FlowRunner type-switches Producer /
// Blocking / NonBlocking / Logical and wraps each one identically).
type ExecuteFunc func(ctx context.Context) (*envelope.Envelope, error)

// Executor dispatches ExecuteFuncs to the backend named by a
// nodeconfig.Pool. COOPERATIVE runs inline; THREAD and PROCESS are
// bounded by bin semaphores sized at construction.
type Executor struct {
	threadSem  *semaphore.Weighted
	processSem *semaphore.Weighted
}

// New returns an Executor with the given worker counts. Counts below 1
// are clamped to 1.
func New(threadWorkers, processWorkers int) *Executor {
	if threadWorkers < 1 {
		threadWorkers = 1
	}
	if processWorkers < 1 {
		processWorkers = 1
	}
	return &Executor{
		threadSem:  semaphore.NewWeighted(int64(threadWorkers)),
		processSem: semaphore.NewWeighted(int64(processWorkers)),
	}
}

// Priority returns the pool dispatch-priority ordering:
// PROCESS > THREAD > COOPERATIVE. Lower is higher priority.
func Priority(p nodeconfig.Pool) int {
	switch p {
	case nodeconfig.Process:
		return 0
	case nodeconfig.Thread:
		return 1
	default:
		return 2
	}
}

// HighestPriority returns whichever of the given pools sorts first under
// Priority, used by FlowRunner when a loop mixes node pool preferences.
func HighestPriority(pools ...nodeconfig.Pool) nodeconfig.Pool {
	best := nodeconfig.Cooperative
	bestRank := Priority(best)
	for _, p := range pools {
		if r := Priority(p); r < bestRank {
			best, bestRank = p, r
		}
	}
	return best
}

// Resolve picks the pool a dispatch should actually use: a node's own
// preference wins when declared; otherwise the loop-level pin (if any)
// applies; otherwise COOPERATIVE, matching the upstream pool-selector's
// fallback when a node declares no preference at all.
func Resolve(nodePref, loopPin nodeconfig.Pool) nodeconfig.Pool {
	if nodePref.Valid() {
		return nodePref
	}
	if loopPin.Valid() {
		return loopPin
	}
	return nodeconfig.Cooperative
}

// ExecuteInPool runs fn on the backend p names. nodeID and env are used
// only for the PROCESS pool's serializability pre-check.
func (e *Executor) ExecuteInPool(ctx context.Context, p nodeconfig.Pool, nodeID string, env *envelope.Envelope, fn ExecuteFunc) (*envelope.Envelope, error) {
	switch p {
	case nodeconfig.Process:
		return e.executeInProcessPool(ctx, nodeID, env, fn)
	case nodeconfig.Thread:
		return e.executeBounded(ctx, e.threadSem, fn)
	default:
		return fn(ctx)
	}
}

// executeBounded acquires a weighted semaphore slot, runs fn inside its
// own goroutine via errgroup (so a panic surfaces as a single recovered
// error rather than crashing the runner), and releases the slot.
func (e *Executor) executeBounded(ctx context.Context, sem *semaphore.Weighted, fn ExecuteFunc) (*envelope.Envelope, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("pool: acquire worker slot: %w", err)
	}
	defer sem.Release(1)

	var result *envelope.Envelope
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pool: worker panicked: %v", r)
			}
		}()
		result, err = fn(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// executeInProcessPool fails fast with *kerrors.SerializationError if env
// cannot be JSON-encoded — the proxy this kernel uses for "would survive
// crossing a real process boundary" — before handing off to the same
// bounded-semaphore path THREAD uses.
func (e *Executor) executeInProcessPool(ctx context.Context, nodeID string, env *envelope.Envelope, fn ExecuteFunc) (*envelope.Envelope, error) {
	if _, err := json.Marshal(env); err != nil {
		return nil, &kerrors.SerializationError{NodeID: nodeID, Cause: err}
	}
	return e.executeBounded(ctx, e.processSem, fn)
}
