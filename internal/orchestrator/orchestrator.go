// Package orchestrator is the top-level kernel: it loads a workflow and
// either runs it continuously (production mode, one FlowRunner per
// producer) or steps through it one node at a time with cache-resolved
// inputs (development mode).
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lyzr/flowkernel/common/logger"
	"github.com/lyzr/flowkernel/internal/devcache"
	"github.com/lyzr/flowkernel/internal/dlq"
	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/flowrunner"
	"github.com/lyzr/flowkernel/internal/graph"
	"github.com/lyzr/flowkernel/internal/kernelnode"
	"github.com/lyzr/flowkernel/internal/kerrors"
	"github.com/lyzr/flowkernel/internal/loader"
	"github.com/lyzr/flowkernel/internal/metrics"
	"github.com/lyzr/flowkernel/internal/pool"
	"github.com/lyzr/flowkernel/internal/postprocess"
)

// Orchestrator holds the currently loaded graph and drives both modes.
type Orchestrator struct {
	loader   *loader.Loader
	executor *pool.Executor
	cache    *devcache.DevCache
	dlq      *dlq.DLQ
	log      *logger.Logger
	metrics  *metrics.Collector

	mu      sync.Mutex
	graph   *graph.Graph
	runners map[string]*flowrunner.Runner
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New wires an Orchestrator over already-constructed dependencies.
func New(l *loader.Loader, executor *pool.Executor, cache *devcache.DevCache, q *dlq.DLQ, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		loader:   l,
		executor: executor,
		cache:    cache,
		dlq:      q,
		log:      log,
		metrics:  metrics.NewCollector(),
		runners:  make(map[string]*flowrunner.Runner),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Metrics returns the Collector tracking this Orchestrator's node and
// loop execution stats. The same Collector instance is shared across
// every FlowRunner StartAll creates.
func (o *Orchestrator) Metrics() *metrics.Collector { return o.metrics }

// LoadWorkflow parses raw workflow JSON, runs the standard
// post-processing passes (QueueLinker then ReadinessValidator), and
// replaces the currently loaded graph.
func (o *Orchestrator) LoadWorkflow(ctx context.Context, raw []byte) error {
	result, err := o.loader.Load(raw)
	if err != nil {
		return err
	}

	if err := postprocess.Run(result.Graph, postprocess.QueueLinker, postprocess.ReadinessValidator(ctx)); err != nil {
		return err
	}

	o.mu.Lock()
	o.graph = result.Graph
	o.mu.Unlock()

	o.log.Info("orchestrator: workflow loaded", "nodes", result.Graph.Len(), "skipped", len(result.Skipped))
	return nil
}

// StartAll creates one FlowRunner per producer and runs them all
// concurrently (production mode). It returns once every runner has been
// launched; runners keep running in the background until StopAll.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.graph == nil {
		return fmt.Errorf("orchestrator: no workflow loaded")
	}
	if len(o.runners) > 0 {
		return fmt.Errorf("orchestrator: runners already started; call StopAll first")
	}

	for _, id := range o.graph.Producers() {
		runnerCtx, cancel := context.WithCancel(ctx)
		r := flowrunner.New(id, o.graph, o.executor, o.dlq, o.log)
		r.SetMetrics(o.metrics)
		o.runners[id] = r
		o.cancels[id] = cancel

		o.wg.Add(1)
		go func(id string, r *flowrunner.Runner, runnerCtx context.Context) {
			defer o.wg.Done()
			if err := r.Run(runnerCtx); err != nil {
				o.log.Error("orchestrator: runner exited with error", "producer_id", id, "error", err)
			}
		}(id, r, runnerCtx)
	}

	o.log.Info("orchestrator: started all loops", "count", len(o.runners))
	return nil
}

// StopAll signals every runner to stop and blocks until they all exit.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	for id, r := range o.runners {
		r.Stop()
		if cancel, ok := o.cancels[id]; ok {
			cancel()
		}
	}
	o.mu.Unlock()

	o.wg.Wait()

	o.mu.Lock()
	o.runners = make(map[string]*flowrunner.Runner)
	o.cancels = make(map[string]context.CancelFunc)
	o.mu.Unlock()

	o.log.Info("orchestrator: stopped all loops")
}

// RunningLoops returns the producer ids of every currently started
// runner, sorted.
func (o *Orchestrator) RunningLoops() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.runners))
	for id := range o.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ExecuteNode implements development mode: resolve input (either the
// supplied envelope or every required upstream's cached output),
// dispatch through the pool executor, cache the result under id, and
// return it.
func (o *Orchestrator) ExecuteNode(ctx context.Context, id string, input *envelope.Envelope) (*envelope.Envelope, error) {
	o.mu.Lock()
	g := o.graph
	o.mu.Unlock()
	if g == nil {
		return nil, fmt.Errorf("orchestrator: no workflow loaded")
	}

	node, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("orchestrator: node %q not found", id)
	}

	env := input
	if env == nil {
		resolved, err := o.resolveInput(ctx, id)
		if err != nil {
			return nil, err
		}
		env = resolved
	}

	out, err := o.executeOne(ctx, id, node.Instance, env)
	if err != nil {
		return nil, err
	}

	if err := o.cache.Set(ctx, id, out, nil); err != nil {
		o.log.Error("orchestrator: failed to cache node output", "node_id", id, "error", err)
	}
	return out, nil
}

// resolveInput merges every upstream node's cached output into one
// envelope, failing with *kerrors.UnresolvedDependencyError if any
// upstream has no cached output yet.
func (o *Orchestrator) resolveInput(ctx context.Context, id string) (*envelope.Envelope, error) {
	o.mu.Lock()
	g := o.graph
	o.mu.Unlock()

	upstream := g.Upstream(id)
	merged := envelope.New()
	for _, upID := range upstream {
		cached, ok, err := o.cache.Get(ctx, upID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &kerrors.UnresolvedDependencyError{UpstreamID: upID}
		}
		for k, v := range cached.Data {
			merged.Set(k, v)
		}
		for k, v := range cached.Metadata {
			merged.SetMeta(k, v)
		}
	}
	return merged, nil
}

func (o *Orchestrator) executeOne(ctx context.Context, id string, instance kernelnode.Node, env *envelope.Envelope) (*envelope.Envelope, error) {
	var fn pool.ExecuteFunc
	switch n := instance.(type) {
	case kernelnode.Producer:
		fn = func(ctx context.Context) (*envelope.Envelope, error) {
			out, _, err := n.Execute(ctx, env)
			return out, err
		}
	case kernelnode.Logical:
		fn = func(ctx context.Context) (*envelope.Envelope, error) { return n.Execute(ctx, env) }
	case kernelnode.NonBlocking:
		fn = func(ctx context.Context) (*envelope.Envelope, error) { return n.Execute(ctx, env) }
	case kernelnode.Blocking:
		fn = func(ctx context.Context) (*envelope.Envelope, error) { return n.Execute(ctx, env) }
	default:
		return nil, fmt.Errorf("orchestrator: node %q has no recognized execute contract", id)
	}
	return o.executor.ExecuteInPool(ctx, instance.PreferredPool(), id, env, fn)
}

// ClearCache empties DevCache for every node currently in the graph.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	o.mu.Lock()
	g := o.graph
	o.mu.Unlock()
	if g == nil {
		return nil
	}
	return o.cache.ClearAll(ctx, g.Nodes())
}

// Shutdown stops every runner. It does not close the executor or the
// datastore.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.StopAll()
	return nil
}
