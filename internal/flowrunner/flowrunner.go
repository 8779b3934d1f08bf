// Package flowrunner drives one loop per producer:
// producer-then-chain-traversal until a NonBlocking terminator, with DLQ
// routing and cooperative cancellation.
package flowrunner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/flowkernel/common/logger"
	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/graph"
	"github.com/lyzr/flowkernel/internal/kernelnode"
	"github.com/lyzr/flowkernel/internal/kerrors"
	"github.com/lyzr/flowkernel/internal/metrics"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
	"github.com/lyzr/flowkernel/internal/pool"
)

// State is a runner's position in the Idle -> Running -> Stopping ->
// Stopped lifecycle. Paused-on-error is not a distinct stored state: a
// failed iteration backs off and resumes Running, observed only through
// the backoff delay.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Sink is where a Runner routes a node execution it could not complete.
type Sink interface {
	Push(nodeID string, env *envelope.Envelope, kind, message, stack string) error
}

// DefaultBackoff is the pause a runner takes after a failed iteration
// before attempting the next one.
const DefaultBackoff = 500 * time.Millisecond

// Runner drives the single loop rooted at one producer.
type Runner struct {
	producerID string
	graph      *graph.Graph
	executor   *pool.Executor
	dlq        Sink
	log        *logger.Logger
	backoff    time.Duration
	metrics    *metrics.Collector
	loopPin    nodeconfig.Pool

	mu        sync.Mutex
	state     State
	stopCh    chan struct{}
	iteration uint64
}

// New returns a Runner rooted at producerID. producerID must name a node
// in g whose instance satisfies kernelnode.Producer. The loop's pool pin
// is derived here, once, from the reachable chain's declared preferences.
func New(producerID string, g *graph.Graph, executor *pool.Executor, dlq Sink, log *logger.Logger) *Runner {
	return &Runner{
		producerID: producerID,
		graph:      g,
		executor:   executor,
		dlq:        dlq,
		log:        log.WithLoopID(producerID),
		backoff:    DefaultBackoff,
		loopPin:    derivePoolPin(g, producerID),
		state:      Idle,
		stopCh:     make(chan struct{}),
	}
}

// derivePoolPin collects the declared pool preferences of every node
// reachable from producerID (the producer included, across every branch
// key) and pins the loop to the highest-priority one. A node that
// declares its own preference still wins at dispatch time; the pin only
// decides where preference-less nodes run.
func derivePoolPin(g *graph.Graph, producerID string) nodeconfig.Pool {
	var pools []nodeconfig.Pool
	visited := make(map[string]bool)
	queue := []string{producerID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		if p := n.Instance.PreferredPool(); p.Valid() {
			pools = append(pools, p)
		}
		for _, targets := range g.Neighbors(id) {
			queue = append(queue, targets...)
		}
	}
	return pool.HighestPriority(pools...)
}

// LoopPool reports the pool this runner's loop is pinned to.
func (r *Runner) LoopPool() nodeconfig.Pool { return r.loopPin }

// State reports the runner's current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// SetMetrics attaches a Collector that tracks per-node execution
// counts/latencies and per-loop iteration counts. Passing nil (the
// zero value) disables metrics recording.
func (r *Runner) SetMetrics(m *metrics.Collector) { r.metrics = m }

// Stop flips Running -> Stopping. The runner exits at the next iteration
// boundary; Run's return signals Stopped.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Running {
		r.state = Stopping
		close(r.stopCh)
	}
}

// Run drives iterations until Stop is called, ctx is cancelled, or the
// producer signals completion. It returns nil on a clean stop.
func (r *Runner) Run(ctx context.Context) error {
	r.setState(Running)
	defer r.setState(Stopped)

	node, ok := r.graph.Node(r.producerID)
	if !ok {
		return fmt.Errorf("flowrunner: producer %q not found in graph", r.producerID)
	}
	producer, ok := node.Instance.(kernelnode.Producer)
	if !ok {
		return fmt.Errorf("flowrunner: node %q does not satisfy Producer", r.producerID)
	}

	for {
		select {
		case <-ctx.Done():
			r.log.Info("flowrunner: context cancelled, stopping")
			return nil
		case <-r.stopCh:
			r.log.Info("flowrunner: stop requested, stopping")
			return nil
		default:
		}

		r.iteration++
		iterLog := r.log.WithIteration(r.iteration)

		env, complete, err := r.executeProducer(ctx, producer)
		if err != nil {
			if isCancelled(err) {
				return nil
			}
			iterLog.Error("flowrunner: producer execution failed", "error", err)
			r.routeToDLQ(r.producerID, env, err)
			r.backoffSleep(ctx)
			continue
		}
		if complete {
			iterLog.Info("flowrunner: producer signalled completion, stopping")
			return nil
		}
		if env != nil {
			env.SetMeta("iteration_id", uuid.NewString())
		}

		if err := r.runChain(ctx, iterLog, env); err != nil {
			if isCancelled(err) {
				return nil
			}
			r.backoffSleep(ctx)
			continue
		}
		if r.metrics != nil {
			r.metrics.RecordIteration(r.producerID)
		}
	}
}

func (r *Runner) executeProducer(ctx context.Context, producer kernelnode.Producer) (*envelope.Envelope, bool, error) {
	var produced bool
	var exec *metrics.NodeExecution
	if r.metrics != nil {
		exec = r.metrics.StartNode(r.producerID)
	}
	fn := func(ctx context.Context) (*envelope.Envelope, error) {
		out, ok, err := producer.Execute(ctx, envelope.New())
		produced = ok
		return out, err
	}
	out, err := r.executor.ExecuteInPool(ctx, pool.Resolve(producer.PreferredPool(), r.loopPin), r.producerID, envelope.New(), fn)
	if errors.Is(err, kernelnode.ExecutionComplete) {
		if exec != nil {
			exec.Finish(true)
		}
		return out, true, nil
	}
	if exec != nil {
		exec.Finish(err == nil)
	}
	if err != nil {
		return out, false, wrapExecErr(r.producerID, err)
	}
	return out, !produced, nil
}

// runChain walks current -> next repeatedly, starting from the
// producer, until a NonBlocking node ends the iteration or a cycle or
// dead end is detected.
func (r *Runner) runChain(ctx context.Context, iterLog *logger.Logger, env *envelope.Envelope) error {
	current := r.producerID
	visited := map[string]bool{current: true}

	for {
		currentNode, ok := r.graph.Node(current)
		if !ok {
			return fmt.Errorf("flowrunner: node %q not found in graph", current)
		}

		nextID, ok := r.selectNext(currentNode)
		if !ok {
			iterLog.Debug("flowrunner: chain dead-ended, ending iteration", "at", current)
			return nil
		}
		if visited[nextID] {
			iterLog.Warn("flowrunner: cycle detected mid-iteration, ending iteration", "at", current, "repeated", nextID)
			return nil
		}
		visited[nextID] = true

		nextNode, ok := r.graph.Node(nextID)
		if !ok {
			return fmt.Errorf("flowrunner: node %q not found in graph", nextID)
		}

		out, err := r.executeNode(ctx, nextID, nextNode.Instance, env)
		if err != nil {
			if isCancelled(err) {
				iterLog.Info("flowrunner: node cancelled, ending iteration", "node_id", nextID)
				return err
			}
			iterLog.Error("flowrunner: node execution failed", "node_id", nextID, "error", err)
			r.routeToDLQ(nextID, env, err)
			return err
		}
		env = out

		if nb, ok := nextNode.Instance.(kernelnode.NonBlocking); ok && nb.Terminal() {
			iterLog.Debug("flowrunner: reached non-blocking terminator, ending iteration", "node_id", nextID)
			return nil
		}

		current = nextID
	}
}

// selectNext picks the next node: Logical nodes route by branch label;
// everything else uses "default", falling back to the first declared
// branch.
func (r *Runner) selectNext(n *graph.Node) (string, bool) {
	neighbors := r.graph.Neighbors(n.ID)
	keys := r.graph.BranchKeys(n.ID)
	if len(keys) == 0 {
		return "", false
	}

	if logical, ok := n.Instance.(kernelnode.Logical); ok {
		label := logical.BranchLabel()
		if list, ok := neighbors[label]; ok && len(list) > 0 {
			return list[0], true
		}
	}
	if list, ok := neighbors[graph.DefaultBranch]; ok && len(list) > 0 {
		return list[0], true
	}
	for _, k := range keys {
		if list := neighbors[k]; len(list) > 0 {
			return list[0], true
		}
	}
	return "", false
}

// executeNode dispatches to the node's kind-specific Execute signature,
// wrapping it for the pool executor.
func (r *Runner) executeNode(ctx context.Context, nodeID string, instance kernelnode.Node, env *envelope.Envelope) (*envelope.Envelope, error) {
	var fn pool.ExecuteFunc
	switch n := instance.(type) {
	case kernelnode.Logical:
		fn = func(ctx context.Context) (*envelope.Envelope, error) { return n.Execute(ctx, env) }
	case kernelnode.NonBlocking:
		fn = func(ctx context.Context) (*envelope.Envelope, error) { return n.Execute(ctx, env) }
	case kernelnode.Blocking:
		fn = func(ctx context.Context) (*envelope.Envelope, error) { return n.Execute(ctx, env) }
	default:
		return nil, fmt.Errorf("flowrunner: node %q is neither Blocking, NonBlocking, nor Logical", nodeID)
	}

	var exec *metrics.NodeExecution
	if r.metrics != nil {
		exec = r.metrics.StartNode(nodeID)
	}
	out, err := r.executor.ExecuteInPool(ctx, pool.Resolve(instance.PreferredPool(), r.loopPin), nodeID, env, fn)
	if exec != nil {
		exec.Finish(err == nil)
	}
	if err != nil {
		return nil, wrapExecErr(nodeID, err)
	}
	return out, nil
}

func (r *Runner) routeToDLQ(nodeID string, env *envelope.Envelope, err error) {
	if r.dlq == nil {
		return
	}
	kind := fmt.Sprintf("%T", err)
	if pushErr := r.dlq.Push(nodeID, env, kind, err.Error(), string(debug.Stack())); pushErr != nil {
		r.log.Error("flowrunner: failed to push DLQ record", "node_id", nodeID, "error", pushErr)
	}
}

func (r *Runner) backoffSleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.backoff):
	}
}

// wrapExecErr leaves already-distinguishable kernel error kinds alone
// (so isCancelled and DLQ kind-naming still see them) and wraps anything
// else as a NodeExecutionError.
func wrapExecErr(nodeID string, err error) error {
	var cancelled *kerrors.Cancelled
	var serialization *kerrors.SerializationError
	if errors.As(err, &cancelled) || errors.As(err, &serialization) {
		return err
	}
	return &kerrors.NodeExecutionError{NodeID: nodeID, Cause: err, Stack: string(debug.Stack())}
}

// isCancelled treats both the kernel's own Cancelled kind and a plain
// context cancellation as a cooperative stop: neither is routed to DLQ.
func isCancelled(err error) bool {
	var c *kerrors.Cancelled
	return errors.As(err, &c) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
