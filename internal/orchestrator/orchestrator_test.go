package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowkernel/common/logger"
	"github.com/lyzr/flowkernel/internal/datastore"
	"github.com/lyzr/flowkernel/internal/devcache"
	"github.com/lyzr/flowkernel/internal/dlq"
	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/examplenodes"
	"github.com/lyzr/flowkernel/internal/kernelnode"
	"github.com/lyzr/flowkernel/internal/kerrors"
	"github.com/lyzr/flowkernel/internal/loader"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
	"github.com/lyzr/flowkernel/internal/pool"
	"github.com/lyzr/flowkernel/internal/registry"
)

type devProducer struct{ kernelnode.Base }

func (devProducer) Identifier() string { return "dev-producer" }
func (devProducer) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, bool, error) {
	out := envelope.New()
	out.Set("a", float64(1))
	return out, true, nil
}

type devStep struct {
	kernelnode.Base
	key string
}

func (s *devStep) Identifier() string { return "dev-step" }
func (s *devStep) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	out := env.Clone()
	out.Set(s.key, true)
	return out, nil
}

// recordingSink is a NonBlocking terminator that remembers every
// envelope it saw, so production-mode tests can observe delivery.
type recordingSink struct {
	kernelnode.Base
	mu   sync.Mutex
	envs []*envelope.Envelope
}

func (s *recordingSink) Identifier() string { return "test-recording-sink" }
func (s *recordingSink) Terminal() bool     { return true }
func (s *recordingSink) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	s.mu.Lock()
	s.envs = append(s.envs, env.Clone())
	s.mu.Unlock()
	return env, nil
}

func (s *recordingSink) received() []*envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*envelope.Envelope(nil), s.envs...)
}

func newTestOrchestrator(t *testing.T, store datastore.DataStore, register registry.RegisterFunc) *Orchestrator {
	t.Helper()
	reg, err := registry.Discover(register)
	require.NoError(t, err)

	log := logger.New("error", "text")
	l := loader.New(reg, log)
	return New(l, pool.New(2, 2), devcache.New(store), dlq.New(), log)
}

func registerDevNodes(r *registry.Registry) {
	r.Register("dev-producer", "devProducer", func(cfg *nodeconfig.Config) (kernelnode.Node, error) {
		return devProducer{}, nil
	})
	for _, key := range []string{"b", "c"} {
		key := key
		r.Register("dev-step-"+key, "devStep", func(cfg *nodeconfig.Config) (kernelnode.Node, error) {
			return &devStep{key: key}, nil
		})
	}
}

const devWorkflow = `{
  "nodes": [
    {"id": "A", "type": "dev-producer", "data": {}},
    {"id": "B", "type": "dev-step-b", "data": {}},
    {"id": "C", "type": "dev-step-c", "data": {}}
  ],
  "edges": [
    {"source": "A", "target": "B"},
    {"source": "B", "target": "C"}
  ]
}`

func TestExecuteNodeResolvesUpstreamFromCache(t *testing.T) {
	ctx := context.Background()
	store := datastore.NewMemoryStore()
	orch := newTestOrchestrator(t, store, registerDevNodes)
	require.NoError(t, orch.LoadWorkflow(ctx, []byte(devWorkflow)))

	// C's upstream B has no cached output yet.
	_, err := orch.ExecuteNode(ctx, "C", nil)
	var unresolved *kerrors.UnresolvedDependencyError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "B", unresolved.UpstreamID)

	outA, err := orch.ExecuteNode(ctx, "A", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, outA.Data["a"])

	outB, err := orch.ExecuteNode(ctx, "B", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, outB.Data["a"])
	assert.Equal(t, true, outB.Data["b"])

	outC, err := orch.ExecuteNode(ctx, "C", nil)
	require.NoError(t, err)
	assert.Equal(t, true, outC.Data["c"])

	cache := devcache.New(store)
	for _, id := range []string{"A", "B", "C"} {
		has, err := cache.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, has, "expected %s in dev cache", id)
	}
}

func TestExecuteNodeExplicitInput(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t, datastore.NewMemoryStore(), registerDevNodes)
	require.NoError(t, orch.LoadWorkflow(ctx, []byte(devWorkflow)))

	input := envelope.New()
	input.Set("a", float64(9))
	out, err := orch.ExecuteNode(ctx, "C", input)
	require.NoError(t, err)
	assert.EqualValues(t, 9, out.Data["a"])
	assert.Equal(t, true, out.Data["c"])
}

func TestExecuteNodeUnknownNode(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t, datastore.NewMemoryStore(), registerDevNodes)
	require.NoError(t, orch.LoadWorkflow(ctx, []byte(devWorkflow)))

	_, err := orch.ExecuteNode(ctx, "ghost", nil)
	require.Error(t, err)
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	store := datastore.NewMemoryStore()
	orch := newTestOrchestrator(t, store, registerDevNodes)
	require.NoError(t, orch.LoadWorkflow(ctx, []byte(devWorkflow)))

	_, err := orch.ExecuteNode(ctx, "A", nil)
	require.NoError(t, err)
	require.NoError(t, orch.ClearCache(ctx))

	has, err := devcache.New(store).Has(ctx, "A")
	require.NoError(t, err)
	assert.False(t, has)
}

const queueHandoffWorkflow = `{
  "nodes": [
    {"id": "SRC", "type": "example-counter-producer", "data": {"config": {"limit": 1}}},
    {"id": "QW", "type": "example-queue-writer", "data": {}},
    {"id": "QR", "type": "example-queue-reader", "data": {}},
    {"id": "T", "type": "test-recording-sink", "data": {}}
  ],
  "edges": [
    {"source": "SRC", "target": "QW"},
    {"source": "QW", "target": "QR"},
    {"source": "QR", "target": "T"}
  ]
}`

func TestProductionQueueHandoffBetweenLoops(t *testing.T) {
	ctx := context.Background()
	store := datastore.NewMemoryStore()
	sink := &recordingSink{}

	orch := newTestOrchestrator(t, store, func(r *registry.Registry) {
		examplenodes.Register(r, store)
		r.Register("test-recording-sink", "recordingSink", func(cfg *nodeconfig.Config) (kernelnode.Node, error) {
			return sink, nil
		})
	})
	require.NoError(t, orch.LoadWorkflow(ctx, []byte(queueHandoffWorkflow)))

	require.NoError(t, orch.StartAll(ctx))
	assert.Equal(t, []string{"QR", "SRC"}, orch.RunningLoops())

	// The counter loop pushes one envelope through the auto-linked
	// queue; the reader loop must deliver it to the sink.
	require.Eventually(t, func() bool {
		return len(sink.received()) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	orch.StopAll()
	assert.Empty(t, orch.RunningLoops())

	got := sink.received()
	require.NotEmpty(t, got)
	assert.EqualValues(t, 1, got[0].Data["count"])
}

func TestStartAllRequiresLoadedWorkflow(t *testing.T) {
	orch := newTestOrchestrator(t, datastore.NewMemoryStore(), registerDevNodes)
	require.Error(t, orch.StartAll(context.Background()))
}

func TestStartAllTwiceRejected(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t, datastore.NewMemoryStore(), registerDevNodes)
	require.NoError(t, orch.LoadWorkflow(ctx, []byte(devWorkflow)))

	require.NoError(t, orch.StartAll(ctx))
	require.Error(t, orch.StartAll(ctx))
	orch.StopAll()

	// After StopAll the workflow can be started again.
	require.NoError(t, orch.StartAll(ctx))
	orch.StopAll()
}

func TestShutdownStopsRunners(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t, datastore.NewMemoryStore(), registerDevNodes)
	require.NoError(t, orch.LoadWorkflow(ctx, []byte(devWorkflow)))
	require.NoError(t, orch.StartAll(ctx))
	require.NoError(t, orch.Shutdown(ctx))
	assert.Empty(t, orch.RunningLoops())
}
