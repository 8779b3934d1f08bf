package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/kernelnode"
)

type stubProducer struct{ kernelnode.Base }

func (stubProducer) Identifier() string { return "stub-producer" }
func (stubProducer) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, bool, error) {
	return env, true, nil
}

type stubBlocking struct{ kernelnode.Base }

func (stubBlocking) Identifier() string { return "stub-blocking" }
func (stubBlocking) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return env, nil
}

type stubSink struct{ kernelnode.Base }

func (stubSink) Identifier() string { return "stub-sink" }
func (stubSink) Terminal() bool     { return true }
func (stubSink) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return env, nil
}

func addAll(t *testing.T, g *Graph, nodes map[string]kernelnode.Node, order ...string) {
	t.Helper()
	for _, id := range order {
		require.NoError(t, g.AddNode(id, nodes[id]))
	}
}

func TestAddNodeDuplicate(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", stubBlocking{}))
	require.Error(t, g.AddNode("a", stubBlocking{}))
	assert.Equal(t, 1, g.Len())
}

func TestConnectAppendsNeverCollapses(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", stubBlocking{}))
	require.NoError(t, g.AddNode("b", stubBlocking{}))
	require.NoError(t, g.AddNode("c", stubBlocking{}))

	require.NoError(t, g.Connect("a", "b", "default"))
	require.NoError(t, g.Connect("a", "c", "default"))
	require.NoError(t, g.Connect("a", "b", "default")) // repeat, must append

	assert.Equal(t, []string{"b", "c", "b"}, g.Neighbors("a")["default"])
}

func TestConnectMissingEndpoints(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", stubBlocking{}))
	require.Error(t, g.Connect("a", "ghost", "default"))
	require.Error(t, g.Connect("ghost", "a", "default"))
}

func TestConnectEmptyKeyDefaults(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", stubBlocking{}))
	require.NoError(t, g.AddNode("b", stubBlocking{}))
	require.NoError(t, g.Connect("a", "b", ""))
	assert.Equal(t, []string{"b"}, g.Neighbors("a")[DefaultBranch])
}

func TestNeighborsIsACopy(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", stubBlocking{}))
	require.NoError(t, g.AddNode("b", stubBlocking{}))
	require.NoError(t, g.Connect("a", "b", "default"))

	n := g.Neighbors("a")
	n["default"][0] = "mutated"
	assert.Equal(t, []string{"b"}, g.Neighbors("a")["default"])
}

func TestUpstream(t *testing.T) {
	g := New()
	addAll(t, g, map[string]kernelnode.Node{
		"p": stubProducer{}, "a": stubBlocking{}, "b": stubBlocking{},
	}, "p", "a", "b")
	require.NoError(t, g.Connect("p", "b", "default"))
	require.NoError(t, g.Connect("a", "b", "yes"))

	assert.Equal(t, []string{"p", "a"}, g.Upstream("b"))
	assert.Empty(t, g.Upstream("p"))
}

func TestFirstNode(t *testing.T) {
	g := New()
	_, ok := g.FirstNode()
	assert.False(t, ok)

	addAll(t, g, map[string]kernelnode.Node{
		"a": stubBlocking{}, "b": stubBlocking{},
	}, "a", "b")
	require.NoError(t, g.Connect("a", "b", "default"))

	first, ok := g.FirstNode()
	require.True(t, ok)
	assert.Equal(t, "a", first)
}

func TestFirstNodeFallsBackToProducer(t *testing.T) {
	// A two-node cycle: every node has an incoming edge, so the first
	// declared producer wins.
	g := New()
	addAll(t, g, map[string]kernelnode.Node{
		"a": stubBlocking{}, "p": stubProducer{},
	}, "a", "p")
	require.NoError(t, g.Connect("a", "p", "default"))
	require.NoError(t, g.Connect("p", "a", "default"))

	first, ok := g.FirstNode()
	require.True(t, ok)
	assert.Equal(t, "p", first)
}

func TestProducers(t *testing.T) {
	g := New()
	addAll(t, g, map[string]kernelnode.Node{
		"b": stubBlocking{}, "p1": stubProducer{}, "p2": stubProducer{},
	}, "b", "p1", "p2")
	assert.Equal(t, []string{"p1", "p2"}, g.Producers())
}

func TestFindLoops(t *testing.T) {
	g := New()
	addAll(t, g, map[string]kernelnode.Node{
		"p": stubProducer{}, "b": stubBlocking{}, "t": stubSink{},
	}, "p", "b", "t")
	require.NoError(t, g.Connect("p", "b", "default"))
	require.NoError(t, g.Connect("b", "t", "default"))

	loops, warnings := g.FindLoops()
	require.Len(t, loops, 1)
	assert.Equal(t, Loop{Producer: "p", Terminator: "t"}, loops[0])
	assert.Empty(t, warnings)
}

func TestFindLoopsCutsCycles(t *testing.T) {
	g := New()
	addAll(t, g, map[string]kernelnode.Node{
		"p": stubProducer{}, "a": stubBlocking{}, "b": stubBlocking{},
	}, "p", "a", "b")
	require.NoError(t, g.Connect("p", "a", "default"))
	require.NoError(t, g.Connect("a", "b", "default"))
	require.NoError(t, g.Connect("b", "a", "default"))

	loops, warnings := g.FindLoops()
	assert.Empty(t, loops)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "cycle")
}

func TestBranchKeysOrder(t *testing.T) {
	g := New()
	addAll(t, g, map[string]kernelnode.Node{
		"a": stubBlocking{}, "b": stubBlocking{}, "c": stubBlocking{},
	}, "a", "b", "c")
	require.NoError(t, g.Connect("a", "b", "yes"))
	require.NoError(t, g.Connect("a", "c", "no"))
	require.NoError(t, g.Connect("a", "c", "yes"))

	assert.Equal(t, []string{"yes", "no"}, g.BranchKeys("a"))
}
