package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/graph"
	"github.com/lyzr/flowkernel/internal/kernelnode"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
	"github.com/lyzr/flowkernel/internal/registry"
)

type recordedNode struct {
	kernelnode.Base
	cfg *nodeconfig.Config
}

func (n *recordedNode) Identifier() string { return n.cfg.TypeIdentifier() }
func (n *recordedNode) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return env, nil
}

func testRegistry(t *testing.T, types ...string) *registry.Registry {
	t.Helper()
	r := registry.New()
	for _, typ := range types {
		r.Register(typ, typ, func(cfg *nodeconfig.Config) (kernelnode.Node, error) {
			return &recordedNode{
				Base: kernelnode.Base{Pool: cfg.PreferredPool()},
				cfg:  cfg,
			}, nil
		})
	}
	return r
}

const workflowJSON = `{
  "nodes": [
    {"id": "n1", "type": "monitor", "data": {"form": {"queue_name": "default"}, "config": {"limit": 3}}},
    {"id": "n2", "type": "decide", "data": {}},
    {"id": "n3", "type": "notify", "data": {}},
    {"id": "n4", "type": "notify", "data": {}}
  ],
  "edges": [
    {"source": "n1", "target": "n2"},
    {"source": "n2", "target": "n3", "sourceHandle": "Yes"},
    {"source": "n2", "target": "n4", "sourceHandle": "No"}
  ]
}`

func TestLoadBuildsGraph(t *testing.T) {
	l := New(testRegistry(t, "monitor", "decide", "notify"), nil)

	result, err := l.Load([]byte(workflowJSON))
	require.NoError(t, err)
	require.Empty(t, result.Skipped)

	g := result.Graph
	assert.Equal(t, []string{"n1", "n2", "n3", "n4"}, g.Nodes())

	// Handles are normalized: missing -> "default", "Yes"/"No" lowered.
	assert.Equal(t, []string{"n2"}, g.Neighbors("n1")[graph.DefaultBranch])
	assert.Equal(t, []string{"n3"}, g.Neighbors("n2")["yes"])
	assert.Equal(t, []string{"n4"}, g.Neighbors("n2")["no"])

	n1, ok := g.Node("n1")
	require.True(t, ok)
	cfg := n1.Instance.(*recordedNode).cfg
	limit, _ := cfg.ConfigValue("limit")
	assert.EqualValues(t, 3, limit)
	qn, _ := cfg.FormValue("queue_name")
	assert.Equal(t, "default", qn)
}

func TestLoadPreservesParallelEdges(t *testing.T) {
	doc := `{
	  "nodes": [
	    {"id": "a", "type": "decide", "data": {}},
	    {"id": "b", "type": "notify", "data": {}},
	    {"id": "c", "type": "notify", "data": {}}
	  ],
	  "edges": [
	    {"source": "a", "target": "b"},
	    {"source": "a", "target": "c"},
	    {"source": "a", "target": "b"}
	  ]
	}`
	l := New(testRegistry(t, "decide", "notify"), nil)

	result, err := l.Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "b"}, result.Graph.Neighbors("a")[graph.DefaultBranch])
}

func TestLoadSkipsUnknownTypes(t *testing.T) {
	l := New(testRegistry(t, "decide", "notify"), nil)

	result, err := l.Load([]byte(workflowJSON)) // "monitor" unregistered
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, result.Skipped)
	assert.Equal(t, []string{"n2", "n3", "n4"}, result.Graph.Nodes())

	// The n1->n2 edge referenced a skipped node and was dropped; the
	// rest of the adjacency survives.
	assert.Equal(t, []string{"n3"}, result.Graph.Neighbors("n2")["yes"])
}

func TestLoadReadsPoolFromConfig(t *testing.T) {
	doc := `{
	  "nodes": [
	    {"id": "a", "type": "decide", "data": {"config": {"preferred_pool": "process"}}}
	  ],
	  "edges": []
	}`
	l := New(testRegistry(t, "decide"), nil)

	result, err := l.Load([]byte(doc))
	require.NoError(t, err)
	a, _ := result.Graph.Node("a")
	assert.Equal(t, nodeconfig.Process, a.Instance.PreferredPool())
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	l := New(testRegistry(t), nil)
	_, err := l.Load([]byte(`{"nodes": [`))
	require.Error(t, err)
}

func TestLoadRejectsEdgeToMissingNode(t *testing.T) {
	doc := `{
	  "nodes": [{"id": "a", "type": "decide", "data": {}}],
	  "edges": [{"source": "a", "target": "ghost"}]
	}`
	l := New(testRegistry(t, "decide"), nil)
	_, err := l.Load([]byte(doc))
	require.Error(t, err)
}

func TestApplyPatch(t *testing.T) {
	l := New(testRegistry(t, "decide"), nil)
	raw := []byte(`{"nodes": [{"id": "a", "type": "decide", "data": {"config": {"x": 1}}}], "edges": []}`)
	patch := []byte(`[{"op": "replace", "path": "/nodes/0/data/config/x", "value": 2}]`)

	out, err := l.ApplyPatch(raw, patch)
	require.NoError(t, err)

	result, err := l.Load(out)
	require.NoError(t, err)
	a, _ := result.Graph.Node("a")
	x, _ := a.Instance.(*recordedNode).cfg.ConfigValue("x")
	assert.EqualValues(t, 2, x)
}

func TestApplyPatchBadPatch(t *testing.T) {
	l := New(testRegistry(t), nil)
	_, err := l.ApplyPatch([]byte(`{}`), []byte(`not a patch`))
	require.Error(t, err)
}
