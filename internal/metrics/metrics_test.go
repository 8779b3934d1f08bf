package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeMetrics(t *testing.T) {
	c := NewCollector()

	c.StartNode("n1").Finish(true)
	c.StartNode("n1").Finish(true)
	c.StartNode("n1").Finish(false)

	m := c.NodeMetrics("n1")
	assert.EqualValues(t, 3, m.ExecutionCount)
	assert.EqualValues(t, 1, m.ErrorCount)
	assert.InDelta(t, 2.0/3.0, m.SuccessRate, 1e-9)
	assert.GreaterOrEqual(t, m.MaxExecutionTime, m.MinExecutionTime)
	assert.GreaterOrEqual(t, m.AvgExecutionTime, m.MinExecutionTime)
	assert.LessOrEqual(t, m.AvgExecutionTime, m.MaxExecutionTime)
}

func TestNodeMetricsUntracked(t *testing.T) {
	c := NewCollector()
	m := c.NodeMetrics("ghost")
	assert.Zero(t, m.ExecutionCount)
	assert.Equal(t, 1.0, m.SuccessRate)
}

func TestLoopAndQueueMetrics(t *testing.T) {
	c := NewCollector()

	c.RecordIteration("p1")
	c.RecordIteration("p1")
	assert.EqualValues(t, 2, c.LoopMetrics("p1"))
	assert.Zero(t, c.LoopMetrics("p2"))

	c.RecordQueueLength("q", 7)
	assert.EqualValues(t, 7, c.QueueMetrics("q"))
}

func TestSnapshot(t *testing.T) {
	c := NewCollector()
	c.StartNode("a").Finish(true)
	c.StartNode("b").Finish(false)

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.EqualValues(t, 1, snap["a"].ExecutionCount)
	assert.EqualValues(t, 1, snap["b"].ErrorCount)
}
