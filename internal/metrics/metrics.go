// Package metrics tracks per-node execution counts and latencies and
// per-loop iteration counts, aggregated in-process and exposed as
// point-in-time snapshots.
package metrics

import (
	"sync"
	"time"
)

// Collector aggregates counts and latencies across every node and loop
// in a running workflow. A single Collector is shared across all
// FlowRunners; every method is safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	nodeExecutions map[string]int64
	nodeErrors     map[string]int64
	nodeLatencies  map[string][]time.Duration

	loopIterations map[string]int64

	queueLengths map[string]int64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		nodeExecutions: make(map[string]int64),
		nodeErrors:     make(map[string]int64),
		nodeLatencies:  make(map[string][]time.Duration),
		loopIterations: make(map[string]int64),
		queueLengths:   make(map[string]int64),
	}
}

// NodeExecution is returned by StartNode; calling Finish records the
// outcome and elapsed time against the collector.
type NodeExecution struct {
	collector *Collector
	nodeID    string
	started   time.Time
}

// StartNode begins timing an execution of nodeID.
func (c *Collector) StartNode(nodeID string) *NodeExecution {
	return &NodeExecution{collector: c, nodeID: nodeID, started: time.Now()}
}

// Finish records the execution's outcome and latency.
func (e *NodeExecution) Finish(success bool) {
	elapsed := time.Since(e.started)
	c := e.collector
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nodeExecutions[e.nodeID]++
	if !success {
		c.nodeErrors[e.nodeID]++
	}
	c.nodeLatencies[e.nodeID] = append(c.nodeLatencies[e.nodeID], elapsed)
}

// RecordIteration records one completed FlowRunner iteration for
// producerID.
func (c *Collector) RecordIteration(producerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopIterations[producerID]++
}

// RecordQueueLength records the most recently observed length of
// queueName.
func (c *Collector) RecordQueueLength(queueName string, length int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueLengths[queueName] = length
}

// NodeMetrics is a point-in-time snapshot for one node.
type NodeMetrics struct {
	NodeID            string        `json:"node_id"`
	ExecutionCount    int64         `json:"execution_count"`
	ErrorCount        int64         `json:"error_count"`
	SuccessRate       float64       `json:"success_rate"`
	AvgExecutionTime  time.Duration `json:"avg_execution_time"`
	MinExecutionTime  time.Duration `json:"min_execution_time"`
	MaxExecutionTime  time.Duration `json:"max_execution_time"`
}

// NodeMetrics returns a snapshot for nodeID.
func (c *Collector) NodeMetrics(nodeID string) NodeMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.nodeExecutions[nodeID]
	errCount := c.nodeErrors[nodeID]
	latencies := c.nodeLatencies[nodeID]

	m := NodeMetrics{NodeID: nodeID, ExecutionCount: count, ErrorCount: errCount, SuccessRate: 1.0}
	if count > 0 {
		m.SuccessRate = float64(count-errCount) / float64(count)
	}
	if len(latencies) == 0 {
		return m
	}

	var total time.Duration
	m.MinExecutionTime, m.MaxExecutionTime = latencies[0], latencies[0]
	for _, l := range latencies {
		total += l
		if l < m.MinExecutionTime {
			m.MinExecutionTime = l
		}
		if l > m.MaxExecutionTime {
			m.MaxExecutionTime = l
		}
	}
	m.AvgExecutionTime = total / time.Duration(len(latencies))
	return m
}

// LoopMetrics reports producerID's iteration count.
func (c *Collector) LoopMetrics(producerID string) (iterations int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopIterations[producerID]
}

// QueueMetrics reports queueName's most recently recorded length.
func (c *Collector) QueueMetrics(queueName string) (length int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueLengths[queueName]
}

// Snapshot returns every tracked node's metrics, keyed by node id.
func (c *Collector) Snapshot() map[string]NodeMetrics {
	c.mu.Lock()
	ids := make([]string, 0, len(c.nodeExecutions))
	for id := range c.nodeExecutions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	out := make(map[string]NodeMetrics, len(ids))
	for _, id := range ids {
		out[id] = c.NodeMetrics(id)
	}
	return out
}
