// Package postprocess provides ordered passes over a built graph.Graph
// that run after loading and before the graph is handed to the
// orchestrator.
package postprocess

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lyzr/flowkernel/internal/graph"
	"github.com/lyzr/flowkernel/internal/kernelnode"
	"github.com/lyzr/flowkernel/internal/kerrors"
)

// Pass is one ordered post-processing step.
type Pass func(g *graph.Graph) error

// Run applies passes in order, stopping at the first error.
func Run(g *graph.Graph, passes ...Pass) error {
	for _, p := range passes {
		if err := p(g); err != nil {
			return err
		}
	}
	return nil
}

const defaultQueueName = "default"

// QueueLinker auto-assigns a derived queue name, `q_<source_id>_<target_id>`,
// to every edge from a QueueWriter-kind node to a QueueReader-kind node
// where neither side already names a distinct, non-default queue. An
// explicit name on either side always wins; if only one side is explicit
// the other is left alone and ReadinessValidator catches the mismatch.
func QueueLinker(g *graph.Graph) error {
	for _, id := range g.Nodes() {
		n, _ := g.Node(id)
		writer, ok := n.Instance.(kernelnode.QueueWriter)
		if !ok {
			continue
		}
		for _, key := range g.BranchKeys(id) {
			for _, targetID := range g.Neighbors(id)[key] {
				target, ok := g.Node(targetID)
				if !ok {
					continue
				}
				reader, ok := target.Instance.(kernelnode.QueueReader)
				if !ok {
					continue
				}
				linkQueuePair(writer, reader, id, targetID)
			}
		}
	}
	return nil
}

func linkQueuePair(writer kernelnode.QueueWriter, reader kernelnode.QueueReader, sourceID, targetID string) {
	writerName := strings.TrimSpace(writer.QueueName())
	readerName := strings.TrimSpace(reader.QueueName())

	writerDefault := writerName == "" || writerName == defaultQueueName
	readerDefault := readerName == "" || readerName == defaultQueueName

	if !writerDefault && !readerDefault {
		return // both explicit; QueueLinker never overrides.
	}
	if !writerDefault && readerDefault {
		return // one explicit side; leave the mismatch for ReadinessValidator.
	}
	if writerDefault && !readerDefault {
		return
	}

	derived := fmt.Sprintf("q_%s_%s", sourceID, targetID)
	writer.SetQueueName(derived)
	reader.SetQueueName(derived)
}

// ReadinessValidator calls every node's Init, aggregating per-node
// failures into a single *kerrors.WorkflowInvalid report rather than
// failing on the first one, so a caller sees every misconfigured node at
// once.
func ReadinessValidator(ctx context.Context) Pass {
	return func(g *graph.Graph) error {
		var report []string
		for _, id := range g.Nodes() {
			n, _ := g.Node(id)
			if err := n.Instance.Init(ctx); err != nil {
				report = append(report, fmt.Sprintf("%s: %v", id, err))
			}
		}
		if len(report) == 0 {
			return nil
		}
		sort.Strings(report)
		return &kerrors.WorkflowInvalid{Report: report}
	}
}
