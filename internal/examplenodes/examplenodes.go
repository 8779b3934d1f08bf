// Package examplenodes holds illustrative concrete node kinds — one per
// kernelnode contract — used by cmd/flowctl's demo workflow
// and by the kernel's own end-to-end tests. Real deployments are expected
// to bring their own node bodies (browser automation, LLM calls, and so
// on are explicitly out of scope here); these exist only to prove the
// four contracts and the QueueWriter/QueueReader post-processing hook are
// satisfiable and wire correctly end to end.
package examplenodes

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/flowkernel/internal/datastore"
	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/form"
	"github.com/lyzr/flowkernel/internal/kernelnode"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
	"github.com/lyzr/flowkernel/internal/registry"
)

// Counter is a Producer that seeds an envelope with an incrementing
// "count" value and signals ExecutionComplete once it reaches its
// configured limit. limit <= 0 means unbounded.
type Counter struct {
	kernelnode.Base
	id    string
	limit int
	n     int
}

const CounterIdentifier = "example-counter-producer"

// NewCounter builds a Counter from cfg. Its "limit" config value (a
// number) bounds how many times Execute produces before signalling
// completion; omitted or <= 0 means unbounded.
func NewCounter(cfg *nodeconfig.Config) (kernelnode.Node, error) {
	limit := 0
	if raw, ok := cfg.ConfigValue("limit"); ok {
		if f, ok := toFloat(raw); ok {
			limit = int(f)
		}
	}
	return &Counter{
		Base:  kernelnode.Base{Pool: cfg.PreferredPool()},
		id:    cfg.ID(),
		limit: limit,
	}, nil
}

func (c *Counter) Identifier() string { return CounterIdentifier }

func (c *Counter) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, bool, error) {
	if c.limit > 0 && c.n >= c.limit {
		return nil, false, nil
	}
	c.n++
	out := envelope.New()
	out.Set("count", c.n)
	return out, true, nil
}

// Transform is a Blocking node that evaluates a CEL expression (read from
// its form's "expression" text field; the DERIVED "preview" field only
// echoes it) against the envelope's current data and writes the result
// under a configured output key.
type Transform struct {
	kernelnode.Base
	expr      string
	outputKey string
}

const TransformIdentifier = "example-cel-transform"

var transformSpec = mustBuildSpec([]form.FieldSpec{
	{Name: "expression", Kind: form.Text, Label: "CEL expression", Required: true},
	{Name: "output_key", Kind: form.Text, Label: "Output key", Required: true, Default: "result"},
	{
		Name:        "preview",
		Kind:        form.Derived,
		Label:       "Computed preview",
		DependsOn:   []string{"expression"},
		DerivedExpr: `has(values.expression) ? values.expression : "unset"`,
	},
})

// NewTransform builds a Transform bound to cfg's rendered form values.
func NewTransform(cfg *nodeconfig.Config) (kernelnode.Node, error) {
	inst := form.Bind(transformSpec, cfg.FormValues())
	outputKey, _ := inst.GetValue("output_key").(string)
	if outputKey == "" {
		outputKey = "result"
	}
	exprVal, _ := inst.GetValue("expression").(string)

	return &Transform{
		Base:      kernelnode.Base{Pool: cfg.PreferredPool(), Form: transformSpec},
		expr:      exprVal,
		outputKey: outputKey,
	}, nil
}

func (t *Transform) Identifier() string { return TransformIdentifier }

func (t *Transform) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	if t.expr == "" {
		return env, nil
	}
	result, err := form.EvaluateCEL(t.expr, env.Data)
	if err != nil {
		return nil, fmt.Errorf("examplenodes: transform: %w", err)
	}
	env.Set(t.outputKey, result)
	return env, nil
}

// Branch is a Logical node whose branch label is decided by a boolean
// CEL expression evaluated against the envelope's data.
type Branch struct {
	kernelnode.Base
	expr  string
	label string
}

const BranchIdentifier = "example-cel-branch"

// NewBranch builds a Branch that evaluates cfg's "condition" config
// value (a CEL boolean expression over `values`) on each Execute.
func NewBranch(cfg *nodeconfig.Config) (kernelnode.Node, error) {
	expr, _ := cfg.ConfigValue("condition")
	exprStr, _ := expr.(string)
	return &Branch{
		Base: kernelnode.Base{Pool: cfg.PreferredPool()},
		expr: exprStr,
	}, nil
}

func (b *Branch) Identifier() string { return BranchIdentifier }

func (b *Branch) BranchLabel() string { return b.label }

func (b *Branch) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	b.label = "no"
	if b.expr == "" {
		return env, nil
	}
	result, err := form.EvaluateCEL(b.expr, env.Data)
	if err != nil {
		return nil, fmt.Errorf("examplenodes: branch: %w", err)
	}
	if truthy, ok := result.(bool); ok && truthy {
		b.label = "yes"
	}
	return env, nil
}

// Sink is a NonBlocking terminator that does nothing beyond marking the
// iteration's end — the minimal node needed to close a loop.
type Sink struct {
	kernelnode.Base
}

const SinkIdentifier = "example-sink"

func NewSink(cfg *nodeconfig.Config) (kernelnode.Node, error) {
	return &Sink{Base: kernelnode.Base{Pool: cfg.PreferredPool()}}, nil
}

func (s *Sink) Identifier() string { return SinkIdentifier }
func (s *Sink) Terminal() bool     { return true }
func (s *Sink) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return env, nil
}

// QueuePush is a NonBlocking QueueWriter: it pushes the envelope it
// receives onto its bound DataStore queue and ends the iteration.
type QueuePush struct {
	kernelnode.Base
	store     datastore.DataStore
	queueName string
}

const QueuePushIdentifier = "example-queue-writer"

// NewQueuePushFactory closes over a shared DataStore so NewQueuePush can
// satisfy registry.Constructor's signature.
func NewQueuePushFactory(store datastore.DataStore) registry.Constructor {
	return func(cfg *nodeconfig.Config) (kernelnode.Node, error) {
		name, _ := cfg.FormValue("queue_name")
		nameStr, _ := name.(string)
		if nameStr == "" {
			nameStr = defaultQueueConfig
		}
		return &QueuePush{
			Base:      kernelnode.Base{Pool: cfg.PreferredPool()},
			store:     store,
			queueName: nameStr,
		}, nil
	}
}

func (q *QueuePush) Identifier() string     { return QueuePushIdentifier }
func (q *QueuePush) Terminal() bool         { return true }
func (q *QueuePush) QueueName() string      { return q.queueName }
func (q *QueuePush) SetQueueName(n string)  { q.queueName = n }
func (q *QueuePush) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	if err := q.store.Push(ctx, q.queueName, env); err != nil {
		return nil, fmt.Errorf("examplenodes: queue push: %w", err)
	}
	return env, nil
}

// QueuePull is a Producer QueueReader: it blocks popping from its bound
// DataStore queue, re-arming its bounded pop on timeout ("no work, try
// again") until a message arrives or ctx is cancelled. It never signals
// completion on its own — the loop it feeds runs until stopped.
type QueuePull struct {
	kernelnode.Base
	store     datastore.DataStore
	queueName string
	timeout   time.Duration
}

const QueuePullIdentifier = "example-queue-reader"

func NewQueuePullFactory(store datastore.DataStore) registry.Constructor {
	return func(cfg *nodeconfig.Config) (kernelnode.Node, error) {
		name, _ := cfg.FormValue("queue_name")
		nameStr, _ := name.(string)
		if nameStr == "" {
			nameStr = defaultQueueConfig
		}
		return &QueuePull{
			Base:      kernelnode.Base{Pool: cfg.PreferredPool()},
			store:     store,
			queueName: nameStr,
			timeout:   time.Second,
		}, nil
	}
}

func (q *QueuePull) Identifier() string    { return QueuePullIdentifier }
func (q *QueuePull) QueueName() string     { return q.queueName }
func (q *QueuePull) SetQueueName(n string) { q.queueName = n }

func (q *QueuePull) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		timeout := q.timeout
		out, err := q.store.Pop(ctx, q.queueName, &timeout)
		if err != nil {
			return nil, false, err
		}
		if out != nil {
			return out, true, nil
		}
	}
}

const defaultQueueConfig = "default"

// Register wires every example node kind's constructor into reg. store
// backs the queue nodes; pass the same DataStore an Orchestrator's
// DevCache/DLQ are built over so queue hand-offs are visible end to end.
func Register(reg *registry.Registry, store datastore.DataStore) {
	reg.Register(CounterIdentifier, "Counter", NewCounter)
	reg.Register(TransformIdentifier, "Transform", NewTransform)
	reg.Register(BranchIdentifier, "Branch", NewBranch)
	reg.Register(SinkIdentifier, "Sink", NewSink)
	reg.Register(QueuePushIdentifier, "QueuePush", NewQueuePushFactory(store))
	reg.Register(QueuePullIdentifier, "QueuePull", NewQueuePullFactory(store))
}

func mustBuildSpec(fields []form.FieldSpec) *form.Spec {
	spec, err := form.Build(fields)
	if err != nil {
		panic(err)
	}
	return spec
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

