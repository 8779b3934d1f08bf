// Package kernelnode declares the four node-kind contracts (Producer,
// Blocking, NonBlocking, Logical). A node is any small Go type that
// satisfies one of these interfaces plus the shared Node interface, and
// owns its own *form.Instance separately rather than inheriting one.
package kernelnode

import (
	"context"
	"errors"

	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/form"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
)

// ExecutionComplete is the sentinel a Producer returns (wrapped, via
// errors.Is) instead of a second ok-bool return when it would rather
// signal "this loop is done" through its error channel — e.g. a producer
// whose underlying source (a paginated API, a finite file) is naturally
// exhausted and wants that to read as a normal control-flow outcome
// rather than a fabricated false return. FlowRunner treats a Producer
// returning (nil, false, nil) and one returning (nil, _, ExecutionComplete)
// identically.
var ExecutionComplete = errors.New("kernelnode: execution complete")

// Node is the capability every concrete node kind shares.
type Node interface {
	// Identifier is constant per concrete type, kebab-case by
	// convention (e.g. "playwright-freelance-job-monitor-producer").
	Identifier() string

	// PreferredPool names the execution backend this node should run
	// on when the caller hasn't pinned the whole loop to one pool.
	PreferredPool() nodeconfig.Pool

	// FormSpec returns this node's configuration form, or nil if the
	// node takes no configuration.
	FormSpec() *form.Spec

	// Init is called once before the node's first Execute. It may
	// perform I/O setup and must fail with *kerrors.NotReadyError if
	// the node's bound form is invalid.
	Init(ctx context.Context) error

	// Cleanup is called on shutdown.
	Cleanup(ctx context.Context) error
}

// Producer is invoked first in every FlowRunner iteration.
type Producer interface {
	Node
	// Execute returns the seed envelope for this iteration, or a nil
	// envelope with ok=false to signal ExecutionComplete.
	Execute(ctx context.Context, env *envelope.Envelope) (out *envelope.Envelope, ok bool, err error)
}

// Blocking transforms an envelope; the FlowRunner awaits completion (and
// every transitively blocking downstream) before continuing the chain.
type Blocking interface {
	Node
	Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)
}

// NonBlocking marks the semantic end of a loop iteration. The contract is
// about loop boundaries, not concurrency: once a NonBlocking node
// returns, the iteration terminates and control returns to the producer.
// Terminal exists only to disambiguate NonBlocking from Blocking — the
// two interfaces would otherwise share an identical method set and be
// structurally indistinguishable to a type switch — and must always
// return true.
type NonBlocking interface {
	Node
	Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)
	Terminal() bool
}

// Logical specializes Blocking: after Execute, BranchLabel reports which
// outgoing edge ("yes"/"no"/a custom key) the FlowRunner should follow.
// BranchLabel must reflect the outcome of the most recent Execute call.
type Logical interface {
	Blocking
	BranchLabel() string
}

// QueueWriter is satisfied by any node kind that pushes envelopes onto a
// named DataStore queue. QueueName/SetQueueName let QueueLinker rewrite
// the bound queue name during post-processing without reaching into the
// node's private form state.
type QueueWriter interface {
	Node
	QueueName() string
	SetQueueName(name string)
}

// QueueReader is satisfied by any node kind that pops envelopes off a
// named DataStore queue, mirroring QueueWriter.
type QueueReader interface {
	Node
	QueueName() string
	SetQueueName(name string)
}

// Kind is the four-way node-contract discriminant.
type Kind int

const (
	KindUnknown Kind = iota
	KindProducer
	KindBlocking
	KindNonBlocking
	KindLogical
)

func (k Kind) String() string {
	switch k {
	case KindProducer:
		return "producer"
	case KindBlocking:
		return "blocking"
	case KindNonBlocking:
		return "non-blocking"
	case KindLogical:
		return "logical"
	default:
		return "unknown"
	}
}

// KindOf type-switches a Node into its Kind, checking Logical before
// Blocking (Logical refines Blocking) and NonBlocking before Producer has
// no ambiguity since the interfaces are disjoint otherwise.
func KindOf(n Node) Kind {
	switch n.(type) {
	case Logical:
		return KindLogical
	case NonBlocking:
		return KindNonBlocking
	case Producer:
		return KindProducer
	case Blocking:
		return KindBlocking
	default:
		return KindUnknown
	}
}
