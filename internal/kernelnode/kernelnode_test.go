package kernelnode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowkernel/internal/envelope"
)

type fakeProducer struct{ Base }

func (fakeProducer) Identifier() string { return "fake-producer" }
func (fakeProducer) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, bool, error) {
	return env, true, nil
}

type fakeBlocking struct{ Base }

func (fakeBlocking) Identifier() string { return "fake-blocking" }
func (fakeBlocking) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return env, nil
}

type fakeNonBlocking struct{ Base }

func (fakeNonBlocking) Identifier() string { return "fake-non-blocking" }
func (fakeNonBlocking) Terminal() bool     { return true }
func (fakeNonBlocking) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return env, nil
}

type fakeLogical struct{ Base }

func (fakeLogical) Identifier() string  { return "fake-logical" }
func (fakeLogical) BranchLabel() string { return "yes" }
func (fakeLogical) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return env, nil
}

type bareNode struct{ Base }

func (bareNode) Identifier() string { return "bare" }

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindProducer, KindOf(fakeProducer{}))
	assert.Equal(t, KindBlocking, KindOf(fakeBlocking{}))
	assert.Equal(t, KindNonBlocking, KindOf(fakeNonBlocking{}))
	assert.Equal(t, KindLogical, KindOf(fakeLogical{}))
	assert.Equal(t, KindUnknown, KindOf(bareNode{}))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "producer", KindProducer.String())
	assert.Equal(t, "blocking", KindBlocking.String())
	assert.Equal(t, "non-blocking", KindNonBlocking.String())
	assert.Equal(t, "logical", KindLogical.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestBaseDefaults(t *testing.T) {
	n := fakeBlocking{}
	require.NoError(t, n.Init(context.Background()))
	require.NoError(t, n.Cleanup(context.Background()))
	assert.Nil(t, n.FormSpec())
}
