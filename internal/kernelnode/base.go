package kernelnode

import (
	"context"

	"github.com/lyzr/flowkernel/internal/form"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
)

// Base supplies no-op Init/Cleanup plus PreferredPool and FormSpec read
// from its fields, so concrete node types only need to embed it and
// implement Identifier and Execute.
type Base struct {
	Pool nodeconfig.Pool
	Form *form.Spec
}

// PreferredPool returns the embedded pool preference.
func (b Base) PreferredPool() nodeconfig.Pool { return b.Pool }

// FormSpec returns the embedded form spec, if any.
func (b Base) FormSpec() *form.Spec { return b.Form }

// Init is a no-op by default; nodes that need setup override it by
// defining their own Init method, which shadows this one.
func (b Base) Init(ctx context.Context) error { return nil }

// Cleanup is a no-op by default.
func (b Base) Cleanup(ctx context.Context) error { return nil }
