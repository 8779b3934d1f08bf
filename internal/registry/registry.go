// Package registry maps node type identifiers to constructors. The
// registry is populated once at startup — each concrete node kind
// registers itself explicitly, no reflective package scanning — and read
// without contention afterward. A code generator could emit the Register
// calls from struct tags, but nothing here depends on one.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lyzr/flowkernel/internal/kernelnode"
	"github.com/lyzr/flowkernel/internal/kerrors"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
)

// Constructor builds a fresh node instance from its NodeConfig.
type Constructor func(cfg *nodeconfig.Config) (kernelnode.Node, error)

// Registry maps type identifiers to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	// kinds tracks every (possibly colliding) registration for a given
	// identifier, by the registering type's Go type name, so a
	// DuplicateIdentifierError can list every collider.
	kinds map[string][]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		ctors: make(map[string]Constructor),
		kinds: make(map[string][]string),
	}
}

// Register adds one constructor under identifier, tagging it with
// kindName (typically the concrete Go type's name) for collision
// reporting. Register does not itself fail on collision — discovery
// collects every registration first and DetectDuplicates reports them
// all at once, matching "listing all colliding classes."
func (r *Registry) Register(identifier, kindName string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.kinds[identifier] = append(r.kinds[identifier], kindName)
	if _, exists := r.ctors[identifier]; !exists {
		r.ctors[identifier] = ctor
	}
}

// DetectDuplicates returns a DuplicateIdentifierError listing every
// identifier with more than one registration, or nil if there are none.
func (r *Registry) DetectDuplicates() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dupes []string
	for id := range r.kinds {
		if len(r.kinds[id]) > 1 {
			dupes = append(dupes, id)
		}
	}
	if len(dupes) == 0 {
		return nil
	}
	sort.Strings(dupes)

	// Report the first offending identifier with its full collider
	// list; callers that need every offending identifier can inspect
	// Duplicates() instead.
	first := dupes[0]
	return &kerrors.DuplicateIdentifierError{
		Identifier: first,
		Kinds:      append([]string(nil), r.kinds[first]...),
	}
}

// Duplicates returns identifier -> colliding-kind-names for every
// identifier registered more than once.
func (r *Registry) Duplicates() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string)
	for id, kinds := range r.kinds {
		if len(kinds) > 1 {
			out[id] = append([]string(nil), kinds...)
		}
	}
	return out
}

// Create returns a new node instance for cfg's type identifier, or
// (nil, nil) for an unknown identifier — the caller is expected to log a
// warning and omit the node.
func (r *Registry) Create(cfg *nodeconfig.Config) (kernelnode.Node, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[cfg.TypeIdentifier()]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	n, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("registry: construct node %q (type %q): %w", cfg.ID(), cfg.TypeIdentifier(), err)
	}
	return n, nil
}

// Identifiers returns every registered type identifier, sorted.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
