package form

import (
	"fmt"

	"github.com/lyzr/flowkernel/internal/kerrors"
)

// FieldKind enumerates the supported field kinds. DERIVED
// fields never accept direct user input — their value always comes from
// a populator/CEL expression evaluated over the current form snapshot.
type FieldKind string

const (
	Text     FieldKind = "TEXT"
	Email    FieldKind = "EMAIL"
	Number   FieldKind = "NUMBER"
	Textarea FieldKind = "TEXTAREA"
	Select   FieldKind = "SELECT"
	Checkbox FieldKind = "CHECKBOX"
	Radio    FieldKind = "RADIO"
	Date     FieldKind = "DATE"
	File     FieldKind = "FILE"
	Derived  FieldKind = "DERIVED"
)

// Option is one entry of a SELECT/RADIO field's option list.
type Option struct {
	Value string
	Text  string
}

// Populator computes a field's option list from the current
// form-value snapshot (keyed by field name). Returning a non-nil error
// surfaces as PopulatorFailedError and clears the field's options.
type Populator func(values map[string]any) ([]Option, error)

// FieldSpec declares one form field. DependsOn must only name fields
// declared earlier in the same Spec's Fields slice — Build enforces this
// and the acyclic invariant.
type FieldSpec struct {
	Name        string
	Kind        FieldKind
	Label       string
	Required    bool
	Placeholder string
	Default     any
	Options     []Option
	DependsOn   []string
	Populator   Populator

	// DerivedExpr, set only on Kind == Derived fields, is a CEL
	// expression evaluated against the current form snapshot (field
	// name -> value) to compute the field's value. See cel.go.
	DerivedExpr string
}

// Spec is the declarative description of a node's configuration form.
type Spec struct {
	Fields []FieldSpec

	byName  map[string]int   // name -> index into Fields
	depends map[string][]string
	rdeps   map[string][]string // field -> fields that depend on it (direct)
}

// Build validates a raw field list and constructs a Spec with its
// dependency graph precomputed. It fails with UnknownDependencyError if a
// field depends on an undeclared or not-yet-declared field, or with
// FormCycleError if the dependency graph is cyclic (cycles are only
// possible via forward references, which UnknownDependencyError already
// rejects, but Build double-checks acyclicity defensively).
func Build(fields []FieldSpec) (*Spec, error) {
	s := &Spec{
		Fields:  fields,
		byName:  make(map[string]int, len(fields)),
		depends: make(map[string][]string, len(fields)),
		rdeps:   make(map[string][]string, len(fields)),
	}

	for i, f := range fields {
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("form: duplicate field name %q", f.Name)
		}
		s.byName[f.Name] = i
	}

	for i, f := range fields {
		for _, dep := range f.DependsOn {
			depIdx, ok := s.byName[dep]
			if !ok || depIdx >= i {
				return nil, &kerrors.UnknownDependencyError{Field: f.Name, DependsOn: dep}
			}
			s.depends[f.Name] = append(s.depends[f.Name], dep)
			s.rdeps[dep] = append(s.rdeps[dep], f.Name)
		}
	}

	if cyc, ok := s.findCycle(); ok {
		return nil, &kerrors.FormCycleError{Field: cyc}
	}

	return s, nil
}

// findCycle runs a DFS over the dependency graph. Because DependsOn may
// only name earlier-declared fields, a cycle can only arise from a bug in
// this package, but the check stays as the documented invariant guard.
func (s *Spec) findCycle() (string, bool) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(s.Fields))

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case done:
			return false
		case visiting:
			return true
		}
		state[name] = visiting
		for _, dep := range s.depends[name] {
			if visit(dep) {
				return true
			}
		}
		state[name] = done
		return false
	}

	for _, f := range s.Fields {
		if visit(f.Name) {
			return f.Name, true
		}
	}
	return "", false
}

// Field returns the declared field by name.
func (s *Spec) Field(name string) (FieldSpec, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.Fields[idx], true
}

// DirectDependents returns the fields that directly depend on name, in
// declared order.
func (s *Spec) DirectDependents(name string) []string {
	return append([]string(nil), s.rdeps[name]...)
}

// TransitiveDependents returns every field transitively dependent on
// name, in stable declared order (ties broken by declaration order).
func (s *Spec) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(n string) {
		for _, dep := range s.rdeps[n] {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
				walk(dep)
			}
		}
	}
	walk(name)
	return orderByDeclaration(s, out)
}

func orderByDeclaration(s *Spec, names []string) []string {
	idxOf := func(n string) int { return s.byName[n] }
	out := append([]string(nil), names...)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && idxOf(out[j-1]) > idxOf(out[j]) {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}
