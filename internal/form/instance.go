package form

import (
	"fmt"

	"github.com/lyzr/flowkernel/internal/kerrors"
)

// Instance holds the mutable state of one bound form: an incremental
// value store (what update_field has written), a snapshot of initially
// bound data (e.g. from NodeConfig.FormValues), and the current option
// list per field. There is exactly one Instance per node; an Instance is
// never shared across nodes.
type Instance struct {
	spec        *Spec
	bound       map[string]any // initial values bound at construction (lowest priority)
	incremental map[string]any // values written by UpdateField (highest priority)
	options     map[string][]Option
	errors      map[string][]string
}

// Bind constructs an Instance for spec, seeded with bound initial values
// (e.g. NodeConfig.FormValues) and each field's static Default/Options.
func Bind(spec *Spec, bound map[string]any) *Instance {
	inst := &Instance{
		spec:        spec,
		bound:       copyAny(bound),
		incremental: make(map[string]any),
		options:     make(map[string][]Option),
		errors:      make(map[string][]string),
	}
	for _, f := range spec.Fields {
		if f.Options != nil {
			inst.options[f.Name] = append([]Option(nil), f.Options...)
		}
	}
	return inst
}

func copyAny(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// isEmpty treats missing, nil, and "" as equivalent, so reassigning an
// empty value never cascades.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func valuesEqual(a, b any) bool {
	if isEmpty(a) && isEmpty(b) {
		return true
	}
	return a == b
}

// GetValue returns the most recent value: incremental store, then bound
// data, then the field's static default. A DERIVED field with a
// DerivedExpr instead recomputes its value from the current snapshot of
// every other field every time it's read.
func (inst *Instance) GetValue(name string) any {
	if f, ok := inst.spec.Field(name); ok && f.Kind == Derived && f.DerivedExpr != "" {
		v, err := evaluateDerived(f.DerivedExpr, inst.snapshotExcluding(name))
		if err != nil {
			return nil
		}
		return v
	}
	if v, ok := inst.incremental[name]; ok {
		return v
	}
	if v, ok := inst.bound[name]; ok {
		return v
	}
	if f, ok := inst.spec.Field(name); ok {
		return f.Default
	}
	return nil
}

// snapshotExcluding is snapshot() but skips the named field, preventing a
// DERIVED field's own (recursive) GetValue call from infinitely
// recursing through itself.
func (inst *Instance) snapshotExcluding(name string) map[string]any {
	out := make(map[string]any, len(inst.spec.Fields))
	for _, f := range inst.spec.Fields {
		if f.Name == name {
			continue
		}
		out[f.Name] = inst.GetValue(f.Name)
	}
	return out
}

// Options returns the current option list for a field.
func (inst *Instance) Options(name string) []Option {
	return append([]Option(nil), inst.options[name]...)
}

// Errors returns the current validation errors for a field.
func (inst *Instance) Errors(name string) []string {
	return append([]string(nil), inst.errors[name]...)
}

// snapshot returns the form-value map a populator/validator sees: every
// declared field's current value.
func (inst *Instance) snapshot() map[string]any {
	out := make(map[string]any, len(inst.spec.Fields))
	for _, f := range inst.spec.Fields {
		out[f.Name] = inst.GetValue(f.Name)
	}
	return out
}

// UpdateField writes a field value and cascades the change:
//
//  1. If value equals the current value (treating missing/nil/"" as
//     equivalent), only the incremental store is refreshed — no
//     re-validation, no dependent clearing.
//  2. Otherwise the new value is stored, every transitive dependent's
//     value and options are cleared, each *direct* dependent's populator
//     runs against the new snapshot to repopulate its options, and the
//     changed field is validated (its errors are read via Errors). The
//     first populator failure, if any, is returned as a
//     *kerrors.PopulatorFailedError; otherwise the result is nil.
func (inst *Instance) UpdateField(name string, value any) error {
	if _, ok := inst.spec.Field(name); !ok {
		return &kerrors.UnknownDependencyError{Field: name, DependsOn: name}
	}

	current := inst.GetValue(name)
	if valuesEqual(current, value) {
		inst.incremental[name] = value
		return nil
	}

	inst.incremental[name] = value

	for _, dep := range inst.spec.TransitiveDependents(name) {
		delete(inst.incremental, dep)
		delete(inst.bound, dep)
		inst.options[dep] = nil
		inst.errors[dep] = nil
	}

	snapshot := inst.snapshot()
	var firstErr error
	for _, dep := range inst.spec.DirectDependents(name) {
		depField, _ := inst.spec.Field(dep)
		if depField.Populator == nil {
			continue
		}
		opts, err := depField.Populator(snapshot)
		if err != nil {
			inst.options[dep] = nil
			if firstErr == nil {
				firstErr = &kerrors.PopulatorFailedError{Field: dep, Cause: err}
			}
			continue
		}
		inst.options[dep] = opts
	}

	inst.validateField(name)

	return firstErr
}

// FullValidate runs validateField over every declared field and returns
// the accumulated per-field error map.
func (inst *Instance) FullValidate() map[string][]string {
	out := make(map[string][]string)
	for _, f := range inst.spec.Fields {
		inst.validateField(f.Name)
		if errs := inst.errors[f.Name]; len(errs) > 0 {
			out[f.Name] = append([]string(nil), errs...)
		}
	}
	return out
}

func (inst *Instance) validateField(name string) {
	f, ok := inst.spec.Field(name)
	if !ok {
		return
	}
	value := inst.GetValue(name)
	var errs []string

	if f.Required && isEmpty(value) {
		errs = append(errs, fmt.Sprintf("%s is required", f.Name))
	}

	if !isEmpty(value) {
		switch f.Kind {
		case Number:
			if !isNumeric(value) {
				errs = append(errs, fmt.Sprintf("%s must be a number", f.Name))
			}
		case Select, Radio:
			if len(inst.options[name]) > 0 && !optionAllowed(inst.options[name], value) {
				errs = append(errs, fmt.Sprintf("%s: %v is not among the allowed options", f.Name, value))
			}
		}
	}

	inst.errors[name] = errs
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	case string:
		s := v.(string)
		var f float64
		_, err := fmt.Sscanf(s, "%g", &f)
		return err == nil
	default:
		return false
	}
}

func optionAllowed(opts []Option, value any) bool {
	s := fmt.Sprintf("%v", value)
	for _, o := range opts {
		if o.Value == s {
			return true
		}
	}
	return false
}
