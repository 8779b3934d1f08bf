// Package kerrors collects the distinguishable error kinds the kernel
// raises. Callers use errors.As to recover the structured fields instead
// of parsing error strings.
package kerrors

import "fmt"

// WorkflowInvalid is raised by load/post-processing when the graph fails
// validation: missing nodes, cyclic form dependencies, unknown
// identifiers, or readiness failures. Report holds one message per
// offending node/field.
type WorkflowInvalid struct {
	Report []string
}

func (e *WorkflowInvalid) Error() string {
	return fmt.Sprintf("workflow invalid: %d issue(s): %v", len(e.Report), e.Report)
}

// NotReadyError means a node's form was invalid at init.
type NotReadyError struct {
	NodeID string
	Fields map[string][]string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("node %q not ready: %v", e.NodeID, e.Fields)
}

// DuplicateIdentifierError is raised by NodeRegistry discovery when two or
// more node kinds declare the same type identifier.
type DuplicateIdentifierError struct {
	Identifier string
	Kinds      []string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("duplicate node identifier %q registered by %v", e.Identifier, e.Kinds)
}

// SerializationError means a node instance or envelope could not be
// serialized for dispatch to the PROCESS pool.
type SerializationError struct {
	NodeID string
	Cause  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("node %q is not serializable for the process pool: %v", e.NodeID, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// NodeExecutionError wraps anything a node's execute raised.
type NodeExecutionError struct {
	NodeID string
	Cause  error
	Stack  string
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q execution failed: %v", e.NodeID, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

// PopulatorFailedError means a form field's populator callback raised.
type PopulatorFailedError struct {
	Field string
	Cause error
}

func (e *PopulatorFailedError) Error() string {
	return fmt.Sprintf("populator for field %q failed: %v", e.Field, e.Cause)
}

func (e *PopulatorFailedError) Unwrap() error { return e.Cause }

// FormCycleError means a form's field dependency graph is cyclic.
type FormCycleError struct {
	Field string
}

func (e *FormCycleError) Error() string {
	return fmt.Sprintf("form field dependency cycle detected at %q", e.Field)
}

// UnknownDependencyError means a field's depends_on names an undeclared
// field, or names a field declared later in the same form.
type UnknownDependencyError struct {
	Field     string
	DependsOn string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("field %q depends on unknown or not-yet-declared field %q", e.Field, e.DependsOn)
}

// UnresolvedDependencyError is raised by development-mode execution when a
// required upstream node has no cached output.
type UnresolvedDependencyError struct {
	UpstreamID string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("unresolved dependency: upstream node %q has no cached output", e.UpstreamID)
}

// Cancelled marks a cooperative cancellation. It is not an execution
// failure and must never be routed to the DLQ.
type Cancelled struct {
	NodeID string
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("node %q cancelled", e.NodeID)
}
