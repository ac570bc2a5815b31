// Package errs defines the error kinds and recovery classification used
// across the planning core, mirroring the error-handling design in
// SPEC_FULL.md §10.3.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per row of spec.md §7's error table. Compare with
// errors.Is rather than string matching.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoMethod          = errors.New("no method for task")
	ErrMethodFailure     = errors.New("all methods failed")
	ErrInconsistentPlan  = errors.New("inconsistent plan")
	ErrEntityUnavailable = errors.New("no matching entity available")
	ErrCommandFailure    = errors.New("command execution failed")
	ErrSolverTimeout     = errors.New("external solver timed out")
	ErrSolverError       = errors.New("external solver failed")
	ErrDepthExceeded     = errors.New("max depth exceeded")
	ErrOutOfBounds       = errors.New("value out of bounds")
)

// PlanError carries structured context around a sentinel error, in the
// style of this codebase's FrameworkError: an operation name, a kind
// tag, and the wrapped error for errors.Is/As chains.
type PlanError struct {
	Op      string
	Kind    string
	NodeID  string
	Message string
	Err     error
}

func (e *PlanError) Error() string {
	switch {
	case e.Op != "" && e.NodeID != "" && e.Err != nil:
		return fmt.Sprintf("%s [node %s]: %v", e.Op, e.NodeID, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s error", e.Kind)
	}
}

func (e *PlanError) Unwrap() error { return e.Err }

// New builds a PlanError wrapping err, tagging it with op/kind.
func New(op, kind string, err error) *PlanError {
	return &PlanError{Op: op, Kind: kind, Err: err}
}

// WithNode attaches a node ID to a PlanError (returns a copy).
func (e *PlanError) WithNode(id string) *PlanError {
	cp := *e
	cp.NodeID = id
	return &cp
}

// IsBacktrackable reports whether an error should trigger method
// blacklisting + retry at the node that produced it, per spec.md §7's
// recovery column, rather than surfacing fatally to the caller.
func IsBacktrackable(err error) bool {
	return errors.Is(err, ErrMethodFailure) ||
		errors.Is(err, ErrEntityUnavailable) ||
		errors.Is(err, ErrCommandFailure)
}

// IsFatal reports whether an error must propagate to the Planning API
// caller rather than being recovered locally.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInconsistentPlan) ||
		errors.Is(err, ErrDepthExceeded)
}
