package greenlight

import (
	"errors"
	"fmt"
)

// ErrStatusConflict is returned by a SnapshotStore when a conditional write
// finds the stored execution in a different status than expected.
var ErrStatusConflict = errors.New("snapshot status conflict")

// DefinitionError indicates a malformed workflow definition. It is fatal for
// the run and never retried.
type DefinitionError struct {
	Message string
}

func (e *DefinitionError) Error() string {
	return "definition error: " + e.Message
}

// NewDefinitionError creates a DefinitionError with a formatted message.
func NewDefinitionError(format string, args ...any) *DefinitionError {
	return &DefinitionError{Message: fmt.Sprintf(format, args...)}
}

// ExecutorError indicates that a node's step executor failed. Executor errors
// are recoverable by default: unknown failures are retried up to the node's
// configured limit. Mark an error non-recoverable when it is known that a
// retry cannot help.
type ExecutorError struct {
	NodeID  string `json:"node_id"`
	Cause   string `json:"cause"`
	Fatal   bool   `json:"fatal,omitempty"`
	Wrapped error  `json:"-"`
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor error on node %q: %s", e.NodeID, e.Cause)
}

func (e *ExecutorError) Unwrap() error {
	return e.Wrapped
}

func (e *ExecutorError) IsRecoverable() bool {
	return !e.Fatal
}

// NewExecutorError wraps an executor failure for the given node.
func NewExecutorError(nodeID string, err error) *ExecutorError {
	return &ExecutorError{NodeID: nodeID, Cause: err.Error(), Wrapped: err}
}

// ResumeError indicates that resume was requested for an unknown execution or
// one with no usable pause snapshot. It is a caller error and is not retried.
type ResumeError struct {
	ExecutionID string
	Message     string
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("resume error for execution %q: %s", e.ExecutionID, e.Message)
}

// NewResumeError creates a ResumeError for the given execution.
func NewResumeError(executionID, format string, args ...any) *ResumeError {
	return &ResumeError{ExecutionID: executionID, Message: fmt.Sprintf(format, args...)}
}

// PersistenceError indicates a store read or write failed. The run is left in
// its last known state so it can be re-resumed once the store recovers.
type PersistenceError struct {
	Op      string
	Wrapped error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %s", e.Op, e.Wrapped)
}

func (e *PersistenceError) Unwrap() error {
	return e.Wrapped
}

// NewPersistenceError wraps a store failure for the given operation.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Wrapped: err}
}

// IsDefinitionError reports whether err is (or wraps) a DefinitionError.
func IsDefinitionError(err error) bool {
	var defErr *DefinitionError
	return errors.As(err, &defErr)
}

// IsResumeError reports whether err is (or wraps) a ResumeError.
func IsResumeError(err error) bool {
	var resumeErr *ResumeError
	return errors.As(err, &resumeErr)
}
