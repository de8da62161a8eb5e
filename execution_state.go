package greenlight

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ExecutionStatus represents the execution status
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting_human_review"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusAborted   ExecutionStatus = "aborted"
)

// Terminal reports whether the status is a terminal one.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusAborted
}

// ExecutionState consolidates all mutable per-run state into one structure.
// The traversal engine owns it exclusively while running; the persisted
// snapshot owns it while the run is paused. All data is serializable.
type ExecutionState struct {
	executionID    string
	workflowName   string
	status         ExecutionStatus
	input          map[string]any
	context        map[string]any
	completedNodes map[string]bool
	nodeResults    map[string]*NodeResult
	pause          *PauseState
	output         any
	err            string
	startTime      time.Time
	endTime        time.Time
	mutex          sync.RWMutex
}

// newExecutionState creates the state for a fresh run.
func newExecutionState(executionID, workflowName string, input map[string]any) *ExecutionState {
	return &ExecutionState{
		executionID:    executionID,
		workflowName:   workflowName,
		status:         ExecutionStatusPending,
		input:          copyMap(input),
		context:        copyMap(input),
		completedNodes: map[string]bool{},
		nodeResults:    map[string]*NodeResult{},
	}
}

// ID returns the execution ID
func (s *ExecutionState) ID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.executionID
}

// WorkflowName returns the name of the workflow being executed
func (s *ExecutionState) WorkflowName() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.workflowName
}

// Status returns the current execution status
func (s *ExecutionState) Status() ExecutionStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.status
}

// SetStatus updates the execution status
func (s *ExecutionState) SetStatus(status ExecutionStatus) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = status
}

// Err returns the recorded execution error, if any
func (s *ExecutionState) Err() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.err == "" {
		return nil
	}
	return errors.New(s.err)
}

// MarkCompleted adds a node to the completed set.
func (s *ExecutionState) MarkCompleted(nodeID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.completedNodes[nodeID] = true
}

// ClearCompleted removes a node from the completed set so a back-edge can
// re-run it.
func (s *ExecutionState) ClearCompleted(nodeID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.completedNodes, nodeID)
}

// IsCompleted reports whether a node has already executed in this run.
func (s *ExecutionState) IsCompleted(nodeID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.completedNodes[nodeID]
}

// CompletedNodes returns the sorted ids of all completed nodes.
func (s *ExecutionState) CompletedNodes() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return sortedKeys(s.completedNodes)
}

// SetCompletedNodes replaces the completed set, used when rebuilding state
// from the step log after a process restart.
func (s *ExecutionState) SetCompletedNodes(nodeIDs []string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.completedNodes = make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		s.completedNodes[id] = true
	}
}

// SetNodeResult records the raw result of the node's last execution.
func (s *ExecutionState) SetNodeResult(nodeID string, result *NodeResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.nodeResults[nodeID] = result
}

// NodeResult returns the raw result of the node's last execution.
func (s *ExecutionState) NodeResult(nodeID string) (*NodeResult, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	result, ok := s.nodeResults[nodeID]
	return result, ok
}

// MergeOutput merges a node's output into the accumulated context. Object
// results are spread in key by key; scalar results are stored under the node
// id. Every result is additionally stored under "<id>.output" so later nodes
// can address prior outputs by node id.
func (s *ExecutionState) MergeOutput(nodeID string, output any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if obj, ok := output.(map[string]any); ok {
		for k, v := range obj {
			s.context[k] = v
		}
	} else if output != nil {
		s.context[nodeID] = output
	}
	s.context[nodeID+".output"] = output
}

// SetContextValue sets a single context key.
func (s *ExecutionState) SetContextValue(key string, value any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.context[key] = value
}

// ContextSnapshot returns a copy of the accumulated context.
func (s *ExecutionState) ContextSnapshot() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return copyMap(s.context)
}

// Input returns a copy of the run's initial input.
func (s *ExecutionState) Input() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return copyMap(s.input)
}

// SetPause records the pause marker and moves the run to
// waiting_human_review.
func (s *ExecutionState) SetPause(pause *PauseState) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pause = pause
	s.status = ExecutionStatusWaiting
}

// ClearPause removes the pause marker and moves the run back to running.
func (s *ExecutionState) ClearPause() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pause = nil
	s.status = ExecutionStatusRunning
}

// Pause returns the pause marker, if the run is suspended.
func (s *ExecutionState) Pause() *PauseState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.pause
}

// SetOutput records the run's final output.
func (s *ExecutionState) SetOutput(output any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.output = output
}

// Output returns the run's final output.
func (s *ExecutionState) Output() any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.output
}

// StartTime returns the execution start time
func (s *ExecutionState) StartTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.startTime
}

// SetStartTime records when the run began.
func (s *ExecutionState) SetStartTime(t time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.startTime = t
}

// EndTime returns the execution end time
func (s *ExecutionState) EndTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.endTime
}

// SetFinished records the terminal status, end time, and error in one step.
func (s *ExecutionState) SetFinished(status ExecutionStatus, endTime time.Time, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = status
	s.endTime = endTime
	if err != nil {
		s.err = err.Error()
	} else {
		s.err = ""
	}
}

// ToSnapshot converts the execution state to a durable snapshot
func (s *ExecutionState) ToSnapshot() *Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return &Snapshot{
		ExecutionID:    s.executionID,
		WorkflowName:   s.workflowName,
		Status:         s.status,
		Input:          copyMap(s.input),
		Context:        copyMap(s.context),
		CompletedNodes: sortedKeys(s.completedNodes),
		NodeResults:    copyNodeResults(s.nodeResults),
		Pause:          s.pause,
		Output:         s.output,
		Error:          s.err,
		StartTime:      s.startTime,
		EndTime:        s.endTime,
		SnapshotAt:     time.Now(),
	}
}

// newExecutionStateFromSnapshot restores execution state from a snapshot
func newExecutionStateFromSnapshot(snapshot *Snapshot) *ExecutionState {
	completed := make(map[string]bool, len(snapshot.CompletedNodes))
	for _, id := range snapshot.CompletedNodes {
		completed[id] = true
	}
	return &ExecutionState{
		executionID:    snapshot.ExecutionID,
		workflowName:   snapshot.WorkflowName,
		status:         snapshot.Status,
		input:          copyMap(snapshot.Input),
		context:        copyMap(snapshot.Context),
		completedNodes: completed,
		nodeResults:    copyNodeResults(snapshot.NodeResults),
		pause:          snapshot.Pause,
		output:         snapshot.Output,
		err:            snapshot.Error,
		startTime:      snapshot.StartTime,
		endTime:        snapshot.EndTime,
	}
}

// copyMap creates a shallow copy of a map
func copyMap(m map[string]any) map[string]any {
	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

func copyNodeResults(m map[string]*NodeResult) map[string]*NodeResult {
	copied := make(map[string]*NodeResult, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
