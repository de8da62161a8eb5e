package greenlight

import (
	"context"
	"time"
)

// StepStatus is the status of a single node-execution attempt.
type StepStatus string

const (
	StepStatusStarted   StepStatus = "started"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusWaiting   StepStatus = "waiting_human_review"
)

// StepLogEntry is one append-only record of a node-execution attempt. The
// log is used for audit and to reconstruct the completed-node set when
// in-memory state is lost.
type StepLogEntry struct {
	ID          string         `json:"id,omitempty"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeType    string         `json:"node_type,omitempty"`
	Status      StepStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      any            `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	Duration    float64        `json:"duration"`
}

// StepLogger defines the append-only per-node execution log interface.
type StepLogger interface {
	// LogStep appends a step log entry
	LogStep(ctx context.Context, entry *StepLogEntry) error

	// StepHistory retrieves the step log for an execution, in append order
	StepHistory(ctx context.Context, executionID string) ([]*StepLogEntry, error)
}

// CompletedNodesFromHistory rebuilds the completed-node set from a step log.
// A later back-edge re-run clears the node's completion until it completes
// again, so started entries after a completed one reset that node.
func CompletedNodesFromHistory(entries []*StepLogEntry) []string {
	completed := map[string]bool{}
	for _, entry := range entries {
		switch entry.Status {
		case StepStatusCompleted:
			completed[entry.NodeID] = true
		case StepStatusStarted, StepStatusFailed:
			delete(completed, entry.NodeID)
		}
	}
	return sortedKeys(completed)
}
