package greenlight

import "time"

// PauseState records why and where an execution is suspended. It is present
// only while the execution status is waiting_human_review.
type PauseState struct {
	NodeID   string         `json:"node_id"`
	Reason   string         `json:"reason,omitempty"`
	TaskID   string         `json:"task_id,omitempty"`
	Actions  []TaskAction   `json:"actions,omitempty"`
	Context  map[string]any `json:"context"`
	PausedAt time.Time      `json:"paused_at"`
}

// Snapshot is a complete, durable copy of execution state. The snapshot
// written on pause is sufficient to resume the run in a fresh process with no
// in-memory state.
type Snapshot struct {
	ExecutionID    string                 `json:"execution_id"`
	WorkflowName   string                 `json:"workflow_name"`
	Status         ExecutionStatus        `json:"status"`
	Input          map[string]any         `json:"input"`
	Context        map[string]any         `json:"context"`
	CompletedNodes []string               `json:"completed_nodes"`
	NodeResults    map[string]*NodeResult `json:"node_results"`
	Pause          *PauseState            `json:"pause,omitempty"`
	Output         any                    `json:"output,omitempty"`
	Error          string                 `json:"error,omitempty"`
	StartTime      time.Time              `json:"start_time,omitzero"`
	EndTime        time.Time              `json:"end_time,omitzero"`
	SnapshotAt     time.Time              `json:"snapshot_at"`
}
