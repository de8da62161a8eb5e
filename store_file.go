package greenlight

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileSnapshotStore persists one JSON snapshot file per execution. The
// conditional write is serialized by an in-process mutex; use the Postgres
// store when multiple processes share the same data.
type FileSnapshotStore struct {
	dataDir string
	mutex   sync.Mutex
}

// NewFileSnapshotStore creates a file-based snapshot store rooted at dataDir.
func NewFileSnapshotStore(dataDir string) (*FileSnapshotStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".greenlight", "executions")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileSnapshotStore{dataDir: dataDir}, nil
}

func (s *FileSnapshotStore) snapshotPath(executionID string) string {
	return filepath.Join(s.dataDir, executionID+".json")
}

// SaveSnapshot writes the snapshot to disk, replacing any prior one.
func (s *FileSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.write(snapshot)
}

// CompareAndSaveSnapshot writes the snapshot only if the stored status
// matches the expected one (or no snapshot exists yet).
func (s *FileSnapshotStore) CompareAndSaveSnapshot(ctx context.Context, snapshot *Snapshot, expected ExecutionStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, err := s.read(snapshot.ExecutionID)
	if err != nil {
		return err
	}
	if current != nil && current.Status != expected {
		return fmt.Errorf("expected status %q, found %q: %w",
			expected, current.Status, ErrStatusConflict)
	}
	return s.write(snapshot)
}

// LoadSnapshot loads the snapshot for an execution, or nil if none exists.
func (s *FileSnapshotStore) LoadSnapshot(ctx context.Context, executionID string) (*Snapshot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.read(executionID)
}

// DeleteSnapshot removes snapshot data for an execution.
func (s *FileSnapshotStore) DeleteSnapshot(ctx context.Context, executionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := os.Remove(s.snapshotPath(executionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ListExecutions returns a summary of every stored execution, newest first.
func (s *FileSnapshotStore) ListExecutions(ctx context.Context) ([]*ExecutionSummary, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*ExecutionSummary{}, nil
		}
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	var summaries []*ExecutionSummary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		executionID := entry.Name()[:len(entry.Name())-len(".json")]
		snapshot, err := s.read(executionID)
		if err != nil || snapshot == nil {
			// Skip snapshots we can't read
			continue
		}
		summaries = append(summaries, newExecutionSummary(snapshot))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
	return summaries, nil
}

func (s *FileSnapshotStore) write(snapshot *Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	path := s.snapshotPath(snapshot.ExecutionID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) read(executionID string) (*Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No snapshot found
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// ExecutionSummary provides a summary view of an execution
type ExecutionSummary struct {
	ExecutionID  string          `json:"execution_id"`
	WorkflowName string          `json:"workflow_name"`
	Status       ExecutionStatus `json:"status"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time,omitzero"`
	Duration     time.Duration   `json:"duration"`
	Error        string          `json:"error,omitempty"`
}

func newExecutionSummary(snapshot *Snapshot) *ExecutionSummary {
	duration := snapshot.SnapshotAt.Sub(snapshot.StartTime)
	if !snapshot.EndTime.IsZero() {
		duration = snapshot.EndTime.Sub(snapshot.StartTime)
	}
	return &ExecutionSummary{
		ExecutionID:  snapshot.ExecutionID,
		WorkflowName: snapshot.WorkflowName,
		Status:       snapshot.Status,
		StartTime:    snapshot.StartTime,
		EndTime:      snapshot.EndTime,
		Duration:     duration,
		Error:        snapshot.Error,
	}
}
