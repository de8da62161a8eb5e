package greenlight

import (
	"context"
	"fmt"
	"sync"
)

// MemorySnapshotStore is an in-memory SnapshotStore, useful for tests and
// single-process deployments that do not need durability.
type MemorySnapshotStore struct {
	snapshots map[string]*Snapshot
	mutex     sync.Mutex
}

// NewMemorySnapshotStore creates a new in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: map[string]*Snapshot{}}
}

func (s *MemorySnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshots[snapshot.ExecutionID] = snapshot
	return nil
}

func (s *MemorySnapshotStore) CompareAndSaveSnapshot(ctx context.Context, snapshot *Snapshot, expected ExecutionStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if current, ok := s.snapshots[snapshot.ExecutionID]; ok && current.Status != expected {
		return fmt.Errorf("expected status %q, found %q: %w",
			expected, current.Status, ErrStatusConflict)
	}
	s.snapshots[snapshot.ExecutionID] = snapshot
	return nil
}

func (s *MemorySnapshotStore) LoadSnapshot(ctx context.Context, executionID string) (*Snapshot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.snapshots[executionID], nil
}

func (s *MemorySnapshotStore) DeleteSnapshot(ctx context.Context, executionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.snapshots, executionID)
	return nil
}
