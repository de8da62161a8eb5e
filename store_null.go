package greenlight

import "context"

// NullSnapshotStore is a no-op implementation. Runs using it cannot be
// resumed after a pause.
type NullSnapshotStore struct{}

func NewNullSnapshotStore() *NullSnapshotStore {
	return &NullSnapshotStore{}
}

func (s *NullSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	return nil
}

func (s *NullSnapshotStore) CompareAndSaveSnapshot(ctx context.Context, snapshot *Snapshot, expected ExecutionStatus) error {
	return nil
}

func (s *NullSnapshotStore) LoadSnapshot(ctx context.Context, executionID string) (*Snapshot, error) {
	return nil, nil
}

func (s *NullSnapshotStore) DeleteSnapshot(ctx context.Context, executionID string) error {
	return nil
}
