package greenlight

import (
	"context"
)

// SnapshotStore is durable key-value persistence for execution snapshots,
// keyed by execution ID. CompareAndSaveSnapshot provides the conditional
// write that makes the pause protocol safe against concurrent attempts.
type SnapshotStore interface {
	// SaveSnapshot unconditionally writes the snapshot.
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	// CompareAndSaveSnapshot writes the snapshot only if no snapshot exists
	// yet for the execution, or the stored one has the expected status.
	// Returns ErrStatusConflict otherwise.
	CompareAndSaveSnapshot(ctx context.Context, snapshot *Snapshot, expected ExecutionStatus) error

	// LoadSnapshot loads the snapshot for an execution, or nil if none exists.
	LoadSnapshot(ctx context.Context, executionID string) (*Snapshot, error)

	// DeleteSnapshot removes snapshot data for an execution
	DeleteSnapshot(ctx context.Context, executionID string) error
}
