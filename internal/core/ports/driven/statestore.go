package driven

import (
	"context"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// CheckpointStore persists partition progress so interrupted runs resume
// mid-chain instead of refetching completed pages.
type CheckpointStore interface {
	// SaveCheckpoint stores or updates a partition's checkpoint.
	SaveCheckpoint(ctx context.Context, checkpoint domain.Checkpoint) error

	// GetCheckpoint retrieves the checkpoint for a partition.
	// Returns domain.ErrNotFound if the partition has never progressed.
	GetCheckpoint(ctx context.Context, partition domain.Partition) (domain.Checkpoint, error)

	// ListCheckpoints returns every stored checkpoint, ordered by
	// partition ID.
	ListCheckpoints(ctx context.Context) ([]domain.Checkpoint, error)

	// DeleteCheckpoint removes a partition's checkpoint, forcing the
	// next run to walk the partition from the first page.
	DeleteCheckpoint(ctx context.Context, partition domain.Partition) error
}

// RunStore persists run history and enforces the single-active-run rule.
type RunStore interface {
	// BeginRun registers a run as active. Returns
	// domain.ErrFetchInProgress if another run of the same kind is
	// already active.
	BeginRun(ctx context.Context, kind string, runID string) error

	// EndRun marks an active run as finished and records its outcome.
	EndRun(ctx context.Context, run domain.RunRecord) error

	// ListRuns returns recent runs ordered by start time descending.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// LastRun returns the most recent finished run of a kind.
	// Returns domain.ErrNotFound if none has been recorded.
	LastRun(ctx context.Context, kind string) (domain.RunRecord, error)

	// PruneRuns removes old run records, keeping the most recent 'keep'.
	PruneRuns(ctx context.Context, keep int) error
}
