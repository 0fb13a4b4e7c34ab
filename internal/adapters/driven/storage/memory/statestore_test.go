package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// TestCheckpointStore_Lifecycle tests save, get, list, and delete
func TestCheckpointStore_Lifecycle(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	partition := domain.Partition{Source: domain.SourceCongress, EntityType: domain.EntityBill, Key: "119"}
	_, err := store.GetCheckpoint(ctx, partition)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.SaveCheckpoint(ctx, domain.Checkpoint{Partition: partition, Cursor: "abc", PagesDone: 2}))

	checkpoint, err := store.GetCheckpoint(ctx, partition)
	require.NoError(t, err)
	assert.Equal(t, "abc", checkpoint.Cursor)
	assert.Equal(t, 2, checkpoint.PagesDone)
	assert.False(t, checkpoint.UpdatedAt.IsZero())

	other := domain.Partition{Source: domain.SourceLDA, EntityType: domain.EntityFiling, Key: "2025"}
	require.NoError(t, store.SaveCheckpoint(ctx, domain.Checkpoint{Partition: other}))

	all, err := store.ListCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, partition, all[0].Partition, "listing is ordered by partition ID")

	require.NoError(t, store.DeleteCheckpoint(ctx, partition))
	_, err = store.GetCheckpoint(ctx, partition)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestRunStore_Lifecycle tests the single-active-run rule and history
func TestRunStore_Lifecycle(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, domain.RunKindFetch, "run-1"))
	assert.ErrorIs(t, store.BeginRun(ctx, domain.RunKindFetch, "run-2"), domain.ErrFetchInProgress)
	require.NoError(t, store.BeginRun(ctx, domain.RunKindIndex, "idx-1"))

	_, err := store.LastRun(ctx, domain.RunKindFetch)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.EndRun(ctx, domain.RunRecord{
		RunID:          "run-1",
		Kind:           domain.RunKindFetch,
		RecordsWritten: 10,
	}))

	assert.ErrorIs(t, store.EndRun(ctx, domain.RunRecord{RunID: "ghost", Kind: domain.RunKindFetch}), domain.ErrNotFound)

	last, err := store.LastRun(ctx, domain.RunKindFetch)
	require.NoError(t, err)
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, 10, last.RecordsWritten)
	assert.False(t, last.StartedAt.IsZero())
	assert.False(t, last.FinishedAt.IsZero())

	require.NoError(t, store.BeginRun(ctx, domain.RunKindFetch, "run-3"),
		"ending the active run frees the slot")
}

// TestRunStore_ListAndPrune tests ordering, limits, and retention
func TestRunStore_ListAndPrune(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		runID := string(rune('a' + i))
		require.NoError(t, store.BeginRun(ctx, domain.RunKindFetch, runID))
		require.NoError(t, store.EndRun(ctx, domain.RunRecord{
			RunID:     runID,
			Kind:      domain.RunKindFetch,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "d", runs[0].RunID)
	assert.Equal(t, "c", runs[1].RunID)

	require.NoError(t, store.PruneRuns(ctx, 1))
	runs, err = store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "d", runs[0].RunID)
}
