package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civica-labs/legisync-cli/internal/adapters/driven/storage/memory"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/ratelimit"
)

type statusFixture struct {
	settings    domain.Settings
	records     *memory.RecordStore
	indexes     *memory.IndexStore
	checkpoints *memory.CheckpointStore
	runs        *memory.RunStore
}

func newStatusFixture(t *testing.T, limiters *ratelimit.Registry) (*StatusService, statusFixture) {
	t.Helper()
	f := statusFixture{
		settings:    domain.DefaultSettings(t.TempDir()),
		records:     memory.NewRecordStore(),
		indexes:     memory.NewIndexStore(),
		checkpoints: memory.NewCheckpointStore(),
		runs:        memory.NewRunStore(),
	}
	service := NewStatusService(f.settings, f.records, f.indexes, f.checkpoints, f.runs, limiters)
	return service, f
}

func finishRun(t *testing.T, runs *memory.RunStore, kind, runID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, runs.BeginRun(ctx, kind, runID))
	require.NoError(t, runs.EndRun(ctx, domain.RunRecord{
		RunID:              runID,
		Kind:               kind,
		PartitionsComplete: 1,
	}))
}

func TestStatusService_Status_AssemblesReport(t *testing.T) {
	limiters, err := ratelimit.NewRegistry(domain.DefaultSettings(t.TempDir()))
	require.NoError(t, err)
	service, f := newStatusFixture(t, limiters)
	ctx := context.Background()

	putBill(t, f.records, "119_hr_1", "One")
	putBill(t, f.records, "119_hr_2", "Two")
	_, err = f.records.Put(ctx, domain.Record{
		EntityType: domain.EntityFiling,
		StableID:   "2025_q1_77",
		Source:     domain.SourceLDA,
		Payload:    map[string]any{"registrant": "Acme Advocacy"},
		FetchedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, f.indexes.WriteIndex(ctx, domain.Index{
		EntityType:  domain.EntityBill,
		GeneratedAt: time.Now().UTC(),
		Entries: []domain.IndexEntry{
			{StableID: "119_hr_1"},
			{StableID: "119_hr_2"},
		},
	}))

	require.NoError(t, f.checkpoints.SaveCheckpoint(ctx, domain.Checkpoint{
		Partition: billPartition("congress=119"),
		Completed: true,
		PagesDone: 4,
	}))

	finishRun(t, f.runs, domain.RunKindFetch, "fetch-1")
	finishRun(t, f.runs, domain.RunKindIndex, "index-1")

	report, err := service.Status(ctx)

	require.NoError(t, err)
	assert.Equal(t, f.settings.DataRoot, report.DataRoot)

	assert.Equal(t, 2, report.RecordCounts[domain.EntityBill])
	assert.Equal(t, 1, report.RecordCounts[domain.EntityFiling])
	assert.Zero(t, report.RecordCounts[domain.EntityVote])

	assert.Equal(t, 2, report.IndexedCounts[domain.EntityBill])
	_, voteIndexed := report.IndexedCounts[domain.EntityVote]
	assert.False(t, voteIndexed, "types without an index stay absent")

	require.NotNil(t, report.LastFetch)
	assert.Equal(t, "fetch-1", report.LastFetch.RunID)
	require.NotNil(t, report.LastIndex)
	assert.Equal(t, "index-1", report.LastIndex.RunID)

	require.Len(t, report.Checkpoints, 1)
	assert.Equal(t, 4, report.Checkpoints[0].PagesDone)

	require.Len(t, report.Limiters, 2)
	assert.Equal(t, domain.SourceCongress, report.Limiters[0].Source)
	assert.Equal(t, 5000, report.Limiters[0].MaxRequests)
	assert.Equal(t, time.Hour, report.Limiters[0].Window)
	assert.Zero(t, report.Limiters[0].InWindow)
	assert.Equal(t, domain.SourceLDA, report.Limiters[1].Source)
}

func TestStatusService_Status_EmptyState(t *testing.T) {
	service, _ := newStatusFixture(t, nil)

	report, err := service.Status(context.Background())

	require.NoError(t, err)
	assert.Len(t, report.RecordCounts, len(domain.AllEntityTypes()))
	for _, entityType := range domain.AllEntityTypes() {
		assert.Zero(t, report.RecordCounts[entityType])
	}
	assert.Empty(t, report.IndexedCounts)
	assert.Nil(t, report.LastFetch)
	assert.Nil(t, report.LastIndex)
	assert.Empty(t, report.Checkpoints)
	assert.Empty(t, report.Limiters)
}

func TestStatusService_Status_CorruptIndexCountsAsUnindexed(t *testing.T) {
	service, f := newStatusFixture(t, nil)
	ctx := context.Background()
	putBill(t, f.records, "119_hr_1", "One")

	corrupt := &corruptIndexStore{
		IndexStore: f.indexes,
		corrupt:    map[domain.EntityType]bool{domain.EntityBill: true},
	}
	service = NewStatusService(f.settings, f.records, corrupt, f.checkpoints, f.runs, nil)

	report, err := service.Status(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.RecordCounts[domain.EntityBill])
	_, indexed := report.IndexedCounts[domain.EntityBill]
	assert.False(t, indexed)
}
