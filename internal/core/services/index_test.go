package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civica-labs/legisync-cli/internal/adapters/driven/storage/memory"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
)

// --- Mock implementations for index testing ---

// corruptIndexStore reports an undecodable index until the next write.
type corruptIndexStore struct {
	driven.IndexStore
	corrupt map[domain.EntityType]bool
}

func (s *corruptIndexStore) ReadIndex(ctx context.Context, entityType domain.EntityType) (domain.Index, error) {
	if s.corrupt[entityType] {
		return domain.Index{}, fmt.Errorf("%w: decode index: unexpected end of JSON input", domain.ErrIndexInconsistency)
	}
	return s.IndexStore.ReadIndex(ctx, entityType)
}

func (s *corruptIndexStore) WriteIndex(ctx context.Context, index domain.Index) error {
	if err := s.IndexStore.WriteIndex(ctx, index); err != nil {
		return err
	}
	s.corrupt[index.EntityType] = false
	return nil
}

// unreadableRecordStore fails Get for one stable ID and delegates the rest.
type unreadableRecordStore struct {
	driven.RecordStore
	failID string
}

func (s *unreadableRecordStore) Get(ctx context.Context, entityType domain.EntityType, stableID string) (domain.StoredRecord, error) {
	if stableID == s.failID {
		return domain.StoredRecord{}, fmt.Errorf("%w: read %s: input/output error", domain.ErrStorage, stableID)
	}
	return s.RecordStore.Get(ctx, entityType, stableID)
}

type indexFixture struct {
	records *memory.RecordStore
	indexes *memory.IndexStore
	runs    *memory.RunStore
}

func newIndexFixture() (*IndexService, indexFixture) {
	f := indexFixture{
		records: memory.NewRecordStore(),
		indexes: memory.NewIndexStore(),
		runs:    memory.NewRunStore(),
	}
	return NewIndexService(f.records, f.indexes, f.runs), f
}

func putBill(t *testing.T, store driven.RecordStore, id, title string) {
	t.Helper()
	putBillAt(t, store, id, title, time.Now().UTC())
}

func putBillAt(t *testing.T, store driven.RecordStore, id, title string, fetchedAt time.Time) {
	t.Helper()
	_, err := store.Put(context.Background(), domain.Record{
		EntityType: domain.EntityBill,
		StableID:   id,
		Source:     domain.SourceCongress,
		Payload:    map[string]any{"title": title, "congress": 119},
		FetchedAt:  fetchedAt,
	})
	require.NoError(t, err)
}

func TestIndexService_Rebuild_ScansAllRecords(t *testing.T) {
	service, f := newIndexFixture()
	putBill(t, f.records, "119_hr_1", "Appropriations")
	putBill(t, f.records, "119_hr_2", "Budget")
	putBill(t, f.records, "119_s_3", "Transit")

	reports, err := service.Rebuild(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, reports, len(domain.AllEntityTypes()))

	byType := make(map[domain.EntityType]domain.IndexReport, len(reports))
	for _, report := range reports {
		byType[report.EntityType] = report
	}
	assert.Equal(t, 3, byType[domain.EntityBill].Entries)
	assert.Equal(t, 3, byType[domain.EntityBill].Added)
	assert.True(t, byType[domain.EntityBill].Rebuilt)
	assert.Zero(t, byType[domain.EntityVote].Entries)

	index, err := f.indexes.ReadIndex(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	require.Len(t, index.Entries, 3)
	assert.Equal(t, "119_hr_1", index.Entries[0].StableID)
	assert.Equal(t, "bill/119_hr_1.json", index.Entries[0].Path)
	assert.Equal(t, "Appropriations", index.Entries[0].Summary["title"])
	assert.False(t, index.GeneratedAt.IsZero())
}

func TestIndexService_Rebuild_EntriesMatchStoredRecords(t *testing.T) {
	service, f := newIndexFixture()
	for i := 0; i < 5; i++ {
		putBill(t, f.records, fmt.Sprintf("119_hr_%d", i), fmt.Sprintf("Bill %d", i))
	}

	_, err := service.Rebuild(context.Background(), []domain.EntityType{domain.EntityBill})
	require.NoError(t, err)

	index, err := f.indexes.ReadIndex(context.Background(), domain.EntityBill)
	require.NoError(t, err)

	ids, err := f.records.List(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	require.Len(t, index.Entries, len(ids))

	// Every stored record has exactly one entry carrying its checksum.
	for i, id := range ids {
		record, err := f.records.Get(context.Background(), domain.EntityBill, id)
		require.NoError(t, err)
		assert.Equal(t, id, index.Entries[i].StableID)
		assert.Equal(t, record.Checksum, index.Entries[i].Checksum)
		assert.Equal(t, record.FetchedAt, index.Entries[i].FetchedAt)
	}
}

func TestIndexService_Rebuild_DiffsAgainstPriorIndex(t *testing.T) {
	service, f := newIndexFixture()
	base := time.Now().UTC().Add(-time.Hour)
	putBillAt(t, f.records, "119_hr_1", "Original", base)
	putBillAt(t, f.records, "119_hr_2", "Stable", base)

	_, err := service.Rebuild(context.Background(), []domain.EntityType{domain.EntityBill})
	require.NoError(t, err)

	// One updated payload, one new record; hr_2 is untouched.
	putBillAt(t, f.records, "119_hr_1", "Amended", base.Add(time.Minute))
	putBill(t, f.records, "119_hr_9", "Fresh")

	reports, err := service.Rebuild(context.Background(), []domain.EntityType{domain.EntityBill})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Equal(t, 3, reports[0].Entries)
	assert.Equal(t, 1, reports[0].Added)
	assert.Equal(t, 1, reports[0].Updated)
	assert.Zero(t, reports[0].Removed)
}

func TestIndexService_Rebuild_ReportsRemovedEntries(t *testing.T) {
	service, f := newIndexFixture()
	putBill(t, f.records, "119_hr_1", "Kept")

	// A stale index entry whose record file no longer exists.
	require.NoError(t, f.indexes.WriteIndex(context.Background(), domain.Index{
		EntityType:  domain.EntityBill,
		GeneratedAt: time.Now().UTC(),
		Entries: []domain.IndexEntry{
			{StableID: "119_hr_1", Checksum: "stale"},
			{StableID: "119_hr_gone", Checksum: "stale"},
		},
	}))

	reports, err := service.Rebuild(context.Background(), []domain.EntityType{domain.EntityBill})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Equal(t, 1, reports[0].Entries)
	assert.Equal(t, 1, reports[0].Removed)
	assert.Equal(t, 1, reports[0].Updated)
}

func TestIndexService_Rebuild_SkipsUnreadableRecords(t *testing.T) {
	f := indexFixture{
		records: memory.NewRecordStore(),
		indexes: memory.NewIndexStore(),
		runs:    memory.NewRunStore(),
	}
	putBill(t, f.records, "119_hr_1", "Readable")
	putBill(t, f.records, "119_hr_2", "Broken")
	store := &unreadableRecordStore{RecordStore: f.records, failID: "119_hr_2"}
	service := NewIndexService(store, f.indexes, f.runs)

	reports, err := service.Rebuild(context.Background(), []domain.EntityType{domain.EntityBill})

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Entries)

	index, err := f.indexes.ReadIndex(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	require.Len(t, index.Entries, 1)
	assert.Equal(t, "119_hr_1", index.Entries[0].StableID)
}

func TestIndexService_Update_MergesModifiedRecords(t *testing.T) {
	service, f := newIndexFixture()
	base := time.Now().UTC().Add(-time.Hour)
	putBillAt(t, f.records, "119_hr_1", "Original", base)
	putBillAt(t, f.records, "119_hr_2", "Stable", base)

	_, err := service.Rebuild(context.Background(), []domain.EntityType{domain.EntityBill})
	require.NoError(t, err)

	// Backdate everything, then change one record and add another after
	// the cut line.
	cut := time.Now().UTC()
	f.records.Touch(domain.EntityBill, "119_hr_1", cut.Add(-time.Minute))
	f.records.Touch(domain.EntityBill, "119_hr_2", cut.Add(-time.Minute))
	putBillAt(t, f.records, "119_hr_1", "Amended", base.Add(time.Minute))
	putBill(t, f.records, "119_hr_9", "Fresh")

	reports, err := service.Update(context.Background(), cut, []domain.EntityType{domain.EntityBill})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.False(t, reports[0].Rebuilt)
	assert.Equal(t, 3, reports[0].Entries)
	assert.Equal(t, 1, reports[0].Added)
	assert.Equal(t, 1, reports[0].Updated)
	assert.Zero(t, reports[0].Removed)

	index, err := f.indexes.ReadIndex(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	require.Len(t, index.Entries, 3)
	assert.Equal(t, "Amended", index.Entries[0].Summary["title"])
}

func TestIndexService_Update_DropsVanishedEntries(t *testing.T) {
	service, f := newIndexFixture()
	putBill(t, f.records, "119_hr_1", "Kept")

	require.NoError(t, f.indexes.WriteIndex(context.Background(), domain.Index{
		EntityType:  domain.EntityBill,
		GeneratedAt: time.Now().UTC(),
		Entries: []domain.IndexEntry{
			{StableID: "119_hr_1", Checksum: "c1"},
			{StableID: "119_hr_gone", Checksum: "c2"},
		},
	}))

	reports, err := service.Update(context.Background(), time.Now().UTC().Add(time.Hour), []domain.EntityType{domain.EntityBill})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Equal(t, 1, reports[0].Removed)
	assert.Equal(t, 1, reports[0].Entries)

	index, err := f.indexes.ReadIndex(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	require.Len(t, index.Entries, 1)
	assert.Equal(t, "119_hr_1", index.Entries[0].StableID)
}

func TestIndexService_Update_RebuildsWhenIndexMissing(t *testing.T) {
	service, f := newIndexFixture()
	putBill(t, f.records, "119_hr_1", "Only")

	reports, err := service.Update(context.Background(), time.Now().UTC(), []domain.EntityType{domain.EntityBill})

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Rebuilt)
	assert.Equal(t, 1, reports[0].Entries)

	_, err = f.indexes.ReadIndex(context.Background(), domain.EntityBill)
	assert.NoError(t, err)
}

func TestIndexService_Update_RebuildsWhenIndexCorrupt(t *testing.T) {
	f := indexFixture{
		records: memory.NewRecordStore(),
		indexes: memory.NewIndexStore(),
		runs:    memory.NewRunStore(),
	}
	putBill(t, f.records, "119_hr_1", "Survivor")
	indexes := &corruptIndexStore{
		IndexStore: f.indexes,
		corrupt:    map[domain.EntityType]bool{domain.EntityBill: true},
	}
	service := NewIndexService(f.records, indexes, f.runs)

	reports, err := service.Update(context.Background(), time.Now().UTC(), []domain.EntityType{domain.EntityBill})

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Rebuilt)

	// The rewritten index is readable again.
	index, err := indexes.ReadIndex(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	require.Len(t, index.Entries, 1)
}

func TestIndexService_RecordsRunHistory(t *testing.T) {
	service, f := newIndexFixture()
	putBill(t, f.records, "119_hr_1", "Only")

	_, err := service.Rebuild(context.Background(), []domain.EntityType{domain.EntityBill})
	require.NoError(t, err)

	last, err := f.runs.LastRun(context.Background(), domain.RunKindIndex)
	require.NoError(t, err)
	assert.Equal(t, domain.RunKindIndex, last.Kind)
	assert.Equal(t, 1, last.PartitionsComplete)
	assert.Equal(t, 1, last.RecordsWritten)
	assert.Contains(t, last.Detail, "1 added")
}

func TestIndexService_FetchAndIndexLocksAreIndependent(t *testing.T) {
	service, f := newIndexFixture()
	putBill(t, f.records, "119_hr_1", "Only")

	// A held fetch lock must not block index builds.
	require.NoError(t, f.runs.BeginRun(context.Background(), domain.RunKindFetch, "fetch-1"))

	_, err := service.Rebuild(context.Background(), []domain.EntityType{domain.EntityBill})
	assert.NoError(t, err)
}
