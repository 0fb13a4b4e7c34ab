package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civica-labs/legisync-cli/internal/adapters/driven/storage/memory"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
)

// --- Mock implementations for fetch testing ---

// fetchMockConnector implements driven.Connector with scripted page chains.
type fetchMockConnector struct {
	source   domain.SourceID
	parts    []domain.Partition
	partsErr error
	chains   map[string][]domain.Page

	// failAt makes the given 1-based page ordinal of a partition return
	// failErr instead of its page.
	failAt  map[string]int
	failErr error

	// blockAt makes the given ordinal block until unblock closes or the
	// context is cancelled.
	blockAt map[string]int
	unblock chan struct{}

	validateErr error

	mu        sync.Mutex
	seen      map[string][]string
	seenSince map[string][]time.Time
	closed    bool
}

func (m *fetchMockConnector) Source() domain.SourceID { return m.source }

func (m *fetchMockConnector) Partitions(_ context.Context) ([]domain.Partition, error) {
	if m.partsErr != nil {
		return nil, m.partsErr
	}
	return m.parts, nil
}

func (m *fetchMockConnector) Validate(_ context.Context) error { return m.validateErr }

func (m *fetchMockConnector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fetchMockConnector) FetchPage(ctx context.Context, task domain.FetchTask) (domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}

	id := task.Partition.ID()

	m.mu.Lock()
	if m.seen == nil {
		m.seen = make(map[string][]string)
		m.seenSince = make(map[string][]time.Time)
	}
	m.seen[id] = append(m.seen[id], task.Cursor)
	m.seenSince[id] = append(m.seenSince[id], task.UpdatedSince)
	m.mu.Unlock()

	page, ordinal, err := m.pageFor(id, task.Cursor)
	if err != nil {
		return domain.Page{}, err
	}

	if m.blockAt[id] == ordinal {
		select {
		case <-ctx.Done():
			return domain.Page{}, ctx.Err()
		case <-m.unblock:
		}
	}
	if m.failAt[id] == ordinal {
		return domain.Page{}, m.failErr
	}
	return page, nil
}

// pageFor resolves a cursor to its position in the partition's chain.
func (m *fetchMockConnector) pageFor(id, cursor string) (domain.Page, int, error) {
	chain, ok := m.chains[id]
	if !ok {
		return domain.Page{}, 0, fmt.Errorf("%w: no pages scripted for %s", domain.ErrInvalidRequest, id)
	}
	if cursor == "" {
		return chain[0], 1, nil
	}
	for i := 0; i < len(chain)-1; i++ {
		if chain[i].NextCursor == cursor {
			return chain[i+1], i + 2, nil
		}
	}
	return domain.Page{}, 0, fmt.Errorf("%w: unknown cursor %q", domain.ErrInvalidRequest, cursor)
}

func (m *fetchMockConnector) cursors(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.seen[id]))
	copy(out, m.seen[id])
	return out
}

func (m *fetchMockConnector) sinces(id string) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.seenSince[id]))
	copy(out, m.seenSince[id])
	return out
}

// fetchMockRegistry implements driven.ConnectorRegistry over a fixed list.
type fetchMockRegistry struct {
	connectors []driven.Connector
}

func (r *fetchMockRegistry) Get(source domain.SourceID) (driven.Connector, error) {
	for _, connector := range r.connectors {
		if connector.Source() == source {
			return connector, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrSourceUnknown, source)
}

func (r *fetchMockRegistry) All() []driven.Connector { return r.connectors }

// flakyRecordStore fails Put for one stable ID and delegates the rest.
type flakyRecordStore struct {
	driven.RecordStore
	failID string
}

func (s *flakyRecordStore) Put(ctx context.Context, record domain.Record) (driven.PutOutcome, error) {
	if record.StableID == s.failID {
		return "", fmt.Errorf("%w: disk full", domain.ErrStorage)
	}
	return s.RecordStore.Put(ctx, record)
}

// pageChain scripts a partition's chain with the given record count per
// page. Cursors are "page-2", "page-3", ... and the last page ends the
// chain.
func pageChain(partition domain.Partition, recordsPerPage ...int) []domain.Page {
	prefix := strings.ReplaceAll(partition.ID(), "/", ".")
	fetchedAt := time.Now().UTC()

	chain := make([]domain.Page, 0, len(recordsPerPage))
	for p, count := range recordsPerPage {
		page := domain.Page{}
		for r := 0; r < count; r++ {
			page.Records = append(page.Records, domain.Record{
				EntityType: partition.EntityType,
				StableID:   fmt.Sprintf("%s-p%d-r%d", prefix, p+1, r),
				Source:     partition.Source,
				Payload:    map[string]any{"title": fmt.Sprintf("record %d/%d", p+1, r), "number": r},
				FetchedAt:  fetchedAt,
			})
		}
		if p < len(recordsPerPage)-1 {
			page.NextCursor = fmt.Sprintf("page-%d", p+2)
		}
		chain = append(chain, page)
	}
	return chain
}

type fetchFixture struct {
	checkpoints *memory.CheckpointStore
	runs        *memory.RunStore
}

func newFetchFixture(records driven.RecordStore, connectors ...driven.Connector) (*FetchService, fetchFixture) {
	f := fetchFixture{
		checkpoints: memory.NewCheckpointStore(),
		runs:        memory.NewRunStore(),
	}

	settings := domain.DefaultSettings("")
	settings.MaxWorkers = 2

	service := NewFetchService(settings, &fetchMockRegistry{connectors: connectors}, records, f.checkpoints, f.runs)
	return service, f
}

func billPartition(key string) domain.Partition {
	return domain.Partition{Source: domain.SourceCongress, EntityType: domain.EntityBill, Key: key}
}

func TestFetchService_Fetch_WalksAllPartitions(t *testing.T) {
	p1 := billPartition("118")
	p2 := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p1, p2},
		chains: map[string][]domain.Page{
			p1.ID(): pageChain(p1, 2, 2),
			p2.ID(): pageChain(p2, 3),
		},
	}
	records := memory.NewRecordStore()
	service, f := newFetchFixture(records, connector)

	report, err := service.Fetch(context.Background(), driving.FetchOptions{})

	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Cancelled)
	assert.True(t, report.Succeeded())
	require.Len(t, report.Partitions, 2)
	assert.Equal(t, 3, report.TotalPages())
	assert.Equal(t, 7, report.TotalWritten())

	count, err := records.Count(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	// Both chains are checkpointed as finished.
	for _, partition := range []domain.Partition{p1, p2} {
		checkpoint, err := f.checkpoints.GetCheckpoint(context.Background(), partition)
		require.NoError(t, err)
		assert.True(t, checkpoint.Completed)
		assert.Empty(t, checkpoint.Cursor)
		assert.False(t, checkpoint.LastSuccess.IsZero())
	}
}

func TestFetchService_Fetch_PagesWalkInOrder(t *testing.T) {
	p := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p},
		chains: map[string][]domain.Page{p.ID(): pageChain(p, 1, 1, 1)},
	}
	service, _ := newFetchFixture(memory.NewRecordStore(), connector)

	report, err := service.Fetch(context.Background(), driving.FetchOptions{})

	require.NoError(t, err)
	require.Len(t, report.Partitions, 1)
	assert.Equal(t, 3, report.Partitions[0].Pages)
	assert.Equal(t, []string{"", "page-2", "page-3"}, connector.cursors(p.ID()))
}

func TestFetchService_Fetch_PartitionFailureIsolated(t *testing.T) {
	failing := billPartition("118")
	healthy := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{failing, healthy},
		chains: map[string][]domain.Page{
			failing.ID(): pageChain(failing, 2, 2, 2),
			healthy.ID(): pageChain(healthy, 3),
		},
		failAt:  map[string]int{failing.ID(): 2},
		failErr: fmt.Errorf("%w: status 500", domain.ErrUpstreamUnavailable),
	}
	records := memory.NewRecordStore()
	service, f := newFetchFixture(records, connector)

	report, err := service.Fetch(context.Background(), driving.FetchOptions{})

	require.NoError(t, err)
	require.Len(t, report.Partitions, 2)

	var failed, complete domain.PartitionResult
	for _, result := range report.Partitions {
		switch result.Partition {
		case failing:
			failed = result
		case healthy:
			complete = result
		}
	}

	assert.Equal(t, domain.PartitionFailed, failed.Status)
	assert.Equal(t, domain.KindUpstreamUnavailable, failed.ErrorKind)
	assert.Contains(t, failed.Err, "status 500")
	assert.Equal(t, 1, failed.Pages)

	assert.Equal(t, domain.PartitionComplete, complete.Status)
	assert.Equal(t, 3, complete.RecordsWritten)

	// The failing partition's first page persisted and its checkpoint
	// points at the page that failed.
	count, err := records.Count(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	checkpoint, err := f.checkpoints.GetCheckpoint(context.Background(), failing)
	require.NoError(t, err)
	assert.False(t, checkpoint.Completed)
	assert.Equal(t, "page-2", checkpoint.Cursor)
	assert.Equal(t, 1, checkpoint.PagesDone)
}

func TestFetchService_Fetch_StorageErrorSkipsRecordOnly(t *testing.T) {
	p := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p},
		chains: map[string][]domain.Page{p.ID(): pageChain(p, 3)},
	}
	backing := memory.NewRecordStore()
	store := &flakyRecordStore{RecordStore: backing, failID: "congress.bill.119-p1-r1"}
	service, _ := newFetchFixture(store, connector)

	report, err := service.Fetch(context.Background(), driving.FetchOptions{})

	require.NoError(t, err)
	require.Len(t, report.Partitions, 1)
	result := report.Partitions[0]
	assert.Equal(t, domain.PartitionComplete, result.Status)
	assert.Equal(t, 2, result.RecordsWritten)
	assert.Equal(t, 1, result.RecordsSkipped)

	count, err := backing.Count(context.Background(), domain.EntityBill)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFetchService_Fetch_SingleFlight(t *testing.T) {
	p := billPartition("119")
	connector := &fetchMockConnector{
		source:  domain.SourceCongress,
		parts:   []domain.Partition{p},
		chains:  map[string][]domain.Page{p.ID(): pageChain(p, 1)},
		blockAt: map[string]int{p.ID(): 1},
		unblock: make(chan struct{}),
	}
	service, _ := newFetchFixture(memory.NewRecordStore(), connector)

	done := make(chan domain.FetchReport, 1)
	go func() {
		report, err := service.Fetch(context.Background(), driving.FetchOptions{})
		assert.NoError(t, err)
		done <- report
	}()

	require.Eventually(t, func() bool {
		return len(connector.cursors(p.ID())) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := service.Fetch(context.Background(), driving.FetchOptions{})
	assert.ErrorIs(t, err, domain.ErrFetchInProgress)

	close(connector.unblock)
	report := <-done
	assert.True(t, report.Succeeded())

	// The lock releases once the first run ends.
	report, err = service.Fetch(context.Background(), driving.FetchOptions{})
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
}

func TestFetchService_Fetch_CancellationSkipsRemainingPartitions(t *testing.T) {
	first := billPartition("118")
	second := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{first, second},
		chains: map[string][]domain.Page{
			first.ID():  pageChain(first, 1, 1, 1),
			second.ID(): pageChain(second, 1),
		},
		blockAt: map[string]int{first.ID(): 2},
		unblock: make(chan struct{}),
	}
	service, f := newFetchFixture(memory.NewRecordStore(), connector)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domain.FetchReport, 1)
	go func() {
		report, err := service.Fetch(ctx, driving.FetchOptions{MaxWorkers: 1})
		assert.NoError(t, err)
		done <- report
	}()

	require.Eventually(t, func() bool {
		return len(connector.cursors(first.ID())) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	report := <-done

	assert.True(t, report.Cancelled)
	require.Len(t, report.Partitions, 2)

	var interrupted, skipped domain.PartitionResult
	for _, result := range report.Partitions {
		switch result.Partition {
		case first:
			interrupted = result
		case second:
			skipped = result
		}
	}

	assert.Equal(t, domain.PartitionPartial, interrupted.Status)
	assert.Equal(t, 1, interrupted.Pages)
	assert.Equal(t, domain.PartitionSkipped, skipped.Status)
	assert.Empty(t, connector.cursors(second.ID()))

	// Progress before cancellation survives for resumption.
	checkpoint, err := f.checkpoints.GetCheckpoint(context.Background(), first)
	require.NoError(t, err)
	assert.False(t, checkpoint.Completed)
	assert.Equal(t, "page-2", checkpoint.Cursor)

	// Cancelled runs still land in run history.
	last, err := f.runs.LastRun(context.Background(), domain.RunKindFetch)
	require.NoError(t, err)
	assert.True(t, last.Cancelled)
}

func TestFetchService_Fetch_ResumeContinuesFromCheckpoint(t *testing.T) {
	p := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p},
		chains: map[string][]domain.Page{p.ID(): pageChain(p, 1, 1, 1)},
	}
	service, f := newFetchFixture(memory.NewRecordStore(), connector)

	require.NoError(t, f.checkpoints.SaveCheckpoint(context.Background(), domain.Checkpoint{
		Partition: p,
		Cursor:    "page-3",
		PagesDone: 2,
	}))

	report, err := service.Fetch(context.Background(), driving.FetchOptions{Resume: true})

	require.NoError(t, err)
	require.Len(t, report.Partitions, 1)
	result := report.Partitions[0]
	assert.Equal(t, domain.PartitionComplete, result.Status)
	assert.True(t, result.Resumed)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, []string{"page-3"}, connector.cursors(p.ID()))

	checkpoint, err := f.checkpoints.GetCheckpoint(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, checkpoint.Completed)
	assert.Equal(t, 3, checkpoint.PagesDone)
}

func TestFetchService_Fetch_ResumeSkipsCompletedPartition(t *testing.T) {
	p := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p},
		chains: map[string][]domain.Page{p.ID(): pageChain(p, 1)},
	}
	service, f := newFetchFixture(memory.NewRecordStore(), connector)

	require.NoError(t, f.checkpoints.SaveCheckpoint(context.Background(), domain.Checkpoint{
		Partition:   p,
		Completed:   true,
		LastSuccess: time.Now().UTC(),
	}))

	report, err := service.Fetch(context.Background(), driving.FetchOptions{Resume: true})

	require.NoError(t, err)
	require.Len(t, report.Partitions, 1)
	assert.Equal(t, domain.PartitionComplete, report.Partitions[0].Status)
	assert.Zero(t, report.Partitions[0].Pages)
	assert.Empty(t, connector.cursors(p.ID()))
}

func TestFetchService_Fetch_IncrementalUsesLastSuccess(t *testing.T) {
	p := billPartition("119")
	lastSuccess := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p},
		chains: map[string][]domain.Page{p.ID(): pageChain(p, 1, 1)},
	}
	service, f := newFetchFixture(memory.NewRecordStore(), connector)

	require.NoError(t, f.checkpoints.SaveCheckpoint(context.Background(), domain.Checkpoint{
		Partition:   p,
		Completed:   true,
		LastSuccess: lastSuccess,
	}))

	_, err := service.Fetch(context.Background(), driving.FetchOptions{Incremental: true})

	require.NoError(t, err)
	sinces := connector.sinces(p.ID())
	require.Len(t, sinces, 2)
	assert.Equal(t, lastSuccess, sinces[0])
	assert.Equal(t, lastSuccess, sinces[1])
}

func TestFetchService_Fetch_FirstRunIgnoresIncremental(t *testing.T) {
	p := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p},
		chains: map[string][]domain.Page{p.ID(): pageChain(p, 1)},
	}
	service, _ := newFetchFixture(memory.NewRecordStore(), connector)

	_, err := service.Fetch(context.Background(), driving.FetchOptions{Incremental: true})

	require.NoError(t, err)
	sinces := connector.sinces(p.ID())
	require.Len(t, sinces, 1)
	assert.True(t, sinces[0].IsZero())
}

func TestFetchService_Fetch_SourceAndEntityFilters(t *testing.T) {
	bills := billPartition("119")
	votes := domain.Partition{Source: domain.SourceCongress, EntityType: domain.EntityVote, Key: "119"}
	filings := domain.Partition{Source: domain.SourceLDA, EntityType: domain.EntityFiling, Key: "2026"}

	congress := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{bills, votes},
		chains: map[string][]domain.Page{
			bills.ID(): pageChain(bills, 1),
			votes.ID(): pageChain(votes, 1),
		},
	}
	lda := &fetchMockConnector{
		source: domain.SourceLDA,
		parts:  []domain.Partition{filings},
		chains: map[string][]domain.Page{filings.ID(): pageChain(filings, 1)},
	}
	service, _ := newFetchFixture(memory.NewRecordStore(), congress, lda)

	report, err := service.Fetch(context.Background(), driving.FetchOptions{
		Sources:     []domain.SourceID{domain.SourceCongress},
		EntityTypes: []domain.EntityType{domain.EntityBill},
	})

	require.NoError(t, err)
	require.Len(t, report.Partitions, 1)
	assert.Equal(t, bills, report.Partitions[0].Partition)
	assert.Empty(t, congress.cursors(votes.ID()))
	assert.Empty(t, lda.cursors(filings.ID()))
}

func TestFetchService_Fetch_UnknownSourceReleasesLock(t *testing.T) {
	p := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p},
		chains: map[string][]domain.Page{p.ID(): pageChain(p, 1)},
	}
	service, _ := newFetchFixture(memory.NewRecordStore(), connector)

	_, err := service.Fetch(context.Background(), driving.FetchOptions{
		Sources: []domain.SourceID{domain.SourceID("gopher")},
	})
	assert.ErrorIs(t, err, domain.ErrSourceUnknown)

	// A failed plan must not leave the run lock held.
	report, err := service.Fetch(context.Background(), driving.FetchOptions{})
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
}

func TestFetchService_Fetch_RecordsRunHistory(t *testing.T) {
	p := billPartition("119")
	connector := &fetchMockConnector{
		source: domain.SourceCongress,
		parts:  []domain.Partition{p},
		chains: map[string][]domain.Page{p.ID(): pageChain(p, 2, 1)},
	}
	service, f := newFetchFixture(memory.NewRecordStore(), connector)

	report, err := service.Fetch(context.Background(), driving.FetchOptions{})
	require.NoError(t, err)

	last, err := f.runs.LastRun(context.Background(), domain.RunKindFetch)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, last.RunID)
	assert.Equal(t, domain.RunKindFetch, last.Kind)
	assert.Equal(t, 1, last.PartitionsComplete)
	assert.Zero(t, last.PartitionsFailed)
	assert.Equal(t, 3, last.RecordsWritten)
	assert.Contains(t, last.Detail, "1 complete")
}

func TestFetchService_ValidateSources(t *testing.T) {
	congress := &fetchMockConnector{source: domain.SourceCongress}
	lda := &fetchMockConnector{
		source:      domain.SourceLDA,
		validateErr: errors.New("key rejected"),
	}
	service, _ := newFetchFixture(memory.NewRecordStore(), congress, lda)

	results := service.ValidateSources(context.Background(), nil)

	require.Len(t, results, 2)
	assert.NoError(t, results[domain.SourceCongress])
	assert.EqualError(t, results[domain.SourceLDA], "key rejected")
}

func TestFetchService_ValidateSources_UnknownSource(t *testing.T) {
	service, _ := newFetchFixture(memory.NewRecordStore())

	results := service.ValidateSources(context.Background(), []domain.SourceID{domain.SourceID("gopher")})

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[domain.SourceID("gopher")], domain.ErrSourceUnknown)
}
