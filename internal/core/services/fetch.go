package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
	"github.com/civica-labs/legisync-cli/internal/logger"
	"github.com/civica-labs/legisync-cli/internal/monitoring"
)

// runHistoryKeep bounds persisted run history per run kind.
const runHistoryKeep = 50

// Ensure FetchService implements the interface.
var _ driving.FetchOrchestrator = (*FetchService)(nil)

// FetchService coordinates fetch runs: it enumerates partitions across the
// configured sources, walks each partition's page chain in order, and
// persists every record. Partitions run concurrently under a bounded worker
// pool; pages within a partition never do.
type FetchService struct {
	settings    domain.Settings
	connectors  driven.ConnectorRegistry
	records     driven.RecordStore
	checkpoints driven.CheckpointStore
	runs        driven.RunStore
}

// NewFetchService creates a fetch orchestrator.
func NewFetchService(
	settings domain.Settings,
	connectors driven.ConnectorRegistry,
	records driven.RecordStore,
	checkpoints driven.CheckpointStore,
	runs driven.RunStore,
) *FetchService {
	return &FetchService{
		settings:    settings,
		connectors:  connectors,
		records:     records,
		checkpoints: checkpoints,
		runs:        runs,
	}
}

// partitionPlan is one partition's walk, prepared before workers start so
// checkpoint reads happen once and sequentially.
type partitionPlan struct {
	connector       driven.Connector
	partition       domain.Partition
	startCursor     string
	pagesDone       int
	updatedSince    time.Time
	lastSuccess     time.Time
	alreadyComplete bool
}

// Fetch runs one fetch across the selected partitions. The returned report
// always covers every planned partition; partition failures are reported in
// it, not as the error. The error covers run-level failures only: another
// active run, unknown sources, or partition enumeration.
func (s *FetchService) Fetch(ctx context.Context, opts driving.FetchOptions) (domain.FetchReport, error) {
	runID := uuid.NewString()

	if err := s.runs.BeginRun(ctx, domain.RunKindFetch, runID); err != nil {
		return domain.FetchReport{}, fmt.Errorf("begin fetch run: %w", err)
	}

	startedAt := time.Now().UTC()

	plans, err := s.plan(ctx, opts)
	if err != nil {
		s.endRun(ctx, domain.RunRecord{
			RunID:     runID,
			Kind:      domain.RunKindFetch,
			StartedAt: startedAt,
			Detail:    fmt.Sprintf("planning failed: %v", err),
		})
		return domain.FetchReport{}, err
	}

	workers := s.workerCount(opts, len(plans))
	logger.Info("Starting fetch run %s: %d partitions, %d workers", runID, len(plans), workers)

	results := make([]domain.PartitionResult, len(plans))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = s.fetchPartition(ctx, plans[idx])
			}
		}()
	}

	// Workers drain the channel even after cancellation; a cancelled
	// worker returns a skipped result immediately, so every planned
	// partition appears in the report.
	for i := range plans {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report := domain.FetchReport{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Cancelled:  ctx.Err() != nil,
		Partitions: results,
	}

	s.endRun(ctx, runRecord(report))

	logger.Info("Fetch run %s finished in %s: %s", runID, report.Duration().Round(time.Millisecond), summarise(report))
	return report, nil
}

// ValidateSources probes each selected connector with one lightweight
// request. An empty list means every configured source.
func (s *FetchService) ValidateSources(ctx context.Context, sources []domain.SourceID) map[domain.SourceID]error {
	if len(sources) == 0 {
		for _, connector := range s.connectors.All() {
			sources = append(sources, connector.Source())
		}
	}

	results := make(map[domain.SourceID]error, len(sources))
	for _, source := range sources {
		connector, err := s.connectors.Get(source)
		if err != nil {
			results[source] = err
			continue
		}
		results[source] = connector.Validate(ctx)
	}
	return results
}

// plan enumerates the partitions a run will walk and consults checkpoints
// for resume cursors and incremental lower bounds.
func (s *FetchService) plan(ctx context.Context, opts driving.FetchOptions) ([]partitionPlan, error) {
	connectors, err := s.selectConnectors(opts.Sources)
	if err != nil {
		return nil, err
	}

	wantType := make(map[domain.EntityType]bool, len(opts.EntityTypes))
	for _, e := range opts.EntityTypes {
		wantType[e] = true
	}

	var plans []partitionPlan
	for _, connector := range connectors {
		partitions, err := connector.Partitions(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s partitions: %w", connector.Source(), err)
		}
		for _, partition := range partitions {
			if len(wantType) > 0 && !wantType[partition.EntityType] {
				continue
			}
			plans = append(plans, s.planPartition(ctx, connector, partition, opts))
		}
	}
	return plans, nil
}

// selectConnectors resolves the requested sources, defaulting to all
// registered connectors in source order.
func (s *FetchService) selectConnectors(sources []domain.SourceID) ([]driven.Connector, error) {
	if len(sources) == 0 {
		return s.connectors.All(), nil
	}

	connectors := make([]driven.Connector, 0, len(sources))
	for _, source := range sources {
		connector, err := s.connectors.Get(source)
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, connector)
	}
	return connectors, nil
}

// planPartition folds the stored checkpoint into one partition's plan. An
// unreadable checkpoint is treated as absent so a corrupt state database
// cannot block fetching.
func (s *FetchService) planPartition(ctx context.Context, connector driven.Connector, partition domain.Partition, opts driving.FetchOptions) partitionPlan {
	plan := partitionPlan{connector: connector, partition: partition}

	checkpoint, err := s.checkpoints.GetCheckpoint(ctx, partition)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return plan
	case err != nil:
		logger.Warn("Read checkpoint for %s: %v", partition, err)
		return plan
	}

	plan.lastSuccess = checkpoint.LastSuccess
	if opts.Incremental && !checkpoint.LastSuccess.IsZero() {
		plan.updatedSince = checkpoint.LastSuccess
	}
	if opts.Resume {
		if checkpoint.Completed {
			plan.alreadyComplete = true
		} else if checkpoint.Cursor != "" {
			plan.startCursor = checkpoint.Cursor
			plan.pagesDone = checkpoint.PagesDone
		}
	}
	return plan
}

// fetchPartition walks one partition's page chain to completion, terminal
// failure, or cancellation. Each persisted page advances the checkpoint, so
// the walk never loses more than one page of progress.
func (s *FetchService) fetchPartition(ctx context.Context, plan partitionPlan) domain.PartitionResult {
	result := domain.PartitionResult{Partition: plan.partition, Status: domain.PartitionSkipped}

	if ctx.Err() != nil {
		return result
	}
	if plan.alreadyComplete {
		logger.Debug("Partition %s already complete, skipping", plan.partition)
		result.Status = domain.PartitionComplete
		return result
	}

	started := time.Now()
	walkStart := started.UTC()
	result.Resumed = plan.startCursor != ""
	pagesDone := plan.pagesDone

	task := domain.FetchTask{
		Partition:    plan.partition,
		Cursor:       plan.startCursor,
		UpdatedSince: plan.updatedSince,
	}
	if result.Resumed {
		logger.Debug("Partition %s resuming after %d pages", plan.partition, pagesDone)
	}

	for {
		page, err := plan.connector.FetchPage(ctx, task)
		if err != nil {
			kind := domain.KindOf(err)
			if kind == domain.KindCancelled {
				if result.Pages > 0 || result.Resumed {
					result.Status = domain.PartitionPartial
				}
				logger.Debug("Partition %s stopped on cancellation after %d pages", plan.partition, result.Pages)
			} else {
				result.Status = domain.PartitionFailed
				result.ErrorKind = kind
				result.Err = err.Error()
				monitoring.IncError(string(kind))
				logger.Warn("Partition %s failed after %d pages: %v", plan.partition, result.Pages, err)
			}
			break
		}

		s.persistPage(ctx, page, &result)
		result.Pages++
		pagesDone++
		monitoring.IncPage(string(plan.partition.Source), string(plan.partition.EntityType))

		checkpoint := domain.Checkpoint{
			Partition:   plan.partition,
			Cursor:      page.NextCursor,
			PagesDone:   pagesDone,
			Completed:   page.Last(),
			LastSuccess: plan.lastSuccess,
		}
		if page.Last() {
			// The next incremental run filters from the start of this
			// walk, so entities updated while it ran are not missed.
			checkpoint.LastSuccess = walkStart
		}
		if err := s.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
			logger.Warn("Save checkpoint for %s: %v", plan.partition, err)
		}

		if page.Last() {
			result.Status = domain.PartitionComplete
			logger.Debug("Partition %s complete: %d pages, %d written, %d unchanged",
				plan.partition, result.Pages, result.RecordsWritten, result.RecordsUnchanged)
			break
		}
		task = task.Next(page.NextCursor)
	}

	monitoring.ObservePartition(string(plan.partition.Source), string(result.Status), time.Since(started))
	return result
}

// persistPage writes one page's records. An individual record failure is
// counted and logged without stopping the partition; losing one record is
// recoverable, losing the partition's remaining pages is not.
func (s *FetchService) persistPage(ctx context.Context, page domain.Page, result *domain.PartitionResult) {
	result.RecordsSkipped += page.Skipped

	for _, record := range page.Records {
		outcome, err := s.records.Put(ctx, record)
		if err != nil {
			result.RecordsSkipped++
			monitoring.IncError(string(domain.KindOf(err)))
			logger.Warn("Store record %s/%s: %v", record.EntityType, record.StableID, err)
			continue
		}

		monitoring.IncRecord(string(record.EntityType), string(outcome))
		switch outcome {
		case driven.PutCreated, driven.PutUpdated:
			result.RecordsWritten++
		default:
			result.RecordsUnchanged++
		}
	}
}

// workerCount resolves the worker bound: the option wins over settings, and
// the pool never exceeds the partition count.
func (s *FetchService) workerCount(opts driving.FetchOptions, partitions int) int {
	workers := s.settings.MaxWorkers
	if opts.MaxWorkers > 0 {
		workers = opts.MaxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	if partitions > 0 && workers > partitions {
		workers = partitions
	}
	return workers
}

// endRun records run history. The run row must be written even when the run
// was cancelled, so the surrounding context's cancellation is stripped.
func (s *FetchService) endRun(ctx context.Context, run domain.RunRecord) {
	ctx = context.WithoutCancel(ctx)
	if err := s.runs.EndRun(ctx, run); err != nil {
		logger.Warn("Record run %s: %v", run.RunID, err)
	}
	if err := s.runs.PruneRuns(ctx, runHistoryKeep); err != nil {
		logger.Warn("Prune run history: %v", err)
	}
}

// runRecord flattens a fetch report into its run history row.
func runRecord(report domain.FetchReport) domain.RunRecord {
	return domain.RunRecord{
		RunID:              report.RunID,
		Kind:               domain.RunKindFetch,
		StartedAt:          report.StartedAt,
		FinishedAt:         report.FinishedAt,
		Cancelled:          report.Cancelled,
		PartitionsComplete: report.CountByStatus(domain.PartitionComplete),
		PartitionsFailed:   report.CountByStatus(domain.PartitionFailed),
		RecordsWritten:     report.TotalWritten(),
		RecordsUnchanged:   report.TotalUnchanged(),
		Detail:             summarise(report),
	}
}

// summarise renders the one-line run summary used in logs and run history.
func summarise(report domain.FetchReport) string {
	return fmt.Sprintf("%d partitions: %d complete, %d partial, %d failed, %d skipped; %d written, %d unchanged",
		len(report.Partitions),
		report.CountByStatus(domain.PartitionComplete),
		report.CountByStatus(domain.PartitionPartial),
		report.CountByStatus(domain.PartitionFailed),
		report.CountByStatus(domain.PartitionSkipped),
		report.TotalWritten(),
		report.TotalUnchanged(),
	)
}
