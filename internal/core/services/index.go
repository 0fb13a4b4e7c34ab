package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
	"github.com/civica-labs/legisync-cli/internal/logger"
)

// Ensure IndexService implements the interface.
var _ driving.IndexBuilder = (*IndexService)(nil)

// IndexService builds and maintains the per-entity-type index files. It
// tolerates running concurrently with a fetch: a record written mid-scan
// is picked up by the next build.
type IndexService struct {
	records driven.RecordStore
	indexes driven.IndexStore
	runs    driven.RunStore
}

// NewIndexService creates an index builder.
func NewIndexService(records driven.RecordStore, indexes driven.IndexStore, runs driven.RunStore) *IndexService {
	return &IndexService{records: records, indexes: indexes, runs: runs}
}

// Rebuild scans every record file of the given entity types and writes
// fresh indexes. Empty entityTypes means all types.
func (s *IndexService) Rebuild(ctx context.Context, entityTypes []domain.EntityType) ([]domain.IndexReport, error) {
	return s.run(ctx, "rebuild", entityTypes, func(ctx context.Context, entityType domain.EntityType) (domain.IndexReport, error) {
		return s.rebuildOne(ctx, entityType)
	})
}

// Update folds records modified since the given instant into the existing
// indexes. A type with no usable index falls back to a full rebuild.
func (s *IndexService) Update(ctx context.Context, since time.Time, entityTypes []domain.EntityType) ([]domain.IndexReport, error) {
	return s.run(ctx, "update", entityTypes, func(ctx context.Context, entityType domain.EntityType) (domain.IndexReport, error) {
		return s.updateOne(ctx, since, entityType)
	})
}

// run wraps one index build in run history and walks the requested types.
// The first failing type aborts the build; reports for types already built
// are still returned.
func (s *IndexService) run(
	ctx context.Context,
	mode string,
	entityTypes []domain.EntityType,
	build func(context.Context, domain.EntityType) (domain.IndexReport, error),
) ([]domain.IndexReport, error) {
	if len(entityTypes) == 0 {
		entityTypes = domain.AllEntityTypes()
	}

	runID := uuid.NewString()
	if err := s.runs.BeginRun(ctx, domain.RunKindIndex, runID); err != nil {
		return nil, fmt.Errorf("begin index run: %w", err)
	}
	startedAt := time.Now().UTC()
	logger.Debug("Starting index %s %s: %d entity types", mode, runID, len(entityTypes))

	var reports []domain.IndexReport
	var buildErr error
	for _, entityType := range entityTypes {
		report, err := build(ctx, entityType)
		if err != nil {
			buildErr = fmt.Errorf("index %s: %w", entityType, err)
			break
		}
		reports = append(reports, report)
	}

	s.endRun(ctx, indexRunRecord(runID, startedAt, reports, buildErr))

	if buildErr != nil {
		return reports, buildErr
	}
	logger.Info("Index %s finished: %s", mode, summariseIndex(reports))
	return reports, nil
}

// rebuildOne scans every record of one type into a fresh index. The report
// diffs against the previous index when one was readable.
func (s *IndexService) rebuildOne(ctx context.Context, entityType domain.EntityType) (domain.IndexReport, error) {
	report := domain.IndexReport{EntityType: entityType, StartedAt: time.Now().UTC(), Rebuilt: true}

	priorByID := s.priorEntries(ctx, entityType)

	ids, err := s.records.List(ctx, entityType)
	if err != nil {
		return report, err
	}

	entries := make([]domain.IndexEntry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry, ok := s.loadEntry(ctx, entityType, id)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}

	if err := s.writeIndex(ctx, entityType, entries); err != nil {
		return report, err
	}

	report.FinishedAt = time.Now().UTC()
	report.Entries = len(entries)
	for _, entry := range entries {
		prior, existed := priorByID[entry.StableID]
		switch {
		case !existed:
			report.Added++
		case prior.Checksum != entry.Checksum:
			report.Updated++
		}
		delete(priorByID, entry.StableID)
	}
	report.Removed = len(priorByID)
	return report, nil
}

// updateOne merges records modified since the lower bound into the stored
// index and drops entries whose files have vanished. Unreadable record
// files keep their existing entries; a later build catches up with them.
func (s *IndexService) updateOne(ctx context.Context, since time.Time, entityType domain.EntityType) (domain.IndexReport, error) {
	existing, err := s.indexes.ReadIndex(ctx, entityType)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrIndexInconsistency) {
		logger.Warn("No usable %s index (%v), rebuilding", entityType, err)
		return s.rebuildOne(ctx, entityType)
	}
	if err != nil {
		return domain.IndexReport{EntityType: entityType}, err
	}

	report := domain.IndexReport{EntityType: entityType, StartedAt: time.Now().UTC()}

	byID := make(map[string]domain.IndexEntry, len(existing.Entries))
	for _, entry := range existing.Entries {
		byID[entry.StableID] = entry
	}

	changed, err := s.records.ListModifiedSince(ctx, entityType, since)
	if err != nil {
		return report, err
	}
	for _, id := range changed {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry, ok := s.loadEntry(ctx, entityType, id)
		if !ok {
			continue
		}
		prior, existed := byID[id]
		switch {
		case !existed:
			report.Added++
		case prior.Checksum != entry.Checksum:
			report.Updated++
		}
		byID[id] = entry
	}

	// A directory listing is cheap; it is re-reading every record file
	// that incremental updates exist to avoid.
	present, err := s.records.List(ctx, entityType)
	if err != nil {
		return report, err
	}
	presentSet := make(map[string]bool, len(present))
	for _, id := range present {
		presentSet[id] = true
	}
	for id := range byID {
		if !presentSet[id] {
			delete(byID, id)
			report.Removed++
		}
	}

	entries := make([]domain.IndexEntry, 0, len(byID))
	for _, entry := range byID {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StableID < entries[j].StableID })

	if err := s.writeIndex(ctx, entityType, entries); err != nil {
		return report, err
	}

	report.FinishedAt = time.Now().UTC()
	report.Entries = len(entries)
	return report, nil
}

// loadEntry reads one record and projects its index entry. Unreadable
// records are skipped with a warning, never indexed.
func (s *IndexService) loadEntry(ctx context.Context, entityType domain.EntityType, stableID string) (domain.IndexEntry, bool) {
	record, err := s.records.Get(ctx, entityType, stableID)
	if err != nil {
		logger.Warn("Skipping unreadable record %s/%s: %v", entityType, stableID, err)
		return domain.IndexEntry{}, false
	}
	return domain.IndexEntry{
		StableID:  record.StableID,
		Path:      domain.RecordPath(entityType, record.StableID),
		FetchedAt: record.FetchedAt,
		Checksum:  record.Checksum,
		Summary:   domain.ProjectSummary(entityType, record.Payload),
	}, true
}

// priorEntries loads the previous index for diff reporting. Any read
// failure yields an empty map; a rebuild must not depend on the artefact
// it exists to repair.
func (s *IndexService) priorEntries(ctx context.Context, entityType domain.EntityType) map[string]domain.IndexEntry {
	prior, err := s.indexes.ReadIndex(ctx, entityType)
	if err != nil {
		return map[string]domain.IndexEntry{}
	}
	byID := make(map[string]domain.IndexEntry, len(prior.Entries))
	for _, entry := range prior.Entries {
		byID[entry.StableID] = entry
	}
	return byID
}

func (s *IndexService) writeIndex(ctx context.Context, entityType domain.EntityType, entries []domain.IndexEntry) error {
	return s.indexes.WriteIndex(ctx, domain.Index{
		EntityType:  entityType,
		GeneratedAt: time.Now().UTC(),
		Entries:     entries,
	})
}

// endRun records index run history without letting a cancelled run context
// suppress the row.
func (s *IndexService) endRun(ctx context.Context, run domain.RunRecord) {
	ctx = context.WithoutCancel(ctx)
	if err := s.runs.EndRun(ctx, run); err != nil {
		logger.Warn("Record run %s: %v", run.RunID, err)
	}
	if err := s.runs.PruneRuns(ctx, runHistoryKeep); err != nil {
		logger.Warn("Prune run history: %v", err)
	}
}

// indexRunRecord flattens index reports into their run history row.
func indexRunRecord(runID string, startedAt time.Time, reports []domain.IndexReport, buildErr error) domain.RunRecord {
	run := domain.RunRecord{
		RunID:      runID,
		Kind:       domain.RunKindIndex,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Cancelled:  errors.Is(buildErr, context.Canceled) || errors.Is(buildErr, context.DeadlineExceeded),
		Detail:     summariseIndex(reports),
	}
	for _, report := range reports {
		run.PartitionsComplete++
		run.RecordsWritten += report.Added + report.Updated
	}
	if buildErr != nil {
		run.PartitionsFailed = 1
		run.Detail = fmt.Sprintf("%s; failed: %v", run.Detail, buildErr)
	}
	return run
}

// summariseIndex renders the one-line build summary for logs and run
// history.
func summariseIndex(reports []domain.IndexReport) string {
	if len(reports) == 0 {
		return "no indexes built"
	}
	entries, added, updated, removed, rebuilt := 0, 0, 0, 0, 0
	types := make([]string, 0, len(reports))
	for _, report := range reports {
		entries += report.Entries
		added += report.Added
		updated += report.Updated
		removed += report.Removed
		if report.Rebuilt {
			rebuilt++
		}
		types = append(types, string(report.EntityType))
	}
	return fmt.Sprintf("%s: %d entries (%d added, %d updated, %d removed, %d rebuilt)",
		strings.Join(types, ","), entries, added, updated, removed, rebuilt)
}
