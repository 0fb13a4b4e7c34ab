package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
	"github.com/civica-labs/legisync-cli/internal/ratelimit"
)

// Ensure StatusService implements the interface.
var _ driving.StatusReporter = (*StatusService)(nil)

// StatusService assembles the local state overview for the status command
// and the MCP status tool.
type StatusService struct {
	settings    domain.Settings
	records     driven.RecordStore
	indexes     driven.IndexStore
	checkpoints driven.CheckpointStore
	runs        driven.RunStore
	limiters    *ratelimit.Registry
}

// NewStatusService creates a status reporter. The limiter registry may be
// nil, in which case the report omits limiter state.
func NewStatusService(
	settings domain.Settings,
	records driven.RecordStore,
	indexes driven.IndexStore,
	checkpoints driven.CheckpointStore,
	runs driven.RunStore,
	limiters *ratelimit.Registry,
) *StatusService {
	return &StatusService{
		settings:    settings,
		records:     records,
		indexes:     indexes,
		checkpoints: checkpoints,
		runs:        runs,
		limiters:    limiters,
	}
}

// Status gathers record counts, index coverage, run history, checkpoints,
// and limiter state into one report.
func (s *StatusService) Status(ctx context.Context) (driving.StatusReport, error) {
	report := driving.StatusReport{
		DataRoot:      s.settings.DataRoot,
		RecordCounts:  make(map[domain.EntityType]int),
		IndexedCounts: make(map[domain.EntityType]int),
	}

	for _, entityType := range domain.AllEntityTypes() {
		count, err := s.records.Count(ctx, entityType)
		if err != nil {
			return driving.StatusReport{}, fmt.Errorf("count %s records: %w", entityType, err)
		}
		report.RecordCounts[entityType] = count

		index, err := s.indexes.ReadIndex(ctx, entityType)
		switch {
		case err == nil:
			report.IndexedCounts[entityType] = len(index.Entries)
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrIndexInconsistency):
			// Absent from IndexedCounts marks the type as unindexed.
		default:
			return driving.StatusReport{}, fmt.Errorf("read %s index: %w", entityType, err)
		}
	}

	if last, err := s.runs.LastRun(ctx, domain.RunKindFetch); err == nil {
		report.LastFetch = &last
	} else if !errors.Is(err, domain.ErrNotFound) {
		return driving.StatusReport{}, fmt.Errorf("load last fetch run: %w", err)
	}
	if last, err := s.runs.LastRun(ctx, domain.RunKindIndex); err == nil {
		report.LastIndex = &last
	} else if !errors.Is(err, domain.ErrNotFound) {
		return driving.StatusReport{}, fmt.Errorf("load last index run: %w", err)
	}

	checkpoints, err := s.checkpoints.ListCheckpoints(ctx)
	if err != nil {
		return driving.StatusReport{}, fmt.Errorf("list checkpoints: %w", err)
	}
	report.Checkpoints = checkpoints

	if s.limiters != nil {
		for _, stats := range s.limiters.Stats() {
			report.Limiters = append(report.Limiters, driving.SourceLimiterStatus{
				Source:        stats.Source,
				InWindow:      stats.InWindow,
				MaxRequests:   stats.MaxRequests,
				Window:        stats.Window,
				CoolDownUntil: stats.CoolDownUntil,
			})
		}
	}

	return report, nil
}
