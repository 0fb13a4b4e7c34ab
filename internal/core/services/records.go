package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
	"github.com/civica-labs/legisync-cli/internal/logger"
)

// Ensure RecordQueryService implements the interface.
var _ driving.RecordQuery = (*RecordQueryService)(nil)

// RecordQueryService reads stored records and indexes for display surfaces.
// Listings prefer the index and fall back to scanning record files when no
// usable index exists, so a missing index degrades to slow instead of
// broken.
type RecordQueryService struct {
	records driven.RecordStore
	indexes driven.IndexStore
}

// NewRecordQueryService creates a record query service.
func NewRecordQueryService(records driven.RecordStore, indexes driven.IndexStore) *RecordQueryService {
	return &RecordQueryService{records: records, indexes: indexes}
}

// Get retrieves one stored record.
func (s *RecordQueryService) Get(ctx context.Context, entityType domain.EntityType, stableID string) (domain.StoredRecord, error) {
	if !entityType.IsValid() {
		return domain.StoredRecord{}, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidRequest, entityType)
	}
	if !domain.ValidStableID(stableID) {
		return domain.StoredRecord{}, fmt.Errorf("%w: unusable stable ID %q", domain.ErrInvalidRequest, stableID)
	}
	return s.records.Get(ctx, entityType, stableID)
}

// List returns index entries for an entity type, filtered and bounded.
func (s *RecordQueryService) List(ctx context.Context, entityType domain.EntityType, filter string, limit int) ([]domain.IndexEntry, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidRequest, entityType)
	}

	entries, err := s.entries(ctx, entityType)
	if err != nil {
		return nil, err
	}

	filter = strings.ToLower(strings.TrimSpace(filter))
	matched := make([]domain.IndexEntry, 0, len(entries))
	for _, entry := range entries {
		if filter != "" && !matchesFilter(entry, filter) {
			continue
		}
		matched = append(matched, entry)
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}

// Counts returns the number of stored records per entity type.
func (s *RecordQueryService) Counts(ctx context.Context) (map[domain.EntityType]int, error) {
	counts := make(map[domain.EntityType]int, len(domain.AllEntityTypes()))
	for _, entityType := range domain.AllEntityTypes() {
		count, err := s.records.Count(ctx, entityType)
		if err != nil {
			return nil, fmt.Errorf("count %s records: %w", entityType, err)
		}
		counts[entityType] = count
	}
	return counts, nil
}

// entries loads the index for a type, scanning record files directly when
// the index is missing or undecodable.
func (s *RecordQueryService) entries(ctx context.Context, entityType domain.EntityType) ([]domain.IndexEntry, error) {
	index, err := s.indexes.ReadIndex(ctx, entityType)
	if err == nil {
		return index.Entries, nil
	}
	if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrIndexInconsistency) {
		return nil, err
	}

	logger.Debug("No usable %s index (%v), scanning record files", entityType, err)

	ids, err := s.records.List(ctx, entityType)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.IndexEntry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := s.records.Get(ctx, entityType, id)
		if err != nil {
			logger.Warn("Skipping unreadable record %s/%s: %v", entityType, id, err)
			continue
		}
		entries = append(entries, domain.IndexEntry{
			StableID:  record.StableID,
			Path:      domain.RecordPath(entityType, record.StableID),
			FetchedAt: record.FetchedAt,
			Checksum:  record.Checksum,
			Summary:   domain.ProjectSummary(entityType, record.Payload),
		})
	}
	return entries, nil
}

// matchesFilter reports whether the lowercased filter occurs in the entry's
// stable ID or any summary value.
func matchesFilter(entry domain.IndexEntry, filter string) bool {
	if strings.Contains(strings.ToLower(entry.StableID), filter) {
		return true
	}
	for _, value := range entry.Summary {
		if strings.Contains(strings.ToLower(fmt.Sprint(value)), filter) {
			return true
		}
	}
	return false
}
