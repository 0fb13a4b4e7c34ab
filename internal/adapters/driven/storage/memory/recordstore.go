package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

// storedEntry pairs a record envelope with its in-memory modification time.
type storedEntry struct {
	record  domain.StoredRecord
	modTime time.Time
}

// RecordStore is an in-memory implementation of driven.RecordStore with the
// same put semantics as the filesystem store.
type RecordStore struct {
	mu      sync.RWMutex
	records map[domain.EntityType]map[string]storedEntry
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[domain.EntityType]map[string]storedEntry),
	}
}

// Put persists a record, returning what happened.
func (s *RecordStore) Put(_ context.Context, record domain.Record) (driven.PutOutcome, error) {
	if err := record.Validate(); err != nil {
		return "", err
	}
	checksum, err := record.Checksum()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.records[record.EntityType]
	if !ok {
		byID = make(map[string]storedEntry)
		s.records[record.EntityType] = byID
	}

	outcome := driven.PutCreated
	if existing, ok := byID[record.StableID]; ok {
		if existing.record.Checksum == checksum {
			return driven.PutUnchanged, nil
		}
		if !record.FetchedAt.After(existing.record.FetchedAt) {
			return driven.PutSupersededByNewer, nil
		}
		outcome = driven.PutUpdated
	}

	byID[record.StableID] = storedEntry{
		record: domain.StoredRecord{
			StableID:   record.StableID,
			EntityType: record.EntityType,
			Source:     record.Source,
			FetchedAt:  record.FetchedAt.UTC(),
			Checksum:   checksum,
			Payload:    record.Payload,
		},
		modTime: time.Now(),
	}
	return outcome, nil
}

// Get retrieves a stored record by entity type and stable ID.
func (s *RecordStore) Get(_ context.Context, entityType domain.EntityType, stableID string) (domain.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.records[entityType][stableID]
	if !ok {
		return domain.StoredRecord{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, entityType, stableID)
	}
	return entry.record, nil
}

// List returns the stable IDs of every stored record of a type, sorted.
func (s *RecordStore) List(_ context.Context, entityType domain.EntityType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records[entityType]))
	for id := range s.records[entityType] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListModifiedSince returns the stable IDs of records written at or after
// the given instant, sorted.
func (s *RecordStore) ListModifiedSince(_ context.Context, entityType domain.EntityType, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, entry := range s.records[entityType] {
		if !entry.modTime.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of stored records of a type.
func (s *RecordStore) Count(_ context.Context, entityType domain.EntityType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[entityType]), nil
}

// Touch backdates a record's modification time. Test helper for exercising
// incremental listings.
func (s *RecordStore) Touch(entityType domain.EntityType, stableID string, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.records[entityType][stableID]; ok {
		entry.modTime = modTime
		s.records[entityType][stableID] = entry
	}
}

// Ensure IndexStore implements the interface.
var _ driven.IndexStore = (*IndexStore)(nil)

// IndexStore is an in-memory implementation of driven.IndexStore.
type IndexStore struct {
	mu      sync.RWMutex
	indexes map[domain.EntityType]domain.Index
}

// NewIndexStore creates a new in-memory index store.
func NewIndexStore() *IndexStore {
	return &IndexStore{
		indexes: make(map[domain.EntityType]domain.Index),
	}
}

// WriteIndex replaces the index for the entity type it covers.
func (s *IndexStore) WriteIndex(_ context.Context, index domain.Index) error {
	if !index.EntityType.IsValid() {
		return fmt.Errorf("%w: index has unknown entity type %q", domain.ErrInvalidRequest, index.EntityType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[index.EntityType] = index
	return nil
}

// ReadIndex loads the stored index for an entity type.
func (s *IndexStore) ReadIndex(_ context.Context, entityType domain.EntityType) (domain.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.indexes[entityType]
	if !ok {
		return domain.Index{}, fmt.Errorf("%w: no %s index built yet", domain.ErrNotFound, entityType)
	}
	return index, nil
}

// IndexPath returns a nominal path for an entity type's index.
func (s *IndexStore) IndexPath(entityType domain.EntityType) string {
	return path.Join("memory:", entityType.String(), "_index.json")
}
