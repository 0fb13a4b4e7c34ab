package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/logger"
)

// Ensure Store implements the driven ports.
var (
	_ driven.RecordStore = (*Store)(nil)
	_ driven.IndexStore  = (*Store)(nil)
)

const (
	// indexFileName is the per-entity-type index file, named with a leading
	// underscore so it sorts ahead of records and can never collide with a
	// stable ID.
	indexFileName = "_index.json"

	// tempPrefix marks in-progress writes. Files carrying it are invisible
	// to readers and swept on store open.
	tempPrefix = ".tmp-"

	recordSuffix = ".json"

	dirPerm = 0o755

	shardCount = 32
)

// Store persists records and indexes under a data root directory.
type Store struct {
	root    string
	shards  [shardCount]sync.Mutex
	indexMu sync.Mutex
}

// New opens a store rooted at dataRoot, creating the directory if needed and
// sweeping any temporary files left behind by an interrupted run.
func New(dataRoot string) (*Store, error) {
	if dataRoot == "" {
		return nil, fmt.Errorf("%w: data root is required", domain.ErrInvalidConfiguration)
	}
	if err := os.MkdirAll(dataRoot, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: creating data root: %v", domain.ErrStorage, err)
	}

	s := &Store{root: dataRoot}
	s.sweepTempFiles()
	return s, nil
}

// Root returns the data root directory.
func (s *Store) Root() string {
	return s.root
}

// Put persists a record, returning what the write actually did.
func (s *Store) Put(ctx context.Context, record domain.Record) (driven.PutOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := record.Validate(); err != nil {
		return "", err
	}
	checksum, err := record.Checksum()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	mu := s.shard(record.StableID)
	mu.Lock()
	defer mu.Unlock()

	path := s.recordPath(record.EntityType, record.StableID)
	existing, readErr := readStoredRecord(path)
	switch {
	case readErr == nil:
		if existing.Checksum == checksum {
			return driven.PutUnchanged, nil
		}
		if !record.FetchedAt.After(existing.FetchedAt) {
			return driven.PutSupersededByNewer, nil
		}
	case errors.Is(readErr, fs.ErrNotExist):
		// First write for this entity.
	default:
		// An unreadable file blocks nothing: the atomic rewrite below
		// replaces it wholesale.
		logger.Warn("fsstore: replacing unreadable record %s/%s: %v", record.EntityType, record.StableID, readErr)
	}

	envelope := domain.StoredRecord{
		StableID:   record.StableID,
		EntityType: record.EntityType,
		Source:     record.Source,
		FetchedAt:  record.FetchedAt.UTC(),
		Checksum:   checksum,
		Payload:    record.Payload,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encoding record %s/%s: %v", domain.ErrStorage, record.EntityType, record.StableID, err)
	}

	if err := s.writeFileAtomic(path, append(data, '\n')); err != nil {
		return "", err
	}
	if readErr == nil || !errors.Is(readErr, fs.ErrNotExist) {
		return driven.PutUpdated, nil
	}
	return driven.PutCreated, nil
}

// Get retrieves a stored record by entity type and stable ID.
func (s *Store) Get(ctx context.Context, entityType domain.EntityType, stableID string) (domain.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredRecord{}, err
	}
	if !entityType.IsValid() {
		return domain.StoredRecord{}, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidRequest, entityType)
	}
	if !domain.ValidStableID(stableID) {
		return domain.StoredRecord{}, fmt.Errorf("%w: unusable stable ID %q", domain.ErrInvalidRequest, stableID)
	}

	stored, err := readStoredRecord(s.recordPath(entityType, stableID))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.StoredRecord{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, entityType, stableID)
	}
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("%w: reading record %s/%s: %v", domain.ErrStorage, entityType, stableID, err)
	}
	return stored, nil
}

// List returns the stable IDs of every stored record of a type, sorted.
func (s *Store) List(ctx context.Context, entityType domain.EntityType) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.readEntityDir(entityType)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if id, ok := recordID(entry); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListModifiedSince returns the stable IDs of records whose files changed at
// or after the given instant, sorted.
func (s *Store) ListModifiedSince(ctx context.Context, entityType domain.EntityType, since time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.readEntityDir(entityType)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		id, ok := recordID(entry)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Raced with a concurrent rewrite; the record still exists.
			continue
		}
		if !info.ModTime().Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of stored records of a type.
func (s *Store) Count(ctx context.Context, entityType domain.EntityType) (int, error) {
	ids, err := s.List(ctx, entityType)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// WriteIndex durably replaces the index file for the entity type it covers.
func (s *Store) WriteIndex(ctx context.Context, index domain.Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !index.EntityType.IsValid() {
		return fmt.Errorf("%w: index has unknown entity type %q", domain.ErrInvalidRequest, index.EntityType)
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s index: %v", domain.ErrStorage, index.EntityType, err)
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.writeFileAtomic(s.IndexPath(index.EntityType), append(data, '\n'))
}

// ReadIndex loads the stored index for an entity type.
func (s *Store) ReadIndex(ctx context.Context, entityType domain.EntityType) (domain.Index, error) {
	if err := ctx.Err(); err != nil {
		return domain.Index{}, err
	}
	if !entityType.IsValid() {
		return domain.Index{}, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidRequest, entityType)
	}

	data, err := os.ReadFile(s.IndexPath(entityType))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Index{}, fmt.Errorf("%w: no %s index built yet", domain.ErrNotFound, entityType)
	}
	if err != nil {
		return domain.Index{}, fmt.Errorf("%w: reading %s index: %v", domain.ErrStorage, entityType, err)
	}

	var index domain.Index
	if err := json.Unmarshal(data, &index); err != nil {
		return domain.Index{}, fmt.Errorf("%w: %s index is not valid JSON: %v", domain.ErrIndexInconsistency, entityType, err)
	}
	if index.EntityType != entityType {
		return domain.Index{}, fmt.Errorf("%w: %s index claims entity type %q", domain.ErrIndexInconsistency, entityType, index.EntityType)
	}
	return index, nil
}

// IndexPath returns the absolute path of the index file for an entity type.
func (s *Store) IndexPath(entityType domain.EntityType) string {
	return filepath.Join(s.root, entityType.String(), indexFileName)
}

// recordPath returns the file path for one record.
func (s *Store) recordPath(entityType domain.EntityType, stableID string) string {
	return filepath.Join(s.root, entityType.String(), stableID+recordSuffix)
}

// shard returns the mutex serialising writers for a stable ID.
func (s *Store) shard(stableID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(stableID))
	return &s.shards[h.Sum32()%shardCount]
}

// readEntityDir lists an entity type's directory. Absence of the directory
// means no records have been stored yet, which is not an error.
func (s *Store) readEntityDir(entityType domain.EntityType) ([]os.DirEntry, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidRequest, entityType)
	}
	entries, err := os.ReadDir(filepath.Join(s.root, entityType.String()))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s records: %v", domain.ErrStorage, entityType, err)
	}
	return entries, nil
}

// writeFileAtomic writes data to path via a fsynced temporary file in the
// same directory followed by a rename.
func (s *Store) writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: creating %s: %v", domain.ErrStorage, dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file in %s: %v", domain.ErrStorage, dir, err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %v", domain.ErrStorage, path, err)
	}
	return nil
}

// sweepTempFiles removes temporary files orphaned by an interrupted run.
func (s *Store) sweepTempFiles() {
	for _, entityType := range domain.AllEntityTypes() {
		dir := filepath.Join(s.root, entityType.String())
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempPrefix) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				logger.Warn("fsstore: could not sweep %s: %v", entry.Name(), err)
				continue
			}
			logger.Debug("fsstore: swept orphaned temporary file %s/%s", entityType, entry.Name())
		}
	}
}

// recordID extracts the stable ID from a directory entry, reporting whether
// the entry is a record file at all.
func recordID(entry os.DirEntry) (string, bool) {
	name := entry.Name()
	if entry.IsDir() || name == indexFileName || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, recordSuffix) {
		return "", false
	}
	return strings.TrimSuffix(name, recordSuffix), true
}

// readStoredRecord loads and decodes one record file.
func readStoredRecord(path string) (domain.StoredRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.StoredRecord{}, err
	}
	var stored domain.StoredRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.StoredRecord{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return stored, nil
}
