package driven

import (
	"context"
	"time"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// PutOutcome describes what a RecordStore.Put actually did.
type PutOutcome string

const (
	// PutCreated means the record file did not exist and was written.
	PutCreated PutOutcome = "created"
	// PutUpdated means an existing file was replaced with newer content.
	PutUpdated PutOutcome = "updated"
	// PutUnchanged means the payload checksum matched the stored file,
	// so nothing was written.
	PutUnchanged PutOutcome = "unchanged"
	// PutSupersededByNewer means the stored file carries a later
	// FetchedAt, so the incoming record was discarded.
	PutSupersededByNewer PutOutcome = "superseded"
)

// RecordStore persists fetched records as one file per entity.
//
// Implementations must guarantee that a reader never observes a partially
// written file, that concurrent Puts for the same stable ID serialise, and
// that when Puts race the one with the latest FetchedAt wins.
type RecordStore interface {
	// Put persists a record, returning what happened. A record whose
	// checksum matches the stored file returns PutUnchanged without
	// touching the file, keeping re-fetch runs cheap and preserving
	// file modification times.
	Put(ctx context.Context, record domain.Record) (PutOutcome, error)

	// Get retrieves a stored record by entity type and stable ID.
	// Returns domain.ErrNotFound if no file exists.
	Get(ctx context.Context, entityType domain.EntityType, stableID string) (domain.StoredRecord, error)

	// List returns the stable IDs of every stored record of a type,
	// sorted ascending. A missing entity directory yields an empty
	// slice, not an error.
	List(ctx context.Context, entityType domain.EntityType) ([]string, error)

	// ListModifiedSince returns the stable IDs of records whose files
	// changed at or after the given instant, sorted ascending. Used for
	// incremental index updates.
	ListModifiedSince(ctx context.Context, entityType domain.EntityType, since time.Time) ([]string, error)

	// Count returns the number of stored records of a type.
	Count(ctx context.Context, entityType domain.EntityType) (int, error)
}

// IndexStore persists one index file per entity type alongside the records.
type IndexStore interface {
	// WriteIndex durably replaces the index for the entity type the
	// index covers. Readers never observe a partial index.
	WriteIndex(ctx context.Context, index domain.Index) error

	// ReadIndex loads the stored index for an entity type.
	// Returns domain.ErrNotFound if no index has been built yet and
	// domain.ErrIndexInconsistency if the file exists but cannot be
	// decoded.
	ReadIndex(ctx context.Context, entityType domain.EntityType) (domain.Index, error)

	// IndexPath returns the absolute path of the index file for an
	// entity type, whether or not it exists yet.
	IndexPath(entityType domain.EntityType) string
}
