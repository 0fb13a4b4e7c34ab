package driving

import (
	"context"
	"time"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// IndexBuilder maintains the per-entity-type index files under the data
// root.
type IndexBuilder interface {
	// Rebuild scans every record file of the given entity types and
	// writes fresh indexes. Empty entityTypes means all types. Record
	// files that cannot be decoded are skipped and logged, never
	// indexed.
	Rebuild(ctx context.Context, entityTypes []domain.EntityType) ([]domain.IndexReport, error)

	// Update folds records whose files changed since the given instant
	// into the existing indexes. Entries whose record files have
	// vanished are dropped. An entity type with no existing index falls
	// back to a full rebuild for that type.
	Update(ctx context.Context, since time.Time, entityTypes []domain.EntityType) ([]domain.IndexReport, error)
}
