package driving

import (
	"context"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// RecordQuery reads stored records and indexes for display surfaces (the
// records command, MCP tools). It never fetches from upstreams.
type RecordQuery interface {
	// Get retrieves one stored record by entity type and stable ID.
	Get(ctx context.Context, entityType domain.EntityType, stableID string) (domain.StoredRecord, error)

	// List returns index entries for an entity type, optionally matching
	// a case-insensitive substring against stable IDs and summary
	// values. A zero limit means no bound.
	List(ctx context.Context, entityType domain.EntityType, filter string, limit int) ([]domain.IndexEntry, error)

	// Counts returns the number of stored records per entity type.
	Counts(ctx context.Context) (map[domain.EntityType]int, error)
}
