package driving

import (
	"context"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// FetchOptions narrows a fetch run. The zero value fetches everything the
// settings enumerate, from the first page of every partition.
type FetchOptions struct {
	// Sources restricts the run to the listed upstreams. Empty means
	// all configured sources.
	Sources []domain.SourceID

	// EntityTypes restricts the run to the listed entity types. Empty
	// means every type served by the selected sources.
	EntityTypes []domain.EntityType

	// Incremental narrows each partition's fetch to entities updated
	// since the partition's last completed walk.
	Incremental bool

	// Resume continues interrupted partitions from their checkpoints
	// instead of restarting their chains.
	Resume bool

	// MaxWorkers overrides the configured worker bound when positive.
	MaxWorkers int
}

// FetchOrchestrator runs fetch jobs across sources and partitions.
type FetchOrchestrator interface {
	// Fetch enumerates the selected partitions, walks each one's page
	// chain through a bounded worker pool, persists every record, and
	// returns a report covering all partitions. At most one fetch run
	// may be active at a time; a concurrent call fails with
	// domain.ErrFetchInProgress.
	//
	// Cancellation stops the run promptly: in-flight pages finish
	// persisting, remaining partitions are reported as skipped, and
	// the report carries Cancelled.
	Fetch(ctx context.Context, opts FetchOptions) (domain.FetchReport, error)

	// ValidateSources checks every selected connector can reach its
	// upstream with the configured credentials. Keys are sources, values
	// are nil or the reason the source is unusable.
	ValidateSources(ctx context.Context, sources []domain.SourceID) map[domain.SourceID]error
}
