package driven

import (
	"context"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// Connector fetches record pages from an upstream API.
// Each source (congress, lda) implements this interface once; the shared
// rate limiter for the source is injected at construction so every caller
// draws from the same budget.
type Connector interface {
	// Source returns the upstream this connector fetches from.
	Source() domain.SourceID

	// Partitions enumerates the data slices to fetch, derived from the
	// configured congress numbers or filing years. The order is stable
	// across calls with unchanged settings.
	Partitions(ctx context.Context) ([]domain.Partition, error)

	// FetchPage executes one fetch task: acquire a rate limit slot,
	// request the page the task's cursor points at, decode the records,
	// and return the cursor for the next page.
	//
	// Retryable upstream failures are retried internally. The returned
	// error is always terminal for the partition: one of
	// domain.ErrInvalidRequest, domain.ErrRateExceeded,
	// domain.ErrUpstreamUnavailable, or a context error.
	FetchPage(ctx context.Context, task domain.FetchTask) (domain.Page, error)

	// Validate checks the connector is configured and can reach the
	// upstream. It makes one lightweight authenticated request and
	// reports the problem if the credentials or endpoint are unusable.
	Validate(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ConnectorRegistry looks up the connector for a source.
type ConnectorRegistry interface {
	// Get returns the connector for a source.
	// Returns domain.ErrSourceUnknown for unregistered sources.
	Get(source domain.SourceID) (Connector, error)

	// All returns every registered connector in deterministic source
	// order.
	All() []Connector
}
