package driving

import (
	"context"
	"time"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// SourceLimiterStatus is a display snapshot of one source's rate budget.
type SourceLimiterStatus struct {
	// Source identifies the upstream.
	Source domain.SourceID

	// InWindow is how many requests started within the current window.
	InWindow int

	// MaxRequests is the budget per window.
	MaxRequests int

	// Window is the window length.
	Window time.Duration

	// CoolDownUntil is the active Retry-After deadline, zero when none.
	CoolDownUntil time.Time
}

// StatusReport aggregates everything the status command shows.
type StatusReport struct {
	// DataRoot is the directory records live under.
	DataRoot string

	// RecordCounts maps entity types to stored record counts.
	RecordCounts map[domain.EntityType]int

	// IndexedCounts maps entity types to index entry counts, absent
	// when no index exists for the type.
	IndexedCounts map[domain.EntityType]int

	// LastFetch is the most recent finished fetch run, nil when none.
	LastFetch *domain.RunRecord

	// LastIndex is the most recent finished index run, nil when none.
	LastIndex *domain.RunRecord

	// Checkpoints lists partitions with stored progress.
	Checkpoints []domain.Checkpoint

	// Limiters snapshots each source's rate budget.
	Limiters []SourceLimiterStatus
}

// StatusReporter assembles the local state overview.
type StatusReporter interface {
	// Status gathers record counts, index coverage, run history, and
	// limiter state into one report.
	Status(ctx context.Context) (StatusReport, error)
}
