package ratelimit

import (
	"fmt"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// Registry holds one limiter per configured source, so connectors fetching
// from the same upstream share a budget.
type Registry struct {
	limiters map[domain.SourceID]*Limiter
}

// NewRegistry builds a limiter for every known source from settings.
func NewRegistry(settings domain.Settings) (*Registry, error) {
	limiters := make(map[domain.SourceID]*Limiter, len(domain.AllSources()))
	for _, source := range domain.AllSources() {
		cfg, err := settings.RateLimitFor(source)
		if err != nil {
			return nil, err
		}
		limiter, err := New(source, cfg)
		if err != nil {
			return nil, err
		}
		limiters[source] = limiter
	}
	return &Registry{limiters: limiters}, nil
}

// For returns the shared limiter for a source.
func (r *Registry) For(source domain.SourceID) (*Limiter, error) {
	limiter, ok := r.limiters[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrSourceUnknown, source)
	}
	return limiter, nil
}

// Stats returns a snapshot per source, in deterministic source order.
func (r *Registry) Stats() []Stats {
	out := make([]Stats, 0, len(r.limiters))
	for _, source := range domain.AllSources() {
		if limiter, ok := r.limiters[source]; ok {
			out = append(out, limiter.Stats())
		}
	}
	return out
}
