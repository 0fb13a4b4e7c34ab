package connectors

import (
	"fmt"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
)

// Registry maps sources to their connectors.
type Registry struct {
	connectors map[domain.SourceID]driven.Connector
}

// Interface guard.
var _ driven.ConnectorRegistry = (*Registry)(nil)

// NewRegistry builds a registry from the given connectors. Registering two
// connectors for the same source is a wiring bug and fails loudly.
func NewRegistry(conns ...driven.Connector) (*Registry, error) {
	registry := &Registry{
		connectors: make(map[domain.SourceID]driven.Connector, len(conns)),
	}
	for _, conn := range conns {
		source := conn.Source()
		if _, exists := registry.connectors[source]; exists {
			return nil, fmt.Errorf("%w: connector for %s registered twice", domain.ErrInvalidConfiguration, source)
		}
		registry.connectors[source] = conn
	}
	return registry, nil
}

// Get returns the connector for a source.
func (r *Registry) Get(source domain.SourceID) (driven.Connector, error) {
	conn, ok := r.connectors[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrSourceUnknown, source)
	}
	return conn, nil
}

// All returns every registered connector in deterministic source order.
func (r *Registry) All() []driven.Connector {
	out := make([]driven.Connector, 0, len(r.connectors))
	for _, source := range domain.AllSources() {
		if conn, ok := r.connectors[source]; ok {
			out = append(out, conn)
		}
	}
	return out
}
