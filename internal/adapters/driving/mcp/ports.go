package mcp

import (
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Records reads stored records and indexes.
	Records driving.RecordQuery

	// Status assembles the local state overview.
	Status driving.StatusReporter
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Records == nil {
		return ErrMissingRecordQuery
	}
	// Status is optional; the status tool reports it as unavailable.
	return nil
}
