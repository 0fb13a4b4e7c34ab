package mcp

import (
	"context"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
)

// mockRecordQuery is a mock implementation of driving.RecordQuery.
type mockRecordQuery struct {
	record  domain.StoredRecord
	entries []domain.IndexEntry
	counts  map[domain.EntityType]int
	err     error

	lastEntityType domain.EntityType
	lastStableID   string
	lastFilter     string
	lastLimit      int
}

func (m *mockRecordQuery) Get(_ context.Context, entityType domain.EntityType, stableID string) (domain.StoredRecord, error) {
	m.lastEntityType = entityType
	m.lastStableID = stableID
	return m.record, m.err
}

func (m *mockRecordQuery) List(_ context.Context, entityType domain.EntityType, filter string, limit int) ([]domain.IndexEntry, error) {
	m.lastEntityType = entityType
	m.lastFilter = filter
	m.lastLimit = limit
	return m.entries, m.err
}

func (m *mockRecordQuery) Counts(_ context.Context) (map[domain.EntityType]int, error) {
	return m.counts, m.err
}

// mockStatusReporter is a mock implementation of driving.StatusReporter.
type mockStatusReporter struct {
	report driving.StatusReport
	err    error
}

func (m *mockStatusReporter) Status(_ context.Context) (driving.StatusReport, error) {
	return m.report, m.err
}
