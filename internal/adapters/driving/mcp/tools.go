package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// GetRecordInput is the input schema for the get_record tool.
type GetRecordInput struct {
	EntityType string `json:"entity_type" jsonschema:"the record kind: bill, vote, member, or filing"`
	StableID   string `json:"stable_id" jsonschema:"the record's stable identifier, such as 119_hr_3076"`
}

// RecordOutput is the output schema for the get_record tool.
type RecordOutput struct {
	StableID   string         `json:"stable_id"`
	EntityType string         `json:"entity_type"`
	Source     string         `json:"source"`
	FetchedAt  string         `json:"fetched_at"`
	Checksum   string         `json:"checksum"`
	Payload    map[string]any `json:"payload"`
}

// ListRecordsInput is the input schema for the list_records tool.
type ListRecordsInput struct {
	EntityType string `json:"entity_type" jsonschema:"the record kind: bill, vote, member, or filing"`
	Filter     string `json:"filter,omitempty" jsonschema:"case-insensitive substring matched against IDs and summaries"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of entries to return (default 25)"`
}

// ListRecordsOutput is the output schema for the list_records tool.
type ListRecordsOutput struct {
	Entries []RecordEntryOutput `json:"entries"`
	Count   int                 `json:"count"`
}

// RecordEntryOutput represents a single index entry.
type RecordEntryOutput struct {
	StableID  string         `json:"stable_id"`
	FetchedAt string         `json:"fetched_at"`
	Summary   map[string]any `json:"summary,omitempty"`
}

// StatusInput is the input schema for the status tool.
type StatusInput struct{}

// StatusOutput is the output schema for the status tool.
type StatusOutput struct {
	DataRoot      string         `json:"data_root"`
	RecordCounts  map[string]int `json:"record_counts"`
	IndexedCounts map[string]int `json:"indexed_counts,omitempty"`
	LastFetch     string         `json:"last_fetch,omitempty"`
	LastIndex     string         `json:"last_index,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_record",
		Description: "Retrieve one stored legislative record with its full payload",
	}, s.handleGetRecord)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_records",
		Description: "List stored records of one entity type with summary fields",
	}, s.handleListRecords)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "status",
		Description: "Summarise locally stored data and recent fetch activity",
	}, s.handleStatus)
}

// handleGetRecord handles the get_record tool invocation.
func (s *Server) handleGetRecord(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetRecordInput,
) (*mcp.CallToolResult, RecordOutput, error) {
	record, err := s.ports.Records.Get(ctx, domain.EntityType(input.EntityType), input.StableID)
	if err != nil {
		return nil, RecordOutput{}, err
	}

	output := RecordOutput{
		StableID:   record.StableID,
		EntityType: record.EntityType.String(),
		Source:     record.Source.String(),
		FetchedAt:  record.FetchedAt.Format(time.RFC3339),
		Checksum:   record.Checksum,
		Payload:    record.Payload,
	}
	return nil, output, nil
}

// handleListRecords handles the list_records tool invocation.
func (s *Server) handleListRecords(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListRecordsInput,
) (*mcp.CallToolResult, ListRecordsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 25
	}

	entries, err := s.ports.Records.List(ctx, domain.EntityType(input.EntityType), input.Filter, limit)
	if err != nil {
		return nil, ListRecordsOutput{}, err
	}

	output := ListRecordsOutput{
		Entries: make([]RecordEntryOutput, len(entries)),
		Count:   len(entries),
	}
	for i := range entries {
		output.Entries[i] = RecordEntryOutput{
			StableID:  entries[i].StableID,
			FetchedAt: entries[i].FetchedAt.Format(time.RFC3339),
			Summary:   entries[i].Summary,
		}
	}
	return nil, output, nil
}

// handleStatus handles the status tool invocation.
func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	if s.ports.Status == nil {
		return nil, StatusOutput{}, errors.New("status service not available")
	}

	report, err := s.ports.Status.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	output := StatusOutput{
		DataRoot:      report.DataRoot,
		RecordCounts:  make(map[string]int, len(report.RecordCounts)),
		IndexedCounts: make(map[string]int, len(report.IndexedCounts)),
	}
	for entityType, count := range report.RecordCounts {
		output.RecordCounts[entityType.String()] = count
	}
	for entityType, count := range report.IndexedCounts {
		output.IndexedCounts[entityType.String()] = count
	}
	if report.LastFetch != nil {
		output.LastFetch = report.LastFetch.FinishedAt.Format(time.RFC3339)
	}
	if report.LastIndex != nil {
		output.LastIndex = report.LastIndex.FinishedAt.Format(time.RFC3339)
	}
	return nil, output, nil
}
