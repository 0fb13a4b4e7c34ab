package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for legisync resources.
	uriScheme = "legisync://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for record counts per entity type.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "records",
		Name:        "records",
		Description: "Count of locally stored records per entity type",
		MIMEType:    "application/json",
	}, s.handleCountsResource)

	// Template for per-type record listings.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "records/{entityType}",
		Name:        "record-listing",
		Description: "Index entries for one entity type",
		MIMEType:    "application/json",
	}, s.handleListingResource)

	// Template for full record payloads.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "records/{entityType}/{stableId}",
		Name:        "record",
		Description: "Full stored payload of one record",
		MIMEType:    "application/json",
	}, s.handleRecordResource)
}

// handleCountsResource returns the stored record count per entity type.
func (s *Server) handleCountsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	counts, err := s.ports.Records.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	byName := make(map[string]int, len(counts))
	for entityType, count := range counts {
		byName[entityType.String()] = count
	}

	data, err := json.MarshalIndent(byName, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling counts: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleListingResource returns the index entries for one entity type.
func (s *Server) handleListingResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	entityType, stableID := splitRecordURI(req.Params.URI)
	if entityType == "" || stableID != "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	entries, err := s.ports.Records.List(ctx, domain.EntityType(entityType), "", 0)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	infos := make([]RecordEntryOutput, len(entries))
	for i := range entries {
		infos[i] = RecordEntryOutput{
			StableID:  entries[i].StableID,
			FetchedAt: entries[i].FetchedAt.Format(time.RFC3339),
			Summary:   entries[i].Summary,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling records: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleRecordResource returns one record's full stored payload.
func (s *Server) handleRecordResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	entityType, stableID := splitRecordURI(req.Params.URI)
	if entityType == "" || stableID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	record, err := s.ports.Records.Get(ctx, domain.EntityType(entityType), stableID)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling record: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// splitRecordURI splits a URI like legisync://records/{entityType}/{stableId}
// into its parts. The stable ID is empty for type-level listing URIs.
func splitRecordURI(uri string) (string, string) {
	const prefix = uriScheme + "records/"

	if !strings.HasPrefix(uri, prefix) {
		return "", ""
	}

	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
