// Package mcp provides an MCP (Model Context Protocol) server adapter.
// It lets AI assistants like Claude browse the locally persisted
// legislative records without network access to the upstream APIs.
package mcp

import "errors"

// ErrMissingRecordQuery is returned when the record query service is not provided.
var ErrMissingRecordQuery = errors.New("mcp: record query service is required")
