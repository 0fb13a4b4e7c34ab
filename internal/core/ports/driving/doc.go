// Package driving defines interfaces that external actors (CLI, MCP) use
// to interact with core services. These are the "driving" ports in hexagonal
// architecture terminology - they drive the application.
//
// The ports cover the pipeline end to end: FetchOrchestrator runs fetch
// jobs, IndexBuilder maintains the derived indexes, RecordQuery serves
// stored records, StatusReporter summarises local state, and Scheduler
// runs the periodic background loop.
//
// Implementations of these interfaces live in internal/core/services.
package driving
