// Package sqlite provides a SQLite-backed implementation of the state
// driven ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO, enabling easy cross-compilation. It implements multiple
// store interfaces through a single database connection:
//
//   - CheckpointStore: partition fetch progress, so interrupted runs resume
//   - RunStore: run history and the single-active-run rule
//   - SchedulerStore: scheduled task state and execution history
//
// State lives apart from the record files under the data root:
// deleting state.db loses resume positions and history but never any fetched
// data.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files.
//
// # Data Location
//
// The CLI places the database at {state_dir}/state.db, where state_dir is
// resolved from settings and defaults to {data_root}/_state. Constructing
// the store with an empty directory falls back to ~/.legisync/state.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
