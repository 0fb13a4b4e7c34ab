// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Connector: Fetches record pages from an upstream API
//   - ConnectorRegistry: Looks up the connector for a source
//   - RecordStore: Per-record file persistence
//   - IndexStore: Per-entity-type index persistence
//   - CheckpointStore: Partition progress persistence
//   - RunStore: Run history and the single-run lock
//   - SettingsStore: Application configuration
//   - CredentialsProvider: API key resolution for sources
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - SchedulerStore: Scheduled task state. Only needed when the
//     background scheduler is enabled.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
