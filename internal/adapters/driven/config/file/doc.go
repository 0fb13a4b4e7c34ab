// Package file provides a file-based implementation of the settings driven
// port. Configuration is stored as TOML in the legisync config directory.
//
// Adapters:
//   - SettingsStore: TOML-based configuration storage with typed loading,
//     defaulting, and environment overrides for credentials
package file
