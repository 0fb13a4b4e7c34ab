package driven

import "github.com/civica-labs/legisync-cli/internal/core/domain"

// SettingsStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and type conversion.
type SettingsStore interface {
	// Load reads configuration from storage and returns the typed
	// settings. Missing files yield defaults, not an error; validation
	// failures are reported as domain.ErrInvalidConfiguration.
	// Environment overrides are the CredentialsProvider's concern, not
	// the store's.
	Load() (domain.Settings, error)

	// Save persists the full settings to storage.
	Save(settings domain.Settings) error

	// Get retrieves a raw configuration value by dot-notation key,
	// such as "congress.page_size". Returns the value and whether the
	// key exists.
	Get(key string) (any, bool)

	// Set stores a configuration value by dot-notation key and persists
	// it immediately. The value must survive a round trip through
	// Load's validation.
	Set(key string, value any) error

	// Path returns the configuration file path.
	Path() string
}
