package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
)

// Ensure SettingsStore implements the interface.
var _ driven.SettingsStore = (*SettingsStore)(nil)

const configFileName = "config.toml"

// SettingsStore is a TOML-backed implementation of driven.SettingsStore.
// The file is kept as a nested key tree so tables round-trip unchanged;
// Get and Set address values inside it by dot-notation key.
type SettingsStore struct {
	mu              sync.RWMutex
	filePath        string
	defaultDataRoot string
	data            map[string]any
}

// NewSettingsStore creates a TOML-based settings store.
// If configDir is empty, defaults to ~/.legisync/config.toml. The directory
// is created if missing; a file with TOML syntax errors fails construction.
func NewSettingsStore(configDir string) (*SettingsStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".legisync")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create config dir %s: %v", domain.ErrStorage, configDir, err)
	}

	s := &SettingsStore{
		filePath:        filepath.Join(configDir, configFileName),
		defaultDataRoot: filepath.Join(configDir, "data"),
		data:            make(map[string]any),
	}

	if err := s.reload(); err != nil {
		return nil, err
	}

	return s, nil
}

// Load reads the config file, fills unset fields with defaults, and
// validates the result. A missing file yields pure defaults. Credential
// resolution, including environment overrides, lives in the auth adapter.
func (s *SettingsStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings domain.Settings

	raw, err := os.ReadFile(s.filePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.data = make(map[string]any)
	case err != nil:
		return domain.Settings{}, fmt.Errorf("%w: read %s: %v", domain.ErrStorage, s.filePath, err)
	default:
		if err := toml.Unmarshal(raw, &settings); err != nil {
			return domain.Settings{}, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfiguration, s.filePath, err)
		}
		var tree map[string]any
		if err := toml.Unmarshal(raw, &tree); err != nil {
			return domain.Settings{}, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfiguration, s.filePath, err)
		}
		if tree == nil {
			tree = make(map[string]any)
		}
		s.data = tree
	}

	applyDefaults(&settings, s.defaultDataRoot)

	if err := settings.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// Save persists the full settings to the config file, replacing it.
func (s *SettingsStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("%w: encode settings: %v", domain.ErrStorage, err)
	}
	if err := os.WriteFile(s.filePath, raw, 0600); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorage, s.filePath, err)
	}

	// Keep the raw view in step with what was just written.
	var tree map[string]any
	if err := toml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("%w: reparse settings: %v", domain.ErrStorage, err)
	}
	s.data = tree
	return nil
}

// Get retrieves a raw configuration value by dot-notation key, such as
// "congress.page_size". Intermediate tables are returned as maps.
func (s *SettingsStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := any(s.data)
	for _, part := range strings.Split(key, ".") {
		table, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = table[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set stores a configuration value by dot-notation key and persists
// immediately. Intermediate tables are created as needed; setting a key
// beneath an existing non-table value is rejected.
func (s *SettingsStore) Set(key string, value any) error {
	parts := strings.Split(key, ".")
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("%w: invalid config key %q", domain.ErrInvalidRequest, key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.data
	for i, part := range parts[:len(parts)-1] {
		switch existing := table[part].(type) {
		case map[string]any:
			table = existing
		case nil:
			next := make(map[string]any)
			table[part] = next
			table = next
		default:
			return fmt.Errorf("%w: %s is not a table", domain.ErrInvalidRequest, strings.Join(parts[:i+1], "."))
		}
	}
	table[parts[len(parts)-1]] = value

	return s.save()
}

// Path returns the configuration file path.
func (s *SettingsStore) Path() string {
	return s.filePath
}

// save writes the raw tree to the TOML file (caller must hold lock).
func (s *SettingsStore) save() error {
	raw, err := toml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("%w: encode config: %v", domain.ErrStorage, err)
	}
	if err := os.WriteFile(s.filePath, raw, 0600); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorage, s.filePath, err)
	}
	return nil
}

// reload reads the raw tree from disk, tolerating a missing file.
func (s *SettingsStore) reload() error {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.data = make(map[string]any)
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", domain.ErrStorage, s.filePath, err)
	}

	var tree map[string]any
	if err := toml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfiguration, s.filePath, err)
	}
	if tree == nil {
		tree = make(map[string]any)
	}
	s.data = tree
	return nil
}

// applyDefaults fills zero fields with the built-in defaults. Lists are
// defaulted only when absent: an explicitly empty list is kept, so a source
// can be switched off by configuring no partitions for it.
func applyDefaults(s *domain.Settings, dataRoot string) {
	def := domain.DefaultSettings(dataRoot)

	if s.DataRoot == "" {
		s.DataRoot = def.DataRoot
	}
	if s.MaxWorkers == 0 {
		s.MaxWorkers = def.MaxWorkers
	}
	if s.HTTPTimeout == 0 {
		s.HTTPTimeout = def.HTTPTimeout
	}

	if s.Congress.BaseURL == "" {
		s.Congress.BaseURL = def.Congress.BaseURL
	}
	if s.Congress.PageSize == 0 {
		s.Congress.PageSize = def.Congress.PageSize
	}
	if s.Congress.RateLimit.MaxRequests == 0 {
		s.Congress.RateLimit.MaxRequests = def.Congress.RateLimit.MaxRequests
	}
	if s.Congress.RateLimit.Window == 0 {
		s.Congress.RateLimit.Window = def.Congress.RateLimit.Window
	}
	if s.Congress.Congresses == nil {
		s.Congress.Congresses = def.Congress.Congresses
	}

	if s.LDA.BaseURL == "" {
		s.LDA.BaseURL = def.LDA.BaseURL
	}
	if s.LDA.PageSize == 0 {
		s.LDA.PageSize = def.LDA.PageSize
	}
	if s.LDA.RateLimit.MaxRequests == 0 {
		s.LDA.RateLimit.MaxRequests = def.LDA.RateLimit.MaxRequests
	}
	if s.LDA.RateLimit.Window == 0 {
		s.LDA.RateLimit.Window = def.LDA.RateLimit.Window
	}
	if s.LDA.FilingYears == nil {
		s.LDA.FilingYears = def.LDA.FilingYears
	}

	if s.Scheduler.TaskConfigs == nil {
		s.Scheduler.TaskConfigs = def.Scheduler.TaskConfigs
	}
}
