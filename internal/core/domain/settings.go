package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Default endpoints and tuning values. Overridable through the config file;
// the defaults match the published behaviour of the upstream APIs.
const (
	DefaultCongressBaseURL = "https://api.congress.gov/v3"
	DefaultLDABaseURL      = "https://lda.senate.gov/api/v1"

	DefaultMaxWorkers  = 4
	DefaultHTTPTimeout = Duration(30 * time.Second)

	DefaultCongressPageSize = 250
	DefaultLDAPageSize      = 25

	// MaxPageSize bounds configured page sizes for all sources.
	MaxPageSize = 250
)

// RateLimitSettings bounds request volume against one source. The limit is
// enforced as a sliding window: at most MaxRequests requests may start
// within any interval of length Window.
type RateLimitSettings struct {
	// MaxRequests is the request budget per window.
	MaxRequests int `toml:"max_requests" json:"max_requests"`

	// Window is the length of the sliding window.
	Window Duration `toml:"window" json:"window"`
}

// Validate checks the limit is enforceable.
func (r RateLimitSettings) Validate() error {
	if r.MaxRequests <= 0 {
		return fmt.Errorf("%w: rate limit max_requests must be positive, got %d", ErrInvalidConfiguration, r.MaxRequests)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: rate limit window must be positive, got %s", ErrInvalidConfiguration, r.Window)
	}
	return nil
}

// CongressSettings configures the congressional API connector.
type CongressSettings struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string `toml:"base_url" json:"base_url"`

	// APIKey authenticates requests. Loaded from the config file or the
	// LEGISYNC_CONGRESS_API_KEY environment variable.
	APIKey string `toml:"api_key" json:"api_key"`

	// PageSize is the number of entities requested per page.
	PageSize int `toml:"page_size" json:"page_size"`

	// RateLimit bounds request volume against this API.
	RateLimit RateLimitSettings `toml:"rate_limit" json:"rate_limit"`

	// Congresses lists the congress numbers to fetch, one partition
	// each for bills and votes.
	Congresses []int `toml:"congresses" json:"congresses"`
}

// LDASettings configures the lobbying disclosure API connector.
type LDASettings struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string `toml:"base_url" json:"base_url"`

	// APIKey authenticates requests. Loaded from the config file or the
	// LEGISYNC_LDA_API_KEY environment variable.
	APIKey string `toml:"api_key" json:"api_key"`

	// PageSize is the number of filings requested per page.
	PageSize int `toml:"page_size" json:"page_size"`

	// RateLimit bounds request volume against this API.
	RateLimit RateLimitSettings `toml:"rate_limit" json:"rate_limit"`

	// FilingYears lists the filing years to fetch, one partition each.
	FilingYears []int `toml:"filing_years" json:"filing_years"`
}

// Settings is the full application configuration, loaded from the TOML
// config file with environment overrides applied.
type Settings struct {
	// DataRoot is the directory records and indexes are written under.
	DataRoot string `toml:"data_root" json:"data_root"`

	// StateDir holds run state: checkpoints, run history, and the
	// scheduler database. Defaults to DataRoot/_state when empty.
	StateDir string `toml:"state_dir" json:"state_dir"`

	// MaxWorkers bounds concurrent partition walks during a fetch run.
	MaxWorkers int `toml:"max_workers" json:"max_workers"`

	// HTTPTimeout bounds each individual upstream request.
	HTTPTimeout Duration `toml:"http_timeout" json:"http_timeout"`

	// Congress configures the congressional API connector.
	Congress CongressSettings `toml:"congress" json:"congress"`

	// LDA configures the lobbying disclosure API connector.
	LDA LDASettings `toml:"lda" json:"lda"`

	// Scheduler configures periodic background runs.
	Scheduler SchedulerConfig `toml:"scheduler" json:"scheduler"`
}

// DefaultSettings returns the configuration used when no config file exists.
// API keys have no default and must be supplied before fetching.
func DefaultSettings(dataRoot string) Settings {
	return Settings{
		DataRoot:    dataRoot,
		MaxWorkers:  DefaultMaxWorkers,
		HTTPTimeout: DefaultHTTPTimeout,
		Congress: CongressSettings{
			BaseURL:  DefaultCongressBaseURL,
			PageSize: DefaultCongressPageSize,
			RateLimit: RateLimitSettings{
				MaxRequests: 5000,
				Window:      Duration(time.Hour),
			},
			Congresses: []int{119},
		},
		LDA: LDASettings{
			BaseURL:  DefaultLDABaseURL,
			PageSize: DefaultLDAPageSize,
			RateLimit: RateLimitSettings{
				MaxRequests: 120,
				Window:      Duration(time.Minute),
			},
			FilingYears: []int{2025, 2026},
		},
		Scheduler: DefaultSchedulerConfig(),
	}
}

// ResolvedStateDir returns StateDir, defaulting to DataRoot/_state.
func (s Settings) ResolvedStateDir() string {
	if s.StateDir != "" {
		return s.StateDir
	}
	return filepath.Join(s.DataRoot, "_state")
}

// RateLimitFor returns the configured limit for a source.
func (s Settings) RateLimitFor(source SourceID) (RateLimitSettings, error) {
	switch source {
	case SourceCongress:
		return s.Congress.RateLimit, nil
	case SourceLDA:
		return s.LDA.RateLimit, nil
	default:
		return RateLimitSettings{}, fmt.Errorf("%w: %q", ErrSourceUnknown, source)
	}
}

// Validate checks every field that can be wrong in a way that would only
// surface mid-run. Violations are reported together so a bad config file is
// fixed in one pass.
func (s Settings) Validate() error {
	var errs []error

	if s.DataRoot == "" {
		errs = append(errs, fmt.Errorf("%w: data_root must be set", ErrInvalidConfiguration))
	}
	if s.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("%w: max_workers must be at least 1, got %d", ErrInvalidConfiguration, s.MaxWorkers))
	}
	if s.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: http_timeout must be positive, got %s", ErrInvalidConfiguration, s.HTTPTimeout))
	}

	if s.Congress.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: congress.base_url must be set", ErrInvalidConfiguration))
	}
	if s.Congress.PageSize < 1 || s.Congress.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("%w: congress.page_size must be between 1 and %d, got %d", ErrInvalidConfiguration, MaxPageSize, s.Congress.PageSize))
	}
	if err := s.Congress.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("congress: %w", err))
	}
	for _, c := range s.Congress.Congresses {
		if c < 1 {
			errs = append(errs, fmt.Errorf("%w: congress number must be positive, got %d", ErrInvalidConfiguration, c))
		}
	}

	if s.LDA.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: lda.base_url must be set", ErrInvalidConfiguration))
	}
	if s.LDA.PageSize < 1 || s.LDA.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("%w: lda.page_size must be between 1 and %d, got %d", ErrInvalidConfiguration, MaxPageSize, s.LDA.PageSize))
	}
	if err := s.LDA.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lda: %w", err))
	}
	for _, y := range s.LDA.FilingYears {
		if y < 1999 {
			errs = append(errs, fmt.Errorf("%w: filing year must be 1999 or later, got %d", ErrInvalidConfiguration, y))
		}
	}

	if err := s.Scheduler.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
