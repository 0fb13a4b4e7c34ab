// Package cli implements the command-line interface. Commands are
// package-level cobra commands registered in init functions; the services
// they call are package-level variables wired once in Execute, which lets
// tests swap in mocks.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/civica-labs/legisync-cli/internal/adapters/driven/auth"
	"github.com/civica-labs/legisync-cli/internal/adapters/driven/config/file"
	"github.com/civica-labs/legisync-cli/internal/adapters/driven/storage/fsstore"
	"github.com/civica-labs/legisync-cli/internal/adapters/driven/storage/sqlite"
	"github.com/civica-labs/legisync-cli/internal/connectors"
	"github.com/civica-labs/legisync-cli/internal/connectors/congress"
	"github.com/civica-labs/legisync-cli/internal/connectors/lda"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
	"github.com/civica-labs/legisync-cli/internal/core/services"
	"github.com/civica-labs/legisync-cli/internal/logger"
	"github.com/civica-labs/legisync-cli/internal/ratelimit"
)

// envConfigDir overrides the configuration directory, defaulting to
// ~/.legisync.
const envConfigDir = "LEGISYNC_CONFIG_DIR"

// version is stamped by the release build; the default marks local builds.
var version = "0.1.0-dev"

// Services behind the commands. Execute wires them; tests replace them.
var (
	settings      domain.Settings
	settingsStore driven.SettingsStore
	credentials   driven.CredentialsProvider

	dataStore       *fsstore.Store
	stateStore      *sqlite.Store
	limiterRegistry *ratelimit.Registry

	fetchService     driving.FetchOrchestrator
	indexService     driving.IndexBuilder
	recordQuery      driving.RecordQuery
	statusService    driving.StatusReporter
	schedulerService driving.Scheduler
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "legisync",
	Short: "Fetch and persist legislative data locally",
	Long: `legisync fetches bills, votes, members, and lobbying filings from the
congressional and lobbying disclosure APIs and persists them as JSON files
under a local data root, with per-entity-type indexes for fast lookup.

Typical flow:
  legisync sources set-key congress   # store an API key
  legisync fetch                      # walk every configured partition
  legisync status                     # inspect what landed`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute wires the services and runs the root command.
func Execute() error {
	if err := initServices(); err != nil {
		return err
	}
	defer closeServices()

	return rootCmd.Execute()
}

// initServices builds the adapter and service graph from configuration.
// A broken configuration or data directory disables the commands that need
// it rather than failing outright, so `legisync config` stays usable to
// repair the file.
func initServices() error {
	store, err := file.NewSettingsStore(os.Getenv(envConfigDir))
	if err != nil {
		return fmt.Errorf("opening configuration: %w", err)
	}
	settingsStore = store

	loaded, err := store.Load()
	if err != nil {
		logger.Warn("Configuration invalid, run `legisync config` to repair it: %v", err)
		return nil
	}

	resolver := auth.NewResolver(loaded)
	credentials = resolver
	// Connectors read keys from settings; stamping the resolved values
	// keeps environment-over-file precedence in one place.
	if cred, err := resolver.Credential(domain.SourceCongress); err == nil {
		loaded.Congress.APIKey = cred.APIKey
	}
	if cred, err := resolver.Credential(domain.SourceLDA); err == nil {
		loaded.LDA.APIKey = cred.APIKey
	}
	settings = loaded

	dataStore, err = fsstore.New(loaded.DataRoot)
	if err != nil {
		logger.Warn("Data root unusable, fetch and query commands disabled: %v", err)
		return nil
	}

	stateStore, err = sqlite.NewStore(loaded.ResolvedStateDir())
	if err != nil {
		logger.Warn("State database unusable, fetch and query commands disabled: %v", err)
		return nil
	}

	limiterRegistry, err = ratelimit.NewRegistry(loaded)
	if err != nil {
		logger.Warn("Rate limiter configuration invalid: %v", err)
		return nil
	}
	congressLimiter, err := limiterRegistry.For(domain.SourceCongress)
	if err != nil {
		return err
	}
	ldaLimiter, err := limiterRegistry.For(domain.SourceLDA)
	if err != nil {
		return err
	}

	timeout := time.Duration(loaded.HTTPTimeout)
	registry, err := connectors.NewRegistry(
		congress.New(loaded.Congress, timeout, congressLimiter),
		lda.New(loaded.LDA, timeout, ldaLimiter),
	)
	if err != nil {
		return err
	}

	checkpoints := stateStore.CheckpointStore()
	runs := stateStore.RunStore()

	fetchService = services.NewFetchService(loaded, registry, dataStore, checkpoints, runs)
	indexService = services.NewIndexService(dataStore, dataStore, runs)
	recordQuery = services.NewRecordQueryService(dataStore, dataStore)
	statusService = services.NewStatusService(loaded, dataStore, dataStore, checkpoints, runs, limiterRegistry)
	schedulerService = services.NewScheduler(loaded.Scheduler, stateStore.SchedulerStore(), fetchService, indexService)

	return nil
}

func closeServices() {
	if stateStore != nil {
		if err := stateStore.Close(); err != nil {
			logger.Warn("Closing state database: %v", err)
		}
	}
	logger.Sync()
}

// parseSources converts --source flag values, rejecting unknown upstreams.
func parseSources(raw []string) ([]domain.SourceID, error) {
	sources := make([]domain.SourceID, 0, len(raw))
	for _, value := range raw {
		source := domain.SourceID(value)
		if !source.IsValid() {
			return nil, fmt.Errorf("%w: %q (known sources: congress, lda)", domain.ErrSourceUnknown, value)
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// parseEntityTypes converts --entity flag values, rejecting unknown types.
func parseEntityTypes(raw []string) ([]domain.EntityType, error) {
	entityTypes := make([]domain.EntityType, 0, len(raw))
	for _, value := range raw {
		entityType := domain.EntityType(value)
		if !entityType.IsValid() {
			return nil, fmt.Errorf("%w: unknown entity type %q (known types: bill, vote, member, filing)", domain.ErrInvalidRequest, value)
		}
		entityTypes = append(entityTypes, entityType)
	}
	return entityTypes, nil
}
