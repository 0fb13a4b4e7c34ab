package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/logger"
)

var (
	indexEntities      []string
	indexUpdateSince   time.Duration
	indexWatchDebounce time.Duration
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and maintain record indexes",
	Long: `Each entity type directory carries an _index.json summarising its
records for fast listing. Fetch runs keep indexes current; these commands
rebuild or repair them by hand.`,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild indexes from a full record scan",
	RunE:  runIndexRebuild,
}

var indexUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fold recently changed records into the indexes",
	Long: `Merges records whose files changed within the --since window into the
existing indexes and drops entries whose files have vanished. Without
--since, every record is merged, which matches a rebuild's coverage at a
higher cost than a window; entity types with no index are rebuilt.`,
	RunE: runIndexUpdate,
}

var indexWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously fold landing records into the indexes",
	Long: `Watches the data root for record changes and updates the affected
indexes as batches land. Useful alongside a long fetch or a scheduler
daemon on another machine writing to the same data root.`,
	RunE: runIndexWatch,
}

func init() {
	indexCmd.PersistentFlags().StringSliceVar(&indexEntities, "entity", nil, "restrict to an entity type (bill, vote, member, filing); repeatable")
	indexUpdateCmd.Flags().DurationVar(&indexUpdateSince, "since", 0, "merge records changed within this window (0 = all)")
	indexWatchCmd.Flags().DurationVar(&indexWatchDebounce, "debounce", 2*time.Second, "batch window for change notifications")
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexUpdateCmd)
	indexCmd.AddCommand(indexWatchCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}
	entityTypes, err := parseEntityTypes(indexEntities)
	if err != nil {
		return err
	}

	reports, err := indexService.Rebuild(cmd.Context(), entityTypes)
	printIndexReports(cmd, reports)
	if err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}
	return nil
}

func runIndexUpdate(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}
	entityTypes, err := parseEntityTypes(indexEntities)
	if err != nil {
		return err
	}

	var since time.Time
	if indexUpdateSince > 0 {
		since = time.Now().Add(-indexUpdateSince)
	}

	reports, err := indexService.Update(cmd.Context(), since, entityTypes)
	printIndexReports(cmd, reports)
	if err != nil {
		return fmt.Errorf("index update failed: %w", err)
	}
	return nil
}

func runIndexWatch(cmd *cobra.Command, _ []string) error {
	if indexService == nil || dataStore == nil {
		return errors.New("index service not configured")
	}
	selected, err := parseEntityTypes(indexEntities)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes, err := dataStore.Watch(ctx, indexWatchDebounce)
	if err != nil {
		return fmt.Errorf("starting watch: %w", err)
	}
	cmd.Println("Watching for record changes; press Ctrl-C to stop.")

	// Re-merging an already-indexed record is harmless, so each window
	// overlaps the previous one by a second to absorb mtime truncation.
	lower := time.Now()
	for batch := range changes {
		batch = filterEntityTypes(batch, selected)
		if len(batch) == 0 {
			continue
		}

		started := time.Now()
		reports, err := indexService.Update(ctx, lower.Add(-time.Second), batch)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("Index update: %v", err)
			continue
		}
		lower = started
		printIndexReports(cmd, reports)
	}

	cmd.Println("Watch stopped.")
	return nil
}

func printIndexReports(cmd *cobra.Command, reports []domain.IndexReport) {
	for _, report := range reports {
		mode := "updated"
		if report.Rebuilt {
			mode = "rebuilt"
		}
		cmd.Printf("  %-8s %s: %d entries (%d added, %d updated, %d removed) in %s\n",
			report.EntityType, mode, report.Entries, report.Added, report.Updated, report.Removed,
			report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
}

// filterEntityTypes keeps batch members present in selected. An empty
// selection keeps everything.
func filterEntityTypes(batch, selected []domain.EntityType) []domain.EntityType {
	if len(selected) == 0 {
		return batch
	}
	keep := make([]domain.EntityType, 0, len(batch))
	for _, entityType := range batch {
		for _, want := range selected {
			if entityType == want {
				keep = append(keep, entityType)
				break
			}
		}
	}
	return keep
}
