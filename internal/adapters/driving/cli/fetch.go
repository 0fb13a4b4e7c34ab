package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
	"github.com/civica-labs/legisync-cli/internal/logger"
)

var (
	fetchSources     []string
	fetchEntities    []string
	fetchIncremental bool
	fetchResume      bool
	fetchWorkers     int
	fetchDaemon      bool
	fetchMetricsAddr string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch records from the configured sources",
	Long: `Walks every partition the configuration enumerates (per-congress bill,
vote, and member slices; per-year filing slices), persists each record under
the data root, and checkpoints progress after every page.

A plain fetch restarts every partition from its first page. --resume
continues interrupted partitions from their checkpoints and skips completed
ones; --incremental asks each upstream only for entities updated since the
partition's last completed walk.

With --daemon the command runs the background scheduler instead, executing
periodic incremental fetches and index refreshes until interrupted.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchSources, "source", nil, "restrict to a source (congress, lda); repeatable")
	fetchCmd.Flags().StringSliceVar(&fetchEntities, "entity", nil, "restrict to an entity type (bill, vote, member, filing); repeatable")
	fetchCmd.Flags().BoolVar(&fetchIncremental, "incremental", false, "fetch only entities updated since the last completed walk")
	fetchCmd.Flags().BoolVar(&fetchResume, "resume", false, "continue interrupted partitions from their checkpoints")
	fetchCmd.Flags().IntVar(&fetchWorkers, "workers", 0, "override the configured worker count")
	fetchCmd.Flags().BoolVar(&fetchDaemon, "daemon", false, "run the background scheduler instead of a one-shot fetch")
	fetchCmd.Flags().StringVar(&fetchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	if fetchService == nil {
		return errors.New("fetch service not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fetchMetricsAddr != "" {
		shutdown := serveMetrics(cmd, fetchMetricsAddr)
		defer shutdown()
	}

	if fetchDaemon {
		return runDaemon(ctx, cmd)
	}

	sources, err := parseSources(fetchSources)
	if err != nil {
		return err
	}
	entityTypes, err := parseEntityTypes(fetchEntities)
	if err != nil {
		return err
	}

	report, err := fetchService.Fetch(ctx, driving.FetchOptions{
		Sources:     sources,
		EntityTypes: entityTypes,
		Incremental: fetchIncremental,
		Resume:      fetchResume,
		MaxWorkers:  fetchWorkers,
	})
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	printFetchReport(cmd, report)

	if failed := report.CountByStatus(domain.PartitionFailed); failed > 0 && !report.Cancelled {
		return fmt.Errorf("%d of %d partitions failed", failed, len(report.Partitions))
	}
	return nil
}

func runDaemon(ctx context.Context, cmd *cobra.Command) error {
	if schedulerService == nil {
		return errors.New("scheduler not configured")
	}

	cmd.Println("Running scheduler; press Ctrl-C to stop.")
	err := schedulerService.Start(ctx)
	if stopErr := schedulerService.Stop(); stopErr != nil {
		return stopErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	cmd.Println("Scheduler stopped.")
	return nil
}

func printFetchReport(cmd *cobra.Command, report domain.FetchReport) {
	if report.Cancelled {
		cmd.Printf("Fetch run %s cancelled after %s\n", report.RunID, report.Duration().Round(time.Millisecond))
	} else {
		cmd.Printf("Fetch run %s finished in %s\n", report.RunID, report.Duration().Round(time.Millisecond))
	}

	for _, partition := range report.Partitions {
		line := fmt.Sprintf("  %-28s %-9s %3d pages  %d written", partition.Partition.ID(), partition.Status, partition.Pages, partition.RecordsWritten)
		if partition.RecordsUnchanged > 0 {
			line += fmt.Sprintf("  %d unchanged", partition.RecordsUnchanged)
		}
		if partition.RecordsSkipped > 0 {
			line += fmt.Sprintf("  %d skipped", partition.RecordsSkipped)
		}
		if partition.Resumed {
			line += "  (resumed)"
		}
		if partition.Err != "" {
			line += fmt.Sprintf("  %s: %s", partition.ErrorKind, partition.Err)
		}
		cmd.Println(line)
	}

	cmd.Printf("Totals: %d partitions, %d pages, %d written, %d unchanged\n",
		len(report.Partitions), report.TotalPages(), report.TotalWritten(), report.TotalUnchanged())
}

// serveMetrics starts a Prometheus endpoint for the duration of the run.
func serveMetrics(cmd *cobra.Command, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server: %v", err)
		}
	}()
	cmd.Printf("Serving metrics on http://%s/metrics\n", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
	}
}
