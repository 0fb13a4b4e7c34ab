package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local data, run history, and rate limit state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if statusService == nil {
		return errors.New("status service not configured")
	}

	report, err := statusService.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("gathering status: %w", err)
	}

	cmd.Printf("Data root: %s\n\n", report.DataRoot)

	cmd.Println("Records")
	rows := [][]string{{"TYPE", "STORED", "INDEXED"}}
	for _, entityType := range domain.AllEntityTypes() {
		indexed := "(no index)"
		if count, ok := report.IndexedCounts[entityType]; ok {
			indexed = strconv.Itoa(count)
		}
		rows = append(rows, []string{entityType.String(), strconv.Itoa(report.RecordCounts[entityType]), indexed})
	}
	printTable(cmd, rows)
	cmd.Println()

	printLastRun(cmd, "Last fetch", report.LastFetch)
	printLastRun(cmd, "Last index", report.LastIndex)

	if len(report.Checkpoints) > 0 {
		cmd.Println("\nCheckpoints")
		rows = [][]string{{"PARTITION", "STATE", "PAGES", "CURSOR", "LAST SUCCESS"}}
		for _, checkpoint := range report.Checkpoints {
			state := "in progress"
			cursor := checkpoint.Cursor
			if checkpoint.Completed {
				state = "complete"
			}
			if cursor == "" {
				cursor = "-"
			}
			rows = append(rows, []string{
				checkpoint.Partition.ID(),
				state,
				strconv.Itoa(checkpoint.PagesDone),
				cursor,
				formatTime(checkpoint.LastSuccess),
			})
		}
		printTable(cmd, rows)
	}

	if len(report.Limiters) > 0 {
		cmd.Println("\nRate limits")
		rows = [][]string{{"SOURCE", "BUDGET", "IN WINDOW", "COOL-DOWN"}}
		for _, limiter := range report.Limiters {
			coolDown := "-"
			if !limiter.CoolDownUntil.IsZero() && limiter.CoolDownUntil.After(time.Now()) {
				coolDown = "until " + limiter.CoolDownUntil.Local().Format("15:04:05")
			}
			rows = append(rows, []string{
				limiter.Source.String(),
				fmt.Sprintf("%d per %s", limiter.MaxRequests, limiter.Window),
				strconv.Itoa(limiter.InWindow),
				coolDown,
			})
		}
		printTable(cmd, rows)
	}

	return nil
}

func printLastRun(cmd *cobra.Command, label string, run *domain.RunRecord) {
	if run == nil {
		cmd.Printf("%s: never\n", label)
		return
	}
	line := fmt.Sprintf("%s: %s", label, formatTime(run.FinishedAt))
	if run.Cancelled {
		line += " (cancelled)"
	}
	if run.Detail != "" {
		line += " - " + run.Detail
	}
	cmd.Println(line)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// printTable renders rows with columns padded to display width.
func printTable(cmd *cobra.Command, rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	for _, row := range rows {
		var sb strings.Builder
		sb.WriteString("  ")
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("   ")
			}
			sb.WriteString(cell)
			if padding := widths[i] - runewidth.StringWidth(cell); padding > 0 && i < len(row)-1 {
				sb.WriteString(strings.Repeat(" ", padding))
			}
		}
		cmd.Println(sb.String())
	}
}
