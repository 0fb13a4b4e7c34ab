package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

var (
	recordsFilter string
	recordsLimit  int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Browse locally stored records",
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <entity-type> <stable-id>",
	Short: "Print one stored record as JSON",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordsGet,
}

var recordsListCmd = &cobra.Command{
	Use:   "list <entity-type>",
	Short: "List indexed records of one entity type",
	Long: `Lists records from the entity type's index, falling back to a directory
scan when no index has been built. The filter matches a case-insensitive
substring against stable IDs and summary fields.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecordsList,
}

func init() {
	recordsListCmd.Flags().StringVar(&recordsFilter, "filter", "", "substring to match against IDs and summaries")
	recordsListCmd.Flags().IntVar(&recordsLimit, "limit", 50, "maximum entries to print (0 for all)")
	recordsCmd.AddCommand(recordsGetCmd)
	recordsCmd.AddCommand(recordsListCmd)
	rootCmd.AddCommand(recordsCmd)
}

func runRecordsGet(cmd *cobra.Command, args []string) error {
	if recordQuery == nil {
		return errors.New("record service not configured")
	}

	record, err := recordQuery.Get(cmd.Context(), domain.EntityType(args[0]), args[1])
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	cmd.Println(string(encoded))
	return nil
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	if recordQuery == nil {
		return errors.New("record service not configured")
	}
	entityType := domain.EntityType(args[0])

	entries, err := recordQuery.List(cmd.Context(), entityType, recordsFilter, recordsLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.Println("No records found.")
		return nil
	}

	rows := [][]string{{"STABLE ID", "FETCHED", "SUMMARY"}}
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.StableID,
			formatTime(entry.FetchedAt),
			headline(entityType, entry.Summary),
		})
	}
	printTable(cmd, rows)
	cmd.Printf("\n%d record(s)\n", len(entries))
	return nil
}

// headline picks the most descriptive summary field for a one-line listing.
func headline(entityType domain.EntityType, summary map[string]any) string {
	var fields []string
	switch entityType {
	case domain.EntityBill:
		fields = []string{"title"}
	case domain.EntityVote:
		fields = []string{"voteQuestion", "result"}
	case domain.EntityMember:
		fields = []string{"name", "state"}
	case domain.EntityFiling:
		fields = []string{"filing_type", "filing_period"}
	}
	for _, field := range fields {
		if value, ok := summary[field]; ok {
			return fmt.Sprintf("%v", value)
		}
	}
	return ""
}
