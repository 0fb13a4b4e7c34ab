package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/civica-labs/legisync-cli/internal/adapters/driven/auth"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and configure the upstream sources",
	RunE:  runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources and their credential state",
	RunE:  runSourcesList,
}

var sourcesValidateCmd = &cobra.Command{
	Use:   "validate [source...]",
	Short: "Probe each source with its configured credentials",
	Long: `Issues one authenticated request per source to confirm the base URL and
API key work. Without arguments every configured source is probed.`,
	RunE: runSourcesValidate,
}

var sourcesSetKeyCmd = &cobra.Command{
	Use:   "set-key <source>",
	Short: "Store an API key for a source",
	Long: `Prompts for an API key without echoing it and stores it in the
configuration file. An exported environment variable still takes
precedence over the stored key.`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesSetKey,
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesValidateCmd)
	sourcesCmd.AddCommand(sourcesSetKeyCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	if credentials == nil {
		return errors.New("sources not configured")
	}

	for _, source := range domain.AllSources() {
		cred, err := credentials.Credential(source)
		if err != nil {
			return err
		}

		cmd.Printf("%s (%s)\n", source.DisplayName(), source)
		cmd.Printf("  %s\n", source.Description())
		cmd.Printf("  Base URL: %s\n", baseURLFor(source))
		cmd.Printf("  API key:  %s\n", describeCredential(cred))
		cmd.Println()
	}
	return nil
}

func runSourcesValidate(cmd *cobra.Command, args []string) error {
	if fetchService == nil {
		return errors.New("fetch service not configured")
	}
	sources, err := parseSources(args)
	if err != nil {
		return err
	}

	results := fetchService.ValidateSources(cmd.Context(), sources)

	failed := 0
	for _, source := range domain.AllSources() {
		result, probed := results[source]
		if !probed {
			continue
		}
		if result != nil {
			failed++
			cmd.Printf("%-10s FAILED: %v\n", source, result)
			continue
		}
		cmd.Printf("%-10s OK\n", source)
	}

	if failed > 0 {
		return fmt.Errorf("%d source(s) failed validation", failed)
	}
	return nil
}

func runSourcesSetKey(cmd *cobra.Command, args []string) error {
	if settingsStore == nil {
		return errors.New("configuration not available")
	}
	source := domain.SourceID(args[0])
	if !source.IsValid() {
		return fmt.Errorf("%w: %q (known sources: congress, lda)", domain.ErrSourceUnknown, args[0])
	}

	cmd.Printf("Enter API key for %s: ", source.DisplayName())
	key := readPassword()
	cmd.Println()
	if key == "" {
		return errors.New("no key entered")
	}

	if err := settingsStore.Set(source.String()+".api_key", key); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}
	cmd.Printf("API key for %s saved to %s\n", source, settingsStore.Path())

	if envKey := os.Getenv(auth.EnvVar(source)); envKey != "" {
		cmd.Printf("Note: %s is set and takes precedence over the stored key.\n", auth.EnvVar(source))
	}
	return nil
}

func baseURLFor(source domain.SourceID) string {
	switch source {
	case domain.SourceCongress:
		return settings.Congress.BaseURL
	case domain.SourceLDA:
		return settings.LDA.BaseURL
	default:
		return ""
	}
}

func describeCredential(cred domain.Credential) string {
	switch cred.Origin {
	case domain.CredentialFromEnv:
		return fmt.Sprintf("%s (environment, %s)", maskAPIKey(cred.APIKey), auth.EnvVar(cred.Source))
	case domain.CredentialFromConfig:
		return fmt.Sprintf("%s (config file)", maskAPIKey(cred.APIKey))
	default:
		return "(not set)"
	}
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	// Read without echo on a real terminal.
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
