package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and edit the configuration file",
	Long: `Reads and writes dot-notation keys in the TOML configuration file,
for example "congress.page_size" or "scheduler.enabled". Values are
written as integers or booleans when they parse as one, otherwise as
strings.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store one configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if settingsStore == nil {
		return errors.New("configuration not available")
	}
	value, ok := settingsStore.Get(args[0])
	if !ok {
		return fmt.Errorf("key %q not set", args[0])
	}
	cmd.Printf("%v\n", value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsStore == nil {
		return errors.New("configuration not available")
	}
	if err := settingsStore.Set(args[0], convertConfigValue(args[1])); err != nil {
		return err
	}
	cmd.Printf("Set %s in %s\n", args[0], settingsStore.Path())
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	if settingsStore == nil {
		return errors.New("configuration not available")
	}
	cmd.Println(settingsStore.Path())
	return nil
}

// convertConfigValue picks the narrowest TOML type the raw argument parses
// as, so "256" lands as an integer and "true" as a boolean.
func convertConfigValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
