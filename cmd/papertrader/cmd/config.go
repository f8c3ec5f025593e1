package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/config"
	"github.com/rustyeddy/papertrade/internal/id"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and check configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration with a fresh portfolio key. A .yaml or .yml
path is written as YAML, anything else as JSON.

Example:
  papertrader config init -o papertrade.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configOut   string
	configForce bool
	configFile  string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configOut, "output", "o", "papertrade.yaml", "file to write")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configValidateCmd.Flags().StringVarP(&configFile, "file", "f", "", "file to check (defaults to --config)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configOut); err == nil && !configForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", configOut)
	}
	c := config.Default()
	c.Account.Key = id.NewKey()
	if err := c.SaveToFile(configOut); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (portfolio %s)\n", configOut, c.Account.Key)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = cfgPath
	}
	if path == "" {
		return fmt.Errorf("no file given, use -f or --config")
	}
	c, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d instruments, store %s\n", path, len(c.Instruments), c.Store.Type)
	return nil
}
