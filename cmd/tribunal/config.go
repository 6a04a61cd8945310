package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veliant/tribunal/internal/config"
)

var configInitPath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Init writes the built-in defaults as a YAML file you can edit. Values in
the file are merged over the defaults at load time, and a handful of
environment variables (TRIBUNAL_WORKER_ENDPOINTS, TRIBUNAL_WORKER_MODEL,
TRIBUNAL_WORKER_API_KEY, TRIBUNAL_BRAVE_API_KEY, TRIBUNAL_OFFLINE) override
the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitPath
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite existing config: %s", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "Where to write the config (default "+config.DefaultPath()+")")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
