package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pekka-poukamo/dnd-journal/internal/config"
)

var (
	flagDataDir string
	flagDebug   bool

	appConfig config.Config
)

var rootCmd = &cobra.Command{
	Use:   "journald",
	Short: "Local-first D&D journal: replicated store plus AI summarization pipeline",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.DefaultConfigPath(flagDataDir))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if flagDataDir != "" {
			cfg.DataDir = flagDataDir
		}
		appConfig = cfg
		return nil
	},
}

func init() {
	defaults := config.Defaults()
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", defaults.DataDir, "directory holding journal.jsonl and journald.yaml")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable development-mode console logging")
}

// Execute runs the CLI under ctx (cancelled on SIGINT/SIGTERM), exiting the
// process with status 1 on error.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
