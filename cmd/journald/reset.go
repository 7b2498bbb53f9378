package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var resetConfirm bool
var resetDryRun bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the local durable journal log",
	Long: `Delete journal.jsonl (and its lock file) from the data directory.

This permanently discards every op this replica has not yet relayed to a
sync server. It does not touch journald.yaml.

SAFETY: requires --confirm. Use --dry-run to see what would be removed
without deleting anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath := filepath.Join(appConfig.DataDir, "journal.jsonl")
		lockPath := filepath.Join(appConfig.DataDir, ".journal.lock")

		if resetDryRun {
			fmt.Printf("would remove %s\n", logPath)
			fmt.Printf("would remove %s\n", lockPath)
			return nil
		}
		if !resetConfirm {
			return fmt.Errorf("reset: pass --confirm to actually delete %s", logPath)
		}

		if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", logPath, err)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", lockPath, err)
		}
		fmt.Println("reset complete")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "confirm", false, "actually perform the deletion")
	resetCmd.Flags().BoolVar(&resetDryRun, "dry-run", false, "print what would be removed without deleting")
	rootCmd.AddCommand(resetCmd)
}
