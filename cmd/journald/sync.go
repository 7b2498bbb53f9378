package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [ws-url]",
	Short: "Get or set the relay sync server URL",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig, flagDebug)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		if len(args) == 0 {
			url := a.sv.SyncServerURL()
			if url == "" {
				fmt.Println("sync disabled")
			} else {
				fmt.Println(url)
			}
			return nil
		}

		if err := a.sv.SetSyncServerURL(args[0]); err != nil {
			return fmt.Errorf("set sync-server-url: %w", err)
		}
		return a.persist(ctx)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
