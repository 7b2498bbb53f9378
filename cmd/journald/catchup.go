package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var catchupCmd = &cobra.Command{
	Use:   "catchup",
	Short: "Run the parts engine and anchor pipeline once against the current journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig, flagDebug)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		if err := a.engine.Run(ctx); err != nil {
			return fmt.Errorf("parts engine: %w", err)
		}
		if err := a.anchor.CatchUp(ctx); err != nil {
			return fmt.Errorf("anchor catch-up: %w", err)
		}
		if err := a.persist(ctx); err != nil {
			return fmt.Errorf("persist: %w", err)
		}

		chronicle := a.doc.GetChronicle()
		fmt.Printf("latest part: %d\n", chronicle.LatestPartIndex)
		fmt.Printf("so-far summary: %s\n", chronicle.SoFarSummary)
		fmt.Printf("recent summary: %s\n", chronicle.RecentSummary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catchupCmd)
}
