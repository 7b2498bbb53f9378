package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pekka-poukamo/dnd-journal/internal/doctor"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run a read-only health check: persistence, relay, AI availability, chronicle invariants",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig, flagDebug)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		report := doctor.Run(ctx, a.doc, a.local, a.sv, a.gw, a.relay.Connected())

		if doctorJSON {
			return printJSON(report)
		}
		for _, c := range report.Checks {
			fmt.Printf("[%s] %s: %s\n", c.Status, c.Name, c.Message)
		}
		if !report.Healthy() {
			return fmt.Errorf("doctor: one or more checks failed")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(doctorCmd)
}
