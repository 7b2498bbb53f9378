package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var questionsForce bool

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Print the current reflective question set, generating it if stale",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig, flagDebug)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		rec, err := a.qgen.Get(ctx, questionsForce)
		if err != nil {
			return fmt.Errorf("questions: %w", err)
		}
		if err := a.persist(ctx); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		fmt.Println(rec.Questions)
		return nil
	},
}

func init() {
	questionsCmd.Flags().BoolVar(&questionsForce, "force", false, "regenerate regardless of cached freshness")
	rootCmd.AddCommand(questionsCmd)
}
