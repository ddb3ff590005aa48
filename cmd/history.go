package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/opencti-sync/internal/state"
)

var historyLimit int

// historyCmd lists recorded runs for the configured connector.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()

		if cfg.Connector.ID == "" {
			return fmt.Errorf("connector id is required (CONNECTOR_ID)")
		}

		store, err := state.NewStore(cfg.Database.Path, cfg.Connector.ID)
		if err != nil {
			return fmt.Errorf("failed to open state store: %w", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := "-"
			if run.FinishedAt != nil {
				duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
			}
			fmt.Printf("%s  %-9s  started=%s  duration=%-8s  obs=%d ind=%d rel=%d batches=%d",
				run.ID, run.Status, run.StartedAt.Format(time.RFC3339), duration,
				run.Observables, run.Indicators, run.Relationships, run.Batches)
			if run.Error != "" {
				fmt.Printf("  error=%q", run.Error)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
}
