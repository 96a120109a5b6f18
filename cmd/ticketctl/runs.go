package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/ledger"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the processing-run ledger (C11)",
}

var (
	runsListLimit  int
	runsListUser   string
	runsListStatus string
)

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent processing runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		led := ledger.New(a.store)

		var runs []*ticket.ProcessingRun
		switch {
		case runsListStatus != "":
			runs, err = a.store.RunsByStatus(rootCtx, ticket.RunStatus(runsListStatus))
		case runsListUser != "":
			runs, err = led.RunsByUser(rootCtx, runsListUser)
		default:
			runs, err = led.RecentRuns(rootCtx, runsListLimit)
		}
		if err != nil {
			return fmt.Errorf("runs list: %w", err)
		}
		return printJSON(runs)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <request-guid>",
	Short: "Show one processing run by its request GUID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		led := ledger.New(a.store)

		run, err := led.RunByGUID(rootCtx, args[0])
		if err != nil {
			return fmt.Errorf("runs show: %w", err)
		}
		if run == nil {
			return fmt.Errorf("no run with request_guid %s", args[0])
		}
		out := map[string]any{
			"run":              run,
			"duration_seconds": ledger.DurationSeconds(*run),
			"success_rate":     ledger.SuccessRate(*run),
		}
		return printJSON(out)
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate statistics over completed runs (supplemented feature, §8 SPEC_FULL)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		completedPtrs, err := a.store.CompletedRuns(rootCtx)
		if err != nil {
			return fmt.Errorf("runs stats: %w", err)
		}
		allPtrs, err := a.store.AllRuns(rootCtx)
		if err != nil {
			return fmt.Errorf("runs stats: %w", err)
		}
		return printJSON(ledger.Aggregate(derefRuns(completedPtrs), derefRuns(allPtrs)))
	},
}

func derefRuns(runs []*ticket.ProcessingRun) []ticket.ProcessingRun {
	out := make([]ticket.ProcessingRun, len(runs))
	for i, r := range runs {
		out[i] = *r
	}
	return out
}

var runsCleanupCmd = &cobra.Command{
	Use:   "cleanup <days-to-keep>",
	Short: "Bulk-delete processing runs older than the given number of days",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var days int
		if _, err := fmt.Sscanf(args[0], "%d", &days); err != nil {
			return fmt.Errorf("invalid days-to-keep %q: %w", args[0], err)
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		led := ledger.New(a.store)

		n, err := led.CleanupOldRuns(rootCtx, days)
		if err != nil {
			return fmt.Errorf("runs cleanup: %w", err)
		}
		fmt.Printf("deleted %d run(s) older than %d days\n", n, days)
		return nil
	},
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 20, "maximum runs to return")
	runsListCmd.Flags().StringVar(&runsListUser, "user", "", "filter by processed_by")
	runsListCmd.Flags().StringVar(&runsListStatus, "status", "", "filter by status (IN_PROGRESS, COMPLETED, PARTIAL, FAILED)")
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd, runsCleanupCmd)
	rootCmd.AddCommand(runsCmd)
}
