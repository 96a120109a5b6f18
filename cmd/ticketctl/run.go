package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/batch"
	"github.com/wastetrack/ticketcore/internal/ticket/repository"
)

var (
	runGlobPattern string
	runWatch       bool
)

var runCmd = &cobra.Command{
	Use:   "run <input-dir>",
	Short: "Process every ticket file under a directory into the ticket store",
	Long: `Enumerates files under <input-dir> (recursively, default pattern *.pdf),
runs the page pipeline across each, and prints the resulting BatchResult.

Exit code follows spec §6: 0 when the run COMPLETED, 1 when it finished
PARTIAL or FAILED.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Seed(rootCtx, repository.DefaultSeed()); err != nil {
			return fmt.Errorf("seed reference data: %w", err)
		}

		orch := a.buildOrchestrator(currentUser())
		bcfg := a.batchConfig(currentUser())
		if runGlobPattern != "" {
			bcfg.GlobPattern = runGlobPattern
		}

		progress := func(counters ticket.RunCounters) {
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\rfiles=%d pages=%d tickets=%d review=%d errors=%d",
					counters.Files, counters.Pages, counters.TicketsCreated, counters.ReviewQueueCount, counters.ErrorCount)
			}
		}

		result, err := orch.Run(rootCtx, root, nil, bcfg, progress)
		if !jsonOutput {
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return fmt.Errorf("batch run: %w", err)
		}

		printBatchResult(result)

		exitCode = exitCodeForStatus(string(result.Status))

		if runWatch {
			return watchDirectory(rootCtx, a, root, bcfg)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runGlobPattern, "glob", "", "override the input glob pattern (default *.pdf)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "after the initial batch, keep running and submit new files as they appear")
	rootCmd.AddCommand(runCmd)
}

func printBatchResult(result batch.Result) {
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}
