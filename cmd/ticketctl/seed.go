package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wastetrack/ticketcore/internal/ticket/repository"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Idempotently load the default reference data (job, materials, destinations, vendors, sources)",
	Long: `Applies repository.DefaultSeed(), the fixture reference data spec §8's
worked examples (S1-S6) and the default config (job_code 24-105, ticket_type
EXPORT) assume exist. Running seed against an already-seeded database is a
no-op: each row is only inserted if a row with the same unique name/code
isn't already present.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Seed(rootCtx, repository.DefaultSeed()); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		fmt.Println("reference data seeded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
