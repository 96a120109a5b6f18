// Command ticketctl drives the truck-ticket extraction core from the
// command line: run a batch over a directory of scanned tickets, load
// the default reference data, list and summarize processing runs, and
// inspect a single file's hash and size. It is a thin cobra/viper shell over the
// internal/ticket packages — every decision of substance lives there;
// this command only wires collaborators together and prints results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wastetrack/ticketcore/internal/ticket/config"
)

// Version is stamped at build time via -ldflags; "dev" otherwise.
var Version = "dev"

var (
	configPath string
	jsonOutput bool
	verbose    bool

	cfg *config.Config
	log *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:     "ticketctl",
	Short:   "ticketctl - truck ticket extraction and compliance pipeline",
	Long:    `Ingests scanned trucking/waste-disposal tickets, extracts and validates their fields, and persists a canonical ticket dataset plus a human review queue.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(log)

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML/JSON config file (optional; env vars and defaults apply regardless)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of text tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		FatalError("%v", err)
	}
	os.Exit(exitCode)
}
