package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wastetrack/ticketcore/internal/ticket/filetrack"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print a file's size and SHA-256 hash, and whether it has already been processed",
	Long: `Hashes <file> the same way the batch orchestrator's file tracker (C8)
does, and, if a database is reachable, reports whether any ticket rows
already carry that hash (spec §4.8, §8 supplemented feature: file_hash /
file-info helper).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		info, err := filetrack.GetInfo(path)
		if err != nil {
			return fmt.Errorf("inspect: %w", err)
		}

		out := map[string]any{
			"path":     info.Path,
			"name":     info.Name,
			"size":     info.Size,
			"hash":     info.Hash,
			"modified": info.Modified,
		}

		a, err := newApp(cfg)
		if err == nil {
			defer a.Close()
			dup, dupErr := filetrack.CheckDuplicateFile(rootCtx, a.store, info.Hash)
			if dupErr == nil {
				out["already_processed"] = dup.IsDuplicate
				if dup.IsDuplicate {
					out["original_file_path"] = dup.OriginalFilePath
					out["ticket_count"] = dup.TicketCount
				}
			}
		} else {
			WarnError("inspect: database unavailable, skipping duplicate check: %v", err)
		}

		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
