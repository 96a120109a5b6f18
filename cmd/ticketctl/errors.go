package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// FatalError writes an error to stderr (or, under --json, as a structured
// JSON object) and exits 1, mirroring the teacher's FatalErrorRespectJSON
// idiom.
func FatalError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput {
		data, _ := json.MarshalIndent(map[string]string{"error": msg}, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

// WarnError writes a non-fatal warning to stderr.
func WarnError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// exitCode is set by a command's RunE instead of calling os.Exit
// directly, so main can exit only after Execute returns and every
// deferred cleanup (store.Close, etc.) in the command chain has run.
var exitCode int

// exitCodeForStatus maps a batch run's terminal status to the process
// exit code convention of spec §6: 0 for COMPLETED, 1 otherwise.
func exitCodeForStatus(status string) int {
	if status == "COMPLETED" {
		return 0
	}
	return 1
}
