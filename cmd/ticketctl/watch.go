package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wastetrack/ticketcore/internal/ticket/batch"
)

// watchDirectory implements `ticketctl run --watch`: after the initial
// batch over root completes, it keeps an fsnotify watcher open on root
// and submits each newly-created matching file as its own single-file
// batch run, mirroring the teacher's directory-watch idiom in
// cmd/bd/show_display.go (debounce-then-react to fsnotify.Write/Create
// events, Ctrl+C via the already-established signal-aware rootCtx).
func watchDirectory(ctx context.Context, a *app, root string, bcfg batch.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("watch: add %s: %w", root, err)
	}

	fmt.Fprintf(os.Stderr, "watching %s for new files (Ctrl+C to stop)...\n", root)

	orch := a.buildOrchestrator(currentUser())
	debounce := map[string]*time.Timer{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := event.Name
			if t, pending := debounce[path]; pending {
				t.Stop()
			}
			debounce[path] = time.AfterFunc(500*time.Millisecond, func() {
				submitOne(ctx, orch, root, path, bcfg)
			})
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			WarnError("watch: %v", werr)
		}
	}
}

func submitOne(ctx context.Context, orch *batch.Orchestrator, root, path string, bcfg batch.Config) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	pattern := bcfg.GlobPattern
	if pattern == "" {
		pattern = "*.pdf"
	}
	if ok, _ := filepath.Match(pattern, filepath.Base(path)); !ok {
		return
	}
	result, err := orch.Run(ctx, root, []string{path}, bcfg, nil)
	if err != nil {
		WarnError("watch: processing %s: %v", path, err)
		return
	}
	fmt.Fprintf(os.Stderr, "watch: processed %s -> tickets=%d review=%d\n",
		path, result.Run.Counters.TicketsCreated, result.Run.Counters.ReviewQueueCount)
}
