// Package batch drives the page pipeline across a directory of input
// files: a bounded worker pool, per-file linear-backoff retry, a
// per-file timeout, and progress reporting into the processing-run
// ledger, per spec §4.10.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/filetrack"
	"github.com/wastetrack/ticketcore/internal/ticket/ledger"
	"github.com/wastetrack/ticketcore/internal/ticket/ocr"
	"github.com/wastetrack/ticketcore/internal/ticket/pipeline"
)

// Config mirrors spec §4.10's BatchConfig. Zero values are replaced with
// the documented defaults by withDefaults.
type Config struct {
	MaxWorkers         int
	ChunkSize          int
	TimeoutPerFile     time.Duration
	RetryAttempts      int
	ContinueOnError    bool
	RollbackOnCritical bool
	GlobPattern        string
	ProcessedBy        string

	// CheckDuplicateFiles enables the cross-run file-hash lookup against
	// persisted tickets, per spec §4.8/§6's check_duplicate_files toggle.
	// The in-batch seenHash check always runs regardless of this flag.
	CheckDuplicateFiles bool
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = runtime.NumCPU()
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = filetrack.DefaultChunkSize
	}
	if c.TimeoutPerFile <= 0 {
		c.TimeoutPerFile = 300 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 2
	}
	if c.GlobPattern == "" {
		c.GlobPattern = "*.pdf"
	}
	if c.ProcessedBy == "" {
		c.ProcessedBy = "ticketctl"
	}
	return c
}

// ProgressCallback is invoked after each file completes (success or
// final failure) with the counters accumulated so far.
type ProgressCallback func(ticket.RunCounters)

// FileError records one file-level failure surfaced to the caller,
// independent of the ledger's ErrorCount.
type FileError struct {
	Path    string
	Message string
}

// Result is the BatchResult of spec §4.10: final status, counters, and
// the file-level error list.
type Result struct {
	Run    *ticket.ProcessingRun
	Status ticket.RunStatus
	Errors []FileError
}

// Rasterizer splits a source file into page images for OCR. Concrete
// implementations live outside this module (spec §9).
type Rasterizer interface {
	Pages(ctx context.Context, path string) ([]ocr.Page, error)
}

// Glob recursively enumerates files under root matching pattern
// (matched against the base name), sorted for deterministic run order.
func Glob(root, pattern string) ([]string, error) {
	var matches []string
	err := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ok, matchErr := filepath.Match(pattern, info.Name())
		if matchErr != nil {
			return matchErr
		}
		if ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch: walk %s: %w", root, err)
	}
	return matches, nil
}

var metricsOnce sync.Once
var (
	filesProcessed   prometheus.Counter
	ticketsCreated   prometheus.Counter
	reviewQueueDepth prometheus.Gauge
)

func registerMetrics(registerer prometheus.Registerer) {
	metricsOnce.Do(func() {
		filesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketcore_batch_files_processed_total",
			Help: "Total files processed by the batch orchestrator.",
		})
		ticketsCreated = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketcore_batch_tickets_created_total",
			Help: "Total ticket rows created across all batch runs.",
		})
		reviewQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ticketcore_batch_review_queue_depth",
			Help: "Review-queue rows written by the most recent batch run.",
		})
		if registerer != nil {
			registerer.MustRegister(filesProcessed, ticketsCreated, reviewQueueDepth)
		}
	})
}

// Orchestrator wires C9 (pipeline) + C8 (filetrack) + C11 (ledger) into
// the worker-pool driver of spec §4.10.
type Orchestrator struct {
	pipe    *pipeline.Pipeline
	raster  Rasterizer
	engine  ocr.Engine
	ledger  *ledger.Ledger
	finder  filetrack.Finder
	log     *slog.Logger
	tracer  trace.Tracer
	metrics prometheus.Registerer
}

// New constructs an Orchestrator. metrics may be nil, which disables
// Prometheus registration entirely (spec §9: metrics are an optional,
// off-by-default surface). finder may be nil, which disables the
// cross-run duplicate-file check regardless of Config.CheckDuplicateFiles
// — the in-batch check still runs.
func New(pipe *pipeline.Pipeline, raster Rasterizer, engine ocr.Engine, led *ledger.Ledger, finder filetrack.Finder, log *slog.Logger, tracer trace.Tracer, metrics prometheus.Registerer) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("batch")
	}
	if metrics != nil {
		registerMetrics(metrics)
	}
	return &Orchestrator{pipe: pipe, raster: raster, engine: engine, ledger: led, finder: finder, log: log, tracer: tracer, metrics: metrics}
}

// Run processes every file under root matching cfg.GlobPattern (or, if
// files is non-nil, exactly that file list — used by CLI watch mode to
// submit a single newly-seen file without a directory walk).
func (o *Orchestrator) Run(ctx context.Context, root string, files []string, cfg Config, progress ProgressCallback) (Result, error) {
	cfg = cfg.withDefaults()

	ctx, span := o.tracer.Start(ctx, "batch.Run")
	defer span.End()

	if files == nil {
		var err error
		files, err = Glob(root, cfg.GlobPattern)
		if err != nil {
			return Result{}, fmt.Errorf("batch: enumerate files: %w", err)
		}
	}
	sort.Strings(files)

	configSnapshot := map[string]any{
		"max_workers":          cfg.MaxWorkers,
		"chunk_size":           cfg.ChunkSize,
		"timeout_per_file_s":   cfg.TimeoutPerFile.Seconds(),
		"retry_attempts":       cfg.RetryAttempts,
		"continue_on_error":    cfg.ContinueOnError,
		"rollback_on_critical": cfg.RollbackOnCritical,
		"glob_pattern":         cfg.GlobPattern,
		"check_duplicate_files": cfg.CheckDuplicateFiles,
	}
	run, err := o.ledger.StartRun(ctx, cfg.ProcessedBy, configSnapshot, "")
	if err != nil {
		return Result{}, fmt.Errorf("batch: start run: %w", err)
	}

	if len(files) == 0 {
		completed, err := o.ledger.CompleteRun(ctx, run.RequestGUID, ticket.RunCompleted, ticket.RunCounters{})
		if err != nil {
			return Result{}, err
		}
		return Result{Run: completed, Status: ticket.RunCompleted}, nil
	}

	var (
		mu       sync.Mutex
		counters ticket.RunCounters
		errs     []FileError
		seenHash = map[string]string{}
	)

	sem := semaphore.NewWeighted(int64(cfg.MaxWorkers))
	group, groupCtx := errgroup.WithContext(ctx)

	for _, path := range files {
		path := path
		if err := sem.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)

			fileErr := o.processFileWithRetry(groupCtx, path, cfg, &mu, &counters, seenHash)

			mu.Lock()
			counters.Files++
			if fileErr != nil {
				counters.ErrorCount++
				errs = append(errs, FileError{Path: path, Message: fileErr.Error()})
			}
			snapshot := counters
			mu.Unlock()

			if o.metrics != nil {
				filesProcessed.Inc()
			}
			if progress != nil {
				progress(snapshot)
			}
			if snapshot.Files%10 == 0 {
				o.log.Info("batch progress", "files", snapshot.Files, "tickets_created", snapshot.TicketsCreated, "errors", snapshot.ErrorCount)
			}
			_ = o.ledger.UpdateProgress(ctx, run.RequestGUID, snapshot)

			if fileErr != nil && !cfg.ContinueOnError {
				return fileErr
			}
			return nil
		})
	}

	critical := group.Wait()

	status := ticket.RunCompleted
	switch {
	case critical != nil && !cfg.ContinueOnError:
		status = ticket.RunFailed
	case len(errs) > 0 && len(errs) >= len(files):
		status = ticket.RunFailed
	case len(errs) > 0:
		status = ticket.RunPartial
	}

	// spec §4.10: a critical exception always ends the run FAILED; this
	// flag only distinguishes what happens to the in-flight file's own
	// write. Each CreateTicket call is already its own all-or-nothing
	// transaction (repository.createTicketOnce's defer-rollback-unless-
	// committed), and "a rolled-back transaction does not affect other
	// pages" — so a critical failure never leaves the triggering page
	// half-written regardless of this flag; rollback_on_critical only
	// controls whether that fact is reported to the operator as a
	// rollback or an accepted partial commit.
	if critical != nil {
		if cfg.RollbackOnCritical {
			o.log.Warn("batch run hit a critical failure, rolling back the in-flight write", "error", critical)
		} else {
			o.log.Warn("batch run hit a critical failure, committing prior writes as-is", "error", critical)
		}
	}

	completed, err := o.ledger.CompleteRun(ctx, run.RequestGUID, status, counters)
	if err != nil {
		return Result{}, err
	}
	if o.metrics != nil {
		reviewQueueDepth.Set(float64(counters.ReviewQueueCount))
	}
	return Result{Run: completed, Status: status, Errors: errs}, nil
}

// processFileWithRetry runs processFile up to cfg.RetryAttempts+1 times
// with linear backoff (1s, 2s, ...), matching spec §4.10's retry
// contract exactly (not exponential). The wait is a plain
// attempt-indexed time.After; this package does not use the backoff
// library. A timed-out attempt is returned at once, not retried.
func (o *Orchestrator) processFileWithRetry(ctx context.Context, path string, cfg Config, mu *sync.Mutex, counters *ticket.RunCounters, seenHash map[string]string) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.RetryAttempts+1; attempt++ {
		fileCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutPerFile)
		err := o.processFile(fileCtx, path, cfg, mu, counters, seenHash)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		if fileCtx.Err() == context.DeadlineExceeded {
			o.log.Warn("file processing timed out", "path", path, "attempt", attempt)
			return fmt.Errorf("batch: %s: timed out after %s: %w", path, cfg.TimeoutPerFile, err)
		}
		if attempt <= cfg.RetryAttempts {
			o.log.Warn("file processing failed, retrying", "path", path, "attempt", attempt, "error", err)
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("batch: %s: failed after %d attempts: %w", path, cfg.RetryAttempts+1, lastErr)
}

func (o *Orchestrator) processFile(ctx context.Context, path string, cfg Config, mu *sync.Mutex, counters *ticket.RunCounters, seenHash map[string]string) error {
	ctx, span := o.tracer.Start(ctx, "batch.processFile", trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	info, err := filetrack.GetInfo(path)
	if err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	mu.Lock()
	_, withinBatchDup := seenHash[info.Hash]
	if !withinBatchDup {
		seenHash[info.Hash] = path
	}
	mu.Unlock()

	if withinBatchDup {
		o.log.Info("duplicate file within batch, skipping", "path", path, "hash", info.Hash)
		mu.Lock()
		counters.DuplicateFilesSkipped++
		mu.Unlock()
		return nil
	}

	// The hash is claimed above (before processing finishes) so two
	// concurrent workers racing on the same file both see the claim
	// immediately. A retry of this same path must not be misidentified as
	// an in-batch duplicate of its own earlier failed attempt, so release
	// the claim on any error return below.
	succeeded := false
	defer func() {
		if !succeeded {
			mu.Lock()
			delete(seenHash, info.Hash)
			mu.Unlock()
		}
	}()

	if cfg.CheckDuplicateFiles && o.finder != nil {
		dup, err := filetrack.CheckDuplicateFile(ctx, o.finder, info.Hash)
		if err != nil {
			return fmt.Errorf("check duplicate file: %w", err)
		}
		if dup.IsDuplicate {
			o.log.Info("duplicate file across runs, skipping", "path", path, "detail", dup.Message())
			mu.Lock()
			counters.DuplicateFilesSkipped++
			mu.Unlock()
			succeeded = true
			return nil
		}
	}

	pages, err := o.raster.Pages(ctx, path)
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}

	for _, page := range pages {
		ocrResult, err := o.engine.ProcessImage(ctx, page.Image)
		if err != nil {
			return fmt.Errorf("ocr page %d: %w", page.Number, err)
		}

		result := o.pipe.Process(ctx, pipeline.PageInput{
			FilePath:      path,
			FilePage:      page.Number,
			FileHash:      info.Hash,
			Text:          ocrResult.Text,
			OCRConfidence: ocrResult.Confidence,
			Image:         page.Image,
		})

		mu.Lock()
		counters.Pages++
		switch {
		case result.Success:
			// pipeline.Process only reports Success on the persisted-
			// ticket path (repository.CreateTicket returned a non-nil
			// Ticket); every aborted outcome (manifest, duplicate,
			// extraction failure) sets Success=false instead.
			counters.TicketsCreated++
		case result.Outcome == string(ticket.ReasonDuplicateTicket):
			counters.DuplicatesFound++
			if result.ReviewQueueID != nil {
				counters.ReviewQueueCount++
			} else {
				counters.ErrorCount++
			}
		case result.ReviewQueueID != nil:
			counters.ReviewQueueCount++
		default:
			counters.ErrorCount++
		}
		mu.Unlock()

		if o.metrics != nil && result.Success {
			ticketsCreated.Inc()
		}
	}
	succeeded = true
	return nil
}
