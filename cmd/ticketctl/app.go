package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/wastetrack/ticketcore/internal/ticket/batch"
	"github.com/wastetrack/ticketcore/internal/ticket/cache"
	"github.com/wastetrack/ticketcore/internal/ticket/config"
	"github.com/wastetrack/ticketcore/internal/ticket/ledger"
	"github.com/wastetrack/ticketcore/internal/ticket/normalize"
	"github.com/wastetrack/ticketcore/internal/ticket/ocr/passthrough"
	"github.com/wastetrack/ticketcore/internal/ticket/pipeline"
	"github.com/wastetrack/ticketcore/internal/ticket/repository"
	"github.com/wastetrack/ticketcore/internal/ticket/repository/mysql"
	"github.com/wastetrack/ticketcore/internal/ticket/repository/sqlite"
	"github.com/wastetrack/ticketcore/internal/ticket/review"
	"github.com/wastetrack/ticketcore/internal/ticket/vendor"
)

// app bundles every collaborator a ticketctl subcommand needs, wired
// once per invocation from the loaded config. It is the CLI-level
// analogue of the teacher's package-level `store storage.Storage` global
// (cmd/bd/main.go), kept as an explicit struct instead of globals per the
// core's "no hidden globals" design note (spec §9).
type app struct {
	cfg   *config.Config
	store *repository.Store
}

// openStore opens the repository backend cfg.ResolveDatabase selects.
func openStore(cfg *config.Config) (*repository.Store, error) {
	driver, dsn := cfg.ResolveDatabase()
	switch driver {
	case "mysql":
		return mysql.Open(dsn)
	case "sqlite":
		return sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// newApp opens the configured store and returns an app. Callers must
// Close() it when done.
func newApp(cfg *config.Config) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &app{cfg: cfg, store: store}, nil
}

func (a *app) Close() error { return a.store.Close() }

// buildOrchestrator wires C1 (cache) through C12 (review) into a batch
// Orchestrator, the same composition the page pipeline and batch
// orchestrator tests perform, just assembled from on-disk config instead
// of in-memory fixtures.
func (a *app) buildOrchestrator(processedBy string) *batch.Orchestrator {
	refCache := cache.New(a.store)
	normalizer := normalize.Load(a.cfg.SynonymDictionaryPath, log)
	templates := vendor.LoadTemplates(a.cfg.VendorTemplatesPath, log)
	vendorDet := vendor.New(templates, normalizer, nil, log)
	reviewer := review.New(a.store)
	led := ledger.New(a.store)

	pipe := pipeline.New(refCache, vendorDet, normalizer, a.store, reviewer, nil, pipeline.Config{
		JobCode:             a.cfg.JobCode,
		TicketTypeName:      a.cfg.TicketTypeName,
		ProcessedBy:         processedBy,
		DuplicateWindowDays: a.cfg.DuplicateWindowDays,
	}, log, trace.NewNoopTracerProvider().Tracer("ticketctl"))

	var registerer prometheus.Registerer
	if a.cfg.MetricsEnabled {
		registerer = prometheus.DefaultRegisterer
	}

	return batch.New(pipe, passthrough.NewRasterizer(), passthrough.New(), led, a.store, log, trace.NewNoopTracerProvider().Tracer("ticketctl"), registerer)
}

// batchConfig translates the loaded config.Config into the batch
// package's Config shape.
func (a *app) batchConfig(processedBy string) batch.Config {
	return batch.Config{
		MaxWorkers:          a.cfg.MaxWorkers,
		ChunkSize:           a.cfg.ChunkSize,
		TimeoutPerFile:      a.cfg.TimeoutPerFile,
		RetryAttempts:       a.cfg.RetryAttempts,
		ContinueOnError:     a.cfg.ContinueOnError,
		RollbackOnCritical:  a.cfg.RollbackOnCritical,
		CheckDuplicateFiles: a.cfg.CheckDuplicateFiles,
		ProcessedBy:         processedBy,
	}
}

// currentUser resolves the operator identity recorded as ProcessingRun
// and TruckTicket provenance (processed_by), falling back to "ticketctl"
// when the environment carries no user name (e.g. inside a container).
func currentUser() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "ticketctl"
}
