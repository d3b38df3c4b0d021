package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cardvault/cardvault/internal/catalog"
	"github.com/cardvault/cardvault/internal/config"
	"github.com/cardvault/cardvault/internal/identify"
	"github.com/cardvault/cardvault/internal/ingest"
	"github.com/cardvault/cardvault/internal/metrics"
	"github.com/cardvault/cardvault/internal/storage"
	"github.com/cardvault/cardvault/internal/web"
	"github.com/spf13/pflag"
)

func main() {
	// Flag defaults mirror config.Default so an untouched flag never
	// overrides a value from the file or environment layers.
	def := config.Default()
	flags := pflag.NewFlagSet("cardvault", pflag.ExitOnError)
	cfgPath := flags.String("config", "", "Path to a YAML config file")
	flags.String("database.path", def.Database.Path, "Path to the SQLite database file")
	flags.String("catalog.base_url", def.Catalog.BaseURL, "Catalog API base URL")
	flags.String("catalog.api_key", def.Catalog.APIKey, "Catalog API key")
	flags.String("catalog.team_id", def.Catalog.TeamID, "Catalog API team identifier")
	flags.Int("ingest.workers", def.Ingest.Workers, "Parallel persistence workers (1 = sequential)")
	flags.String("ingest.write_policy", def.Ingest.WritePolicy, "Card write policy: insert or upsert")
	flags.Bool("serve.enabled", def.Serve.Enabled, "Serve the HTTP surface after the run")
	flags.String("serve.addr", def.Serve.Addr, "HTTP listen address")
	flags.String("identify.base_url", def.Identify.BaseURL, "Card-identification service URL")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*cfgPath, flags)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

// run returns the process exit code: 0 for a completed run even with
// per-card errors, 1 only for setup failure or a fatal fetch abort.
func run(cfg config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	m := metrics.NewRegistry()

	fetcher := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.Catalog.TeamID)
	fetcher.PageSize = cfg.Catalog.PageSize
	fetcher.PageDelay = cfg.Catalog.PageDelay
	fetcher.Retries = cfg.Catalog.Retries
	fetcher.RetryWait = cfg.Catalog.RetryWait
	fetcher.Metrics = m

	runner := &ingest.Runner{
		Fetcher: fetcher,
		Persister: &ingest.Persister{
			Store:  db,
			Policy: ingest.WritePolicy(cfg.Ingest.WritePolicy),
		},
		Metrics:   m,
		PaceEvery: cfg.Ingest.PaceEvery,
		PaceDelay: cfg.Ingest.PaceDelay,
		Workers:   cfg.Ingest.Workers,
	}

	report, runErr := runner.Run(ctx)
	recordRun(db, report)
	if runErr != nil {
		return 1
	}

	if cfg.Serve.Enabled {
		identifier := identify.NewClient(cfg.Identify.BaseURL, cfg.Identify.Timeout)
		srv := web.NewServer(db, identifier, m)
		slog.Info("serving HTTP surface", "addr", cfg.Serve.Addr)
		if err := http.ListenAndServe(cfg.Serve.Addr, srv); err != nil {
			slog.Error("HTTP server failed", "error", err)
			return 1
		}
	}
	return 0
}

// recordRun stores the run summary; a failure here is logged, not fatal.
func recordRun(db *storage.DB, report ingest.Report) {
	err := db.InsertRun(storage.Run{
		ID:         report.RunID.String(),
		StartedAt:  report.StartedAt,
		FinishedAt: sql.NullTime{Time: report.FinishedAt, Valid: !report.FinishedAt.IsZero()},
		Total:      report.Total,
		Success:    report.Success,
		Errors:     report.Errors,
		UniqueSets: report.UniqueSets,
		Priced:     report.Priced,
		Aborted:    report.Aborted,
	})
	if err != nil {
		slog.Warn("failed to record run summary", "run_id", report.RunID, "error", err)
	}
}
