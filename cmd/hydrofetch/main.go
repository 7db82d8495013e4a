// Command hydrofetch runs one hydrology retrieval: it resolves the area
// boundary, selects stations, downloads their records, and writes the
// normalized results under OUTPUT_DIR.
//
// Usage:
//
//	hydrofetch -run runs/baton_rouge_iv.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/hydrofetch/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hydrofetch/internal/adapter/kafka"
	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/export"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	"github.com/couchcryptid/hydrofetch/internal/pipeline"
)

func main() {
	runPath := flag.String("run", "", "path to the YAML run definition")
	flag.Parse()
	if *runPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	run, err := config.LoadRun(*runPath, cfg)
	if err != nil {
		logger.Error("invalid run definition", "path", *runPath, "error", err)
		os.Exit(1)
	}

	catalogFetcher := fetch.New(fetch.Options{
		Timeout:   cfg.CatalogTimeout,
		Attempts:  cfg.FetchAttempts,
		Delay:     cfg.RetryDelay,
		UserAgent: cfg.UserAgent,
	}, metrics, logger)
	dataFetcher := fetch.New(dataTimeout(cfg, run.Source), metrics, logger)

	tracker := &pipeline.ProgressTracker{}
	runner := pipeline.NewRunner(
		sourceFactory(cfg, catalogFetcher, logger),
		dataFetcher,
		export.NewWriter(cfg.ParquetExport, logger),
		cfg.OutputDir,
		cfg.Workers,
		logger,
		metrics,
	).WithSinks(export.NewGeoJSONSink(logger)).OnProgress(func(p pipeline.Progress) {
		tracker.Update(p)
		logger.Info("station done", "done", p.Done, "total", p.Total, "station", p.StationID, "status", p.Status)
	})

	var publisher *kafkaadapter.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafkaadapter.NewPublisher(cfg, metrics, logger)
		runner.WithPublisher(publisher)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, runner, tracker, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	// The first signal stops new station work and lets the run write what it
	// has; a second one terminates the process.
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		stop()
		logger.Info("stop requested, finishing stations in flight")
		runner.RequestStop()
	}()

	exit := 0
	summary, err := runner.Run(context.Background(), run)
	switch {
	case err != nil && summary == nil:
		logger.Error("run failed", "error", err)
		exit = 1
	case err != nil:
		logger.Error("run finished with output errors", "run_id", summary.RunID, "error", err)
		exit = 1
	case summary.Cancelled:
		logger.Warn("run cancelled, partial results written", "run_id", summary.RunID, "succeeded", summary.Succeeded)
	default:
		logger.Info("run complete", "run_id", summary.RunID, "succeeded", summary.Succeeded, "failed", summary.Failed, "no_data", summary.NoData)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if exit != 0 {
		cancel()
		os.Exit(exit)
	}
}
