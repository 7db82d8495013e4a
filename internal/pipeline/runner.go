package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/hydrofetch/internal/catalog"
	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/export"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/couchcryptid/hydrofetch/internal/geo"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	"github.com/google/uuid"
)

// Sources are the upstream clients for one run.
type Sources struct {
	Catalog   catalog.Catalog
	Requester Requester
}

// SourceFactory builds the clients a run needs.
type SourceFactory func(run *config.Run) (Sources, error)

// Sink renders a finished run, e.g. as map layers.
type Sink interface {
	Render(ctx context.Context, l export.Layout, stations []domain.Station, boundary *geo.Boundary, s *domain.RunSummary) error
}

// Publisher announces station outcomes and the run summary.
type Publisher interface {
	PublishRun(ctx context.Context, s *domain.RunSummary) error
}

// Runner executes a retrieval run end to end: boundary, catalog, filter,
// retrieval, aggregation, export.
type Runner struct {
	sources   SourceFactory
	fetcher   *fetch.Fetcher
	writer    *export.Writer
	outputDir string
	workers   int
	sinks     []Sink
	publisher Publisher
	progress  ProgressFunc
	logger    *slog.Logger
	metrics   *observability.Metrics

	ready atomic.Bool

	mu      sync.Mutex
	engine  *Engine
	stopped bool
}

// NewRunner creates a Runner.
func NewRunner(sources SourceFactory, fetcher *fetch.Fetcher, writer *export.Writer, outputDir string, workers int, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		sources:   sources,
		fetcher:   fetcher,
		writer:    writer,
		outputDir: outputDir,
		workers:   workers,
		logger:    logger,
		metrics:   metrics,
	}
}

// WithSinks adds visualization sinks.
func (r *Runner) WithSinks(sinks ...Sink) *Runner {
	r.sinks = append(r.sinks, sinks...)
	return r
}

// WithPublisher sets the outcome publisher.
func (r *Runner) WithPublisher(p Publisher) *Runner {
	r.publisher = p
	return r
}

// OnProgress registers a progress callback for the retrieval stage.
func (r *Runner) OnProgress(fn ProgressFunc) *Runner {
	r.progress = fn
	return r
}

// CheckReadiness returns nil once a run has reached the retrieval stage.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no run has reached retrieval yet")
	}
	return nil
}

// RequestStop asks the active run to stop after the stations in progress.
// A stop requested before retrieval starts applies as soon as it does.
func (r *Runner) RequestStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.engine != nil {
		r.engine.RequestStop()
	}
}

func (r *Runner) attach(e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine = e
	if r.stopped {
		e.RequestStop()
	}
}

// Run executes one retrieval run. Boundary, catalog, and export failures
// are returned as errors; station failures are recorded in the summary. An
// empty work set or a cancelled retrieval is a successful run with
// EmptyFilter or Cancelled set.
func (r *Runner) Run(ctx context.Context, run *config.Run) (*domain.RunSummary, error) {
	r.metrics.RunRunning.Set(1)
	defer r.metrics.RunRunning.Set(0)

	summary := &domain.RunSummary{
		RunID:     uuid.NewString(),
		Source:    run.Source,
		Product:   run.Product,
		Window:    run.Window,
		StartedAt: domain.Now(),
	}
	logger := r.logger.With("run_id", summary.RunID, "area", run.Area, "product", run.Product.String())
	logger.Info("run started", "source", run.Source, "window", run.Window.Start.Format(domain.DateLayout)+".."+run.Window.End.Format(domain.DateLayout))

	boundary, err := geo.ReadBoundary(run.BoundaryPath)
	if err != nil {
		return nil, fmt.Errorf("resolve boundary: %w", err)
	}
	summary.Boundary = boundary.BBox()

	src, err := r.sources(run)
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}
	candidates, err := src.Catalog.FetchCandidates(ctx, summary.Boundary)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	work := catalog.Filter(candidates, run.Categories, boundary)
	summary.Considered = len(work)
	r.metrics.StationsInScope.Set(float64(len(work)))
	logger.Info("stations filtered", "candidates", len(candidates), "in_scope", len(work))

	layout := export.NewLayout(r.outputDir, run)

	if len(work) == 0 {
		summary.EmptyFilter = true
		summary.FinishedAt = domain.Now()
		logger.Warn("run finished without stations", "reason", domain.ErrEmptyFilterResult)
		err := r.writer.Write(layout, run, work, summary, nil)
		r.publish(ctx, summary, logger)
		return summary, err
	}

	engine := NewEngine(r.fetcher, src.Requester, layout.RawDir(), r.workers, r.metrics, logger).OnProgress(r.progress)
	r.attach(engine)
	r.ready.Store(true)

	outcomes, cancelled := engine.Run(ctx, work, run.Product, run.Window, run.Options)
	for _, o := range outcomes {
		summary.Record(o)
		r.metrics.StationOutcomes.WithLabelValues(string(o.Status)).Inc()
	}
	summary.Cancelled = cancelled
	Summarize(summary, work)
	summary.FinishedAt = domain.Now()

	logger.Info("retrieval finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"no_data", summary.NoData,
		"cancelled", summary.Cancelled,
	)

	var errs []error
	if err := r.writer.Write(layout, run, work, summary, engine.URLs()); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}
	for _, sink := range r.sinks {
		if err := sink.Render(ctx, layout, work, boundary, summary); err != nil {
			errs = append(errs, fmt.Errorf("render: %w", err))
		}
	}
	r.publish(ctx, summary, logger)

	return summary, errors.Join(errs...)
}

// publish failures are logged; the run's files are already on disk.
func (r *Runner) publish(ctx context.Context, s *domain.RunSummary, logger *slog.Logger) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishRun(ctx, s); err != nil {
		logger.Error("publish run failed", "error", err)
	}
}
