package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/couchcryptid/hydrofetch/internal/normalize"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Requester builds upstream URLs for one source and decodes its bodies.
type Requester interface {
	Source() domain.Source
	URL(q domain.ProductQuery, r domain.SubRange) string
	Decode(body []byte) ([]byte, error)
}

// Progress is emitted after every station completes.
type Progress struct {
	Done      int           `json:"done"`
	Total     int           `json:"total"`
	StationID string        `json:"station_id"`
	Status    domain.Status `json:"status"`
}

// ProgressFunc receives progress events. It is only ever called from the
// goroutine that drives the engine.
type ProgressFunc func(Progress)

// Engine fetches and normalizes one product for a set of stations. An
// Engine serves a single run.
type Engine struct {
	fetcher   *fetch.Fetcher
	requester Requester
	rawDir    string
	workers   int
	metrics   *observability.Metrics
	logger    *slog.Logger
	progress  ProgressFunc

	stop     chan struct{}
	stopOnce sync.Once

	urlMu sync.Mutex
	urls  []string
}

// NewEngine creates an Engine that stages raw responses under rawDir.
func NewEngine(fetcher *fetch.Fetcher, requester Requester, rawDir string, workers int, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		fetcher:   fetcher,
		requester: requester,
		rawDir:    rawDir,
		workers:   workers,
		metrics:   metrics,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// OnProgress registers a progress callback.
func (e *Engine) OnProgress(fn ProgressFunc) *Engine {
	e.progress = fn
	return e
}

// RequestStop asks the engine to stop issuing new station fetches. It is
// safe to call from any goroutine and more than once.
func (e *Engine) RequestStop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) stopRequested() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

// URLs lists every request URL the engine issued, in issue order.
func (e *Engine) URLs() []string {
	e.urlMu.Lock()
	defer e.urlMu.Unlock()
	return append([]string(nil), e.urls...)
}

func (e *Engine) logURL(u string) {
	e.urlMu.Lock()
	e.urls = append(e.urls, u)
	e.urlMu.Unlock()
}

type result struct {
	index   int
	outcome domain.StationOutcome
	// discarded results were interrupted by a stop and are not reported.
	discarded bool
}

// Run retrieves every station. Pooled products fan out across the worker
// pool; others run one station at a time. The returned outcomes are in
// station order. cancelled is true when a stop or context cancellation cut
// the run short; the outcomes completed before that point are still
// returned.
func (e *Engine) Run(ctx context.Context, stations []domain.Station, p domain.Product, window domain.DateRange, opts domain.RetrievalOptions) (outcomes []domain.StationOutcome, cancelled bool) {
	d := p.Descriptor()
	if err := os.MkdirAll(e.rawDir, 0o755); err != nil {
		e.logger.Error("create staging directory failed", "dir", e.rawDir, "error", err)
		for _, st := range stations {
			outcomes = append(outcomes, domain.StationOutcome{
				StationID: st.Key(),
				Status:    domain.StatusFailed,
				Stage:     domain.StageFetch,
				Err:       fmt.Errorf("create staging directory: %w", err),
			})
		}
		return outcomes, false
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	results := make(chan result)
	if d.Pooled && e.workers > 1 {
		go e.pooled(runCtx, stations, d, window, opts, results)
	} else {
		go e.sequential(ctx, stations, d, window, opts, results)
	}

	indexed := make([]result, 0, len(stations))
	for res := range results {
		if res.discarded {
			continue
		}
		indexed = append(indexed, res)
		if e.progress != nil {
			e.progress(Progress{
				Done:      len(indexed),
				Total:     len(stations),
				StationID: res.outcome.StationID,
				Status:    res.outcome.Status,
			})
		}
	}

	sort.Slice(indexed, func(i, j int) bool { return indexed[i].index < indexed[j].index })
	outcomes = make([]domain.StationOutcome, len(indexed))
	for i, res := range indexed {
		outcomes[i] = res.outcome
	}
	cancelled = len(outcomes) < len(stations) && (e.stopRequested() || ctx.Err() != nil)
	return outcomes, cancelled
}

// pooled fans stations out on a bounded errgroup. Stopping cancels ctx,
// which aborts in-flight requests; their results are discarded.
func (e *Engine) pooled(ctx context.Context, stations []domain.Station, d domain.Descriptor, window domain.DateRange, opts domain.RetrievalOptions, results chan<- result) {
	defer close(results)

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i, st := range stations {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, ok := e.station(ctx, st, d, window, opts)
			results <- result{index: i, outcome: o, discarded: !ok}
			return nil
		})
	}
	_ = g.Wait()
}

// sequential processes stations in order, checking for a stop between
// stations and between chunks. Requests already on the wire run to
// completion unless ctx itself is cancelled.
func (e *Engine) sequential(ctx context.Context, stations []domain.Station, d domain.Descriptor, window domain.DateRange, opts domain.RetrievalOptions, results chan<- result) {
	defer close(results)

	for i, st := range stations {
		if e.stopRequested() || ctx.Err() != nil {
			return
		}
		o, ok := e.station(ctx, st, d, window, opts)
		results <- result{index: i, outcome: o, discarded: !ok}
	}
}

// station fetches, merges, and normalizes one station. ok is false when a
// stop interrupted the work.
func (e *Engine) station(ctx context.Context, st domain.Station, d domain.Descriptor, window domain.DateRange, opts domain.RetrievalOptions) (domain.StationOutcome, bool) {
	id := st.Key()
	out := domain.StationOutcome{StationID: id}
	q := domain.NewProductQuery(id, d.Product, window, opts)
	combined := filepath.Join(e.rawDir, id+"."+d.Extension())

	if fetch.Exists(combined) {
		out.Cached = true
		e.metrics.FetchSkipped.WithLabelValues(string(d.Source)).Inc()
		e.logger.Debug("combined file present, skipping fetch", "station", id, "path", combined)
	} else {
		chunks := make([]string, 0, len(q.Ranges))
		for _, r := range q.Ranges {
			if e.interrupted(ctx) {
				return out, false
			}
			path := chunkPath(e.rawDir, id, r.Index, d.Extension())
			u := e.requester.URL(q, r)
			skipped, err := e.fetcher.ToFile(ctx, e.requester.Source(), u, path, e.requester.Decode)
			if err != nil {
				if e.interrupted(ctx) {
					return out, false
				}
				e.logger.Warn("station fetch failed", "station", id, "range", r.String(), "error", err)
				return failed(out, domain.StageFetch, err), true
			}
			if !skipped {
				e.logURL(u)
			}
			chunks = append(chunks, path)
		}
		if err := mergeChunkFiles(chunks, combined, d); err != nil {
			return failed(out, domain.StageFetch, err), true
		}
	}

	body, err := os.ReadFile(combined)
	if err != nil {
		return failed(out, domain.StageFetch, fmt.Errorf("read %s: %w", combined, err)), true
	}
	series, rep, err := normalize.Parse(body, d, id)
	if err != nil {
		out.Status = domain.Classify(err)
		out.Stage = domain.StageNormalize
		out.Err = err
		e.logger.Info("station produced no usable rows", "station", id, "status", out.Status, "error", err)
		return out, true
	}
	series.SortByTime()
	e.metrics.RowsNormalized.Add(float64(series.Len()))
	e.logger.Debug("station normalized",
		"station", id,
		"rows", rep.Rows,
		"kept", rep.Kept,
		"sentinel", rep.Sentinel,
		"malformed", rep.Malformed,
		"non_numeric", rep.NonNumeric,
	)

	out.Status = domain.StatusSuccess
	out.Rows = series.Len()
	out.Series = series
	return out, true
}

func (e *Engine) interrupted(ctx context.Context) bool {
	return e.stopRequested() || ctx.Err() != nil
}

func failed(o domain.StationOutcome, stage domain.Stage, err error) domain.StationOutcome {
	o.Status = domain.StatusFailed
	o.Stage = stage
	o.Err = err
	return o
}

func chunkPath(dir, stationID string, index int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_chunk%d.%s", stationID, index, ext))
}

// mergeChunkFiles writes the combined station file and removes the chunk
// files. A single chunk is renamed so the raw response is kept verbatim.
func mergeChunkFiles(chunks []string, dest string, d domain.Descriptor) error {
	if len(chunks) == 1 {
		if err := os.Rename(chunks[0], dest); err != nil {
			return fmt.Errorf("rename chunk: %w", err)
		}
		return nil
	}

	bodies := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		b, err := os.ReadFile(c)
		if err != nil {
			return fmt.Errorf("read chunk %s: %w", c, err)
		}
		bodies = append(bodies, b)
	}
	if err := fetch.WriteFileAtomic(dest, normalize.MergeChunks(bodies, d)); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := os.Remove(c); err != nil {
			return fmt.Errorf("remove chunk %s: %w", c, err)
		}
	}
	return nil
}
