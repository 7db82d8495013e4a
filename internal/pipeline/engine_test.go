package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/couchcryptid/hydrofetch/internal/normalize"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	"github.com/couchcryptid/hydrofetch/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// upstream serves canned bodies keyed by "/<station>/<chunk>" and counts hits.
type upstream struct {
	mu     sync.Mutex
	bodies map[string]string
	status map[string]int
	hits   map[string]int
}

func newUpstream() *upstream {
	return &upstream{bodies: map[string]string{}, status: map[string]int{}, hits: map[string]int{}}
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.hits[r.URL.Path]++
	body, ok := u.bodies[r.URL.Path]
	code := u.status[r.URL.Path]
	u.mu.Unlock()

	if code != 0 {
		w.WriteHeader(code)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write([]byte(body))
}

func (u *upstream) total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.hits {
		n += c
	}
	return n
}

func (u *upstream) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

type stubRequester struct {
	base string
	src  domain.Source
}

func (s stubRequester) Source() domain.Source { return s.src }

func (s stubRequester) URL(q domain.ProductQuery, r domain.SubRange) string {
	return fmt.Sprintf("%s/%s/%d", s.base, q.StationID, r.Index)
}

func (s stubRequester) Decode(body []byte) ([]byte, error) { return body, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Options{Timeout: 5 * time.Second, Attempts: 2}, observability.NewMetricsForTesting(), testLogger())
}

func newEngine(t *testing.T, srv *httptest.Server, src domain.Source, workers int) (*pipeline.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e := pipeline.NewEngine(testFetcher(), stubRequester{base: srv.URL, src: src}, dir, workers,
		observability.NewMetricsForTesting(), testLogger())
	return e, dir
}

func stations(ids ...string) []domain.Station {
	out := make([]domain.Station, len(ids))
	for i, id := range ids {
		out[i] = domain.Station{ID: id, Name: "Station " + id, Lat: 30, Lon: -90}
	}
	return out
}

func window(t *testing.T, start, end string) domain.DateRange {
	t.Helper()
	r, err := domain.ParseDateRange(start, end)
	require.NoError(t, err)
	return r
}

func levelBody(rows ...string) string {
	return "Date Time, Water Level\n" + strings.Join(rows, "\n") + "\n"
}

func ivBody(site string, values ...string) string {
	var b strings.Builder
	b.WriteString("# comment\nagency_cd\tsite_no\tdatetime\ttz_cd\tx_00060\tx_00060_cd\n5s\t15s\t20d\t6s\t14n\t10s\n")
	for i, v := range values {
		fmt.Fprintf(&b, "USGS\t%s\t2024-01-01 00:%02d\tCST\t%s\tP\n", site, i*15, v)
	}
	return b.String()
}

// --- tests ---

func TestEngine_ChunksMergedAndSorted(t *testing.T) {
	up := newUpstream()
	up.bodies["/8761724/0"] = levelBody("2024-01-20 00:00, 0.7")
	up.bodies["/8761724/1"] = levelBody("2024-01-05 00:00, 0.3", "2024-02-10 00:00, 0.9")
	srv := httptest.NewServer(up)
	defer srv.Close()

	e, dir := newEngine(t, srv, domain.SourceNOAA, 1)
	opts := domain.DefaultRetrievalOptions()
	outcomes, cancelled := e.Run(context.Background(), stations("8761724"), domain.ProductWaterLevel,
		window(t, "2024-01-01", "2024-02-14"), opts)

	require.False(t, cancelled)
	require.Len(t, outcomes, 1)
	o := outcomes[0]
	require.Equal(t, domain.StatusSuccess, o.Status, o.ErrorText())
	assert.Equal(t, 3, o.Rows)
	assert.Equal(t, []float64{0.3, 0.7, 0.9}, o.Series.Column("water_level"))

	assert.FileExists(t, filepath.Join(dir, "8761724.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "8761724_chunk0.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "8761724_chunk1.csv"))
	assert.Len(t, e.URLs(), 2)
}

func TestEngine_CombinedFileSkipsAllRequests(t *testing.T) {
	up := newUpstream()
	srv := httptest.NewServer(up)
	defer srv.Close()

	e, dir := newEngine(t, srv, domain.SourceNOAA, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "8761724.csv"), []byte(levelBody("2024-01-01 00:00, 1.5")), 0o644))

	outcomes, _ := e.Run(context.Background(), stations("8761724"), domain.ProductWaterLevel,
		window(t, "2024-01-01", "2024-03-31"), domain.DefaultRetrievalOptions())

	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.StatusSuccess, outcomes[0].Status)
	assert.True(t, outcomes[0].Cached)
	assert.Zero(t, up.total())
	assert.Empty(t, e.URLs())
}

func TestEngine_ExistingChunkNotRefetched(t *testing.T) {
	up := newUpstream()
	up.bodies["/8761724/1"] = levelBody("2024-02-05 00:00, 2.0")
	srv := httptest.NewServer(up)
	defer srv.Close()

	e, dir := newEngine(t, srv, domain.SourceNOAA, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "8761724_chunk0.csv"), []byte(levelBody("2024-01-05 00:00, 1.0")), 0o644))

	outcomes, _ := e.Run(context.Background(), stations("8761724"), domain.ProductWaterLevel,
		window(t, "2024-01-01", "2024-02-14"), domain.DefaultRetrievalOptions())

	require.Len(t, outcomes, 1)
	assert.Equal(t, []float64{1.0, 2.0}, outcomes[0].Series.Column("water_level"))
	assert.Zero(t, up.count("/8761724/0"))
	assert.Equal(t, 1, up.count("/8761724/1"))
}

func TestEngine_OutcomesAreTriState(t *testing.T) {
	up := newUpstream()
	up.bodies["/A/0"] = levelBody("2024-01-01 00:00, 1.0")
	up.bodies["/B/0"] = normalize.NoDataSentinel + "\n"
	up.status["/C/0"] = http.StatusInternalServerError
	srv := httptest.NewServer(up)
	defer srv.Close()

	e, _ := newEngine(t, srv, domain.SourceNOAA, 1)
	outcomes, cancelled := e.Run(context.Background(), stations("A", "B", "C"), domain.ProductWaterLevel,
		window(t, "2024-01-01", "2024-01-10"), domain.DefaultRetrievalOptions())
	require.False(t, cancelled)
	require.Len(t, outcomes, 3)

	assert.Equal(t, domain.StatusSuccess, outcomes[0].Status)
	assert.Equal(t, domain.StatusNoData, outcomes[1].Status)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrNoValidData)
	assert.Equal(t, domain.StatusFailed, outcomes[2].Status)
	assert.Equal(t, domain.StageFetch, outcomes[2].Stage)
	assert.ErrorIs(t, outcomes[2].Err, domain.ErrFetchFailure)
	assert.Equal(t, 2, up.count("/C/0"), "failed station uses every attempt")

	var s domain.RunSummary
	for _, o := range outcomes {
		s.Record(o)
	}
	assert.Equal(t, 3, s.Attempted)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.NoData)
	assert.Equal(t, 1, s.Failed)
}

func TestEngine_FailureIsolatedInPool(t *testing.T) {
	up := newUpstream()
	ids := []string{"01", "02", "03", "04", "05", "06"}
	for _, id := range ids {
		up.bodies["/"+id+"/0"] = ivBody(id, "10", "20")
	}
	up.status["/03/0"] = http.StatusBadGateway
	srv := httptest.NewServer(up)
	defer srv.Close()

	e, _ := newEngine(t, srv, domain.SourceUSGS, 4)
	var progress []pipeline.Progress
	e.OnProgress(func(p pipeline.Progress) { progress = append(progress, p) })

	outcomes, cancelled := e.Run(context.Background(), stations(ids...), domain.ProductInstantaneous,
		window(t, "2024-01-01", "2024-01-02"), domain.DefaultRetrievalOptions())

	require.False(t, cancelled)
	require.Len(t, outcomes, len(ids))
	for i, o := range outcomes {
		assert.Equal(t, ids[i], o.StationID, "outcomes keep station order")
		if o.StationID == "03" {
			assert.Equal(t, domain.StatusFailed, o.Status)
			continue
		}
		assert.Equal(t, domain.StatusSuccess, o.Status, o.ErrorText())
		assert.Equal(t, 2, o.Rows)
	}

	require.Len(t, progress, len(ids))
	for i, p := range progress {
		assert.Equal(t, i+1, p.Done)
		assert.Equal(t, len(ids), p.Total)
	}
}

func TestEngine_StopReturnsPartialResults(t *testing.T) {
	up := newUpstream()
	for _, id := range []string{"A", "B", "C"} {
		up.bodies["/"+id+"/0"] = levelBody("2024-01-01 00:00, 1.0")
	}
	srv := httptest.NewServer(up)
	defer srv.Close()

	e, _ := newEngine(t, srv, domain.SourceNOAA, 1)
	e.OnProgress(func(p pipeline.Progress) {
		if p.Done == 1 {
			e.RequestStop()
		}
	})

	outcomes, cancelled := e.Run(context.Background(), stations("A", "B", "C"), domain.ProductWaterLevel,
		window(t, "2024-01-01", "2024-01-10"), domain.DefaultRetrievalOptions())

	assert.True(t, cancelled)
	require.NotEmpty(t, outcomes)
	assert.Less(t, len(outcomes), 3)
	assert.Equal(t, "A", outcomes[0].StationID)
	assert.Equal(t, domain.StatusSuccess, outcomes[0].Status)
}

func TestEngine_StopBeforeRun(t *testing.T) {
	up := newUpstream()
	srv := httptest.NewServer(up)
	defer srv.Close()

	e, _ := newEngine(t, srv, domain.SourceUSGS, 4)
	e.RequestStop()
	e.RequestStop()

	outcomes, cancelled := e.Run(context.Background(), stations("01", "02"), domain.ProductInstantaneous,
		window(t, "2024-01-01", "2024-01-02"), domain.DefaultRetrievalOptions())
	assert.True(t, cancelled)
	assert.Empty(t, outcomes)
	assert.Zero(t, up.total())
}

func TestEngine_MixedOutcomesAcrossTenStations(t *testing.T) {
	up := newUpstream()
	ids := []string{"S01", "S02", "S03", "S04", "S05", "S06", "S07", "S08", "S09", "S10"}
	for _, id := range ids[:6] {
		up.bodies["/"+id+"/0"] = levelBody("2024-01-01 00:00, 0.5", "2024-01-01 00:06, 0.6")
	}
	up.status["/S07/0"] = http.StatusServiceUnavailable
	up.status["/S08/0"] = http.StatusInternalServerError
	up.bodies["/S09/0"] = "Date Time\n2024-01-01 00:00\n"
	up.bodies["/S10/0"] = normalize.NoDataSentinel + "\n"
	srv := httptest.NewServer(up)
	defer srv.Close()

	e, _ := newEngine(t, srv, domain.SourceNOAA, 1)
	outcomes, cancelled := e.Run(context.Background(), stations(ids...), domain.ProductWaterLevel,
		window(t, "2024-01-01", "2024-01-05"), domain.DefaultRetrievalOptions())
	require.False(t, cancelled)

	var s domain.RunSummary
	for _, o := range outcomes {
		s.Record(o)
	}
	assert.Equal(t, 10, s.Attempted)
	assert.Equal(t, 6, s.Succeeded)
	assert.Equal(t, 3, s.Failed)
	assert.Equal(t, 1, s.NoData)

	schema, ok := s.Outcome("S09")
	require.True(t, ok)
	assert.ErrorIs(t, schema.Err, domain.ErrSchemaMismatch)
	assert.Equal(t, domain.StageNormalize, schema.Stage)

	fetchErr, ok := s.Outcome("S07")
	require.True(t, ok)
	assert.ErrorIs(t, fetchErr.Err, domain.ErrFetchFailure)
	assert.Equal(t, 2, up.count("/S07/0"), "every attempt is spent before giving up")
}
