package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/hydrofetch/internal/catalog"
	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/export"
	"github.com/couchcryptid/hydrofetch/internal/normalize"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	"github.com/couchcryptid/hydrofetch/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const boxBoundary = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},
"geometry":{"type":"Polygon","coordinates":[[[-91,29],[-89,29],[-89,31],[-91,31],[-91,29]]]}}]}`

type recordingPublisher struct {
	runs []*domain.RunSummary
}

func (p *recordingPublisher) PublishRun(_ context.Context, s *domain.RunSummary) error {
	p.runs = append(p.runs, s)
	return nil
}

type failingCatalog struct{}

func (failingCatalog) FetchCandidates(context.Context, domain.BBox) ([]domain.Station, error) {
	return nil, fmt.Errorf("%w: inventory down", domain.ErrCatalogUnavailable)
}

func writeBoundary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "area.geojson")
	require.NoError(t, os.WriteFile(path, []byte(boxBoundary), 0o644))
	return path
}

func testRun(t *testing.T, boundary string) *config.Run {
	return &config.Run{
		Area:         "lake_area",
		Source:       domain.SourceNOAA,
		Product:      domain.ProductWaterLevel,
		BoundaryPath: boundary,
		Window:       window(t, "2024-01-01", "2024-01-10"),
		Options:      domain.DefaultRetrievalOptions(),
	}
}

func newRunner(t *testing.T, cat catalog.Catalog, srvURL string) (*pipeline.Runner, string) {
	t.Helper()
	out := t.TempDir()
	sources := func(*config.Run) (pipeline.Sources, error) {
		return pipeline.Sources{Catalog: cat, Requester: stubRequester{base: srvURL, src: domain.SourceNOAA}}, nil
	}
	r := pipeline.NewRunner(sources, testFetcher(), export.NewWriter(false, testLogger()), out, 2,
		testLogger(), observability.NewMetricsForTesting())
	return r, out
}

func TestRunner_Run_EndToEnd(t *testing.T) {
	up := newUpstream()
	up.bodies["/A/0"] = levelBody("2024-01-01 00:00, 1.0", "2024-01-01 01:00, 3.0")
	up.bodies["/B/0"] = normalize.NoDataSentinel + "\n"
	srv := httptest.NewServer(up)
	defer srv.Close()

	layer := catalog.NewPointLayer([]domain.Station{
		{ID: "A", Name: "Alpha", Category: "Water Level", Lat: 30, Lon: -90},
		{ID: "B", Name: "Bravo", Category: "Water Level", Lat: 29.5, Lon: -90.5},
		{ID: "A", Name: "Alpha again", Category: "Water Level", Lat: 30, Lon: -90},
		{ID: "Z", Name: "Outside", Category: "Water Level", Lat: 35, Lon: -80},
	}, testLogger())

	pub := &recordingPublisher{}
	r, out := newRunner(t, layer, srv.URL)
	r.WithSinks(export.NewGeoJSONSink(testLogger())).WithPublisher(pub)

	require.Error(t, r.CheckReadiness(context.Background()))

	run := testRun(t, writeBoundary(t))
	s, err := r.Run(context.Background(), run)
	require.NoError(t, err)

	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, 2, s.Considered)
	assert.Equal(t, 2, s.Attempted)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.NoData)
	assert.Zero(t, s.Failed)
	assert.False(t, s.Cancelled)
	assert.Len(t, s.Combined, 2)
	assert.Equal(t, domain.BBox{MinLon: -91, MinLat: 29, MaxLon: -89, MaxLat: 31}, s.Boundary)
	require.NoError(t, r.CheckReadiness(context.Background()))

	root := filepath.Join(out, "lake_area", "water_level")
	for _, name := range []string{
		export.CombinedCSVFile,
		export.StatisticsFile,
		export.StationsFile,
		export.SuccessfulStationsFile,
		export.BoundaryFile,
		export.DownloadURLsFile,
		export.RunMetadataFile,
		filepath.Join("csv", "A.csv"),
		filepath.Join("raw", "A.csv"),
	} {
		assert.FileExists(t, filepath.Join(root, name))
	}
	assert.NoFileExists(t, filepath.Join(root, "csv", "B.csv"))

	data, err := os.ReadFile(filepath.Join(root, export.RunMetadataFile))
	require.NoError(t, err)
	var meta export.Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, s.RunID, meta.RunID)
	assert.Equal(t, 1, meta.Counts.Succeeded)
	assert.Equal(t, "2024-01-01", meta.Start)
	require.Len(t, meta.Outcomes, 2)
	assert.Equal(t, domain.StatusNoData, meta.Outcomes[1].Status)

	require.Len(t, pub.runs, 1)
	assert.Equal(t, s.RunID, pub.runs[0].RunID)
}

func TestRunner_Run_SecondRunIsServedFromDisk(t *testing.T) {
	up := newUpstream()
	up.bodies["/A/0"] = levelBody("2024-01-01 00:00, 1.0")
	srv := httptest.NewServer(up)
	defer srv.Close()

	layer := catalog.NewPointLayer([]domain.Station{{ID: "A", Name: "Alpha", Lat: 30, Lon: -90}}, testLogger())
	r, _ := newRunner(t, layer, srv.URL)
	run := testRun(t, writeBoundary(t))

	_, err := r.Run(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, 1, up.total())

	s, err := r.Run(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 1, up.total(), "no requests on rerun")
	assert.True(t, s.Outcomes[0].Cached)
	assert.Equal(t, 1, s.Succeeded)
}

func TestRunner_Run_EmptyFilterResult(t *testing.T) {
	up := newUpstream()
	srv := httptest.NewServer(up)
	defer srv.Close()

	layer := catalog.NewPointLayer([]domain.Station{{ID: "Z", Lat: 35, Lon: -80}}, testLogger())
	pub := &recordingPublisher{}
	r, out := newRunner(t, layer, srv.URL)
	r.WithPublisher(pub)

	s, err := r.Run(context.Background(), testRun(t, writeBoundary(t)))
	require.NoError(t, err)
	assert.True(t, s.EmptyFilter)
	assert.Zero(t, s.Considered)
	assert.Zero(t, s.Attempted)
	assert.Zero(t, up.total())
	assert.FileExists(t, filepath.Join(out, "lake_area", "water_level", export.RunMetadataFile))
	assert.Len(t, pub.runs, 1)
}

func TestRunner_Run_BoundaryError(t *testing.T) {
	r, _ := newRunner(t, failingCatalog{}, "http://unused")
	_, err := r.Run(context.Background(), testRun(t, filepath.Join(t.TempDir(), "missing.geojson")))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeometry)
}

func TestRunner_Run_CatalogUnavailable(t *testing.T) {
	r, _ := newRunner(t, failingCatalog{}, "http://unused")
	_, err := r.Run(context.Background(), testRun(t, writeBoundary(t)))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
}

func TestRunner_RequestStopBeforeRun(t *testing.T) {
	up := newUpstream()
	up.bodies["/A/0"] = levelBody("2024-01-01 00:00, 1.0")
	srv := httptest.NewServer(up)
	defer srv.Close()

	layer := catalog.NewPointLayer([]domain.Station{{ID: "A", Lat: 30, Lon: -90}}, testLogger())
	r, _ := newRunner(t, layer, srv.URL)
	r.RequestStop()

	s, err := r.Run(context.Background(), testRun(t, writeBoundary(t)))
	require.NoError(t, err)
	assert.True(t, s.Cancelled)
	assert.Zero(t, s.Attempted)
	assert.Zero(t, up.total())
}
