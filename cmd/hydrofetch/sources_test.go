package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/adapter/noaa"
	"github.com/couchcryptid/hydrofetch/internal/adapter/usgs"
	"github.com/couchcryptid/hydrofetch/internal/adapter/wqp"
	"github.com/couchcryptid/hydrofetch/internal/catalog"
	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	"github.com/couchcryptid/hydrofetch/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointLayer = `{"type":"FeatureCollection","features":[{"type":"Feature",
"properties":{"id":"8761724","name":"Grand Isle","type":"Water Level"},
"geometry":{"type":"Point","coordinates":[-89.957,29.263]}}]}`

func testConfig() *config.Config {
	return &config.Config{
		FetchTimeout:     30 * time.Second,
		WQPTimeout:       600 * time.Second,
		FetchAttempts:    3,
		RetryDelay:       5 * time.Second,
		USGSInventoryURL: config.DefaultUSGSInventoryURL,
		USGSIVURL:        config.DefaultUSGSIVURL,
		USGSDVURL:        config.DefaultUSGSDVURL,
		NOAAURL:          config.DefaultNOAAURL,
		WQPURL:           config.DefaultWQPURL,
	}
}

func testFactory() pipeline.SourceFactory {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := fetch.New(fetch.Options{Attempts: 1}, observability.NewMetricsForTesting(), logger)
	return sourceFactory(testConfig(), f, logger)
}

func TestSourceFactory(t *testing.T) {
	stations := filepath.Join(t.TempDir(), "stations.geojson")
	require.NoError(t, os.WriteFile(stations, []byte(pointLayer), 0o644))
	build := testFactory()

	t.Run("usgs uses the inventory", func(t *testing.T) {
		src, err := build(&config.Run{Source: domain.SourceUSGS})
		require.NoError(t, err)
		assert.IsType(t, &usgs.InventoryClient{}, src.Catalog)
		assert.IsType(t, &usgs.Requester{}, src.Requester)
	})

	t.Run("noaa uses the point layer", func(t *testing.T) {
		src, err := build(&config.Run{Source: domain.SourceNOAA, StationsPath: stations})
		require.NoError(t, err)
		assert.IsType(t, &catalog.PointLayer{}, src.Catalog)
		assert.IsType(t, &noaa.Requester{}, src.Requester)
	})

	t.Run("noaa without a point layer", func(t *testing.T) {
		_, err := build(&config.Run{Source: domain.SourceNOAA})
		require.Error(t, err)
	})

	t.Run("epa uses station search", func(t *testing.T) {
		src, err := build(&config.Run{Source: domain.SourceEPA})
		require.NoError(t, err)
		assert.IsType(t, &wqp.StationClient{}, src.Catalog)
		assert.IsType(t, &wqp.Requester{}, src.Requester)
	})

	t.Run("epa with a point layer", func(t *testing.T) {
		src, err := build(&config.Run{Source: domain.SourceEPA, StationsPath: stations})
		require.NoError(t, err)
		assert.IsType(t, &catalog.PointLayer{}, src.Catalog)
	})

	t.Run("missing point layer file", func(t *testing.T) {
		_, err := build(&config.Run{Source: domain.SourceNOAA, StationsPath: filepath.Join(t.TempDir(), "nope.geojson")})
		require.ErrorIs(t, err, domain.ErrGeometry)
	})
}

func TestDataTimeout(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 30*time.Second, dataTimeout(cfg, domain.SourceUSGS).Timeout)
	assert.Equal(t, 600*time.Second, dataTimeout(cfg, domain.SourceEPA).Timeout)
	assert.Equal(t, 3, dataTimeout(cfg, domain.SourceNOAA).Attempts)
}
