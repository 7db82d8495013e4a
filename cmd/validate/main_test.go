package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// writeRun exports a two-station water level run and returns its layout.
func writeRun(t *testing.T) export.Layout {
	t.Helper()
	run := &config.Run{
		Area:    "lake_area",
		Source:  domain.SourceNOAA,
		Product: domain.ProductWaterLevel,
		Window:  domain.DateRange{Start: t0, End: t0.AddDate(0, 0, 1)},
		Options: domain.DefaultRetrievalOptions(),
	}
	l := export.NewLayout(t.TempDir(), run)
	series := &domain.ObservationSeries{
		StationID: "8761724",
		Product:   domain.ProductWaterLevel,
		Fields:    []string{"water_level"},
		Rows: []domain.Observation{
			{Time: t0, Values: []float64{1.1}},
			{Time: t0.Add(6 * time.Minute), Values: []float64{1.2}},
		},
	}

	s := &domain.RunSummary{RunID: "run-1", Source: run.Source, Product: run.Product, Considered: 2}
	s.Record(domain.StationOutcome{StationID: "8761724", Status: domain.StatusSuccess, Rows: 2, Series: series})
	s.Record(domain.StationOutcome{StationID: "8761927", Status: domain.StatusNoData, Stage: domain.StageNormalize, Err: domain.ErrNoValidData})
	for _, r := range series.Rows {
		s.Combined = append(s.Combined, domain.CombinedRow{StationID: "8761724", Observation: r})
	}

	w := export.NewWriter(false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, w.Write(l, run, nil, s, nil))
	return l
}

func TestPhasesPassOnExportedRun(t *testing.T) {
	l := writeRun(t)
	m, err := loadMetadata(l.Path(export.RunMetadataFile))
	require.NoError(t, err)

	for _, p := range []*phase{validateCounts(m), validateStationFiles(l, m), validateCombined(l, m)} {
		assert.True(t, p.passed(), "%s: %v", p.name, p.errors)
	}
}

func TestValidateCounts_Mismatch(t *testing.T) {
	m := &export.Metadata{
		Counts: export.Counts{Considered: 2, Attempted: 2, Succeeded: 2},
		Outcomes: []export.OutcomeRecord{
			{StationID: "a", Status: domain.StatusSuccess},
			{StationID: "a", Status: domain.StatusFailed},
		},
	}
	p := validateCounts(m)
	assert.False(t, p.passed())
	assert.Contains(t, p.errors, "station a has more than one outcome")
	assert.Contains(t, p.errors, "station a is failed without an error")
	assert.Contains(t, p.errors, "outcomes show 1 successes, counts say 2")
}

func TestValidateStationFiles_RowCountDrift(t *testing.T) {
	l := writeRun(t)
	m, err := loadMetadata(l.Path(export.RunMetadataFile))
	require.NoError(t, err)
	m.Outcomes[0].Rows = 5

	p := validateStationFiles(l, m)
	require.Len(t, p.errors, 1)
	assert.Equal(t, "station 8761724: 2 rows in file, 5 reported", p.errors[0])
}

func TestValidateCombined_MissingFile(t *testing.T) {
	l := writeRun(t)
	m, err := loadMetadata(l.Path(export.RunMetadataFile))
	require.NoError(t, err)
	require.NoError(t, os.Remove(l.Path(export.CombinedCSVFile)))

	p := validateCombined(l, m)
	assert.False(t, p.passed())
}

func TestCountDataRows_Empty(t *testing.T) {
	path := t.TempDir() + "/empty.csv"
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := countDataRows(path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}
