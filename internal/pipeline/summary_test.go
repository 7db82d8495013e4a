package pipeline_test

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

func TestSeriesStatistics_IgnoresNaN(t *testing.T) {
	s := &domain.ObservationSeries{
		StationID: "8760922",
		Fields:    []string{"speed", "direction"},
		Rows: []domain.Observation{
			{Time: t0, Values: []float64{4, 170}},
			{Time: t0.Add(time.Hour), Values: []float64{2, math.NaN()}},
			{Time: t0.Add(2 * time.Hour), Values: []float64{6, 190}},
		},
	}

	stats := pipeline.SeriesStatistics(s)
	require.Len(t, stats, 2)

	speed := stats[0]
	assert.Equal(t, "speed", speed.Field)
	assert.Equal(t, 3, speed.Count)
	assert.Equal(t, 2.0, speed.Min)
	assert.Equal(t, 6.0, speed.Max)
	assert.InDelta(t, 4.0, speed.Mean, 1e-9)
	assert.Equal(t, t0, speed.First)
	assert.Equal(t, t0.Add(2*time.Hour), speed.Last)

	dir := stats[1]
	assert.Equal(t, 2, dir.Count)
	assert.InDelta(t, 180.0, dir.Mean, 1e-9)
	assert.Equal(t, t0.Add(2*time.Hour), dir.Last)
}

func TestSeriesStatistics_AllNaNFieldOmitted(t *testing.T) {
	s := &domain.ObservationSeries{
		Fields: []string{"value"},
		Rows:   []domain.Observation{{Time: t0, Values: []float64{math.NaN()}}},
	}
	assert.Empty(t, pipeline.SeriesStatistics(s))
}

func TestGroupedStatistics(t *testing.T) {
	labels := []string{"location", "media", "media_subdivision", "characteristic", "unit"}
	row := func(day int, char string, v float64) domain.Observation {
		return domain.Observation{
			Time:   t0.AddDate(0, 0, day),
			Values: []float64{v},
			Labels: []string{"21LABCH-1001", "Water", "Surface Water", char, "mg/l"},
		}
	}
	s := &domain.ObservationSeries{
		StationID:  "21LABCH-1001",
		Fields:     []string{"value"},
		LabelNames: labels,
		Rows: []domain.Observation{
			row(0, "Phosphorus", 0.2),
			row(1, "Nitrogen", 1.0),
			row(2, "Phosphorus", 0.4),
		},
	}

	stats := pipeline.GroupedStatistics(s, labels)
	require.Len(t, stats, 2)
	assert.Equal(t, "Nitrogen", stats[0].Group["characteristic"])
	assert.Equal(t, 1, stats[0].Count)

	p := stats[1]
	assert.Equal(t, "Phosphorus", p.Group["characteristic"])
	assert.Equal(t, "mg/l", p.Group["unit"])
	assert.Equal(t, 2, p.Count)
	assert.InDelta(t, 0.3, p.Mean, 1e-9)
}

func TestSummarize_CombinedIsOuterUnionOfSuccesses(t *testing.T) {
	series := func(id string, vals ...float64) *domain.ObservationSeries {
		s := &domain.ObservationSeries{StationID: id, Fields: []string{"value"}}
		for i, v := range vals {
			s.Rows = append(s.Rows, domain.Observation{Time: t0.Add(time.Duration(i) * time.Hour), Values: []float64{v}})
		}
		return s
	}

	s := &domain.RunSummary{Product: domain.ProductDaily}
	s.Record(domain.StationOutcome{StationID: "A", Status: domain.StatusSuccess, Series: series("A", 1, 2)})
	s.Record(domain.StationOutcome{StationID: "B", Status: domain.StatusNoData})
	s.Record(domain.StationOutcome{StationID: "C", Status: domain.StatusSuccess, Series: series("C", 5)})

	pipeline.Summarize(s, stations("A", "B", "C"))

	require.Len(t, s.Combined, 3)
	assert.Equal(t, "A", s.Combined[0].StationID)
	assert.Equal(t, "Station A", s.Combined[0].StationName)
	assert.Equal(t, "C", s.Combined[2].StationID)
	require.Len(t, s.Stats, 2)
	assert.Equal(t, "C", s.Stats[1].StationID)
	assert.Equal(t, 5.0, s.Stats[1].Mean)
}
