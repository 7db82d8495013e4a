package normalize

import (
	"math"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// Resample averages a series into fixed buckets (time.Hour, 24*time.Hour).
// Each field's mean uses only non-NaN values; a bucket with no values for a
// field holds NaN for it. Flags and labels are dropped.
func Resample(s *domain.ObservationSeries, step time.Duration) *domain.ObservationSeries {
	out := &domain.ObservationSeries{
		StationID: s.StationID,
		Product:   s.Product,
		Fields:    s.Fields,
	}
	if step <= 0 || len(s.Rows) == 0 {
		return out
	}

	type bucket struct {
		sums   []float64
		counts []int
	}
	buckets := make(map[time.Time]*bucket)
	var order []time.Time
	for _, r := range s.Rows {
		key := r.Time.Truncate(step)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{sums: make([]float64, len(s.Fields)), counts: make([]int, len(s.Fields))}
			buckets[key] = b
			order = append(order, key)
		}
		for i := range s.Fields {
			if i < len(r.Values) && !math.IsNaN(r.Values[i]) {
				b.sums[i] += r.Values[i]
				b.counts[i]++
			}
		}
	}

	for _, key := range order {
		b := buckets[key]
		values := make([]float64, len(s.Fields))
		for i := range values {
			if b.counts[i] == 0 {
				values[i] = math.NaN()
				continue
			}
			values[i] = b.sums[i] / float64(b.counts[i])
		}
		out.Rows = append(out.Rows, domain.Observation{Time: key, Values: values})
	}
	out.SortByTime()
	return out
}

// QualityGroups splits a series by quality class for display. Rows flagged
// as excluded from plots are left out; the series itself is unchanged.
func QualityGroups(s *domain.ObservationSeries) map[domain.Quality][]domain.Observation {
	out := make(map[domain.Quality][]domain.Observation)
	for _, r := range s.Rows {
		if domain.PlotExcluded(r.Flag) {
			continue
		}
		q := domain.ClassifyFlag(r.Flag)
		out[q] = append(out[q], r)
	}
	return out
}
