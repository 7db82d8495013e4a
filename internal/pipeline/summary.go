package pipeline

import (
	"math"
	"sort"
	"strings"

	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// EPA results are summarized per sampled characteristic rather than per
// station, since one location reports many analytes.
var groupedLabels = []string{"location", "media", "media_subdivision", "characteristic", "unit"}

// Summarize fills the combined table and statistics from the recorded
// outcomes. Station names come from the work set.
func Summarize(s *domain.RunSummary, stations []domain.Station) {
	names := make(map[string]string, len(stations))
	for _, st := range stations {
		names[st.Key()] = st.Name
	}

	s.Combined = nil
	s.Stats = nil
	for _, o := range s.Outcomes {
		if o.Status != domain.StatusSuccess || o.Series == nil {
			continue
		}
		for _, r := range o.Series.Rows {
			s.Combined = append(s.Combined, domain.CombinedRow{
				StationID:   o.StationID,
				StationName: names[o.StationID],
				Observation: r,
			})
		}
		if s.Product.Source() == domain.SourceEPA {
			s.Stats = append(s.Stats, GroupedStatistics(o.Series, groupedLabels)...)
		} else {
			s.Stats = append(s.Stats, SeriesStatistics(o.Series)...)
		}
	}
}

// SeriesStatistics computes one StationStats per field over non-NaN values.
// Fields with no values are omitted.
func SeriesStatistics(series *domain.ObservationSeries) []domain.StationStats {
	var out []domain.StationStats
	for i, field := range series.Fields {
		acc := newAccumulator(series.StationID, field)
		for _, r := range series.Rows {
			if i < len(r.Values) {
				acc.add(r, r.Values[i])
			}
		}
		if st, ok := acc.result(); ok {
			out = append(out, st)
		}
	}
	return out
}

// GroupedStatistics computes statistics of the first field per distinct
// combination of the given labels. Groups are returned in key order.
func GroupedStatistics(series *domain.ObservationSeries, labels []string) []domain.StationStats {
	if len(series.Fields) == 0 {
		return nil
	}
	pos := make([]int, len(labels))
	for i, name := range labels {
		pos[i] = -1
		for j, ln := range series.LabelNames {
			if ln == name {
				pos[i] = j
			}
		}
	}

	groups := make(map[string]*accumulator)
	for _, r := range series.Rows {
		group := make(map[string]string, len(labels))
		parts := make([]string, len(labels))
		for i, name := range labels {
			if pos[i] >= 0 && pos[i] < len(r.Labels) {
				parts[i] = r.Labels[pos[i]]
			}
			group[name] = parts[i]
		}
		key := strings.Join(parts, "\x1f")
		acc, ok := groups[key]
		if !ok {
			acc = newAccumulator(series.StationID, series.Fields[0])
			acc.group = group
			groups[key] = acc
		}
		if len(r.Values) > 0 {
			acc.add(r, r.Values[0])
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []domain.StationStats
	for _, k := range keys {
		if st, ok := groups[k].result(); ok {
			out = append(out, st)
		}
	}
	return out
}

type accumulator struct {
	stats domain.StationStats
	group map[string]string
	sum   float64
}

func newAccumulator(stationID, field string) *accumulator {
	return &accumulator{stats: domain.StationStats{
		StationID: stationID,
		Field:     field,
		Min:       math.Inf(1),
		Max:       math.Inf(-1),
	}}
}

func (a *accumulator) add(r domain.Observation, v float64) {
	if math.IsNaN(v) {
		return
	}
	st := &a.stats
	if st.Count == 0 || r.Time.Before(st.First) {
		st.First = r.Time
	}
	if st.Count == 0 || r.Time.After(st.Last) {
		st.Last = r.Time
	}
	st.Count++
	st.Min = math.Min(st.Min, v)
	st.Max = math.Max(st.Max, v)
	a.sum += v
}

func (a *accumulator) result() (domain.StationStats, bool) {
	if a.stats.Count == 0 {
		return domain.StationStats{}, false
	}
	st := a.stats
	st.Mean = a.sum / float64(st.Count)
	st.Group = a.group
	return st, true
}
