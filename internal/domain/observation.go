package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Observation is one normalized row. Values align with the series Fields;
// a secondary value that failed coercion is NaN. The primary value (index 0)
// is always a number.
type Observation struct {
	Time   time.Time `json:"time"`
	Zone   string    `json:"tz,omitempty"`
	Values []float64 `json:"values"`
	Flag   string    `json:"flag,omitempty"`
	Labels []string  `json:"labels,omitempty"`
}

// ObservationSeries is the canonical normalized output for one station and product.
type ObservationSeries struct {
	StationID  string        `json:"station_id"`
	Product    Product       `json:"product"`
	Fields     []string      `json:"fields"`
	LabelNames []string      `json:"label_names,omitempty"`
	Rows       []Observation `json:"rows"`
}

// Len returns the number of rows.
func (s *ObservationSeries) Len() int { return len(s.Rows) }

// SortByTime orders rows chronologically, keeping the relative order of equal
// timestamps.
func (s *ObservationSeries) SortByTime() {
	sort.SliceStable(s.Rows, func(i, j int) bool { return s.Rows[i].Time.Before(s.Rows[j].Time) })
}

// Column returns every non-NaN value of the named field.
func (s *ObservationSeries) Column(field string) []float64 {
	idx := -1
	for i, f := range s.Fields {
		if f == field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]float64, 0, len(s.Rows))
	for _, r := range s.Rows {
		if idx < len(r.Values) && !math.IsNaN(r.Values[idx]) {
			out = append(out, r.Values[idx])
		}
	}
	return out
}

// Quality is the display class of a USGS qualification code.
type Quality string

const (
	QualityApproved    Quality = "Approved"
	QualityProvisional Quality = "Provisional"
	QualityOther       Quality = "Other"
)

// ClassifyFlag maps a raw qualification code to its display class.
func ClassifyFlag(flag string) Quality {
	switch strings.TrimSpace(flag) {
	case "A":
		return QualityApproved
	case "P":
		return QualityProvisional
	default:
		return QualityOther
	}
}

// PlotExcluded reports whether a flag is left out of plotted series.
// Estimated approved values ("A:e") are kept in the data but not drawn.
func PlotExcluded(flag string) bool {
	return strings.TrimSpace(flag) == "A:e"
}
