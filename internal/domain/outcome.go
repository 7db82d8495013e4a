package domain

import "time"

// Status is the tri-state result of retrieving one station.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusNoData  Status = "no_data"
)

// Stage names the pipeline step that produced an outcome's error.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StageExport    Stage = "export"
)

// StationOutcome records what happened to one station.
type StationOutcome struct {
	StationID string
	Status    Status
	Stage     Stage
	Err       error
	Rows      int
	// Cached is true when every chunk was already on disk.
	Cached bool
	Series *ObservationSeries
}

// ErrorText is the error message or "" on success.
func (o StationOutcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// StationStats holds descriptive statistics for one station and field, or for
// one group of a grouped aggregation.
type StationStats struct {
	StationID string            `json:"station_id"`
	Field     string            `json:"field"`
	Group     map[string]string `json:"group,omitempty"`
	Count     int               `json:"count"`
	Min       float64           `json:"min"`
	Max       float64           `json:"max"`
	Mean      float64           `json:"mean"`
	First     time.Time         `json:"first"`
	Last      time.Time         `json:"last"`
}

// RunSummary aggregates all station outcomes of one run.
type RunSummary struct {
	RunID      string
	Source     Source
	Product    Product
	Boundary   BBox
	Window     DateRange
	StartedAt  time.Time
	FinishedAt time.Time

	Considered int
	Attempted  int
	Succeeded  int
	Failed     int
	NoData     int
	Cancelled  bool

	// EmptyFilter is set when no station survived filtering.
	EmptyFilter bool

	Outcomes []StationOutcome
	Stats    []StationStats
	Combined []CombinedRow
}

// CombinedRow is one row of the outer union of all successful series.
type CombinedRow struct {
	StationID   string
	StationName string
	Observation
}

// Record adds an outcome and updates the counts.
func (s *RunSummary) Record(o StationOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Attempted++
	switch o.Status {
	case StatusSuccess:
		s.Succeeded++
	case StatusNoData:
		s.NoData++
	default:
		s.Failed++
	}
}

// Outcome looks up the outcome for a station.
func (s *RunSummary) Outcome(stationID string) (StationOutcome, bool) {
	for _, o := range s.Outcomes {
		if o.StationID == stationID {
			return o, true
		}
	}
	return StationOutcome{}, false
}
