package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// Metadata is the run_metadata.json document.
type Metadata struct {
	RunID       string          `json:"run_id"`
	Area        string          `json:"area"`
	Source      domain.Source   `json:"source"`
	Product     domain.Product  `json:"product"`
	Parameter   string          `json:"parameter,omitempty"`
	BBox        domain.BBox     `json:"bbox"`
	Start       string          `json:"start_date"`
	End         string          `json:"end_date"`
	Categories  []string        `json:"categories"`
	SiteTypes   []string        `json:"site_types,omitempty"`
	SampleMedia []string        `json:"sample_media,omitempty"`
	Providers   []string        `json:"providers,omitempty"`
	Datum       string          `json:"datum,omitempty"`
	TimeZone    string          `json:"time_zone,omitempty"`
	Units       string          `json:"units,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Counts      Counts          `json:"counts"`
	Cancelled   bool            `json:"cancelled"`
	EmptyFilter bool            `json:"empty_filter"`
	Outcomes    []OutcomeRecord `json:"outcomes"`
}

// Counts mirrors the run summary totals.
type Counts struct {
	Considered int `json:"considered"`
	Attempted  int `json:"attempted"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	NoData     int `json:"no_data"`
}

// OutcomeRecord is one station's line in the metadata and in published
// outcome messages.
type OutcomeRecord struct {
	StationID string        `json:"station_id"`
	Status    domain.Status `json:"status"`
	Stage     domain.Stage  `json:"stage,omitempty"`
	Error     string        `json:"error,omitempty"`
	Rows      int           `json:"rows"`
	Cached    bool          `json:"cached"`
}

// NewOutcomeRecord flattens an outcome for serialization.
func NewOutcomeRecord(o domain.StationOutcome) OutcomeRecord {
	return OutcomeRecord{
		StationID: o.StationID,
		Status:    o.Status,
		Stage:     o.Stage,
		Error:     o.ErrorText(),
		Rows:      o.Rows,
		Cached:    o.Cached,
	}
}

// NewMetadata assembles the metadata document for a run.
func NewMetadata(run *config.Run, s *domain.RunSummary) Metadata {
	cats := make([]string, len(run.Categories))
	for i, c := range run.Categories {
		cats[i] = c.String()
	}
	m := Metadata{
		RunID:       s.RunID,
		Area:        run.Area,
		Source:      run.Source,
		Product:     run.Product,
		BBox:        s.Boundary,
		Start:       run.Window.Start.Format(domain.DateLayout),
		End:         run.Window.End.Format(domain.DateLayout),
		Categories:  cats,
		SiteTypes:   run.Options.SiteTypes,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		Cancelled:   s.Cancelled,
		EmptyFilter: s.EmptyFilter,
		Counts: Counts{
			Considered: s.Considered,
			Attempted:  s.Attempted,
			Succeeded:  s.Succeeded,
			Failed:     s.Failed,
			NoData:     s.NoData,
		},
		Outcomes: make([]OutcomeRecord, 0, len(s.Outcomes)),
	}
	switch run.Source {
	case domain.SourceUSGS:
		m.Parameter = run.Options.Parameter
	case domain.SourceNOAA:
		m.Datum = run.Options.Datum
		m.TimeZone = run.Options.TimeZone
		m.Units = run.Options.Units
	case domain.SourceEPA:
		m.SampleMedia = run.Options.SampleMedia
		m.Providers = run.Options.Providers
	}
	for _, o := range s.Outcomes {
		m.Outcomes = append(m.Outcomes, NewOutcomeRecord(o))
	}
	return m
}

// MarshalMetadata renders the metadata as indented JSON.
func MarshalMetadata(m Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run metadata: %w", err)
	}
	return append(data, '\n'), nil
}
