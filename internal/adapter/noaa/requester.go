// Package noaa builds requests against the NOAA CO-OPS data getter.
package noaa

import (
	"net/url"

	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// TimeLayout is the begin_date/end_date encoding the data getter accepts.
const TimeLayout = "20060102 15:04"

// Requester builds CO-OPS data getter URLs.
type Requester struct {
	baseURL string
}

// NewRequester creates a Requester for the data getter endpoint.
func NewRequester(baseURL string) *Requester {
	return &Requester{baseURL: baseURL}
}

// Source identifies the upstream service.
func (r *Requester) Source() domain.Source { return domain.SourceNOAA }

// URL encodes one chunk of a station query. Non-final chunks end one minute
// before the next chunk starts so consecutive requests do not overlap.
func (r *Requester) URL(q domain.ProductQuery, sr domain.SubRange) string {
	d := q.Product.Descriptor()
	params := url.Values{
		"begin_date": {sr.Start.Format(TimeLayout)},
		"end_date":   {sr.LastInstant().Format(TimeLayout)},
		"station":    {q.StationID},
		"product":    {d.Code},
		"time_zone":  {q.Options.TimeZone},
		"units":      {q.Options.Units},
		"format":     {"csv"},
	}
	if usesDatum(q.Product) && q.Options.Datum != "" {
		params.Set("datum", q.Options.Datum)
	}
	if usesInterval(q.Product) && q.Options.Interval != "" {
		params.Set("interval", q.Options.Interval)
	}
	if d.Application != "" {
		params.Set("application", d.Application)
	}
	return r.baseURL + "?" + params.Encode()
}

// Decode passes csv bodies through unchanged; the no-data sentinel is left
// for the normalizer.
func (r *Requester) Decode(body []byte) ([]byte, error) { return body, nil }

func usesDatum(p domain.Product) bool {
	switch p {
	case domain.ProductWaterLevel, domain.ProductHourlyHeight, domain.ProductPredictions:
		return true
	}
	return false
}

// water_level and hourly_height have fixed native intervals.
func usesInterval(p domain.Product) bool {
	switch p {
	case domain.ProductWaterLevel, domain.ProductHourlyHeight:
		return false
	}
	return true
}
