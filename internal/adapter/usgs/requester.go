package usgs

import (
	"net/url"

	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// Requester builds instantaneous-value and daily-value URLs.
type Requester struct {
	ivURL string
	dvURL string
}

// NewRequester creates a Requester for the given service endpoints.
func NewRequester(ivURL, dvURL string) *Requester {
	return &Requester{ivURL: ivURL, dvURL: dvURL}
}

// Source identifies the upstream service.
func (r *Requester) Source() domain.Source { return domain.SourceUSGS }

// URL encodes one chunk of a station query.
func (r *Requester) URL(q domain.ProductQuery, sr domain.SubRange) string {
	start := sr.Start.Format(domain.DateLayout)
	end := sr.LastInstant().Format(domain.DateLayout)

	if q.Product == domain.ProductDaily {
		params := url.Values{
			"format":      {"rdb"},
			"sites":       {q.StationID},
			"startDT":     {start},
			"endDT":       {end},
			"parameterCd": {q.Options.Parameter},
			"statCd":      {"00003"},
		}
		return r.dvURL + "?" + params.Encode()
	}

	params := url.Values{
		"sites":       {q.StationID},
		"parameterCd": {q.Options.Parameter},
		"startDT":     {start + "T00:00:00.000-04:00"},
		"endDT":       {end + "T23:59:59.999-04:00"},
		"siteStatus":  {"all"},
		"format":      {"rdb"},
	}
	return r.ivURL + "?" + params.Encode()
}

// Decode passes rdb bodies through unchanged.
func (r *Requester) Decode(body []byte) ([]byte, error) { return body, nil }
