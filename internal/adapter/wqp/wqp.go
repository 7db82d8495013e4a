// Package wqp queries the Water Quality Portal station and result services.
package wqp

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/hydrofetch/internal/catalog"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/klauspost/compress/zip"
)

// DateLayout is the startDateLo/startDateHi encoding.
const DateLayout = "01-02-2006"

var zipMagic = []byte("PK\x03\x04")

// Unzip extracts the first file of a zip payload. Bodies that are not zip
// archives are returned unchanged.
func Unzip(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, zipMagic) {
		return body, nil
	}
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		closeErr := rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close %s: %w", f.Name, closeErr)
		}
		return data, nil
	}
	return nil, errors.New("zip archive is empty")
}

func baseParams(opts domain.RetrievalOptions, window domain.DateRange) url.Values {
	params := url.Values{
		"startDateLo": {window.Start.Format(DateLayout)},
		"startDateHi": {window.End.Format(DateLayout)},
		"mimeType":    {"csv"},
		"zip":         {"yes"},
	}
	for _, m := range opts.SampleMedia {
		params.Add("sampleMedia", m)
	}
	for _, p := range opts.Providers {
		params.Add("providers", p)
	}
	return params
}

// StationURL builds the station search query for a bounding box.
func StationURL(baseURL string, bbox domain.BBox, opts domain.RetrievalOptions, window domain.DateRange) string {
	params := baseParams(opts, window)
	params.Set("bBox", bbox.String())
	for _, t := range opts.SiteTypes {
		params.Add("siteType", t)
	}
	return strings.TrimRight(baseURL, "/") + "/Station/search?" + params.Encode()
}

// StationClient discovers WQP monitoring locations. It implements
// catalog.Catalog.
type StationClient struct {
	fetcher *fetch.Fetcher
	baseURL string
	opts    domain.RetrievalOptions
	window  domain.DateRange
	logger  *slog.Logger
}

var _ catalog.Catalog = (*StationClient)(nil)

// NewStationClient creates a station search client scoped to a run's
// filters and date window.
func NewStationClient(fetcher *fetch.Fetcher, baseURL string, opts domain.RetrievalOptions, window domain.DateRange, logger *slog.Logger) *StationClient {
	return &StationClient{fetcher: fetcher, baseURL: baseURL, opts: opts, window: window, logger: logger}
}

// FetchCandidates runs the station search.
func (c *StationClient) FetchCandidates(ctx context.Context, bbox domain.BBox) ([]domain.Station, error) {
	u := StationURL(c.baseURL, bbox, c.opts, c.window)
	c.logger.Info("querying wqp station search", "url", u)

	body, err := c.fetcher.Get(ctx, domain.SourceEPA, u, Unzip)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: wqp station search: %v", domain.ErrCatalogUnavailable, err)
	}
	stations, dropped, err := ParseStations(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
	if dropped > 0 {
		c.logger.Warn("dropped malformed wqp stations", "count", dropped)
	}
	return catalog.Dedup(stations), nil
}

var stationColumns = []string{
	"MonitoringLocationIdentifier",
	"MonitoringLocationName",
	"MonitoringLocationTypeName",
	"LatitudeMeasure",
	"LongitudeMeasure",
}

// ParseStations reads a station search csv. Rows with unparseable
// coordinates are dropped and counted.
func ParseStations(body []byte) (stations []domain.Station, dropped int, err error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read station header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range stationColumns {
		if _, ok := idx[c]; !ok {
			return nil, 0, fmt.Errorf("%w: station search missing column %s", domain.ErrSchemaMismatch, c)
		}
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dropped++
			continue
		}
		get := func(name string) string {
			i := idx[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		lat, errLat := strconv.ParseFloat(get("LatitudeMeasure"), 64)
		lon, errLon := strconv.ParseFloat(get("LongitudeMeasure"), 64)
		id := get("MonitoringLocationIdentifier")
		if errLat != nil || errLon != nil || id == "" {
			dropped++
			continue
		}
		stations = append(stations, domain.Station{
			ID:       id,
			Name:     get("MonitoringLocationName"),
			Category: get("MonitoringLocationTypeName"),
			Lat:      lat,
			Lon:      lon,
			Source:   domain.SourceEPA,
		})
	}
	return stations, dropped, nil
}

// Requester builds per-station Result search URLs.
type Requester struct {
	baseURL string
}

// NewRequester creates a Requester for the WQP data endpoint.
func NewRequester(baseURL string) *Requester {
	return &Requester{baseURL: baseURL}
}

// Source identifies the upstream service.
func (r *Requester) Source() domain.Source { return domain.SourceEPA }

// URL encodes a Result search for one station over the chunk.
func (r *Requester) URL(q domain.ProductQuery, sr domain.SubRange) string {
	params := baseParams(q.Options, domain.DateRange{Start: sr.Start, End: sr.LastInstant()})
	params.Set("siteid", q.StationID)
	return strings.TrimRight(r.baseURL, "/") + "/Result/search?" + params.Encode()
}

// Decode unzips the result payload.
func (r *Requester) Decode(body []byte) ([]byte, error) { return Unzip(body) }
