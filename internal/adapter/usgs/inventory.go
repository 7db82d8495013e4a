// Package usgs talks to the USGS NWIS site inventory, instantaneous-value,
// and daily-value services.
package usgs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/hydrofetch/internal/catalog"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
)

// HeaderToken starts the true header line of an inventory response.
const HeaderToken = "agency_cd"

var inventoryColumns = []string{
	"agency_cd", "site_no", "station_nm", "site_tp_cd", "dec_lat_va", "dec_long_va", "coord_datum_cd",
}

var errMissingHeader = errors.New("inventory response has no " + HeaderToken + " header")

// InventoryClient discovers USGS sites inside a bounding box.
// It implements catalog.Catalog.
type InventoryClient struct {
	fetcher *fetch.Fetcher
	baseURL string
	logger  *slog.Logger
}

var _ catalog.Catalog = (*InventoryClient)(nil)

// NewInventoryClient creates an inventory client. The fetcher should carry
// the catalog timeout.
func NewInventoryClient(fetcher *fetch.Fetcher, baseURL string, logger *slog.Logger) *InventoryClient {
	return &InventoryClient{fetcher: fetcher, baseURL: baseURL, logger: logger}
}

// InventoryURL builds the site inventory query for a box rounded to two decimals.
func InventoryURL(baseURL string, bbox domain.BBox) string {
	b := bbox.Round(2)
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	params := url.Values{
		"nw_longitude_va":         {f(b.MinLon)},
		"nw_latitude_va":          {f(b.MaxLat)},
		"se_longitude_va":         {f(b.MaxLon)},
		"se_latitude_va":          {f(b.MinLat)},
		"coordinate_format":       {"decimal_degrees"},
		"group_key":               {"NONE"},
		"format":                  {"sitefile_output"},
		"sitefile_output_format":  {"rdb"},
		"column_name":             inventoryColumns,
		"list_of_search_criteria": {"lat_long_bounding_box"},
	}
	return baseURL + "?" + params.Encode()
}

// FetchCandidates queries the inventory. A body without the header token
// counts as a failed attempt. Exhausted retries return
// domain.ErrCatalogUnavailable.
func (c *InventoryClient) FetchCandidates(ctx context.Context, bbox domain.BBox) ([]domain.Station, error) {
	u := InventoryURL(c.baseURL, bbox)
	c.logger.Info("querying usgs site inventory", "url", u)

	body, err := c.fetcher.Get(ctx, domain.SourceUSGS, u, requireHeader)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: usgs inventory: %v", domain.ErrCatalogUnavailable, err)
	}

	stations, dropped := ParseInventory(body)
	if dropped > 0 {
		c.logger.Warn("dropped malformed inventory rows", "count", dropped)
	}
	c.logger.Info("usgs inventory parsed", "stations", len(stations))
	return catalog.Dedup(stations), nil
}

func requireHeader(body []byte) ([]byte, error) {
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, HeaderToken) {
			return body, nil
		}
	}
	return nil, errMissingHeader
}

// ParseInventory reads an rdb site inventory. The header is the first line
// beginning with "agency_cd" and the line after it is a format row. Rows whose
// column count differs from the header, or whose coordinates do not parse,
// are dropped and counted.
func ParseInventory(body []byte) (stations []domain.Station, dropped int) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var header map[string]int
	var width int
	skipFormat := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if header == nil {
			if strings.HasPrefix(line, HeaderToken) {
				cols := strings.Split(line, "\t")
				width = len(cols)
				header = make(map[string]int, width)
				for i, c := range cols {
					header[strings.TrimSpace(c)] = i
				}
				skipFormat = true
			}
			continue
		}
		if skipFormat {
			skipFormat = false
			continue
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != width {
			dropped++
			continue
		}
		get := func(name string) string {
			i, ok := header[name]
			if !ok {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}
		lat, errLat := strconv.ParseFloat(get("dec_lat_va"), 64)
		lon, errLon := strconv.ParseFloat(get("dec_long_va"), 64)
		if errLat != nil || errLon != nil || get("site_no") == "" {
			dropped++
			continue
		}
		stations = append(stations, domain.Station{
			ID:       get("site_no"),
			Name:     get("station_nm"),
			Category: get("site_tp_cd"),
			Lat:      lat,
			Lon:      lon,
			Source:   domain.SourceUSGS,
		})
	}
	return stations, dropped
}
