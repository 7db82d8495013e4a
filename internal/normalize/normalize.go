// Package normalize turns raw per-station response bodies into canonical
// observation series.
package normalize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// NoDataSentinel is the literal NOAA places in the date/time column when a
// product is not offered for a station and window.
const NoDataSentinel = "Error: No data was found. This product may not be offered at this station at the requested time."

// IsSentinel reports whether a field is the upstream no-data message.
func IsSentinel(field string) bool {
	return strings.TrimSpace(field) == NoDataSentinel
}

var timeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 15:04",
}

// Report counts the rows dropped while normalizing.
type Report struct {
	Rows       int
	Kept       int
	Sentinel   int
	Malformed  int
	NonNumeric int
}

// Parse normalizes a raw body according to the product descriptor.
//
// Comment lines are stripped, the header (and rdb format row) skipped, and
// columns bound by position or header name. A header narrower than the
// descriptor requires returns domain.ErrSchemaMismatch. Sentinel rows are
// dropped before numeric coercion; rows whose primary value is not numeric
// are dropped. Zero surviving rows returns domain.ErrNoValidData.
func Parse(body []byte, d domain.Descriptor, stationID string) (*domain.ObservationSeries, Report, error) {
	var rep Report
	records, err := readRecords(body, d)
	if err != nil {
		return nil, rep, fmt.Errorf("%w: station %s: %v", domain.ErrSchemaMismatch, stationID, err)
	}

	header, data := splitHeader(records, d)
	b, err := bind(header, d)
	if err != nil {
		return nil, rep, fmt.Errorf("%w: station %s: %v", domain.ErrSchemaMismatch, stationID, err)
	}

	series := &domain.ObservationSeries{
		StationID:  stationID,
		Product:    d.Product,
		Fields:     d.Fields(),
		LabelNames: d.LabelNames(),
		Rows:       make([]domain.Observation, 0, len(data)),
	}

	for _, rec := range data {
		rep.Rows++
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			rep.Malformed++
			continue
		}
		if b.time < len(rec) && IsSentinel(rec[b.time]) {
			rep.Sentinel++
			continue
		}
		if len(rec) <= b.maxIndex {
			rep.Malformed++
			continue
		}

		obs, ok, numeric := b.observation(rec)
		if !ok {
			rep.Malformed++
			continue
		}
		if !numeric {
			rep.NonNumeric++
			continue
		}
		series.Rows = append(series.Rows, obs)
	}
	rep.Kept = len(series.Rows)

	if rep.Kept == 0 {
		return nil, rep, fmt.Errorf("%w: station %s: %d rows read, %d sentinel, %d malformed, %d non-numeric",
			domain.ErrNoValidData, stationID, rep.Rows, rep.Sentinel, rep.Malformed, rep.NonNumeric)
	}
	return series, rep, nil
}

func readRecords(body []byte, d domain.Descriptor) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	if d.Format == domain.FormatRDB {
		r.Comma = '\t'
	}

	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// splitHeader separates header rows from data rows. A body whose first row
// is a sentinel has no header.
func splitHeader(records [][]string, d domain.Descriptor) ([]string, [][]string) {
	if len(records) == 0 || len(records[0]) == 0 || IsSentinel(records[0][0]) {
		return nil, records
	}
	header := records[0]
	skip := max(d.HeaderRows, 1)
	if skip > len(records) {
		skip = len(records)
	}
	return header, records[skip:]
}

type binding struct {
	time     int
	clock    int
	zone     int
	flag     int
	values   []int
	labels   []int
	maxIndex int
}

func bind(header []string, d domain.Descriptor) (*binding, error) {
	b := &binding{clock: -1, zone: -1, flag: -1}
	if d.ByName {
		if header == nil {
			return &binding{time: 0, clock: -1, zone: -1, flag: -1, maxIndex: math.MaxInt}, nil
		}
		idx := make(map[string]int, len(header))
		for i, h := range header {
			idx[strings.TrimSpace(h)] = i
		}
		var missing []string
		lookup := func(c domain.Column, required bool) int {
			if i, ok := idx[c.Header]; ok {
				return i
			}
			if required {
				missing = append(missing, c.Header)
			}
			return -1
		}
		b.time = lookup(d.Time, true)
		for _, c := range d.Values {
			b.values = append(b.values, lookup(c, true))
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("missing columns %v", missing)
		}
		if d.Clock != nil {
			b.clock = lookup(*d.Clock, false)
		}
		if d.Zone != nil {
			b.zone = lookup(*d.Zone, false)
		}
		if d.Flag != nil {
			b.flag = lookup(*d.Flag, false)
		}
		for _, c := range d.Labels {
			b.labels = append(b.labels, lookup(c, false))
		}
	} else {
		if header != nil && len(header) < d.Required {
			return nil, fmt.Errorf("expected at least %d columns, got %d", d.Required, len(header))
		}
		b.time = d.Time.Index
		if d.Clock != nil {
			b.clock = d.Clock.Index
		}
		if d.Zone != nil {
			b.zone = d.Zone.Index
		}
		if d.Flag != nil {
			b.flag = d.Flag.Index
		}
		for _, c := range d.Values {
			b.values = append(b.values, c.Index)
		}
		for _, c := range d.Labels {
			b.labels = append(b.labels, c.Index)
		}
	}
	b.maxIndex = max(b.time, b.clock, b.zone, b.flag)
	for _, i := range b.values {
		b.maxIndex = max(b.maxIndex, i)
	}
	return b, nil
}

// observation builds a row. ok is false when the timestamp cannot be parsed;
// numeric is false when the primary value is not a number.
func (b *binding) observation(rec []string) (obs domain.Observation, ok, numeric bool) {
	ts := field(rec, b.time)
	if c := field(rec, b.clock); c != "" {
		ts = ts + " " + c
	}
	t, ok := parseTime(ts)
	if !ok {
		return obs, false, false
	}

	values := make([]float64, len(b.values))
	for i, idx := range b.values {
		v, err := strconv.ParseFloat(field(rec, idx), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			if i == 0 {
				return obs, true, false
			}
			v = math.NaN()
		}
		values[i] = v
	}

	obs = domain.Observation{
		Time:   t,
		Zone:   field(rec, b.zone),
		Values: values,
		Flag:   field(rec, b.flag),
	}
	if len(b.labels) > 0 {
		obs.Labels = make([]string, len(b.labels))
		for i, idx := range b.labels {
			obs.Labels[i] = field(rec, idx)
		}
	}
	return obs, true, true
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
