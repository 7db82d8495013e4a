package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// TimeLayout is the timestamp encoding used in every exported csv.
const TimeLayout = "2006-01-02 15:04:05"

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}

func seriesHeader(fields, labels []string) []string {
	h := []string{"datetime", "tz"}
	h = append(h, fields...)
	h = append(h, "quality")
	return append(h, labels...)
}

func observationRecord(o domain.Observation, nFields, nLabels int) []string {
	rec := make([]string, 0, 3+nFields+nLabels)
	rec = append(rec, formatTime(o.Time), o.Zone)
	for i := 0; i < nFields; i++ {
		v := math.NaN()
		if i < len(o.Values) {
			v = o.Values[i]
		}
		rec = append(rec, formatFloat(v))
	}
	rec = append(rec, o.Flag)
	for i := 0; i < nLabels; i++ {
		l := ""
		if i < len(o.Labels) {
			l = o.Labels[i]
		}
		rec = append(rec, l)
	}
	return rec
}

func encodeCSV(header []string, rows func(w *csv.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := rows(w); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// SeriesCSV encodes one station's canonical series.
func SeriesCSV(s *domain.ObservationSeries) ([]byte, error) {
	return encodeCSV(seriesHeader(s.Fields, s.LabelNames), func(w *csv.Writer) error {
		for _, o := range s.Rows {
			if err := w.Write(observationRecord(o, len(s.Fields), len(s.LabelNames))); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		return nil
	})
}

// CombinedCSV encodes the combined table with leading station columns.
func CombinedCSV(rows []domain.CombinedRow, fields, labels []string) ([]byte, error) {
	header := append([]string{"station_id", "station_name"}, seriesHeader(fields, labels)...)
	return encodeCSV(header, func(w *csv.Writer) error {
		for _, r := range rows {
			rec := append([]string{r.StationID, r.StationName}, observationRecord(r.Observation, len(fields), len(labels))...)
			if err := w.Write(rec); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		return nil
	})
}

// StatisticsCSV encodes per-station statistics. Grouped statistics render
// their group as sorted key=value pairs joined by ";".
func StatisticsCSV(stats []domain.StationStats) ([]byte, error) {
	header := []string{"station_id", "field", "group", "count", "min", "max", "mean", "first", "last"}
	return encodeCSV(header, func(w *csv.Writer) error {
		for _, st := range stats {
			rec := []string{
				st.StationID,
				st.Field,
				formatGroup(st.Group),
				strconv.Itoa(st.Count),
				formatFloat(st.Min),
				formatFloat(st.Max),
				formatFloat(st.Mean),
				formatTime(st.First),
				formatTime(st.Last),
			}
			if err := w.Write(rec); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		return nil
	})
}

func formatGroup(g map[string]string) string {
	if len(g) == 0 {
		return ""
	}
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + g[k]
	}
	return strings.Join(parts, ";")
}
