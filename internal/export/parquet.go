package export

import (
	"bytes"
	"fmt"
	"math"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetRow is the long-format combined record: one row per station,
// timestamp, and field.
type parquetRow struct {
	StationID   string  `parquet:"name=station_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StationName string  `parquet:"name=station_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time        int64   `parquet:"name=time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Zone        string  `parquet:"name=tz, type=BYTE_ARRAY, convertedtype=UTF8"`
	Field       string  `parquet:"name=field, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value       float64 `parquet:"name=value, type=DOUBLE"`
	Quality     string  `parquet:"name=quality, type=BYTE_ARRAY, convertedtype=UTF8"`
	Labels      string  `parquet:"name=labels, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func parquetRows(rows []domain.CombinedRow, fields, labels []string) []parquetRow {
	out := make([]parquetRow, 0, len(rows)*len(fields))
	for _, r := range rows {
		group := make(map[string]string, len(labels))
		for i, name := range labels {
			if i < len(r.Labels) {
				group[name] = r.Labels[i]
			}
		}
		lbl := formatGroup(group)
		for i, f := range fields {
			if i >= len(r.Values) || math.IsNaN(r.Values[i]) {
				continue
			}
			out = append(out, parquetRow{
				StationID:   r.StationID,
				StationName: r.StationName,
				Time:        r.Time.UnixMilli(),
				Zone:        r.Zone,
				Field:       f,
				Value:       r.Values[i],
				Quality:     r.Flag,
				Labels:      lbl,
			})
		}
	}
	return out
}

// CombinedParquet encodes the combined table as snappy-compressed parquet.
func CombinedParquet(rows []domain.CombinedRow, fields, labels []string) ([]byte, error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(parquetRow), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range parquetRows(rows, fields, labels) {
		if err := pw.Write(r); err != nil {
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := stopParquet(pw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteStop can panic on internal writer errors.
func stopParquet(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stop parquet writer: panic: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("stop parquet writer: %w", err)
	}
	return nil
}
