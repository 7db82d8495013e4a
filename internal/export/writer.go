package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/couchcryptid/hydrofetch/internal/geo"
	"github.com/couchcryptid/hydrofetch/internal/normalize"
	"github.com/hashicorp/go-multierror"
)

// Writer persists run results.
type Writer struct {
	parquet bool
	logger  *slog.Logger
}

// NewWriter creates a Writer. When parquet is true the combined dataset is
// also written as combined.parquet.
func NewWriter(parquet bool, logger *slog.Logger) *Writer {
	return &Writer{parquet: parquet, logger: logger}
}

// Write persists every artifact of a run. A failing artifact does not stop
// the others; all failures are returned together.
func (w *Writer) Write(l Layout, run *config.Run, stations []domain.Station, s *domain.RunSummary, urls []string) error {
	var result *multierror.Error
	put := func(path string, data []byte, err error) {
		if err == nil {
			err = fetch.WriteFileAtomic(path, data)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("write %s: %w", path, err))
		}
	}

	d := run.Product.Descriptor()
	fields, labels := d.Fields(), d.LabelNames()

	for _, o := range s.Outcomes {
		if o.Status != domain.StatusSuccess || o.Series == nil {
			continue
		}
		data, err := SeriesCSV(o.Series)
		put(l.StationCSV(o.StationID), data, err)

		if run.Product == domain.ProductInstantaneous {
			hourly, err := SeriesCSV(normalize.Resample(o.Series, time.Hour))
			put(l.HourlyCSV(o.StationID), hourly, err)
			daily, err := SeriesCSV(normalize.Resample(o.Series, 24*time.Hour))
			put(l.DailyCSV(o.StationID), daily, err)
		}
	}

	if len(s.Combined) > 0 {
		data, err := CombinedCSV(s.Combined, fields, labels)
		put(l.Path(CombinedCSVFile), data, err)
		if w.parquet {
			pq, err := CombinedParquet(s.Combined, fields, labels)
			put(l.Path(CombinedParquetFile), pq, err)
		}
	}
	if len(s.Stats) > 0 {
		data, err := StatisticsCSV(s.Stats)
		put(l.Path(StatisticsFile), data, err)
	}

	layer, err := geo.StationsToGeoJSON(stations)
	put(l.Path(StationsFile), layer, err)

	if len(urls) > 0 {
		put(l.Path(DownloadURLsFile), []byte(strings.Join(urls, "\n")+"\n"), nil)
	}

	meta, err := MarshalMetadata(NewMetadata(run, s))
	put(l.Path(RunMetadataFile), meta, err)

	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	w.logger.Info("run exported",
		"dir", l.Root,
		"stations", len(stations),
		"combined_rows", len(s.Combined),
		"parquet", w.parquet,
	)
	return nil
}
