// Package export persists a run's raw responses, canonical series, combined
// dataset, statistics, and metadata under one directory per area and product.
package export

import (
	"path/filepath"

	"github.com/couchcryptid/hydrofetch/internal/config"
)

// File names written at the top of a run directory.
const (
	CombinedCSVFile        = "combined.csv"
	CombinedParquetFile    = "combined.parquet"
	StatisticsFile         = "statistics.csv"
	StationsFile           = "stations.geojson"
	SuccessfulStationsFile = "successful_stations.geojson"
	BoundaryFile           = "boundary.geojson"
	DownloadURLsFile       = "download_urls.txt"
	RunMetadataFile        = "run_metadata.json"
)

const (
	rawDirName    = "raw"
	csvDirName    = "csv"
	hourlyDirName = "hourly"
	dailyDirName  = "daily"
)

// Layout resolves paths inside one run directory.
type Layout struct {
	Root string
}

// NewLayout places a run under <outputDir>/<area>/<product>. Parameterized
// products append the parameter code so different parameters do not share
// staged files.
func NewLayout(outputDir string, run *config.Run) Layout {
	leaf := run.Product.String()
	if run.Product.Descriptor().Parameterized && run.Options.Parameter != "" {
		leaf += "_" + run.Options.Parameter
	}
	return Layout{Root: filepath.Join(outputDir, run.Area, leaf)}
}

func (l Layout) RawDir() string    { return filepath.Join(l.Root, rawDirName) }
func (l Layout) CSVDir() string    { return filepath.Join(l.Root, csvDirName) }
func (l Layout) HourlyDir() string { return filepath.Join(l.Root, csvDirName, hourlyDirName) }
func (l Layout) DailyDir() string  { return filepath.Join(l.Root, csvDirName, dailyDirName) }

// Path joins a top-level file name to the run directory.
func (l Layout) Path(name string) string { return filepath.Join(l.Root, name) }

// StationCSV is the canonical per-station series file.
func (l Layout) StationCSV(stationID string) string {
	return filepath.Join(l.CSVDir(), stationID+".csv")
}

// HourlyCSV and DailyCSV hold resampled means of a station's series.
func (l Layout) HourlyCSV(stationID string) string {
	return filepath.Join(l.HourlyDir(), stationID+".csv")
}

func (l Layout) DailyCSV(stationID string) string {
	return filepath.Join(l.DailyDir(), stationID+".csv")
}
