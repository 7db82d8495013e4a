package domain

import "time"

// RetrievalOptions are the side parameters sent with every product request.
// They are passed to the engine per run rather than held as process state.
type RetrievalOptions struct {
	Datum     string
	TimeZone  string
	Units     string
	Interval  string
	ChunkSpan time.Duration

	// Parameter is the USGS parameter code, e.g. "00060".
	Parameter string

	// WQP filters.
	SiteTypes   []string
	SampleMedia []string
	Providers   []string
}

// DefaultRetrievalOptions are the NOAA-style defaults: mean lower low water,
// local standard/daylight time, metric units, hourly interval, 30-day chunks.
func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{
		Datum:     "MLLW",
		TimeZone:  "lst_ldt",
		Units:     "metric",
		Interval:  "h",
		ChunkSpan: 30 * Day,
		Parameter: "00060",
		Providers: []string{"NWIS", "STORET"},
	}
}

// ProductQuery is one station's retrieval task.
type ProductQuery struct {
	StationID string
	Product   Product
	Ranges    []SubRange
	Options   RetrievalOptions
}

// NewProductQuery chunks the window for a station according to the product.
func NewProductQuery(stationID string, p Product, window DateRange, opts RetrievalOptions) ProductQuery {
	return ProductQuery{
		StationID: stationID,
		Product:   p,
		Ranges:    p.Descriptor().Chunks(window, opts.ChunkSpan),
		Options:   opts,
	}
}

// RawResponse is the unparsed result of fetching one sub-range.
type RawResponse struct {
	StationID string
	Product   Product
	Range     SubRange
	URL       string
	Path      string
	Skipped   bool
	Err       error
}
