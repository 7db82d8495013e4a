package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/couchcryptid/hydrofetch/internal/geo"
	"github.com/couchcryptid/hydrofetch/internal/normalize"
	"github.com/hashicorp/go-multierror"
	"github.com/paulmach/orb/geojson"
)

// GeoJSONSink writes the map layers a viewer needs: the boundary and the
// stations that returned data, annotated with row counts and, for USGS
// series, quality class counts.
type GeoJSONSink struct {
	logger *slog.Logger
}

// NewGeoJSONSink creates the built-in visualization sink.
func NewGeoJSONSink(logger *slog.Logger) *GeoJSONSink {
	return &GeoJSONSink{logger: logger}
}

// Render writes boundary.geojson and successful_stations.geojson.
func (g *GeoJSONSink) Render(_ context.Context, l Layout, stations []domain.Station, boundary *geo.Boundary, s *domain.RunSummary) error {
	var result *multierror.Error

	if boundary != nil {
		data, err := geo.BoundaryToGeoJSON(boundary)
		if err == nil {
			err = fetch.WriteFileAtomic(l.Path(BoundaryFile), data)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("boundary layer: %w", err))
		}
	}

	outcomes := make(map[string]domain.StationOutcome, len(s.Outcomes))
	for _, o := range s.Outcomes {
		outcomes[o.StationID] = o
	}
	var ok []domain.Station
	for _, st := range stations {
		if o, found := outcomes[st.Key()]; found && o.Status == domain.StatusSuccess {
			ok = append(ok, st)
		}
	}

	data, err := geo.StationLayer(ok, func(st domain.Station) geojson.Properties {
		o := outcomes[st.Key()]
		props := geojson.Properties{"rows": o.Rows}
		if o.Series == nil || o.Series.Product.Source() != domain.SourceUSGS {
			return props
		}
		for q, rows := range normalize.QualityGroups(o.Series) {
			props[string(q)] = len(rows)
		}
		return props
	})
	if err == nil {
		err = fetch.WriteFileAtomic(l.Path(SuccessfulStationsFile), data)
	}
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("station layer: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	g.logger.Debug("map layers written", "dir", l.Root, "stations", len(ok))
	return nil
}
