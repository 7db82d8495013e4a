package geo

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Property names accepted for each station attribute, in lookup order.
var (
	idKeys       = []string{"id", "station_id", "ID", "Id", "MonitoringLocationIdentifier", "site_no"}
	nameKeys     = []string{"name", "station_name", "Name", "MonitoringLocationName", "station_nm"}
	categoryKeys = []string{"type", "category", "Type", "MonitoringLocationTypeName", "site_tp_cd"}
)

// ReadPoints loads an external station point layer.
func ReadPoints(path string, src domain.Source) ([]domain.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read point layer: %v", domain.ErrGeometry, err)
	}
	return ParsePoints(data, src)
}

// ParsePoints decodes a FeatureCollection of Point features into stations.
// Features without an identifier or a point geometry are skipped.
func ParsePoints(data []byte, src domain.Source) ([]domain.Station, error) {
	proj, err := detectProjection(data)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse point layer: %v", domain.ErrGeometry, err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%w: point layer has no features", domain.ErrGeometry)
	}

	out := make([]domain.Station, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		if proj != nil {
			pt = proj(pt)
		}
		id := property(f, idKeys)
		if id == "" {
			continue
		}
		out = append(out, domain.Station{
			ID:       id,
			Name:     property(f, nameKeys),
			Category: property(f, categoryKeys),
			Lat:      pt.Lat(),
			Lon:      pt.Lon(),
			Source:   src,
		})
	}
	return out, nil
}

func property(f *geojson.Feature, keys []string) string {
	for _, k := range keys {
		v, ok := f.Properties[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			s = strings.TrimSpace(fmt.Sprint(t))
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// StationsToGeoJSON renders stations as a FeatureCollection of points.
func StationsToGeoJSON(stations []domain.Station) ([]byte, error) {
	return StationLayer(stations, nil)
}

// StationLayer is StationsToGeoJSON with extra per-station properties.
// extra may be nil.
func StationLayer(stations []domain.Station, extra func(domain.Station) geojson.Properties) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, s := range stations {
		f := geojson.NewFeature(orb.Point{s.Lon, s.Lat})
		f.Properties["id"] = s.ID
		f.Properties["name"] = s.Name
		f.Properties["type"] = s.Category
		f.Properties["source"] = string(s.Source)
		if extra != nil {
			for k, v := range extra(s) {
				f.Properties[k] = v
			}
		}
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

// BoundaryToGeoJSON renders the boundary as a single MultiPolygon feature.
func BoundaryToGeoJSON(b *Boundary) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(b.Polygons()))
	return fc.MarshalJSON()
}
