// Package geo reads study-area boundaries and station point layers from
// GeoJSON and answers containment queries in geographic coordinates.
package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// Boundary is an immutable study area in EPSG:4326. Multi-part inputs are
// treated as a union of their polygons.
type Boundary struct {
	shape orb.MultiPolygon
	bound orb.Bound
}

// NewBoundary builds a boundary from polygons already in geographic coordinates.
func NewBoundary(polys ...orb.Polygon) (*Boundary, error) {
	var mp orb.MultiPolygon
	for _, p := range polys {
		if len(p) == 0 || len(p[0]) < 3 {
			continue
		}
		mp = append(mp, p)
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("%w: no polygonal geometry", domain.ErrGeometry)
	}
	return &Boundary{shape: mp, bound: mp.Bound()}, nil
}

// ReadBoundary loads a boundary from a GeoJSON file.
func ReadBoundary(path string) (*Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read boundary: %v", domain.ErrGeometry, err)
	}
	return ParseBoundary(data)
}

// ParseBoundary decodes a FeatureCollection, Feature, or bare geometry.
// Geometries declared in EPSG:3857 are reprojected; any other declared
// reference system is rejected.
func ParseBoundary(data []byte) (*Boundary, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: empty boundary file", domain.ErrGeometry)
	}
	proj, err := detectProjection(data)
	if err != nil {
		return nil, err
	}
	geoms, err := decodeGeometries(data)
	if err != nil {
		return nil, err
	}
	if len(geoms) == 0 {
		return nil, fmt.Errorf("%w: boundary has no features", domain.ErrGeometry)
	}

	var polys []orb.Polygon
	for _, g := range geoms {
		if proj != nil {
			g = project.Geometry(g, proj)
		}
		switch v := g.(type) {
		case orb.Polygon:
			polys = append(polys, v)
		case orb.MultiPolygon:
			polys = append(polys, v...)
		}
	}
	return NewBoundary(polys...)
}

func decodeGeometries(data []byte) ([]orb.Geometry, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse geojson: %v", domain.ErrGeometry, err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: parse feature collection: %v", domain.ErrGeometry, err)
		}
		out := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		return out, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: parse feature: %v", domain.ErrGeometry, err)
		}
		if f.Geometry == nil {
			return nil, nil
		}
		return []orb.Geometry{f.Geometry}, nil
	case "":
		return nil, fmt.Errorf("%w: missing geojson type", domain.ErrGeometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: parse geometry: %v", domain.ErrGeometry, err)
		}
		return []orb.Geometry{g.Geometry()}, nil
	}
}

// detectProjection reads the legacy GeoJSON "crs" member. A nil projection
// means the coordinates are already geographic.
func detectProjection(data []byte) (orb.Projection, error) {
	var doc struct {
		CRS *struct {
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"crs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse geojson: %v", domain.ErrGeometry, err)
	}
	if doc.CRS == nil {
		return nil, nil
	}
	name := strings.ToUpper(doc.CRS.Properties.Name)
	switch {
	case name == "", strings.HasSuffix(name, "CRS84"), strings.HasSuffix(name, ":4326"), strings.HasSuffix(name, "::4326"):
		return nil, nil
	case strings.HasSuffix(name, ":3857"), strings.HasSuffix(name, "::3857"), strings.HasSuffix(name, ":900913"):
		return project.Mercator.ToWGS84, nil
	}
	return nil, fmt.Errorf("%w: unsupported reference system %q", domain.ErrGeometry, doc.CRS.Properties.Name)
}

// BBox returns the full-precision envelope.
func (b *Boundary) BBox() domain.BBox {
	return domain.BBox{
		MinLon: b.bound.Min.Lon(),
		MinLat: b.bound.Min.Lat(),
		MaxLon: b.bound.Max.Lon(),
		MaxLat: b.bound.Max.Lat(),
	}
}

// Polygons exposes the boundary parts for rendering.
func (b *Boundary) Polygons() orb.MultiPolygon {
	return b.shape.Clone()
}

// Contains reports whether a point lies in the boundary. Points on an edge
// count as inside.
func (b *Boundary) Contains(lat, lon float64) bool {
	pt := orb.Point{lon, lat}
	if !b.bound.Contains(pt) {
		return false
	}
	for _, poly := range b.shape {
		for _, ring := range poly {
			if onRing(ring, pt) {
				return true
			}
		}
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}

// Intersect keeps the stations whose point lies in the boundary.
func (b *Boundary) Intersect(stations []domain.Station) []domain.Station {
	out := make([]domain.Station, 0, len(stations))
	for _, s := range stations {
		if b.Contains(s.Lat, s.Lon) {
			out = append(out, s)
		}
	}
	return out
}

const edgeTolerance = 1e-12

func onRing(ring orb.Ring, p orb.Point) bool {
	for i := 0; i+1 < len(ring); i++ {
		if onSegment(ring[i], ring[i+1], p) {
			return true
		}
	}
	if n := len(ring); n > 1 && !ring.Closed() {
		return onSegment(ring[n-1], ring[0], p)
	}
	return false
}

func onSegment(a, c, p orb.Point) bool {
	cross := (c[0]-a[0])*(p[1]-a[1]) - (c[1]-a[1])*(p[0]-a[0])
	if cross > edgeTolerance || cross < -edgeTolerance {
		return false
	}
	return p[0] >= min(a[0], c[0])-edgeTolerance && p[0] <= max(a[0], c[0])+edgeTolerance &&
		p[1] >= min(a[1], c[1])-edgeTolerance && p[1] <= max(a[1], c[1])+edgeTolerance
}
