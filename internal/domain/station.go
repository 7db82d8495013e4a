package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Station is a monitored location. Category holds the raw type code as the
// source reports it ("ST", "Water Level", "Stream").
type Station struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Source   Source  `json:"source"`
}

// Key is the identifier used for deduplication.
func (s Station) Key() string {
	return strings.TrimSpace(s.ID)
}

// Validate checks the fields every downstream stage relies on.
func (s Station) Validate() error {
	if s.Key() == "" {
		return errors.New("station id is required")
	}
	if math.IsNaN(s.Lat) || s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("station %s: latitude %v out of range", s.ID, s.Lat)
	}
	if math.IsNaN(s.Lon) || s.Lon < -180 || s.Lon > 180 {
		return fmt.Errorf("station %s: longitude %v out of range", s.ID, s.Lon)
	}
	return nil
}

// BBox is an axis-aligned envelope in geographic degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Round returns the box with each edge rounded to the given number of decimals.
func (b BBox) Round(places int) BBox {
	p := math.Pow(10, float64(places))
	r := func(v float64) float64 { return math.Round(v*p) / p }
	return BBox{MinLon: r(b.MinLon), MinLat: r(b.MinLat), MaxLon: r(b.MaxLon), MaxLat: r(b.MaxLat)}
}

// Contains reports whether a point lies inside the box, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// String renders the box as "minLon,minLat,maxLon,maxLat", the order WQP expects.
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}
