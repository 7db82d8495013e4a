// Package catalog discovers candidate stations and narrows them to the final
// work set for a run.
package catalog

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// Catalog returns the stations whose point falls in a bounding box. Results
// may contain duplicates and are not ordered.
type Catalog interface {
	FetchCandidates(ctx context.Context, bbox domain.BBox) ([]domain.Station, error)
}

// Containment is the precise spatial predicate used for the second pass.
type Containment interface {
	Contains(lat, lon float64) bool
}

// Dedup keeps the first station seen for each trimmed identifier.
func Dedup(stations []domain.Station) []domain.Station {
	seen := make(map[string]struct{}, len(stations))
	out := make([]domain.Station, 0, len(stations))
	for _, s := range stations {
		k := s.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		s.ID = k
		out = append(out, s)
	}
	return out
}

// Filter applies the category allow-list, then exact containment, then
// deduplication. An empty allow-list keeps every category. An empty result
// is valid.
func Filter(stations []domain.Station, allow []domain.Category, area Containment) []domain.Station {
	kept := stations
	if len(allow) > 0 {
		kept = make([]domain.Station, 0, len(stations))
		for _, s := range stations {
			if allowed(s.Category, allow) {
				kept = append(kept, s)
			}
		}
	}

	inside := make([]domain.Station, 0, len(kept))
	for _, s := range kept {
		if area == nil || area.Contains(s.Lat, s.Lon) {
			inside = append(inside, s)
		}
	}
	return Dedup(inside)
}

func allowed(code string, allow []domain.Category) bool {
	for _, c := range allow {
		if c.Matches(code) {
			return true
		}
	}
	return false
}

// PointLayer serves candidates from an externally supplied station layer.
// Only the bounding box pass happens here.
type PointLayer struct {
	stations []domain.Station
	logger   *slog.Logger
}

// NewPointLayer wraps a loaded point layer.
func NewPointLayer(stations []domain.Station, logger *slog.Logger) *PointLayer {
	return &PointLayer{stations: stations, logger: logger}
}

// FetchCandidates returns the layer's stations inside the box.
func (p *PointLayer) FetchCandidates(_ context.Context, bbox domain.BBox) ([]domain.Station, error) {
	out := make([]domain.Station, 0, len(p.stations))
	for _, s := range p.stations {
		if err := s.Validate(); err != nil {
			p.logger.Warn("skipping invalid station", "station_id", s.ID, "error", err)
			continue
		}
		if bbox.Contains(s.Lat, s.Lon) {
			out = append(out, s)
		}
	}
	p.logger.Info("point layer candidates", "total", len(p.stations), "in_bbox", len(out))
	return Dedup(out), nil
}
