package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Source identifies the upstream service a station or product belongs to.
type Source string

const (
	SourceUSGS Source = "usgs"
	SourceNOAA Source = "noaa"
	SourceEPA  Source = "epa"
)

// ParseSource accepts a case-insensitive source name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceUSGS:
		return SourceUSGS, nil
	case SourceNOAA:
		return SourceNOAA, nil
	case SourceEPA:
		return SourceEPA, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Category is a closed set of station categories. Each variant belongs to one
// source and carries the raw type codes that source uses for it.
type Category int

const (
	CategoryUnknown Category = iota

	CategorySurfaceWater
	CategoryGroundWater
	CategorySpring
	CategoryAtmospheric

	CategoryWaterLevel
	CategoryMeteorological

	CategoryWQPStream
	CategoryWQPLake
	CategoryWQPEstuary
	CategoryWQPSpring
	CategoryWQPWell
	CategoryWQPAtmosphere
	CategoryWQPFacility
	CategoryWQPGlacier
	CategoryWQPLand
	CategoryWQPAggregateGroundwater
	CategoryWQPAggregateSurfaceWater
	CategoryWQPAggregateWaterUse
)

type categoryInfo struct {
	name   string
	source Source
	codes  []string
}

var categoryTable = map[Category]categoryInfo{
	CategorySurfaceWater: {"surface_water", SourceUSGS, []string{"ES", "LK", "ST", "ST-CA", "ST-DCH", "ST-TS", "WE"}},
	CategoryGroundWater: {"ground_water", SourceUSGS, []string{
		"GW", "GW-CR", "GW-EX", "GW-HZ", "GW-IW", "GW-MW", "GW-TH",
		"SB", "SB-CV", "SB-GWD", "SB-TSM", "SB-UZ",
	}},
	CategorySpring:      {"spring", SourceUSGS, []string{"SP"}},
	CategoryAtmospheric: {"atmospheric", SourceUSGS, []string{"AT"}},

	CategoryWaterLevel:     {"water_level", SourceNOAA, []string{"Water Level"}},
	CategoryMeteorological: {"met", SourceNOAA, []string{"met"}},

	CategoryWQPStream:                {"stream", SourceEPA, []string{"Stream"}},
	CategoryWQPLake:                  {"lake", SourceEPA, []string{"Lake, Reservoir, Impoundment"}},
	CategoryWQPEstuary:               {"estuary", SourceEPA, []string{"Estuary"}},
	CategoryWQPSpring:                {"spring", SourceEPA, []string{"Spring"}},
	CategoryWQPWell:                  {"well", SourceEPA, []string{"Well"}},
	CategoryWQPAtmosphere:            {"atmosphere", SourceEPA, []string{"Atmosphere"}},
	CategoryWQPFacility:              {"facility", SourceEPA, []string{"Facility"}},
	CategoryWQPGlacier:               {"glacier", SourceEPA, []string{"Glacier"}},
	CategoryWQPLand:                  {"land", SourceEPA, []string{"Land"}},
	CategoryWQPAggregateGroundwater:  {"aggregate_groundwater_use", SourceEPA, []string{"Aggregate groundwater use"}},
	CategoryWQPAggregateSurfaceWater: {"aggregate_surface_water_use", SourceEPA, []string{"Aggregate surface-water-use"}},
	CategoryWQPAggregateWaterUse:     {"aggregate_water_use_establishment", SourceEPA, []string{"Aggregate water-use establishment"}},
}

func (c Category) String() string {
	if info, ok := categoryTable[c]; ok {
		return string(info.source) + ":" + info.name
	}
	return "unknown"
}

// Source reports which service the category belongs to.
func (c Category) Source() Source { return categoryTable[c].source }

// Codes returns the raw type codes for the category.
func (c Category) Codes() []string { return slices.Clone(categoryTable[c].codes) }

// Matches reports whether a raw station type code belongs to the category.
func (c Category) Matches(code string) bool {
	return slices.Contains(categoryTable[c].codes, strings.TrimSpace(code))
}

// ParseCategory resolves a category name within a source, e.g. "surface_water"
// for USGS or "stream" for EPA.
func ParseCategory(src Source, name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, info := range categoryTable {
		if info.source == src && info.name == name {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown %s category %q", src, name)
}

// CategoriesFor lists every category of a source in declaration order.
func CategoriesFor(src Source) []Category {
	var out []Category
	for c := CategorySurfaceWater; c <= CategoryWQPAggregateWaterUse; c++ {
		if categoryTable[c].source == src {
			out = append(out, c)
		}
	}
	return out
}

// AllowedCodes flattens the raw codes of a category set.
func AllowedCodes(cats []Category) []string {
	var out []string
	for _, c := range cats {
		out = append(out, categoryTable[c].codes...)
	}
	return out
}
