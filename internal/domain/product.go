package domain

import (
	"fmt"
	"strings"
	"time"
)

// Product is a closed set of retrievable measurement services.
type Product int

const (
	ProductUnknown Product = iota

	ProductInstantaneous
	ProductDaily

	ProductWaterLevel
	ProductHourlyHeight
	ProductPredictions
	ProductWind
	ProductWaterTemperature
	ProductConductivity
	ProductSalinity
	ProductAirTemperature
	ProductAirPressure
	ProductHumidity
	ProductVisibility

	ProductWQPResults
)

// Format is the wire format of a response body.
type Format string

const (
	FormatRDB Format = "rdb"
	FormatCSV Format = "csv"
)

// Chunking selects how a product's date window is split into requests.
type Chunking int

const (
	// ChunkNone requests the whole window at once.
	ChunkNone Chunking = iota
	// ChunkSpan splits into fixed-length spans (configurable, 30 days by default).
	ChunkSpan
	// ChunkYear splits on calendar year boundaries.
	ChunkYear
)

// Column binds one raw column to a canonical name, either by position or by
// header text.
type Column struct {
	Name   string
	Index  int
	Header string
}

// Descriptor is everything the retrieval engine and normalizer need to know
// about a product.
type Descriptor struct {
	Product Product
	Source  Source
	// Code is the upstream product or service token.
	Code string
	// Application is sent as the NOAA "application" parameter when set.
	Application string
	Format      Format
	// HeaderRows counts the non-comment rows preceding data: 2 for rdb
	// (header plus format row), 1 for csv.
	HeaderRows int
	// ByName binds columns by header text instead of position.
	ByName bool
	// Required is the minimum raw column count for positional binding.
	Required int

	Time   Column
	Clock  *Column
	Zone   *Column
	Flag   *Column
	Values []Column
	Labels []Column

	Chunking Chunking
	// Pooled products fetch stations on the worker pool.
	Pooled bool
	// Parameterized products need a parameter code (USGS).
	Parameterized bool
	// Categories is the default station allow-list. Empty means no type filter.
	Categories []Category
	// Units maps a unit system ("metric", "english") to a display label.
	Units map[string]string
}

// Fields lists the canonical value column names.
func (d Descriptor) Fields() []string {
	out := make([]string, len(d.Values))
	for i, c := range d.Values {
		out[i] = c.Name
	}
	return out
}

// LabelNames lists the canonical label column names.
func (d Descriptor) LabelNames() []string {
	out := make([]string, len(d.Labels))
	for i, c := range d.Labels {
		out[i] = c.Name
	}
	return out
}

// Extension is the file extension for raw responses.
func (d Descriptor) Extension() string {
	if d.Format == FormatRDB {
		return "txt"
	}
	return "csv"
}

// UnitLabel returns the display unit for a unit system, falling back to metric.
func (d Descriptor) UnitLabel(system string) string {
	if u, ok := d.Units[system]; ok {
		return u
	}
	return d.Units["metric"]
}

const (
	appPhysOcean = "NOS.COOPS.TAC.PHYSOCEAN"
	appMetObs    = "NOS.COOPS.TAC.METEROLOGICALOBS"
	appWaterLvl  = "NOS.COOPS.TAC.WL"
)

func col(name string, idx int) Column { return Column{Name: name, Index: idx} }

func colPtr(name string, idx int) *Column { return &Column{Name: name, Index: idx} }

func hdr(name, header string) Column { return Column{Name: name, Header: header} }

func hdrPtr(name, header string) *Column { return &Column{Name: name, Header: header} }

func noaaSingle(p Product, code, app, field string, chunking Chunking, cats []Category, metric, english string) Descriptor {
	return Descriptor{
		Product:     p,
		Source:      SourceNOAA,
		Code:        code,
		Application: app,
		Format:      FormatCSV,
		HeaderRows:  1,
		Required:    2,
		Time:        col("datetime", 0),
		Values:      []Column{col(field, 1)},
		Chunking:    chunking,
		Categories:  cats,
		Units:       map[string]string{"metric": metric, "english": english},
	}
}

var usgsLabels = []Column{col("agency", 0), col("site", 1)}

var descriptors = map[Product]Descriptor{
	ProductInstantaneous: {
		Product:       ProductInstantaneous,
		Source:        SourceUSGS,
		Code:          "iv",
		Format:        FormatRDB,
		HeaderRows:    2,
		Required:      6,
		Time:          col("datetime", 2),
		Zone:          colPtr("tz", 3),
		Values:        []Column{col("value", 4)},
		Flag:          colPtr("quality", 5),
		Labels:        usgsLabels,
		Chunking:      ChunkNone,
		Pooled:        true,
		Parameterized: true,
		Categories:    []Category{CategorySurfaceWater},
	},
	ProductDaily: {
		Product:       ProductDaily,
		Source:        SourceUSGS,
		Code:          "dv",
		Format:        FormatRDB,
		HeaderRows:    2,
		Required:      5,
		Time:          col("datetime", 2),
		Values:        []Column{col("value", 3)},
		Flag:          colPtr("quality", 4),
		Labels:        usgsLabels,
		Chunking:      ChunkNone,
		Parameterized: true,
		Categories:    []Category{CategorySurfaceWater},
	},

	ProductWaterLevel:       noaaSingle(ProductWaterLevel, "water_level", appWaterLvl, "water_level", ChunkSpan, []Category{CategoryWaterLevel}, "m", "ft"),
	ProductHourlyHeight:     noaaSingle(ProductHourlyHeight, "hourly_height", appWaterLvl, "water_level", ChunkYear, []Category{CategoryWaterLevel}, "m", "ft"),
	ProductPredictions:      noaaSingle(ProductPredictions, "predictions", appWaterLvl, "prediction", ChunkYear, []Category{CategoryWaterLevel}, "m", "ft"),
	ProductWaterTemperature: noaaSingle(ProductWaterTemperature, "water_temperature", appPhysOcean, "water_temperature", ChunkSpan, nil, "°C", "°F"),
	ProductConductivity:     noaaSingle(ProductConductivity, "conductivity", appPhysOcean, "conductivity", ChunkSpan, nil, "mS/cm", "mS/cm"),
	ProductSalinity:         noaaSingle(ProductSalinity, "salinity", appPhysOcean, "salinity", ChunkSpan, nil, "PSU", "PSU"),
	ProductAirTemperature:   noaaSingle(ProductAirTemperature, "air_temperature", appMetObs, "air_temperature", ChunkSpan, nil, "°C", "°F"),
	ProductAirPressure:      noaaSingle(ProductAirPressure, "air_pressure", appMetObs, "air_pressure", ChunkSpan, nil, "mb", "mb"),
	ProductHumidity:         noaaSingle(ProductHumidity, "humidity", appMetObs, "humidity", ChunkSpan, nil, "%", "%"),
	ProductVisibility:       noaaSingle(ProductVisibility, "visibility", appMetObs, "visibility", ChunkSpan, nil, "km", "nmi"),
	ProductWind: {
		Product:     ProductWind,
		Source:      SourceNOAA,
		Code:        "wind",
		Application: appMetObs,
		Format:      FormatCSV,
		HeaderRows:  1,
		Required:    3,
		Time:        col("datetime", 0),
		Values:      []Column{col("speed", 1), col("direction", 2)},
		Chunking:    ChunkYear,
		Categories:  []Category{CategoryMeteorological},
		Units:       map[string]string{"metric": "m/s", "english": "kn"},
	},

	ProductWQPResults: {
		Product:    ProductWQPResults,
		Source:     SourceEPA,
		Code:       "Result",
		Format:     FormatCSV,
		HeaderRows: 1,
		ByName:     true,
		Time:       hdr("datetime", "ActivityStartDate"),
		Clock:      hdrPtr("time", "ActivityStartTime/Time"),
		Zone:       hdrPtr("tz", "ActivityStartTime/TimeZoneCode"),
		Values:     []Column{hdr("value", "ResultMeasureValue")},
		Labels: []Column{
			hdr("location", "MonitoringLocationIdentifier"),
			hdr("media", "ActivityMediaName"),
			hdr("media_subdivision", "ActivityMediaSubdivisionName"),
			hdr("characteristic", "CharacteristicName"),
			hdr("unit", "ResultMeasure/MeasureUnitCode"),
		},
		Chunking:   ChunkNone,
		Categories: []Category{CategoryWQPStream},
	},
}

var productNames = map[Product]string{
	ProductInstantaneous:    "iv",
	ProductDaily:            "dv",
	ProductWaterLevel:       "water_level",
	ProductHourlyHeight:     "hourly_height",
	ProductPredictions:      "predictions",
	ProductWind:             "wind",
	ProductWaterTemperature: "water_temperature",
	ProductConductivity:     "conductivity",
	ProductSalinity:         "salinity",
	ProductAirTemperature:   "air_temperature",
	ProductAirPressure:      "air_pressure",
	ProductHumidity:         "humidity",
	ProductVisibility:       "visibility",
	ProductWQPResults:       "results",
}

func (p Product) String() string {
	if n, ok := productNames[p]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the product by name.
func (p Product) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a product name. Names are unique across sources.
func (p *Product) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for prod, n := range productNames {
		if n == name {
			*p = prod
			return nil
		}
	}
	return fmt.Errorf("unknown product %q", name)
}

// Descriptor returns the column-binding descriptor for the product.
func (p Product) Descriptor() Descriptor {
	return descriptors[p]
}

// Source reports the service the product is fetched from.
func (p Product) Source() Source {
	return descriptors[p].Source
}

// ParseProduct resolves a product name within a source.
func ParseProduct(src Source, name string) (Product, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range productNames {
		if n == name && descriptors[p].Source == src {
			return p, nil
		}
	}
	return ProductUnknown, fmt.Errorf("unknown %s product %q", src, name)
}

// Chunks splits a window according to the product's chunking rule. span is
// used for ChunkSpan products.
func (d Descriptor) Chunks(r DateRange, span time.Duration) []SubRange {
	switch d.Chunking {
	case ChunkSpan:
		return r.Split(span)
	case ChunkYear:
		return r.SplitYears()
	default:
		return r.Whole()
	}
}

// Parameter is a USGS parameter code with its display name and unit.
type Parameter struct {
	Code string
	Name string
	Unit string
}

var parameters = map[string]Parameter{
	"00060": {Code: "00060", Name: "Discharge", Unit: "cfs"},
	"00010": {Code: "00010", Name: "Temperature", Unit: "°C"},
	"00011": {Code: "00011", Name: "Temperature", Unit: "°F"},
	"00065": {Code: "00065", Name: "Gage height", Unit: "ft"},
}

// LookupParameter returns a known USGS parameter.
func LookupParameter(code string) (Parameter, bool) {
	p, ok := parameters[strings.TrimSpace(code)]
	return p, ok
}
