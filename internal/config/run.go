package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// RunFile is the on-disk YAML definition of one retrieval run.
type RunFile struct {
	Area        string   `yaml:"area"`
	Source      string   `yaml:"source"`
	Product     string   `yaml:"product"`
	Parameter   string   `yaml:"parameter"`
	Boundary    string   `yaml:"boundary"`
	Stations    string   `yaml:"stations"`
	Start       string   `yaml:"start"`
	End         string   `yaml:"end"`
	Categories  []string `yaml:"categories"`
	Datum       string   `yaml:"datum"`
	TimeZone    string   `yaml:"time_zone"`
	Units       string   `yaml:"units"`
	Interval    string   `yaml:"interval"`
	SampleMedia []string `yaml:"sample_media"`
	Providers   []string `yaml:"providers"`
}

// Run is a validated run definition.
type Run struct {
	Area         string
	Source       domain.Source
	Product      domain.Product
	BoundaryPath string
	StationsPath string
	Window       domain.DateRange
	Categories   []domain.Category
	Options      domain.RetrievalOptions
}

var areaPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	validUnits     = []string{"metric", "english"}
	validTimeZones = []string{"gmt", "lst", "lst_ldt"}
	validProviders = []string{"NWIS", "STORET"}
	validMedia     = []string{"Water", "Air", "Biological", "Biological Tissue", "Habitat", "No media", "Other", "Sediment", "Soil", "Tissue"}
)

// LoadRun reads and validates a YAML run file. The chunk span comes from cfg.
func LoadRun(path string, cfg *Config) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	var rf RunFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}
	return rf.Resolve(cfg)
}

// Resolve validates every field and collects all problems into one error.
func (rf RunFile) Resolve(cfg *Config) (*Run, error) {
	var result *multierror.Error
	run := &Run{
		Area:         strings.TrimSpace(rf.Area),
		BoundaryPath: strings.TrimSpace(rf.Boundary),
		StationsPath: strings.TrimSpace(rf.Stations),
		Options:      domain.DefaultRetrievalOptions(),
	}
	run.Options.ChunkSpan = cfg.ChunkSpan()

	if !areaPattern.MatchString(run.Area) {
		result = multierror.Append(result, fmt.Errorf("area %q must be a non-empty name of letters, digits, '-' or '_'", rf.Area))
	}
	if run.BoundaryPath == "" {
		result = multierror.Append(result, errors.New("boundary is required"))
	}

	src, err := domain.ParseSource(rf.Source)
	if err != nil {
		result = multierror.Append(result, err)
	}
	run.Source = src

	if src != "" {
		run.Product, err = domain.ParseProduct(src, rf.Product)
		if err != nil {
			result = multierror.Append(result, err)
		}
		for _, name := range rf.Categories {
			c, err := domain.ParseCategory(src, name)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			run.Categories = append(run.Categories, c)
		}
		if len(rf.Categories) == 0 {
			run.Categories = run.Product.Descriptor().Categories
		}
		if src == domain.SourceNOAA && run.StationsPath == "" {
			result = multierror.Append(result, errors.New("stations point layer is required for noaa"))
		}
	}

	run.Window, err = domain.ParseDateRange(rf.Start, rf.End)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("date range: %w", err))
	}

	if rf.Parameter != "" {
		run.Options.Parameter = strings.TrimSpace(rf.Parameter)
	}
	if run.Product.Descriptor().Parameterized {
		if _, ok := domain.LookupParameter(run.Options.Parameter); !ok {
			result = multierror.Append(result, fmt.Errorf("unknown parameter code %q", run.Options.Parameter))
		}
	}
	if rf.Datum != "" {
		run.Options.Datum = strings.ToUpper(strings.TrimSpace(rf.Datum))
	}
	if rf.TimeZone != "" {
		run.Options.TimeZone = strings.ToLower(strings.TrimSpace(rf.TimeZone))
		if !slices.Contains(validTimeZones, run.Options.TimeZone) {
			result = multierror.Append(result, fmt.Errorf("time_zone %q must be one of %v", rf.TimeZone, validTimeZones))
		}
	}
	if rf.Units != "" {
		run.Options.Units = strings.ToLower(strings.TrimSpace(rf.Units))
		if !slices.Contains(validUnits, run.Options.Units) {
			result = multierror.Append(result, fmt.Errorf("units %q must be one of %v", rf.Units, validUnits))
		}
	}
	if rf.Interval != "" {
		run.Options.Interval = strings.TrimSpace(rf.Interval)
	}
	for _, m := range rf.SampleMedia {
		if !slices.Contains(validMedia, m) {
			result = multierror.Append(result, fmt.Errorf("unknown sample medium %q", m))
		}
	}
	run.Options.SampleMedia = rf.SampleMedia
	if len(rf.Providers) > 0 {
		for _, p := range rf.Providers {
			if !slices.Contains(validProviders, p) {
				result = multierror.Append(result, fmt.Errorf("unknown provider %q", p))
			}
		}
		run.Options.Providers = rf.Providers
	}
	run.Options.SiteTypes = domain.AllowedCodes(run.Categories)

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return run, nil
}
