// Command validate checks a finished run directory for internal
// consistency: the metadata counts agree with the recorded outcomes, every
// successful station has its series file with the reported row count, and
// the combined dataset covers exactly those rows.
//
// Usage:
//
//	go run ./cmd/validate -run runs/baton_rouge_iv.yaml
//	go run ./cmd/validate -dir output/baton_rouge/iv_00060
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/export"
	"github.com/couchcryptid/hydrofetch/internal/geo"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	runPath := flag.String("run", "", "YAML run definition; the run directory is derived from it")
	dir := flag.String("dir", "", "run directory to check directly")
	flag.Parse()

	if (*runPath == "") == (*dir == "") {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*runPath, *dir))
}

func run(runPath, dir string) int {
	fmt.Println("=== Run Output Validation ===")
	fmt.Println()

	var phases []*phase
	layout := export.Layout{Root: dir}
	if runPath != "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
			return 1
		}
		def, p := validateDefinition(runPath, cfg)
		phases = append(phases, p)
		if def == nil {
			return report(phases)
		}
		layout = export.NewLayout(cfg.OutputDir, def)
	}

	meta, err := loadMetadata(layout.Path(export.RunMetadataFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load metadata: %v\n", err)
		return 1
	}
	fmt.Printf("Run %s: %s %s, %d outcomes\n", meta.RunID, meta.Source, meta.Product, len(meta.Outcomes))

	phases = append(phases,
		validateCounts(meta),
		validateStationFiles(layout, meta),
		validateCombined(layout, meta),
	)
	return report(phases)
}

func report(phases []*phase) int {
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Loading ──

func loadMetadata(path string) (*export.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m export.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

// countDataRows returns the number of records after the header.
func countDataRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(all) == 0 {
		return 0, errors.New("missing header")
	}
	return len(all) - 1, nil
}

// ── Phases ──

func validateDefinition(path string, cfg *config.Config) (*config.Run, *phase) {
	p := &phase{name: "Run definition"}
	def, err := config.LoadRun(path, cfg)
	if err != nil {
		p.errorf("%v", err)
		return nil, p
	}
	if _, err := geo.ReadBoundary(def.BoundaryPath); err != nil {
		p.errorf("boundary %s: %v", def.BoundaryPath, err)
	}
	if def.StationsPath != "" {
		if _, err := geo.ReadPoints(def.StationsPath, def.Source); err != nil {
			p.errorf("stations %s: %v", def.StationsPath, err)
		}
	}
	return def, p
}

func validateCounts(m *export.Metadata) *phase {
	p := &phase{name: "Outcome counts"}
	c := m.Counts

	if c.Attempted != len(m.Outcomes) {
		p.errorf("attempted=%d but %d outcomes recorded", c.Attempted, len(m.Outcomes))
	}
	if c.Succeeded+c.Failed+c.NoData != c.Attempted {
		p.errorf("succeeded+failed+no_data=%d, attempted=%d", c.Succeeded+c.Failed+c.NoData, c.Attempted)
	}
	if c.Attempted > c.Considered {
		p.errorf("attempted=%d exceeds considered=%d", c.Attempted, c.Considered)
	}
	if !m.Cancelled && !m.EmptyFilter && c.Attempted != c.Considered {
		p.errorf("run not cancelled but attempted=%d, considered=%d", c.Attempted, c.Considered)
	}

	tally := map[domain.Status]int{}
	seen := map[string]bool{}
	for _, o := range m.Outcomes {
		tally[o.Status]++
		if seen[o.StationID] {
			p.errorf("station %s has more than one outcome", o.StationID)
		}
		seen[o.StationID] = true
		if o.Status != domain.StatusSuccess && o.Error == "" {
			p.errorf("station %s is %s without an error", o.StationID, o.Status)
		}
	}
	if tally[domain.StatusSuccess] != c.Succeeded {
		p.errorf("outcomes show %d successes, counts say %d", tally[domain.StatusSuccess], c.Succeeded)
	}
	if tally[domain.StatusFailed] != c.Failed {
		p.errorf("outcomes show %d failures, counts say %d", tally[domain.StatusFailed], c.Failed)
	}
	if tally[domain.StatusNoData] != c.NoData {
		p.errorf("outcomes show %d no-data stations, counts say %d", tally[domain.StatusNoData], c.NoData)
	}
	return p
}

func validateStationFiles(l export.Layout, m *export.Metadata) *phase {
	p := &phase{name: "Per-station series"}
	for _, o := range m.Outcomes {
		path := l.StationCSV(o.StationID)
		if o.Status != domain.StatusSuccess {
			if _, err := os.Stat(path); err == nil {
				p.errorf("station %s is %s but %s exists", o.StationID, o.Status, path)
			}
			continue
		}
		n, err := countDataRows(path)
		if err != nil {
			p.errorf("station %s: %v", o.StationID, err)
			continue
		}
		if n != o.Rows {
			p.errorf("station %s: %d rows in file, %d reported", o.StationID, n, o.Rows)
		}
	}
	return p
}

func validateCombined(l export.Layout, m *export.Metadata) *phase {
	p := &phase{name: "Combined dataset"}
	want := 0
	for _, o := range m.Outcomes {
		if o.Status == domain.StatusSuccess {
			want += o.Rows
		}
	}
	if m.Counts.Succeeded == 0 {
		return p
	}
	n, err := countDataRows(l.Path(export.CombinedCSVFile))
	if err != nil {
		p.errorf("%s: %v", export.CombinedCSVFile, err)
		return p
	}
	if n != want {
		p.errorf("%s has %d rows, successful stations reported %d", export.CombinedCSVFile, n, want)
	}
	return p
}
