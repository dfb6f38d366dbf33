// Command validate checks the acquisition output against the station roster:
// roster integrity, per-period artifact coverage, empty artifacts, and
// leftover in-flight files from interrupted writes.
//
// Usage:
//
//	go run ./cmd/validate \
//	  --roster data/stations_lat_long.csv \
//	  --output output \
//	  --periods 2017-2023
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/roster"
	"github.com/couchcryptid/airquality-etl/internal/tracker"
	"github.com/spf13/pflag"
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
	rosterPath := pflag.String("roster", "data/stations_lat_long.csv", "station roster CSV")
	outputDir := pflag.String("output", "output", "artifact output directory")
	periodSpec := pflag.String("periods", "2017", "periods to check, e.g. 2017,2019 or 2017-2023")
	pflag.Parse()

	periods, err := domain.ParsePeriods(*periodSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --periods: %v\n", err)
		os.Exit(2)
	}

	os.Exit(run(*rosterPath, *outputDir, periods))
}

func run(rosterPath, outputDir string, periods []domain.Period) int {
	fmt.Println("=== Acquisition Output Validation ===")
	fmt.Println()

	stations, err := roster.Load(rosterPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load roster: %v\n", err)
		return 1
	}

	phases := []*phase{validateRoster(stations)}
	for _, p := range periods {
		phases = append(phases, validatePeriod(stations, outputDir, p))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Stations: %d, periods: %d\n", len(stations), len(periods))

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

// validateRoster checks that every station id maps to exactly one artifact name.
func validateRoster(stations []domain.Station) *phase {
	p := &phase{name: "Roster integrity"}
	if len(stations) == 0 {
		p.errorf("roster is empty")
	}

	seen := make(map[string]int, len(stations))
	for i, s := range stations {
		if j, ok := seen[s.OriginalID]; ok {
			p.errorf("row %d: station %s duplicates row %d", i+1, s.OriginalID, j+1)
			continue
		}
		seen[s.OriginalID] = i
	}
	return p
}

// validatePeriod reports missing and empty artifacts and stray temp files.
func validatePeriod(stations []domain.Station, outputDir string, period domain.Period) *phase {
	p := &phase{name: fmt.Sprintf("Period %s coverage", period)}
	dir := domain.ArtifactDir(outputDir, period)

	existing, err := tracker.Scan(dir)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	missing := 0
	for _, s := range stations {
		if !existing.Exists(s, period) {
			missing++
			p.errorf("station %s: missing %s", s.OriginalID, domain.ArtifactName(s.OriginalID, period))
			continue
		}
		info, err := os.Stat(domain.ArtifactPath(outputDir, s, period))
		if err != nil {
			p.errorf("station %s: %v", s.OriginalID, err)
			continue
		}
		if info.Size() == 0 {
			p.errorf("station %s: artifact is empty", s.OriginalID)
		}
	}
	if missing > 0 {
		p.name = fmt.Sprintf("Period %s coverage (%d/%d)", period, len(stations)-missing, len(stations))
	}

	temps, err := filepath.Glob(filepath.Join(dir, domain.TempPrefix+"*"))
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, t := range temps {
		p.errorf("leftover in-flight file %s", filepath.Base(t))
	}
	return p
}
