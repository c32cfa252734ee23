// Command validate checks a termine.json document before it is published:
// record integrity, index uniqueness, the marker partition and the jitter
// bounds of co-located markers. It uses the same domain package as the
// service, so a passing file renders exactly as validated.
//
// Usage:
//
//	go run ./cmd/validate -file www/termine.json [-today 2025-06-15]
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
)

// Germany's bounding box, padded slightly for border towns.
const (
	minLat, maxLat = 47.0, 55.2
	minLon, maxLon = 5.5, 15.2
)

var postalCodePattern = regexp.MustCompile(`^\d{5}$`)

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
	file := flag.String("file", "", "path to termine.json")
	today := flag.String("today", "", "reference date YYYY-MM-DD (default: today in Europe/Berlin)")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	if *today == "" {
		loc, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			loc = time.UTC
		}
		*today = domain.Today(loc)
	}

	if code := run(*file, *today); code != 0 {
		os.Exit(code)
	}
}

func run(path, today string) int {
	fmt.Println("=== termine.json validation ===")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	events, err := domain.ParseTermine(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	sorted := domain.SortByDate(events)
	markers := domain.DeriveMarkers(sorted, today, domain.PaletteFor(domain.ThemeLight))

	phases := []*phase{
		validateRecords(events),
		validateIndices(events),
		validatePartition(events, markers),
		validateJitter(events, markers),
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

	located := 0
	for _, e := range events {
		if _, ok := e.Geo(); ok {
			located++
		}
	}
	upcoming := domain.BuildCardList(events, today).SeparatorBefore
	fmt.Println()
	fmt.Printf("Records: %d total, %d located, %d markers, first upcoming card at %d (today %s)\n",
		len(events), located, len(markers), upcoming, today)

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

// ── Phase 1: record integrity ──

func validateRecords(events []domain.Termin) *phase {
	p := &phase{name: "Phase 1: Record integrity"}
	for _, e := range events {
		id := fmt.Sprintf("record %d (%q)", e.OriginalIndex, e.Name)
		if e.Name == "" {
			p.errorf("record %d: missing name", e.OriginalIndex)
		}
		if e.Date == "" {
			p.errorf("%s: missing date", id)
		} else if _, err := time.Parse(time.DateOnly, e.Date); err != nil {
			p.errorf("%s: invalid date %q", id, e.Date)
		} else if want := domain.WeekdayLabel(e.Date); e.DayOfWeek != want {
			p.errorf("%s: dow %q does not match %s (%s)", id, e.DayOfWeek, e.Date, want)
		}
		if e.State != "" && !domain.IsRegionCode(e.State) {
			p.errorf("%s: invalid state code %q", id, e.State)
		} else if _, ok := domain.Regions[e.State]; e.State != "" && !ok {
			p.errorf("%s: unknown state %q", id, e.State)
		}
		if e.PostalCode != "" && !postalCodePattern.MatchString(e.PostalCode) {
			p.errorf("%s: invalid plz %q", id, e.PostalCode)
		}
		geo, ok := e.Geo()
		switch {
		case !ok && e.PostalCode == "":
			p.errorf("%s: neither coords nor plz, cannot be placed", id)
		case ok && (geo.Lat < minLat || geo.Lat > maxLat || geo.Lon < minLon || geo.Lon > maxLon):
			p.errorf("%s: coords %.4f,%.4f outside Germany (swapped lat/lon?)", id, geo.Lat, geo.Lon)
		}
	}
	return p
}

// ── Phase 2: index uniqueness ──

func validateIndices(events []domain.Termin) *phase {
	p := &phase{name: "Phase 2: Index uniqueness"}
	keys := make(map[string]int, len(events))
	for i, e := range events {
		if e.OriginalIndex != i {
			p.errorf("record %d: originalIndex %d", i, e.OriginalIndex)
		}
		if prev, dup := keys[e.Key()]; dup {
			p.errorf("records %d and %d share name, date and plz %q", prev, i, e.Key())
			continue
		}
		keys[e.Key()] = i
	}
	return p
}

// ── Phase 3: marker partition ──

func validatePartition(events []domain.Termin, markers []domain.Marker) *phase {
	p := &phase{name: "Phase 3: Marker partition"}

	owner := make(map[int]int)
	for mi, m := range markers {
		if len(m.Indices) == 0 {
			p.errorf("marker %d: no events", mi)
			continue
		}
		if !slices.IsSorted(m.Indices) {
			p.errorf("marker %d: indices not sorted %v", mi, m.Indices)
		}
		if !slices.Contains(m.Indices, m.Representative) {
			p.errorf("marker %d: representative %d not in %v", mi, m.Representative, m.Indices)
		}
		first, err := domain.FindByIndex(events, m.Indices[0])
		if err != nil {
			p.errorf("marker %d: %v", mi, err)
			continue
		}
		for _, idx := range m.Indices {
			if prev, dup := owner[idx]; dup {
				p.errorf("record %d: in markers %d and %d", idx, prev, mi)
			}
			owner[idx] = mi

			e, err := domain.FindByIndex(events, idx)
			if err != nil {
				p.errorf("marker %d: %v", mi, err)
				continue
			}
			if e.Name != first.Name || !slices.Equal(e.Coords, first.Coords) {
				p.errorf("marker %d: record %d differs in name or coords from record %d", mi, idx, first.OriginalIndex)
			}
		}
	}

	for _, e := range events {
		_, located := e.Geo()
		_, placed := owner[e.OriginalIndex]
		if located && !placed {
			p.errorf("record %d: located but on no marker", e.OriginalIndex)
		}
		if !located && placed {
			p.errorf("record %d: unlocated but on a marker", e.OriginalIndex)
		}
	}
	return p
}

// ── Phase 4: jitter bounds ──

func validateJitter(events []domain.Termin, markers []domain.Marker) *phase {
	p := &phase{name: "Phase 4: Jitter bounds"}
	exact := make(map[domain.Geo]int)

	for mi, m := range markers {
		if len(m.Indices) == 0 {
			continue
		}
		e, err := domain.FindByIndex(events, m.Indices[0])
		if err != nil {
			continue
		}
		geo, _ := e.Geo()
		dLat, dLon := m.Lat-geo.Lat, m.Lon-geo.Lon

		if !m.Jittered {
			if dLat != 0 || dLon != 0 {
				p.errorf("marker %d: moved without jitter", mi)
			}
			if prev, dup := exact[geo]; dup {
				p.errorf("markers %d and %d both at exact %.4f,%.4f", prev, mi, geo.Lat, geo.Lon)
			}
			exact[geo] = mi
			continue
		}
		if !inJitterRange(dLat) || !inJitterRange(dLon) {
			p.errorf("marker %d: offset %.5f,%.5f outside [0, %.2f)", mi, dLat, dLon, domain.MaxJitter)
		}
	}

	// Every jittered marker is offset from an exact marker at the same place.
	for mi, m := range markers {
		if !m.Jittered || len(m.Indices) == 0 {
			continue
		}
		e, err := domain.FindByIndex(events, m.Indices[0])
		if err != nil {
			continue
		}
		geo, _ := e.Geo()
		if _, ok := exact[geo]; !ok {
			p.errorf("marker %d: jittered but no exact marker at %.4f,%.4f", mi, geo.Lat, geo.Lon)
		}
	}
	return p
}

// inJitterRange allows for float rounding when the offset was added to the coordinate.
func inJitterRange(d float64) bool {
	const eps = 1e-9
	return d > -eps && d < domain.MaxJitter+eps && !math.IsNaN(d)
}
