package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Termin is one meetup event record. Records are immutable once loaded.
type Termin struct {
	Name             string    `json:"name"`
	PostalCode       string    `json:"plz"`
	State            string    `json:"state"`
	City             string    `json:"city"`
	CityDistance     float64   `json:"city_dist"`
	Coords           []float64 `json:"coords,omitempty"` // [lat, lon]
	Date             string    `json:"date"`
	DayOfWeek        string    `json:"dow"`
	Time             string    `json:"time"`
	Organizer        string    `json:"orga"`
	OrganizerWebsite string    `json:"orga_www"`
	ContactName      string    `json:"kontakt"`
	ContactEmail     string    `json:"e-mail"`
	Link             string    `json:"link"`
	LinkQR           string    `json:"link_qr"`
	OriginalIndex    int       `json:"originalIndex"`
	GeoSource        string    `json:"geo_source,omitempty"` // "forward", "reverse", "original", "failed"
}

// Geo is a latitude/longitude pair in degrees.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Geo returns the event coordinates and whether the event can be placed on the map.
func (t Termin) Geo() (Geo, bool) {
	if len(t.Coords) < 2 || (t.Coords[0] == 0 && t.Coords[1] == 0) {
		return Geo{}, false
	}
	return Geo{Lat: t.Coords[0], Lon: t.Coords[1]}, true
}

// Upcoming reports whether the event takes place on or after today.
func (t Termin) Upcoming(today string) bool {
	return t.Date >= today
}

// Key identifies an event across reloads, independent of its position in the feed.
func (t Termin) Key() string {
	return t.Name + "|" + t.Date + "|" + t.PostalCode
}

// ParseTermine decodes a termine.json document. The top level must be a JSON
// array; each element becomes one record whose OriginalIndex is its array
// position. Missing or wrong-typed fields degrade to zero values.
func ParseTermine(data []byte) ([]Termin, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode termine: %w", err)
	}

	events := make([]Termin, len(raw))
	for i, msg := range raw {
		var fields map[string]any
		if err := json.Unmarshal(msg, &fields); err != nil {
			fields = nil
		}
		events[i] = termFromFields(fields)
		events[i].OriginalIndex = i
	}
	return events, nil
}

func termFromFields(m map[string]any) Termin {
	t := Termin{
		Name:             stringField(m, "name"),
		PostalCode:       strings.TrimSpace(stringField(m, "plz")),
		State:            stringField(m, "state"),
		City:             stringField(m, "city"),
		CityDistance:     numberField(m, "city_dist"),
		Coords:           coordsField(m, "coords"),
		Date:             strings.TrimSpace(stringField(m, "date")),
		DayOfWeek:        stringField(m, "dow"),
		Time:             stringField(m, "time"),
		Organizer:        stringField(m, "orga"),
		OrganizerWebsite: stringField(m, "orga_www"),
		ContactName:      stringField(m, "kontakt"),
		ContactEmail:     strings.TrimSpace(stringField(m, "e-mail")),
		Link:             stringField(m, "link"),
		LinkQR:           stringField(m, "link_qr"),
	}
	if t.DayOfWeek == "" {
		t.DayOfWeek = WeekdayLabel(t.Date)
	}
	return t
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func numberField(m map[string]any, key string) float64 {
	f, _ := toFloat(m[key])
	return f
}

func coordsField(m map[string]any, key string) []float64 {
	arr, ok := m[key].([]any)
	if !ok || len(arr) < 2 {
		return nil
	}
	lat, okLat := toFloat(arr[0])
	lon, okLon := toFloat(arr[1])
	if !okLat || !okLon {
		return nil
	}
	return []float64{lat, lon}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// SortByDate returns a copy of events ordered ascending by date string.
// The sort is stable, so events on the same date keep their feed order.
func SortByDate(events []Termin) []Termin {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b Termin) int {
		return strings.Compare(a.Date, b.Date)
	})
	return sorted
}

// FindByIndex returns the event with the given OriginalIndex.
func FindByIndex(events []Termin, index int) (Termin, error) {
	for _, e := range events {
		if e.OriginalIndex == index {
			return e, nil
		}
	}
	return Termin{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
}

var germanWeekdays = [...]string{"So.", "Mo.", "Di.", "Mi.", "Do.", "Fr.", "Sa."}

// WeekdayLabel returns the German weekday abbreviation ("Mo." .. "So.") for an
// ISO date, or "" if the date does not parse.
func WeekdayLabel(date string) string {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return ""
	}
	return germanWeekdays[d.Weekday()]
}
