package domain

import (
	"math"
	"slices"
	"unicode/utf16"
)

// MaxJitter bounds the offset applied to co-located markers, in degrees per axis.
const MaxJitter = 0.03

// Marker is a map pin for one or more events sharing a location and name.
type Marker struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Label          string  `json:"label"`
	City           string  `json:"city"`
	Date           string  `json:"date"`
	Fill           string  `json:"fill"`
	Upcoming       bool    `json:"upcoming"`
	Jittered       bool    `json:"jittered"`
	Representative int     `json:"representative"`
	Indices        []int   `json:"indices"`
}

// DeriveMarkers groups located events into markers. events must be sorted by
// date. Groups keep first-appearance order: events sharing exact coordinates
// form a location group, which is split by event name. The first name group
// at a location keeps the exact coordinates; later ones are jittered.
func DeriveMarkers(events []Termin, today string, palette Palette) []Marker {
	type location struct {
		geo    Geo
		names  []string
		byName map[string][]Termin
	}

	var order []Geo
	locations := make(map[Geo]*location)
	for _, e := range events {
		geo, ok := e.Geo()
		if !ok {
			continue
		}
		loc, seen := locations[geo]
		if !seen {
			loc = &location{geo: geo, byName: make(map[string][]Termin)}
			locations[geo] = loc
			order = append(order, geo)
		}
		if _, ok := loc.byName[e.Name]; !ok {
			loc.names = append(loc.names, e.Name)
		}
		loc.byName[e.Name] = append(loc.byName[e.Name], e)
	}

	markers := make([]Marker, 0, len(order))
	for _, geo := range order {
		loc := locations[geo]
		for i, name := range loc.names {
			markers = append(markers, buildMarker(loc.geo, loc.byName[name], i > 0, today, palette))
		}
	}
	return markers
}

func buildMarker(geo Geo, group []Termin, jitter bool, today string, palette Palette) Marker {
	rep := representative(group, today)

	m := Marker{
		Lat:            geo.Lat,
		Lon:            geo.Lon,
		Label:          rep.Name,
		City:           rep.City,
		Date:           rep.Date,
		Fill:           palette.Muted,
		Representative: rep.OriginalIndex,
		Indices:        make([]int, 0, len(group)),
	}
	for _, e := range group {
		m.Indices = append(m.Indices, e.OriginalIndex)
		if e.Upcoming(today) {
			m.Upcoming = true
		}
	}
	slices.Sort(m.Indices)
	if m.Upcoming {
		m.Fill = palette.Accent
	}
	if jitter {
		dLat, dLon := JitterOffset(rep.Name + rep.City)
		m.Lat += dLat
		m.Lon += dLon
		m.Jittered = true
	}
	return m
}

// representative returns the first upcoming event of the group, else the first event.
func representative(group []Termin, today string) Termin {
	for _, e := range group {
		if e.Upcoming(today) {
			return e
		}
	}
	return group[0]
}

// ResolveMarkerEvent maps a marker click to the event to show, using the same
// tie-break as marker derivation.
func ResolveMarkerEvent(events []Termin, m Marker, today string) (Termin, error) {
	var group []Termin
	for _, idx := range m.Indices {
		e, err := FindByIndex(events, idx)
		if err != nil {
			return Termin{}, err
		}
		group = append(group, e)
	}
	if len(group) == 0 {
		return Termin{}, ErrNotFound
	}
	group = SortByDate(group)
	return representative(group, today), nil
}

// JitterOffset returns a deterministic (lat, lon) offset in [0, MaxJitter) for seed.
func JitterOffset(seed string) (float64, float64) {
	h := seedHash(seed)
	return fract(math.Sin(float64(h))*10000) * MaxJitter,
		fract(math.Sin(float64(h)+1)*10000) * MaxJitter
}

// seedHash is the 31-multiplier string hash over UTF-16 code units, wrapped to int32.
func seedHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

func fract(x float64) float64 {
	f := x - math.Floor(x)
	if f >= 1 { // rounding for tiny negative x
		return 0
	}
	return f
}
