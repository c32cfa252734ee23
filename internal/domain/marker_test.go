package domain

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToday = "2025-06-15"

var testPalette = PaletteFor(ThemeLight)

func at(name, date string, lat, lon float64, idx int) Termin {
	return Termin{Name: name, Date: date, City: "Stadt", Coords: []float64{lat, lon}, OriginalIndex: idx}
}

func TestDeriveMarkers_SameCoordsSameNameCollapse(t *testing.T) {
	events := SortByDate([]Termin{
		at("Stammtisch A", "2025-01-01", 48.1, 11.5, 0),
		at("Stammtisch A", "2025-07-01", 48.1, 11.5, 1),
	})

	markers := DeriveMarkers(events, testToday, testPalette)

	require.Len(t, markers, 1)
	m := markers[0]
	assert.Equal(t, []int{0, 1}, m.Indices)
	assert.Equal(t, 1, m.Representative, "first upcoming event represents the group")
	assert.Equal(t, "2025-07-01", m.Date)
	assert.Equal(t, testPalette.Accent, m.Fill)
	assert.True(t, m.Upcoming)
	assert.False(t, m.Jittered)
	assert.Equal(t, 48.1, m.Lat)
	assert.Equal(t, 11.5, m.Lon)
}

func TestDeriveMarkers_AllPastFallsBackToFirst(t *testing.T) {
	events := SortByDate([]Termin{
		at("Stammtisch A", "2025-02-01", 48.1, 11.5, 0),
		at("Stammtisch A", "2025-01-01", 48.1, 11.5, 1),
	})

	markers := DeriveMarkers(events, testToday, testPalette)

	require.Len(t, markers, 1)
	assert.Equal(t, 1, markers[0].Representative)
	assert.Equal(t, testPalette.Muted, markers[0].Fill)
	assert.False(t, markers[0].Upcoming)
}

func TestDeriveMarkers_SameCoordsDifferentNamesJitter(t *testing.T) {
	events := SortByDate([]Termin{
		at("Stammtisch A", "2025-07-01", 48.1, 11.5, 0),
		at("Stammtisch B", "2025-07-02", 48.1, 11.5, 1),
		at("Stammtisch C", "2025-07-03", 48.1, 11.5, 2),
	})

	markers := DeriveMarkers(events, testToday, testPalette)
	require.Len(t, markers, 3)

	exact := 0
	for _, m := range markers {
		dLat, dLon := m.Lat-48.1, m.Lon-11.5
		if !m.Jittered {
			exact++
			assert.Equal(t, 48.1, m.Lat)
			assert.Equal(t, 11.5, m.Lon)
			continue
		}
		assert.GreaterOrEqual(t, dLat, -1e-12)
		assert.Less(t, dLat, MaxJitter)
		assert.GreaterOrEqual(t, dLon, -1e-12)
		assert.Less(t, dLon, MaxJitter)

		wantLat, wantLon := JitterOffset(m.Label + "Stadt")
		assert.InDelta(t, wantLat, dLat, 1e-9)
		assert.InDelta(t, wantLon, dLon, 1e-9)
	}
	assert.Equal(t, 1, exact, "exactly one marker keeps the exact coordinate")
	assert.False(t, markers[0].Jittered, "first group keeps exact coordinates")
}

func TestDeriveMarkers_Deterministic(t *testing.T) {
	events := SortByDate([]Termin{
		at("A", "2025-07-01", 50, 8, 0),
		at("B", "2025-07-01", 50, 8, 1),
	})

	first := DeriveMarkers(events, testToday, testPalette)
	second := DeriveMarkers(events, testToday, testPalette)
	assert.Equal(t, first, second)
}

func TestDeriveMarkers_Partition(t *testing.T) {
	var events []Termin
	for i := range 40 {
		lat := 48 + float64(i%5)*0.5
		name := fmt.Sprintf("Stammtisch %d", i%3)
		events = append(events, at(name, fmt.Sprintf("2025-%02d-10", i%12+1), lat, 11, i))
	}
	events = append(events, Termin{Name: "nowhere", Date: "2025-08-01", OriginalIndex: 40})

	markers := DeriveMarkers(SortByDate(events), testToday, testPalette)

	var all []int
	for _, m := range markers {
		require.NotEmpty(t, m.Indices)
		assert.Contains(t, m.Indices, m.Representative)
		all = append(all, m.Indices...)
	}
	slices.Sort(all)
	want := make([]int, 40)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, all, "located events appear in exactly one marker")
}

func TestDeriveMarkers_SkipsUnlocated(t *testing.T) {
	markers := DeriveMarkers([]Termin{{Name: "x", Date: "2025-07-01"}}, testToday, testPalette)
	assert.Empty(t, markers)
}

func TestResolveMarkerEvent(t *testing.T) {
	events := []Termin{
		at("A", "2025-08-01", 48.1, 11.5, 0),
		at("A", "2025-01-01", 48.1, 11.5, 1),
		at("A", "2025-07-01", 48.1, 11.5, 2),
	}
	markers := DeriveMarkers(SortByDate(events), testToday, testPalette)
	require.Len(t, markers, 1)

	e, err := ResolveMarkerEvent(events, markers[0], testToday)
	require.NoError(t, err)
	assert.Equal(t, 2, e.OriginalIndex, "earliest upcoming event wins")
	assert.Equal(t, markers[0].Representative, e.OriginalIndex)

	_, err = ResolveMarkerEvent(events, Marker{Indices: []int{9}}, testToday)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = ResolveMarkerEvent(events, Marker{}, testToday)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSeedHash(t *testing.T) {
	tests := []struct {
		in   string
		want int32
	}{
		{"", 0},
		{"Aa", 2112},
		{"hello", 99162322},
		{"polygenelubricants", -2147483648},
		{"ü", 252},
		{"😀", 1772899}, // surrogate pair: 0xD83D*31 + 0xDE00
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, seedHash(tt.in))
		})
	}
}

func TestJitterOffset_Bounds(t *testing.T) {
	for i := range 500 {
		dLat, dLon := JitterOffset(fmt.Sprintf("Stammtisch %d Ort %d", i, i*7))
		assert.GreaterOrEqual(t, dLat, 0.0)
		assert.Less(t, dLat, MaxJitter)
		assert.GreaterOrEqual(t, dLon, 0.0)
		assert.Less(t, dLon, MaxJitter)
	}
}
