package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardFixture() []Termin {
	return []Termin{
		{Name: "Zukunft", Date: "2099-01-01", City: "Köln", PostalCode: "50667", State: "DE-NW", OriginalIndex: 0},
		{Name: "Vergangen", Date: "2024-01-01", City: "München", PostalCode: "80331", State: "DE-BY", OriginalIndex: 1},
		{Name: "Kontakt", Date: "2024-02-01", City: "Berlin", ContactEmail: "geheim@example.org", OriginalIndex: 2},
		{Name: "Später", Date: "2099-02-01", City: "Hamburg", Organizer: "Nordlichter", OriginalIndex: 3},
	}
}

func TestBuildCardList_SortAndSeparator(t *testing.T) {
	list := BuildCardList([]Termin{
		{Name: "late", Date: "2099-01-01", OriginalIndex: 0},
		{Name: "early", Date: "2024-01-01", OriginalIndex: 1},
	}, "2050-06-01")

	require.Len(t, list.Cards, 2)
	assert.Equal(t, "early", list.Cards[0].Name)
	assert.Equal(t, "late", list.Cards[1].Name)
	assert.Equal(t, 1, list.SeparatorBefore, "separator right before the 2099 entry")
	assert.True(t, list.Cards[0].Past)
	assert.False(t, list.Cards[1].Past)
	assert.True(t, list.SeparatorVisible)
	assert.False(t, list.NoResults)
}

func TestBuildCardList_TodayIsUpcoming(t *testing.T) {
	list := BuildCardList([]Termin{{Date: "2025-06-15"}}, "2025-06-15")
	assert.Equal(t, 0, list.SeparatorBefore)
	assert.False(t, list.Cards[0].Past)
}

func TestBuildCardList_NoUpcoming(t *testing.T) {
	list := BuildCardList([]Termin{{Date: "2020-01-01"}}, "2025-06-15")
	assert.Equal(t, -1, list.SeparatorBefore)
	assert.False(t, list.SeparatorVisible)
}

func TestBuildCardList_Empty(t *testing.T) {
	list := BuildCardList(nil, "2025-06-15")
	assert.Empty(t, list.Cards)
	assert.True(t, list.NoResults)
}

func TestCardList_FilterByEmailOnly(t *testing.T) {
	list := BuildCardList(cardFixture(), "2050-01-01")

	filtered := list.Filter("GEHEIM@")

	assert.Equal(t, []int{2}, filtered.VisibleIndices())
	assert.False(t, filtered.SeparatorVisible, "no upcoming card matches")
	assert.False(t, filtered.NoResults)
	assert.Len(t, list.VisibleIndices(), 4, "original list untouched")

	cleared := filtered.Filter("")
	assert.Len(t, cleared.VisibleIndices(), 4)
	assert.True(t, cleared.SeparatorVisible)
	assert.Empty(t, cleared.Query)
}

func TestCardList_Filter(t *testing.T) {
	list := BuildCardList(cardFixture(), "2050-01-01")

	tests := []struct {
		name      string
		query     string
		want      []int
		separator bool
		noResults bool
	}{
		{"umlaut city case-insensitive", "KÖLN", []int{0}, true, false},
		{"region code", "de-by", []int{1}, false, false},
		{"postal code", "5066", []int{0}, true, false},
		{"organizer", "nordlicht", []int{3}, true, false},
		{"date prefix", "2099", []int{0, 3}, true, false},
		{"surrounding whitespace", "  berlin ", []int{2}, false, false},
		{"no match", "xyz", nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := list.Filter(tt.query)
			assert.Equal(t, tt.want, got.VisibleIndices())
			assert.Equal(t, tt.separator, got.SeparatorVisible)
			assert.Equal(t, tt.noResults, got.NoResults)
		})
	}
}
