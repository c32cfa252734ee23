package domain

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Card is one entry of the event list.
type Card struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	DayOfWeek  string `json:"dow"`
	Time       string `json:"time"`
	City       string `json:"city"`
	PostalCode string `json:"plz"`
	State      string `json:"state"`
	Organizer  string `json:"orga"`
	Past       bool   `json:"past"`
	Visible    bool   `json:"visible"`

	search string
}

// CardList is the date-sorted event list with its future separator and filter state.
type CardList struct {
	Cards []Card `json:"cards"`
	// SeparatorBefore is the position in Cards the "future" separator precedes,
	// or -1 when no event is upcoming.
	SeparatorBefore  int    `json:"separator_before"`
	SeparatorVisible bool   `json:"separator_visible"`
	NoResults        bool   `json:"no_results"`
	Query            string `json:"query"`
}

// BuildCardList renders one card per event, sorted ascending by date, with
// every card visible.
func BuildCardList(events []Termin, today string) CardList {
	sorted := SortByDate(events)
	lower := cases.Lower(language.German)

	list := CardList{Cards: make([]Card, len(sorted)), SeparatorBefore: -1}
	for i, e := range sorted {
		past := !e.Upcoming(today)
		if !past && list.SeparatorBefore < 0 {
			list.SeparatorBefore = i
		}
		list.Cards[i] = Card{
			Index:      e.OriginalIndex,
			Name:       e.Name,
			Date:       e.Date,
			DayOfWeek:  e.DayOfWeek,
			Time:       e.Time,
			City:       e.City,
			PostalCode: e.PostalCode,
			State:      e.State,
			Organizer:  e.Organizer,
			Past:       past,
			Visible:    true,
			search:     lower.String(searchText(e)),
		}
	}
	list.SeparatorVisible = list.SeparatorBefore >= 0
	list.NoResults = len(list.Cards) == 0
	return list
}

func searchText(e Termin) string {
	return strings.Join([]string{
		e.Name, e.City, e.PostalCode, e.State, e.Organizer,
		e.ContactName, e.ContactEmail, e.Date, e.DayOfWeek,
	}, " ")
}

// Filter returns a copy of the list with cards hidden that do not contain the
// trimmed, case-insensitive query. An empty query shows every card.
func (l CardList) Filter(query string) CardList {
	q := cases.Lower(language.German).String(strings.TrimSpace(query))

	out := l
	out.Query = strings.TrimSpace(query)
	out.Cards = slices.Clone(l.Cards)
	out.SeparatorVisible = false

	visible := 0
	for i := range out.Cards {
		c := &out.Cards[i]
		c.Visible = q == "" || strings.Contains(c.search, q)
		if !c.Visible {
			continue
		}
		visible++
		if !c.Past {
			out.SeparatorVisible = true
		}
	}
	out.NoResults = visible == 0
	return out
}

// VisibleIndices returns the OriginalIndex of every visible card in list order.
func (l CardList) VisibleIndices() []int {
	var out []int
	for _, c := range l.Cards {
		if c.Visible {
			out = append(out, c.Index)
		}
	}
	return out
}
