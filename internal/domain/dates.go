package domain

import (
	"fmt"
	"math"
	"time"
)

// DaysBetween returns the number of calendar days from today to date, and
// false if either does not parse.
func DaysBetween(today, date string) (int, bool) {
	from, err := time.Parse(dateLayout, today)
	if err != nil {
		return 0, false
	}
	to, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, false
	}
	return int(math.Round(to.Sub(from).Hours() / 24)), true
}

// RelativeLabel phrases the distance between today and date in German:
// "heute", "morgen", "gestern", then days, weeks (from three whole weeks)
// or months (beyond 60 days), e.g. "in 20 Tagen" or "vor 2 Monaten".
// It returns "" for unparseable dates.
func RelativeLabel(today, date string) string {
	days, ok := DaysBetween(today, date)
	if !ok {
		return ""
	}

	switch days {
	case 0:
		return "heute"
	case 1:
		return "morgen"
	case -1:
		return "gestern"
	}

	abs := days
	if abs < 0 {
		abs = -abs
	}

	var n int
	var unit string
	switch {
	case abs > 60:
		n, unit = roundDiv(abs, 30), "Monaten"
	case abs/7 > 2:
		n, unit = roundDiv(abs, 7), "Wochen"
	default:
		n, unit = abs, "Tagen"
	}

	if days > 0 {
		return fmt.Sprintf("in %d %s", n, unit)
	}
	return fmt.Sprintf("vor %d %s", n, unit)
}

func roundDiv(a, b int) int {
	return int(math.Round(float64(a) / float64(b)))
}

// FormatDate renders the event date as "Fr., 14.03.2025". The weekday comes
// from the record or is derived from the date; unparseable dates are returned as is.
func FormatDate(e Termin) string {
	d, err := time.Parse(dateLayout, e.Date)
	if err != nil {
		return e.Date
	}
	dow := e.DayOfWeek
	if dow == "" {
		dow = germanWeekdays[d.Weekday()]
	}
	return dow + ", " + d.Format("02.01.2006")
}
