package domain

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	calendarBaseURL = "https://calendar.google.com/calendar/render"
	// EventDuration is the assumed length of every meetup.
	EventDuration    = 3 * time.Hour
	defaultStartHour = 19
	compactUTC       = "20060102T150405Z"
)

var startTimePattern = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?`)

// StartTime combines the event date with the first H[:MM] found in the free-text
// time field, in loc. Without a usable time the start is 19:00.
func StartTime(e Termin, loc *time.Location) (time.Time, bool) {
	d, err := time.ParseInLocation(dateLayout, e.Date, loc)
	if err != nil {
		return time.Time{}, false
	}

	hour, minute := defaultStartHour, 0
	if m := startTimePattern.FindStringSubmatch(e.Time); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm := 0
		if m[2] != "" {
			mm, _ = strconv.Atoi(m[2])
		}
		if h < 24 && mm < 60 {
			hour, minute = h, mm
		}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc), true
}

// Location returns "<plz> <city>" for display and calendar entries.
func Location(e Termin) string {
	return strings.TrimSpace(e.PostalCode + " " + e.City)
}

func calendarDetails(e Termin) string {
	var lines []string
	if e.Time != "" {
		lines = append(lines, "Uhrzeit: "+e.Time)
	}
	if e.Organizer != "" {
		lines = append(lines, "Organisiert von: "+e.Organizer)
	}
	if e.OrganizerWebsite != "" {
		lines = append(lines, e.OrganizerWebsite)
	}
	if e.Link != "" {
		lines = append(lines, "Gruppe: "+e.Link)
	}
	return strings.Join(lines, "\n")
}

// CalendarURL builds a Google Calendar template link for the event, or "" if
// the event has no usable date.
func CalendarURL(e Termin, loc *time.Location) string {
	start, ok := StartTime(e, loc)
	if !ok {
		return ""
	}
	end := start.Add(EventDuration)

	params := url.Values{
		"action":   {"TEMPLATE"},
		"text":     {e.Name},
		"dates":    {start.UTC().Format(compactUTC) + "/" + end.UTC().Format(compactUTC)},
		"details":  {calendarDetails(e)},
		"location": {Location(e)},
	}
	return calendarBaseURL + "?" + params.Encode()
}

// ICSOptions controls calendar file output.
type ICSOptions struct {
	Name      string
	ProductID string
	UIDDomain string
	// Publish marks the calendar as a subscription feed.
	Publish  bool
	Location *time.Location
	Now      time.Time
}

// WriteICS writes events as an iCalendar document. Events without a usable
// date are skipped.
func WriteICS(w io.Writer, events []Termin, opts ICSOptions) error {
	b := &strings.Builder{}
	line := func(format string, args ...any) {
		fmt.Fprintf(b, format+"\r\n", args...)
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:%s", opts.ProductID)
	line("CALSCALE:GREGORIAN")
	if opts.Publish {
		line("METHOD:PUBLISH")
		line("X-PUBLISHED-TTL:PT1H")
	}
	line("X-WR-CALNAME:%s", icsEscape(opts.Name))
	line("X-WR-TIMEZONE:%s", opts.Location.String())

	stamp := opts.Now.UTC().Format(compactUTC)
	for _, e := range events {
		start, ok := StartTime(e, opts.Location)
		if !ok {
			continue
		}
		line("BEGIN:VEVENT")
		line("UID:%s@%s", eventUID(e), opts.UIDDomain)
		line("DTSTAMP:%s", stamp)
		line("DTSTART:%s", start.UTC().Format(compactUTC))
		line("DTEND:%s", start.Add(EventDuration).UTC().Format(compactUTC))
		line("SUMMARY:%s", icsEscape(e.Name))
		if d := calendarDetails(e); d != "" {
			line("DESCRIPTION:%s", icsEscape(d))
		}
		if loc := Location(e); loc != "" {
			line("LOCATION:%s", icsEscape(loc))
		}
		if geo, ok := e.Geo(); ok {
			line("GEO:%.6f;%.6f", geo.Lat, geo.Lon)
		}
		if e.OrganizerWebsite != "" {
			line("URL:%s", e.OrganizerWebsite)
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")

	_, err := io.WriteString(w, b.String())
	return err
}

// eventUID is stable across reloads so calendar clients update instead of duplicating.
func eventUID(e Termin) string {
	r := strings.NewReplacer(" ", "-", "|", "-", "@", "-")
	return r.Replace(strings.ToLower(e.Date + "-" + e.PostalCode + "-" + e.Name))
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`, "\r", "")

func icsEscape(s string) string {
	return icsEscaper.Replace(s)
}
