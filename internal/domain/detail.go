package domain

import (
	"net/url"
	"strings"
	"time"
)

// Detail is the content of the selection overlay for one event.
type Detail struct {
	Index            int     `json:"index"`
	Title            string  `json:"title"`
	Logo             string  `json:"logo"`
	Date             string  `json:"date"`
	Relative         string  `json:"relative"`
	Time             string  `json:"time"`
	Location         string  `json:"location"`
	State            string  `json:"state"`
	StateName        string  `json:"state_name,omitempty"`
	CityDistance     float64 `json:"city_dist"`
	Organizer        string  `json:"orga"`
	OrganizerWebsite string  `json:"orga_www,omitempty"`
	Contact          Contact `json:"contact"`
	CalendarURL      string  `json:"calendar_url,omitempty"`
	Link             string  `json:"link,omitempty"`
	LinkKind         string  `json:"link_kind,omitempty"` // "telegram", "signal" or "web"
	LinkQR           string  `json:"link_qr,omitempty"`
	Upcoming         bool    `json:"upcoming"`
	Geo              *Geo    `json:"geo,omitempty"`
}

// BuildDetail assembles the overlay content for an event.
func BuildDetail(e Termin, today string, rules []LogoRule, loc *time.Location) Detail {
	d := Detail{
		Index:            e.OriginalIndex,
		Title:            e.Name,
		Logo:             ResolveLogo(rules, e.Organizer),
		Date:             FormatDate(e),
		Relative:         RelativeLabel(today, e.Date),
		Time:             e.Time,
		Location:         Location(e),
		State:            e.State,
		StateName:        Regions[e.State],
		CityDistance:     e.CityDistance,
		Organizer:        e.Organizer,
		OrganizerWebsite: e.OrganizerWebsite,
		Contact:          FormatContact(e.ContactName, e.ContactEmail),
		CalendarURL:      CalendarURL(e, loc),
		Link:             e.Link,
		LinkKind:         LinkKind(e.Link),
		LinkQR:           e.LinkQR,
		Upcoming:         e.Upcoming(today),
	}
	if geo, ok := e.Geo(); ok {
		d.Geo = &geo
	}
	return d
}

// LinkKind classifies a group link by messenger.
func LinkKind(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return "web"
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "t.me" || host == "telegram.me" || strings.HasSuffix(host, ".t.me"):
		return "telegram"
	case host == "signal.group" || host == "signal.me":
		return "signal"
	default:
		return "web"
	}
}
