package domain

import "strings"

// DefaultLogo is shown for organizers no rule matches.
const DefaultLogo = "img/logo_default.png"

// LogoRule maps an organizer pattern to a logo image path.
type LogoRule struct {
	Pattern string
	Logo    string
}

// DefaultLogoRules is the built-in organizer logo table. Order matters.
var DefaultLogoRules = []LogoRule{
	{Pattern: "Freiheitliche Stammtische", Logo: "img/logo_fs.png"},
	{Pattern: "Stammtisch", Logo: "img/logo_fs.png"},
	{Pattern: "Telegram", Logo: "img/telegram_128.png"},
	{Pattern: "Signal", Logo: "img/signal_128.png"},
}

// ResolveLogo returns the logo for an organizer. Rules are tried for an exact
// match first, then for a substring match; the first matching rule wins in
// each pass. With no match, DefaultLogo is returned.
func ResolveLogo(rules []LogoRule, organizer string) string {
	if organizer == "" {
		return DefaultLogo
	}
	for _, r := range rules {
		if r.Pattern == organizer {
			return r.Logo
		}
	}
	for _, r := range rules {
		if r.Pattern != "" && strings.Contains(organizer, r.Pattern) {
			return r.Logo
		}
	}
	return DefaultLogo
}
