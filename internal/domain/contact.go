package domain

import (
	"net/mail"
	"net/url"
	"strings"
)

// Contact is the rendered contact line of an event.
type Contact struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"` // mailto link when an e-mail is known
}

// FormatContact renders a mailto link when an e-mail is present, showing
// "Name <address>" or just the address; otherwise the plain contact name.
func FormatContact(name, email string) Contact {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if email == "" {
		return Contact{Text: name}
	}

	text := email
	if name != "" {
		text = name + " <" + email + ">"
	}
	href := (&url.URL{Scheme: "mailto", Opaque: email}).String()
	if addr, err := mail.ParseAddress(email); err == nil {
		href = (&url.URL{Scheme: "mailto", Opaque: addr.Address}).String()
	}
	return Contact{Text: text, Href: href}
}
