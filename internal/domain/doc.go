// Package domain models the meetup events ("Termine") shown on the board and
// the pure derivations the board renders from them.
//
// # Data Source
//
// Events come from a termine.json file produced by an upstream spreadsheet
// export. The file is a JSON array of flat objects:
//
//	{
//	  "name": "Stammtisch Rosenheim",
//	  "plz": "83022",
//	  "state": "DE-BY",
//	  "city": "Rosenheim",
//	  "city_dist": 1.4,
//	  "coords": [47.856, 12.128],
//	  "date": "2025-03-14",
//	  "dow": "Fr.",
//	  "time": "19:30 Uhr",
//	  "orga": "...",
//	  "orga_www": "https://...",
//	  "kontakt": "Max",
//	  "e-mail": "max@example.org",
//	  "link": "https://t.me/...",
//	  "link_qr": "img/qr_<sha1>.png"
//	}
//
// Any field may be missing or null. Parsing never fails on a single record;
// wrong-typed values degrade to empty strings or zero (see [ParseTermine]).
// Coordinates are [lat, lon]. The state is an ISO 3166-2 subdivision code,
// which is also the region code reported by the map widget.
//
// # Dates
//
// Dates are ISO calendar dates and are compared as strings, so an empty date
// sorts first. "Today" is the calendar date in the board's time zone
// (Europe/Berlin by default), see [Today]. An event is upcoming when its date
// is on or after today.
//
// # Markers
//
// Located events are grouped by exact coordinate equality, then by name. Each
// name group becomes one [Marker]. Co-located groups after the first are moved
// by a deterministic offset in [0, 0.03) degrees derived from the
// representative's name and city, see [DeriveMarkers].
package domain
