package domain

import "regexp"

var regionCodePattern = regexp.MustCompile(`^DE-[A-Z]{2}$`)

// Regions maps the ISO 3166-2 codes of the German states to their names.
var Regions = map[string]string{
	"DE-BW": "Baden-Württemberg",
	"DE-BY": "Bayern",
	"DE-BE": "Berlin",
	"DE-BB": "Brandenburg",
	"DE-HB": "Bremen",
	"DE-HH": "Hamburg",
	"DE-HE": "Hessen",
	"DE-MV": "Mecklenburg-Vorpommern",
	"DE-NI": "Niedersachsen",
	"DE-NW": "Nordrhein-Westfalen",
	"DE-RP": "Rheinland-Pfalz",
	"DE-SL": "Saarland",
	"DE-SN": "Sachsen",
	"DE-ST": "Sachsen-Anhalt",
	"DE-SH": "Schleswig-Holstein",
	"DE-TH": "Thüringen",
}

// IsRegionCode reports whether s looks like a state code reported by the map ("DE-BY").
func IsRegionCode(s string) bool {
	return regionCodePattern.MatchString(s)
}
