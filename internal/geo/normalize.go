package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// The crosswalk names counties as "Alachua FL" while the HUD income-limit and
// incarceration tables use "Alachua County". AltName bridges the two.
func AltName(countyName string) string {
	if countyName == UnknownCounty {
		return countyName
	}
	if len(countyName) > 3 {
		// Strip the trailing two-letter state abbreviation.
		return countyName[:len(countyName)-2] + "County"
	}
	return countyName
}

// UnknownCounty is the sentinel assigned to records whose PUMA has no
// crosswalk entry. It never fans out and keeps its original weight.
const UnknownCounty = "Unknown County"

var keyStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// MergeKey reduces a county name to a stable join key: lower-cased,
// diacritics removed ("Doña Ana" and "Dona Ana" collide), and the
// punctuation variants seen across HUD vintages dropped.
func MergeKey(name string) string {
	s, _, err := transform.String(keyStripper, name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '\'', '’':
			return -1
		}
		return r
	}, s)
}

// StateFIPS maps a two-letter state abbreviation to its FIPS code.
func StateFIPS(abbr string) (string, bool) {
	fip, ok := stateFIPS[strings.ToUpper(strings.TrimSpace(abbr))]
	return fip, ok
}

var stateFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06", "CO": "08",
	"CT": "09", "DE": "10", "DC": "11", "FL": "12", "GA": "13", "HI": "15",
	"ID": "16", "IL": "17", "IN": "18", "IA": "19", "KS": "20", "KY": "21",
	"LA": "22", "ME": "23", "MD": "24", "MA": "25", "MI": "26", "MN": "27",
	"MS": "28", "MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38", "OH": "39",
	"OK": "40", "OR": "41", "PA": "42", "RI": "44", "SC": "45", "SD": "46",
	"TN": "47", "TX": "48", "UT": "49", "VT": "50", "VA": "51", "WA": "53",
	"WV": "54", "WI": "55", "WY": "56",
}

// NormalizePUMA trims whitespace and leading zeros so that "00101" from one
// file joins against "101" from another.
func NormalizePUMA(puma string) string {
	s := strings.TrimSpace(puma)
	s = strings.TrimLeft(s, "0")
	if s == "" && strings.TrimSpace(puma) != "" {
		return "0"
	}
	return s
}
