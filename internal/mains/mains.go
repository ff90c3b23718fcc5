// Package mains works out the local electrical mains frequency. Hum from
// mains wiring sits on this frequency and its harmonics and can hold a
// channel's average above its cutoff.
package mains

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// Hz is a mains frequency
type Hz int

const (
	Hz50 Hz = 50
	Hz60 Hz = 60
)

// Fallback is used whenever the location can't be determined; most of the
// world runs at 50 Hz.
const Fallback = Hz50

// MaxHarmonics bounds Harmonics
const MaxHarmonics = 5

// Local returns the mains frequency for the system timezone
func Local() Hz {
	name, err := tzlocal.RuntimeTZ()
	if err != nil {
		return Fallback
	}
	return ForTimezone(name)
}

// ForTimezone maps an IANA timezone to its country's mains frequency
func ForTimezone(name string) Hz {
	if name == "UTC" || name == "GMT" || strings.HasPrefix(name, "Etc/") {
		return Fallback
	}

	countries, err := tz.NewTimezoneCountryMap()
	if err != nil {
		return Fallback
	}
	country, err := countries.GetCountry(name)
	if err != nil {
		return Fallback
	}
	return ForCountry(country)
}

// ForCountry returns the mains frequency for a country name as reported by
// the timezone database. Japan is split between both; the Tokyo side is 50 Hz.
func ForCountry(country string) Hz {
	if slices.Contains(sixtyHertz, country) {
		return Hz60
	}
	return Fallback
}

// Parse reads a frequency setting: "50", "60", or "" / "auto" for Local
func Parse(s string) (Hz, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Local(), nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(s), "hz"))
	if err != nil || (Hz(n) != Hz50 && Hz(n) != Hz60) {
		return 0, fmt.Errorf("invalid mains frequency %q: want 50, 60 or auto", s)
	}
	return Hz(n), nil
}

// Harmonics returns the fundamental and its multiples below limit, at most
// MaxHarmonics of them.
func (h Hz) Harmonics(limit float64) []float64 {
	var out []float64
	for k := 1; k <= MaxHarmonics; k++ {
		f := float64(int(h) * k)
		if f >= limit {
			break
		}
		out = append(out, f)
	}
	return out
}

func (h Hz) String() string {
	return strconv.Itoa(int(h)) + " Hz"
}

// sixtyHertz lists the countries on 60 Hz mains
// (https://en.wikipedia.org/wiki/Mains_electricity_by_country).
var sixtyHertz = []string{
	"American Samoa",
	"Bahamas",
	"Barbados",
	"Belize",
	"Brazil", // mixed, mostly 60 Hz
	"Canada",
	"Cayman Islands",
	"Colombia",
	"Costa Rica",
	"Cuba",
	"Dominican Republic",
	"Ecuador",
	"El Salvador",
	"Guam",
	"Guatemala",
	"Guyana",
	"Haiti",
	"Honduras",
	"Jamaica",
	"Marshall Islands",
	"Mexico",
	"Micronesia",
	"Nicaragua",
	"Palau",
	"Panama",
	"Peru",
	"Philippines",
	"Puerto Rico",
	"Saudi Arabia",
	"South Korea",
	"Suriname",
	"Taiwan",
	"Trinidad and Tobago",
	"U.S. Virgin Islands",
	"United States",
	"Venezuela",
}
