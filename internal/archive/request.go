package archive

import (
	"net/url"
	"strings"

	"github.com/couchcryptid/airquality-etl/internal/domain"
)

// DefaultBaseURL is the public historical weather archive endpoint.
const DefaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"

// Timezone is the local time zone the archive reports timestamps in.
const Timezone = "Europe/Berlin"

// Variables are the hourly measurements requested for every station.
var Variables = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"precipitation",
	"surface_pressure",
	"wind_speed_10m",
	"wind_direction_10m",
	"direct_radiation",
}

// Param is a single query parameter. Requests keep parameters in a fixed
// order, which url.Values cannot.
type Param struct {
	Key   string
	Value string
}

// Request is a fully specified archive query for one station and period.
type Request struct {
	BaseURL string
	Station domain.Station
	Period  domain.Period
	Params  []Param
}

// BuildRequest describes the archive query for a station's period.
// Coordinates are passed through as they appear in the roster.
func BuildRequest(baseURL string, s domain.Station, p domain.Period) Request {
	return Request{
		BaseURL: baseURL,
		Station: s,
		Period:  p,
		Params: []Param{
			{"latitude", s.Latitude},
			{"longitude", s.Longitude},
			{"start_date", p.StartDate()},
			{"end_date", p.EndDate()},
			{"hourly", strings.Join(Variables, ",")},
			{"timezone", Timezone},
			{"format", "csv"},
		},
	}
}

// URL renders the request. Commas in the variable list are left readable.
func (r Request) URL() string {
	var b strings.Builder
	b.WriteString(r.BaseURL)
	for i, p := range r.Params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(url.QueryEscape(p.Value), "%2C", ","))
	}
	return b.String()
}
