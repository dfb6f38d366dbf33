package archive

import (
	"net/url"
	"testing"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStation = domain.Station{OriginalID: "A1", Latitude: "50.1", Longitude: "19.9"}

func TestBuildRequest_URL(t *testing.T) {
	r := BuildRequest(DefaultBaseURL, testStation, 2018)

	want := "https://archive-api.open-meteo.com/v1/archive" +
		"?latitude=50.1&longitude=19.9" +
		"&start_date=2018-01-01&end_date=2018-12-31" +
		"&hourly=temperature_2m,relative_humidity_2m,precipitation,surface_pressure,wind_speed_10m,wind_direction_10m,direct_radiation" +
		"&timezone=Europe%2FBerlin&format=csv"
	assert.Equal(t, want, r.URL())
}

func TestBuildRequest_Deterministic(t *testing.T) {
	a := BuildRequest(DefaultBaseURL, testStation, 2018)
	b := BuildRequest(DefaultBaseURL, testStation, 2018)
	assert.Equal(t, a, b)
	assert.Equal(t, a.URL(), b.URL())
}

func TestBuildRequest_ParamOrder(t *testing.T) {
	r := BuildRequest(DefaultBaseURL, testStation, 2020)

	keys := make([]string, 0, len(r.Params))
	for _, p := range r.Params {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"latitude", "longitude", "start_date", "end_date", "hourly", "timezone", "format"}, keys)
}

func TestBuildRequest_CoordinatesVerbatim(t *testing.T) {
	s := domain.Station{OriginalID: "Z9", Latitude: "-33.868820", Longitude: "151.209290"}
	r := BuildRequest(DefaultBaseURL, s, 2019)

	u, err := url.Parse(r.URL())
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "-33.868820", q.Get("latitude"))
	assert.Equal(t, "151.209290", q.Get("longitude"))
	assert.Equal(t, "2019-01-01", q.Get("start_date"))
	assert.Equal(t, "2019-12-31", q.Get("end_date"))
	assert.Equal(t, Timezone, q.Get("timezone"))
	assert.Equal(t, "csv", q.Get("format"))
}
