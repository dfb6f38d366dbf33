package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullRoster = `OriginalID,MatchedStationID,Latitude,Longitude,Number,InternationalStationID
DsWrocAlWisn,DsWrocAlWisn,51.086225,17.012689,114,PL0189A
MpKrakAlKras,MpKrakAlKrasi,50.057678,19.926189,400,PL0012A
`

func TestRead_PreservesOrderAndExtras(t *testing.T) {
	stations, err := Read(strings.NewReader(fullRoster))
	require.NoError(t, err)

	want := []domain.Station{
		{
			OriginalID: "DsWrocAlWisn", Latitude: "51.086225", Longitude: "17.012689",
			MatchedStationID: "DsWrocAlWisn", Number: "114", InternationalStationID: "PL0189A",
		},
		{
			OriginalID: "MpKrakAlKras", Latitude: "50.057678", Longitude: "19.926189",
			MatchedStationID: "MpKrakAlKrasi", Number: "400", InternationalStationID: "PL0012A",
		},
	}
	if diff := cmp.Diff(want, stations); diff != "" {
		t.Fatalf("roster mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_MinimalColumns(t *testing.T) {
	stations, err := Read(strings.NewReader("\ufeffOriginalID,Latitude,Longitude\nA1,50.1,19.9\n"))
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "A1", stations[0].OriginalID)
	assert.Empty(t, stations[0].MatchedStationID)
}

func TestRead_HeaderOnly(t *testing.T) {
	stations, err := Read(strings.NewReader("OriginalID,Latitude,Longitude\n"))
	require.NoError(t, err)
	assert.Empty(t, stations)
}

func TestRead_Errors(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "", wantErr: "empty"},
		{name: "missing column", input: "OriginalID,Latitude\nA1,50.1\n", wantErr: "Longitude"},
		{name: "bad latitude", input: "OriginalID,Latitude,Longitude\nA1,95.0,19.9\n", wantErr: "line 2"},
		{name: "bad longitude", input: "OriginalID,Latitude,Longitude\nA1,50.1,east\n", wantErr: "line 2"},
		{name: "missing id", input: "OriginalID,Latitude,Longitude\n,50.1,19.9\n", wantErr: "OriginalID"},
		{name: "slash in id", input: "OriginalID,Latitude,Longitude\nDs/Wroc,50.1,19.9\n", wantErr: "OriginalID"},
		{name: "backslash in id", input: "OriginalID,Latitude,Longitude\nDs\\Wroc,50.1,19.9\n", wantErr: "OriginalID"},
		{name: "duplicate id", input: "OriginalID,Latitude,Longitude\nA1,50.1,19.9\nA1,50.2,19.8\n", wantErr: "duplicate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations_lat_long.csv")
	require.NoError(t, os.WriteFile(path, []byte(fullRoster), 0o644))

	stations, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, stations, 2)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open roster")
}
