package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stations(ids ...string) []domain.Station {
	out := make([]domain.Station, len(ids))
	for i, id := range ids {
		out[i] = domain.Station{OriginalID: id, Latitude: "50.0", Longitude: "19.0"}
	}
	return out
}

func writeArtifact(t *testing.T, base, id string, p domain.Period, data string) {
	t.Helper()
	dir := domain.ArtifactDir(base, p)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain.ArtifactName(id, p)), []byte(data), 0o644))
}

func TestValidateRoster(t *testing.T) {
	assert.True(t, validateRoster(stations("A1", "B2")).passed())

	p := validateRoster(stations("A1", "B2", "A1"))
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "duplicates row 1")

	assert.False(t, validateRoster(nil).passed())
}

func TestValidatePeriod_Complete(t *testing.T) {
	base := t.TempDir()
	writeArtifact(t, base, "A1", 2017, "latitude,longitude\n")
	writeArtifact(t, base, "B2", 2017, "latitude,longitude\n")

	p := validatePeriod(stations("A1", "B2"), base, 2017)
	assert.True(t, p.passed(), p.errors)
}

func TestValidatePeriod_MissingEmptyAndTemp(t *testing.T) {
	base := t.TempDir()
	writeArtifact(t, base, "A1", 2017, "")
	tmp := filepath.Join(domain.ArtifactDir(base, 2017), domain.TempPrefix+"x")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	p := validatePeriod(stations("A1", "B2"), base, 2017)

	require.Len(t, p.errors, 3)
	assert.Contains(t, p.errors[0], "A1: artifact is empty")
	assert.Contains(t, p.errors[1], "B2: missing")
	assert.Contains(t, p.errors[2], "leftover in-flight file")
	assert.Contains(t, p.name, "(1/2)")
}

func TestValidatePeriod_MissingDirectory(t *testing.T) {
	p := validatePeriod(stations("A1"), t.TempDir(), 2020)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "A1: missing")
}
