package tracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestScan_Exists(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "openmeteo_A1_2018.csv")
	touch(t, dir, "openmeteo_B2_2017.csv")

	tr, err := Scan(dir)
	require.NoError(t, err)

	a1 := domain.Station{OriginalID: "A1"}
	b2 := domain.Station{OriginalID: "B2"}
	assert.True(t, tr.Exists(a1, 2018))
	assert.False(t, tr.Exists(a1, 2017), "different period")
	assert.False(t, tr.Exists(b2, 2018))
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, dir, tr.Dir())
}

func TestScan_IgnoresTempFilesAndDirs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, domain.TempPrefix+"openmeteo_A1_2018.csv-123")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "openmeteo_A2_2018.csv"), 0o755))

	tr, err := Scan(dir)
	require.NoError(t, err)
	assert.Zero(t, tr.Len())
	assert.False(t, tr.Exists(domain.Station{OriginalID: "A1"}, 2018))
	assert.False(t, tr.Exists(domain.Station{OriginalID: "A2"}, 2018))
}

func TestScan_MissingDirIsEmpty(t *testing.T) {
	tr, err := Scan(filepath.Join(t.TempDir(), "2018"))
	require.NoError(t, err)
	assert.Zero(t, tr.Len())
}

func TestScan_SnapshotDoesNotSeeLaterWrites(t *testing.T) {
	dir := t.TempDir()
	tr, err := Scan(dir)
	require.NoError(t, err)

	touch(t, dir, "openmeteo_A1_2018.csv")
	assert.False(t, tr.Exists(domain.Station{OriginalID: "A1"}, 2018))
}
