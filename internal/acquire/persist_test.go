package acquire

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, writeAtomic(dir, "openmeteo_A1_2018.csv", []byte("a,b\n1,2\n")))

	data, err := os.ReadFile(filepath.Join(dir, "openmeteo_A1_2018.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	info, err := os.Stat(filepath.Join(dir, "openmeteo_A1_2018.csv"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteAtomic_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openmeteo_A1_2018.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, writeAtomic(dir, "openmeteo_A1_2018.csv", []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteAtomic_MissingDir(t *testing.T) {
	err := writeAtomic(filepath.Join(t.TempDir(), "absent"), "x.csv", []byte("x"))
	require.Error(t, err)
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		name    string
		current time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{"doubles", 10 * time.Second, time.Minute, 20 * time.Second},
		{"caps", 40 * time.Second, time.Minute, time.Minute},
		{"stays at cap", time.Minute, time.Minute, time.Minute},
		{"zero stays zero", 0, time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextBackoff(tt.current, tt.max))
		})
	}
}
