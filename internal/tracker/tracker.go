// Package tracker answers "is this artifact already on disk" for a fetch pass.
//
// A Tracker is built from one directory listing; lookups never touch the
// filesystem again.
package tracker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/couchcryptid/airquality-etl/internal/domain"
)

// Tracker is a snapshot of the artifact names present in one period directory.
type Tracker struct {
	dir   string
	names map[string]struct{}
}

// Scan lists dir once. A missing directory is an empty snapshot.
func Scan(dir string) (*Tracker, error) {
	t := &Tracker{dir: dir, names: make(map[string]struct{})}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), domain.TempPrefix) {
			continue
		}
		t.names[e.Name()] = struct{}{}
	}
	return t, nil
}

// Exists reports whether the station's artifact for period was present at scan time.
func (t *Tracker) Exists(s domain.Station, p domain.Period) bool {
	_, ok := t.names[domain.ArtifactName(s.OriginalID, p)]
	return ok
}

// Len is the number of files seen by the scan.
func (t *Tracker) Len() int { return len(t.names) }

// Dir is the scanned directory.
func (t *Tracker) Dir() string { return t.dir }
