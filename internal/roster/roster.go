// Package roster loads the station roster that drives archive acquisition.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Column names of the roster file.
const (
	ColOriginalID             = "OriginalID"
	ColMatchedStationID       = "MatchedStationID"
	ColLatitude               = "Latitude"
	ColLongitude              = "Longitude"
	ColNumber                 = "Number"
	ColInternationalStationID = "InternationalStationID"
)

var requiredColumns = []string{ColOriginalID, ColLatitude, ColLongitude}

var validate = validator.New()

// Load reads the roster file at path.
func Load(path string) ([]domain.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	stations, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stations, nil
}

// Read parses a roster from r, preserving row order. OriginalID must be
// unique and every row must carry valid coordinates.
func Read(r io.Reader) ([]domain.Station, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("roster is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read roster header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("roster missing column %q", col)
		}
	}

	field := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var stations []domain.Station
	seen := make(map[string]int)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("roster line %d: %w", line, err)
		}

		s := domain.Station{
			OriginalID:             field(rec, ColOriginalID),
			Latitude:               field(rec, ColLatitude),
			Longitude:              field(rec, ColLongitude),
			MatchedStationID:       field(rec, ColMatchedStationID),
			Number:                 field(rec, ColNumber),
			InternationalStationID: field(rec, ColInternationalStationID),
		}
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("roster line %d: %w", line, err)
		}
		if prev, dup := seen[s.OriginalID]; dup {
			return nil, fmt.Errorf("roster line %d: duplicate OriginalID %q (first on line %d)", line, s.OriginalID, prev)
		}
		seen[s.OriginalID] = line
		stations = append(stations, s)
	}

	return stations, nil
}
