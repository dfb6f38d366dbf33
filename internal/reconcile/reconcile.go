// Package reconcile builds the station roster by matching the station columns
// of a pollutant readings file against the provider's station metadata.
package reconcile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/airquality-etl/internal/roster"
)

// StationID is a readings column identifier.
type StationID struct {
	Raw     string // column name up to the first '-'
	Cleaned string // leading ASCII letters of Raw, or Raw when it has none
}

// Metadata is one row of the provider's station metadata.
type Metadata struct {
	StationID              string
	Latitude               string
	Longitude              string
	Number                 string
	InternationalStationID string
}

// Row is one reconciled roster entry.
type Row struct {
	OriginalID             string
	MatchedStationID       string
	Latitude               string
	Longitude              string
	Number                 string
	InternationalStationID string
}

// Metadata column names.
const (
	metaStationID              = "StationID"
	metaLatitude               = "lat"
	metaLongitude              = "long"
	metaNumber                 = "Number"
	metaInternationalStationID = "InternationalStationID"
)

// ReadReadingHeader returns the station identifiers from the header row of a
// readings file. The first column holds timestamps and is skipped.
func ReadReadingHeader(path string) ([]StationID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open readings: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: readings file is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%s: no station columns in header", path)
	}

	ids := make([]StationID, 0, len(header)-1)
	for _, col := range header[1:] {
		ids = append(ids, ParseStationID(col))
	}
	return ids, nil
}

// ParseStationID splits a readings column name into its raw and cleaned ids.
func ParseStationID(col string) StationID {
	raw, _, _ := strings.Cut(strings.TrimSpace(col), "-")
	end := 0
	for end < len(raw) && isASCIILetter(raw[end]) {
		end++
	}
	cleaned := raw
	if end > 0 {
		cleaned = raw[:end]
	}
	return StationID{Raw: raw, Cleaned: cleaned}
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// ReadMetadata reads the ';'-separated station metadata file in file order.
func ReadMetadata(path string) ([]Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: metadata file is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range []string{metaStationID, metaLatitude, metaLongitude} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
	}

	field := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Metadata
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, Metadata{
			StationID:              field(rec, metaStationID),
			Latitude:               field(rec, metaLatitude),
			Longitude:              field(rec, metaLongitude),
			Number:                 field(rec, metaNumber),
			InternationalStationID: field(rec, metaInternationalStationID),
		})
	}
	return out, nil
}

// Match pairs each id with the first metadata entry whose StationID contains
// the cleaned id. Ids without a match are returned separately. A raw id seen
// twice keeps its first column only.
func Match(ids []StationID, metadata []Metadata) (rows []Row, unmatched []StationID) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id.Raw] {
			continue
		}
		seen[id.Raw] = true
		m, ok := findMetadata(id.Cleaned, metadata)
		if !ok {
			unmatched = append(unmatched, id)
			continue
		}
		rows = append(rows, Row{
			OriginalID:             id.Raw,
			MatchedStationID:       m.StationID,
			Latitude:               m.Latitude,
			Longitude:              m.Longitude,
			Number:                 m.Number,
			InternationalStationID: m.InternationalStationID,
		})
	}
	return rows, unmatched
}

func findMetadata(cleaned string, metadata []Metadata) (Metadata, bool) {
	if cleaned == "" {
		return Metadata{}, false
	}
	for _, m := range metadata {
		if strings.Contains(m.StationID, cleaned) {
			return m, true
		}
	}
	return Metadata{}, false
}

// WriteRoster writes rows as a roster file readable by roster.Load.
func WriteRoster(path string, rows []Row) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create roster dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create roster: %w", err)
	}
	defer f.Close()

	if err := Write(f, rows); err != nil {
		return err
	}
	return f.Close()
}

// Write encodes rows in roster format.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	header := []string{
		roster.ColOriginalID,
		roster.ColMatchedStationID,
		roster.ColLatitude,
		roster.ColLongitude,
		roster.ColNumber,
		roster.ColInternationalStationID,
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write roster header: %w", err)
	}
	for _, r := range rows {
		rec := []string{r.OriginalID, r.MatchedStationID, r.Latitude, r.Longitude, r.Number, r.InternationalStationID}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write roster row %s: %w", r.OriginalID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Result summarizes a reconciliation run.
type Result struct {
	Rows      []Row
	Unmatched []StationID
}

// Run reads both inputs, matches them, and writes the roster to out.
func Run(readingsPath, metadataPath, out string) (Result, error) {
	ids, err := ReadReadingHeader(readingsPath)
	if err != nil {
		return Result{}, err
	}
	meta, err := ReadMetadata(metadataPath)
	if err != nil {
		return Result{}, err
	}

	rows, unmatched := Match(ids, meta)
	if len(rows) == 0 {
		return Result{Unmatched: unmatched}, fmt.Errorf("no stations in %s matched %s", readingsPath, metadataPath)
	}
	if err := WriteRoster(out, rows); err != nil {
		return Result{}, err
	}
	return Result{Rows: rows, Unmatched: unmatched}, nil
}
