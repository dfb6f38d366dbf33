// Package join pairs hourly pollutant readings with the weather archive rows
// of the same station and hour.
//
// Readings files are wide: one timestamp column followed by one column per
// station, named like "DsWrocWybCon-PM10-1g". Weather artifacts are the CSV
// documents written by the acquisition loop, one per station and period. Rows
// are matched on the station's raw id and the timestamp truncated to the hour.
package join

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/reconcile"
)

// weatherTimeColumn heads the hourly table inside an archive document.
const weatherTimeColumn = "time"

// hourKeyLen is the length of "2006-01-02T15".
const hourKeyLen = 13

// Output columns preceding the weather columns.
var leadingColumns = []string{"time", "station", "pollutant", "value"}

// Options selects the inputs of a join.
type Options struct {
	ReadingsFiles []string
	ArtifactDir   string // acquisition output base, with one sub-directory per period
	Periods       []domain.Period
}

// Result counts what a join produced.
type Result struct {
	Joined    int // output rows
	Unmatched int // readings in the selected periods with no weather row
	Skipped   int // readings outside the selected periods
	Stations  int // stations with at least one weather artifact
}

// Weather is the hourly table of one artifact, keyed by hour.
type Weather struct {
	Columns []string // column names after the time column
	Rows    map[string][]string
}

// HourKey truncates a timestamp to the hour and normalizes the date/time
// separator, so "2017-01-01 01:00:00" and "2017-01-01T01:00" both give
// "2017-01-01T01". ok is false for values too short to carry an hour.
func HourKey(ts string) (key string, ok bool) {
	ts = strings.TrimSpace(ts)
	if len(ts) < hourKeyLen {
		return "", false
	}
	return strings.Replace(ts[:hourKeyLen], " ", "T", 1), true
}

// ReadWeather parses an archive CSV document. The location preamble before
// the hourly table is skipped.
func ReadWeather(r io.Reader) (*Weather, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var w *Weather
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if w == nil {
			if len(rec) > 0 && strings.TrimSpace(rec[0]) == weatherTimeColumn {
				w = &Weather{Columns: append([]string(nil), rec[1:]...), Rows: make(map[string][]string)}
			}
			continue
		}
		key, ok := HourKey(rec[0])
		if !ok {
			continue
		}
		w.Rows[key] = rec[1:]
	}
	if w == nil {
		return nil, errors.New("no hourly table")
	}
	return w, nil
}

type column struct {
	station   string
	pollutant string
}

func parseColumn(name string) column {
	id := reconcile.ParseStationID(name)
	parts := strings.SplitN(strings.TrimSpace(name), "-", 3)
	c := column{station: id.Raw}
	if len(parts) > 1 {
		c.pollutant = parts[1]
	}
	return c
}

// Run joins every readings file against the weather artifacts of the selected
// periods and writes one CSV row per matched reading to out.
func Run(ctx context.Context, opts Options, out io.Writer) (Result, error) {
	var res Result
	if len(opts.ReadingsFiles) == 0 {
		return res, errors.New("no readings files")
	}

	headers := make([][]column, len(opts.ReadingsFiles))
	stations := make(map[string]struct{})
	for i, path := range opts.ReadingsFiles {
		ids, err := readColumns(path)
		if err != nil {
			return res, err
		}
		headers[i] = ids
		for _, c := range ids {
			stations[c.station] = struct{}{}
		}
	}

	weather, columns, err := loadWeather(opts.ArtifactDir, opts.Periods, stations)
	if err != nil {
		return res, err
	}
	res.Stations = len(weather)
	if len(weather) == 0 {
		return res, fmt.Errorf("no weather artifacts under %s", opts.ArtifactDir)
	}

	periods := make(map[string]bool, len(opts.Periods))
	for _, p := range opts.Periods {
		periods[p.String()] = true
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(append(append([]string(nil), leadingColumns...), columns...)); err != nil {
		return res, fmt.Errorf("write header: %w", err)
	}

	for i, path := range opts.ReadingsFiles {
		if err := joinFile(ctx, path, headers[i], weather, periods, cw, &res); err != nil {
			return res, err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return res, fmt.Errorf("write joined rows: %w", err)
	}
	return res, nil
}

func readColumns(path string) ([]column, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open readings: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%s: no station columns in header", path)
	}
	cols := make([]column, 0, len(header)-1)
	for _, name := range header[1:] {
		cols = append(cols, parseColumn(name))
	}
	return cols, nil
}

// loadWeather reads every available artifact for the given stations and
// periods. All artifacts must share the same weather columns.
func loadWeather(base string, periods []domain.Period, stations map[string]struct{}) (map[string]map[string][]string, []string, error) {
	byStation := make(map[string]map[string][]string)
	var columns []string

	for id := range stations {
		if id == "" || strings.ContainsAny(id, `/\`) {
			continue
		}
		for _, p := range periods {
			path := domain.ArtifactPath(base, domain.Station{OriginalID: id}, p)
			w, err := readWeatherFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			if columns == nil {
				columns = w.Columns
			} else if strings.Join(columns, ",") != strings.Join(w.Columns, ",") {
				return nil, nil, fmt.Errorf("%s: weather columns %v differ from %v", path, w.Columns, columns)
			}
			rows := byStation[id]
			if rows == nil {
				rows = make(map[string][]string, len(w.Rows))
				byStation[id] = rows
			}
			for k, v := range w.Rows {
				rows[k] = v
			}
		}
	}
	return byStation, columns, nil
}

func readWeatherFile(path string) (*Weather, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w, err := ReadWeather(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

func joinFile(ctx context.Context, path string, cols []column, weather map[string]map[string][]string, periods map[string]bool, cw *csv.Writer, res *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open readings: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	if _, err := cr.Read(); err != nil {
		return fmt.Errorf("%s: read header: %w", path, err)
	}

	for line := 2; ; line++ {
		if line%1000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if len(rec) < 2 {
			continue
		}
		hour, ok := HourKey(rec[0])
		if !ok {
			continue
		}

		inPeriod := periods[hour[:4]]
		for i, value := range rec[1:] {
			value = strings.TrimSpace(value)
			if value == "" || i >= len(cols) {
				continue
			}
			if !inPeriod {
				res.Skipped++
				continue
			}
			c := cols[i]
			row, ok := weather[c.station][hour]
			if !ok {
				res.Unmatched++
				continue
			}
			out := make([]string, 0, len(leadingColumns)+len(row))
			out = append(out, strings.TrimSpace(rec[0]), c.station, c.pollutant, value)
			out = append(out, row...)
			if err := cw.Write(out); err != nil {
				return fmt.Errorf("write joined row: %w", err)
			}
			res.Joined++
		}
	}
}
