package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Period is a reporting year.
type Period int

// StartDate is the first day of the period, formatted YYYY-MM-DD.
func (p Period) StartDate() string {
	return fmt.Sprintf("%04d-01-01", int(p))
}

// EndDate is the last day of the period, formatted YYYY-MM-DD.
func (p Period) EndDate() string {
	return fmt.Sprintf("%04d-12-31", int(p))
}

func (p Period) String() string {
	return strconv.Itoa(int(p))
}

// ParsePeriods parses a comma-separated list of years and inclusive ranges,
// e.g. "2017,2019-2021". Order is preserved and duplicates are dropped.
func ParsePeriods(s string) ([]Period, error) {
	var out []Period
	seen := make(map[Period]bool)
	add := func(p Period) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if from, to, ok := strings.Cut(part, "-"); ok {
			start, err := parseYear(from)
			if err != nil {
				return nil, err
			}
			end, err := parseYear(to)
			if err != nil {
				return nil, err
			}
			if end < start {
				return nil, fmt.Errorf("period range %q is reversed", part)
			}
			for y := start; y <= end; y++ {
				add(y)
			}
			continue
		}
		y, err := parseYear(part)
		if err != nil {
			return nil, err
		}
		add(y)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no periods in %q", s)
	}
	return out, nil
}

func parseYear(s string) (Period, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", s, err)
	}
	// The archive starts in 1940.
	if y < 1940 || y > 9999 {
		return 0, fmt.Errorf("period %d out of range", y)
	}
	return Period(y), nil
}
