package nws

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// interval is a half-open time range [Start, End).
type interval struct {
	Start time.Time
	End   time.Time
}

// overlaps reports whether two half-open intervals overlap. The comparison is
// strict: intervals that merely touch at an endpoint do not overlap.
func (iv interval) overlaps(other interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// durationPattern matches the ISO 8601 duration forms the gridpoint API
// emits: PnDTnHnM with any of the components absent (e.g. PT6H, P1D, P1DT6H).
var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?)?$`)

// defaultIntervalDuration is assumed when a validTime carries no duration
// or one that cannot be parsed.
const defaultIntervalDuration = time.Hour

// parseValidTime parses a gridpoint validTime of the form
// "<ISO8601-instant>/<ISO8601-duration>" (e.g. "2025-01-01T12:00:00+00:00/PT6H")
// into a half-open interval.
func parseValidTime(validTime string) (interval, error) {
	startStr, durStr, _ := strings.Cut(validTime, "/")

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return interval{}, fmt.Errorf("parsing interval start %q: %w", startStr, err)
	}

	dur := parseISODuration(durStr)
	return interval{Start: start, End: start.Add(dur)}, nil
}

// parseISODuration converts an ISO 8601 duration string into a time.Duration,
// falling back to defaultIntervalDuration for empty or unrecognized input.
func parseISODuration(s string) time.Duration {
	if s == "" {
		return defaultIntervalDuration
	}
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return defaultIntervalDuration
	}

	var dur time.Duration
	if m[1] != "" {
		days, _ := strconv.Atoi(m[1])
		dur += time.Duration(days) * 24 * time.Hour
	}
	if m[2] != "" {
		hours, _ := strconv.Atoi(m[2])
		dur += time.Duration(hours) * time.Hour
	}
	if m[3] != "" {
		minutes, _ := strconv.Atoi(m[3])
		dur += time.Duration(minutes) * time.Minute
	}
	if dur == 0 {
		return defaultIntervalDuration
	}
	return dur
}
