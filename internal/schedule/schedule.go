// Package schedule computes how much of a wall-clock span falls inside a
// tenant's weekly business hours.
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Interval is one open/close pair in local wall-clock time, e.g. 09:00-17:00.
// Close may be "24:00" to run to end of day. Intervals are half-open: the
// opening instant counts, the closing instant does not.
type Interval struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Weekly holds the open intervals for each weekday. A day with no intervals
// is fully closed.
type Weekly struct {
	days [7][]span
}

// span is an interval in minutes since local midnight.
type span struct {
	open  int
	close int
}

var dayKeys = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Parse decodes a stored schedule document of the form
//
//	{"mon": [{"open": "09:00", "close": "17:00"}], "sat": [], ...}
//
// Missing days are closed. Returns an error for unknown day keys, malformed
// times, or inverted intervals; callers degrade to raw elapsed time on error.
func Parse(raw string) (*Weekly, error) {
	var doc map[string][]Interval
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}

	w := &Weekly{}
	for key, intervals := range doc {
		day, ok := dayKeys[strings.ToLower(key)]
		if !ok {
			return nil, fmt.Errorf("unknown day key %q", key)
		}
		for _, iv := range intervals {
			open, err := parseClock(iv.Open)
			if err != nil {
				return nil, fmt.Errorf("day %s: %w", key, err)
			}
			close, err := parseClock(iv.Close)
			if err != nil {
				return nil, fmt.Errorf("day %s: %w", key, err)
			}
			if close <= open {
				return nil, fmt.Errorf("day %s: close %q not after open %q", key, iv.Close, iv.Open)
			}
			w.days[day] = append(w.days[day], span{open: open, close: close})
		}
	}
	return w, nil
}

// parseClock converts "HH:MM" to minutes since midnight. "24:00" is allowed
// as an end-of-day close.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}

// Seconds returns the number of seconds between start and end that fall
// inside w's open intervals, evaluated in loc. A nil schedule means every
// second counts and the result is exactly end-start.
//
// The calculation walks local calendar days from start's date to end's,
// intersecting each day's open intervals with the portion of [start, end]
// on that day. A 30-hour gap over a weekend can therefore carry only
// minutes of business exposure.
func Seconds(start, end time.Time, w *Weekly, loc *time.Location) int64 {
	if !end.After(start) {
		return 0
	}
	if w == nil {
		return int64(end.Sub(start) / time.Second)
	}
	if loc == nil {
		loc = time.UTC
	}

	s := start.In(loc)
	e := end.In(loc)

	var total int64
	day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
	for !day.After(e) {
		for _, sp := range w.days[day.Weekday()] {
			// time.Date normalizes the minute offset, which keeps DST
			// transition days consistent with local wall-clock opening times.
			openAt := time.Date(day.Year(), day.Month(), day.Day(), 0, sp.open, 0, 0, loc)
			closeAt := time.Date(day.Year(), day.Month(), day.Day(), 0, sp.close, 0, 0, loc)

			lo := openAt
			if s.After(lo) {
				lo = s
			}
			hi := closeAt
			if e.Before(hi) {
				hi = e
			}
			if hi.After(lo) {
				total += int64(hi.Sub(lo) / time.Second)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total
}

// SecondsFromConfig computes business seconds from a tenant's stored
// configuration. A nil schedule document means the tenant has not enabled
// business-hours adjustment. Malformed schedules and unknown zone names
// degrade to raw elapsed time; SLA enrichment is best-effort, not blocking.
// The second return reports whether degradation happened.
func SecondsFromConfig(start, end time.Time, scheduleJSON *string, timeZone string) (int64, bool) {
	raw := int64(0)
	if end.After(start) {
		raw = int64(end.Sub(start) / time.Second)
	}
	if scheduleJSON == nil || *scheduleJSON == "" {
		return raw, false
	}

	w, err := Parse(*scheduleJSON)
	if err != nil {
		return raw, true
	}
	loc := time.UTC
	if timeZone != "" {
		l, err := time.LoadLocation(timeZone)
		if err != nil {
			return raw, true
		}
		loc = l
	}
	return Seconds(start, end, w, loc), false
}
