// Package dates resolves the canonical calendar day of a row and the bucket
// starts derived from it. Every date is a UTC midnight: naive strings are read
// as UTC, strings with an explicit offset are converted to UTC before truncation.
package dates

import (
	"strconv"
	"strings"
	"time"

	"github.com/aetherhq/aether-backend/internal/ingestion/record"
)

// Layout is the canonical day format.
const Layout = "2006-01-02"

// Patterns are scanned in order against normalized headers when no mapped date header resolves.
var Patterns = []string{"week_start", "period_start", "start_date", "date", "time", "timestamp", "week"}

// Resolve returns the row's canonical day as YYYY-MM-DD. The candidate value is
// the pre-resolved date, else the mapped date header, else the first header
// matching Patterns. Only that value is parsed: when it does not parse the row
// has no date, even if a later column would. Blank cells are not candidates.
func Resolve(row record.Row, mappedHeader string) (string, bool) {
	if d := strings.TrimSpace(row.ResolvedDate); d != "" {
		return d, true
	}
	v, ok := candidate(row, mappedHeader)
	if !ok {
		return "", false
	}
	t, ok := Parse(v)
	if !ok {
		return "", false
	}
	return Format(t), true
}

func candidate(row record.Row, mappedHeader string) (any, bool) {
	if mappedHeader != "" {
		if v, ok := row.GetFold(mappedHeader); ok && !blank(v) {
			return v, true
		}
	}
	for _, p := range Patterns {
		needle := record.NormalizeHeader(p)
		for _, f := range row.Fields {
			if strings.Contains(record.NormalizeHeader(f.Key), needle) && !blank(f.Value) {
				return f.Value, true
			}
		}
	}
	return nil, false
}

func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// ResolveTime is Resolve returning the parsed day.
func ResolveTime(row record.Row, mappedHeader string) (time.Time, bool) {
	s, ok := Resolve(row, mappedHeader)
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseDay(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var layouts = []string{
	Layout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"1/2/06",
	"01-02-2006",
	"1-2-2006",
	"01-02-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"02-Jan-06",
	"2-Jan-06",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	"2006-01",
	"Jan 2006",
	"January 2006",
}

// Parse accepts the common spreadsheet date renderings. Bare numbers are rejected.
func Parse(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return Truncate(t), true
	case string:
		return parseString(t)
	default:
		return time.Time{}, false
	}
}

func parseString(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || isNumeric(s) {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2200 {
			return time.Time{}, false
		}
		return Truncate(t), true
	}
	return time.Time{}, false
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// Truncate converts to UTC and drops the clock.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func Format(t time.Time) string { return t.UTC().Format(Layout) }

// ParseDay parses a canonical YYYY-MM-DD string.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, strings.TrimSpace(s), time.UTC)
}

// WeekStart is the Monday of t's ISO week.
func WeekStart(t time.Time) time.Time {
	t = Truncate(t)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

func MonthStart(t time.Time) time.Time {
	t = Truncate(t)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DaysInclusive counts calendar days in [start, end]; 0 when end precedes start.
func DaysInclusive(start, end time.Time) int {
	start, end = Truncate(start), Truncate(end)
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}
