package dates

import (
	"testing"
	"time"

	"github.com/aetherhq/aether-backend/internal/ingestion/record"
)

func row(kv ...any) record.Row {
	r := record.Row{}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Fields = append(r.Fields, record.Field{Key: kv[i].(string), Value: kv[i+1]})
	}
	return r
}

func TestResolvePreResolvedWins(t *testing.T) {
	t.Parallel()
	r := row("Date", "2024-02-01")
	r.ResolvedDate = "2024-01-15"
	if got, ok := Resolve(r, "Date"); !ok || got != "2024-01-15" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestResolveMappedHeaderIsCaseAndSpaceInsensitive(t *testing.T) {
	t.Parallel()
	r := row("Week Start", "01/08/2024", "Date", "2024-03-01")
	if got, ok := Resolve(r, "week_start"); !ok || got != "2024-01-08" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestResolvePatternPriority(t *testing.T) {
	t.Parallel()
	// "date" outranks "week" even though the week column comes first.
	r := row("Week", "2024-05-06", "Transaction Date", "2024-05-09")
	if got, _ := Resolve(r, ""); got != "2024-05-09" {
		t.Fatalf("got %q", got)
	}
	// "period_start" outranks "date".
	r = row("Date", "2024-05-09", "Period Start", "2024-05-01")
	if got, _ := Resolve(r, ""); got != "2024-05-01" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveFailsWithoutCandidates(t *testing.T) {
	t.Parallel()
	r := row("Location", "Downtown", "Revenue", "100")
	if got, ok := Resolve(r, "Date"); ok {
		t.Fatalf("unexpected date %q", got)
	}
	r = row("Date", "not a date")
	if _, ok := Resolve(r, ""); ok {
		t.Fatalf("unparseable value must not resolve")
	}
}

func TestResolveParsesOnlyTheFirstCandidate(t *testing.T) {
	t.Parallel()
	// An unparseable mapped value leaves the row undated.
	r := row("Date", "N/A", "timestamp", "2024-01-03")
	if got, ok := Resolve(r, "Date"); ok {
		t.Fatalf("mapped N/A resolved to %q", got)
	}
	// The first header matching a pattern is the candidate, parseable or not.
	r = row("Start Date", "TBD", "Booked Date", "2024-01-03")
	if got, ok := Resolve(r, ""); ok {
		t.Fatalf("pattern candidate TBD resolved to %q", got)
	}
	// A blank mapped cell is not a candidate.
	r = row("Date", " ", "timestamp", "2024-01-03")
	if got, ok := Resolve(r, "Date"); !ok || got != "2024-01-03" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestParseFormatsAndTimezones(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"2024-01-15":                "2024-01-15",
		"2024-01-15T23:30:00-05:00": "2024-01-16",
		"2024-01-15T01:00:00+09:00": "2024-01-14",
		"2024-01-15 08:00:00":       "2024-01-15",
		"1/5/2024":                  "2024-01-05",
		"Jan 5, 2024":               "2024-01-05",
		"5-Jan-2024":                "2024-01-05",
		"2024-03":                   "2024-03-01",
	}
	for in, want := range cases {
		got, ok := Parse(in)
		if !ok {
			t.Fatalf("Parse(%q) failed", in)
		}
		if Format(got) != want {
			t.Fatalf("Parse(%q)=%s want %s", in, Format(got), want)
		}
		if got.Location() != time.UTC || got.Hour() != 0 {
			t.Fatalf("Parse(%q) is not UTC midnight: %v", in, got)
		}
	}
	for _, bad := range []any{"", "45000", "3", "tomorrow", 45000.0, nil} {
		if _, ok := Parse(bad); ok {
			t.Fatalf("Parse(%v) should fail", bad)
		}
	}
}

func TestWeekAndMonthStart(t *testing.T) {
	t.Parallel()
	cases := []struct{ day, week, month string }{
		{"2024-01-01", "2024-01-01", "2024-01-01"}, // Monday
		{"2024-01-07", "2024-01-01", "2024-01-01"}, // Sunday
		{"2024-03-01", "2024-02-26", "2024-03-01"}, // Friday, week crosses a month boundary
		{"2021-01-03", "2020-12-28", "2021-01-01"}, // Sunday, ISO week of previous year
	}
	for _, tc := range cases {
		d, err := ParseDay(tc.day)
		if err != nil {
			t.Fatal(err)
		}
		if got := Format(WeekStart(d)); got != tc.week {
			t.Fatalf("WeekStart(%s)=%s want %s", tc.day, got, tc.week)
		}
		if got := Format(MonthStart(d)); got != tc.month {
			t.Fatalf("MonthStart(%s)=%s want %s", tc.day, got, tc.month)
		}
	}
}

func TestDaysInclusive(t *testing.T) {
	t.Parallel()
	a, _ := ParseDay("2024-01-01")
	b, _ := ParseDay("2024-01-31")
	if got := DaysInclusive(a, b); got != 31 {
		t.Fatalf("got %d", got)
	}
	if got := DaysInclusive(b, a); got != 0 {
		t.Fatalf("got %d", got)
	}
}
