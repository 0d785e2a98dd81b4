package rollup

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/aetherhq/aether-backend/internal/analytics/snapshots"
	"github.com/aetherhq/aether-backend/internal/ingestion/extractor"
)

func mustRange(t *testing.T, start, end string) Range {
	t.Helper()
	r, err := NewRange(start, end)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func metrics(kv map[extractor.Field]int64) extractor.Metrics {
	out := extractor.Metrics{}
	for f, v := range kv {
		out[f] = decimal.NewFromInt(v)
	}
	return out
}

func TestPrevious(t *testing.T) {
	t.Parallel()
	r := mustRange(t, "2024-03-01", "2024-03-07")
	p := r.Previous()
	if p.StartDay() != "2024-02-23" || p.EndDay() != "2024-02-29" {
		t.Fatalf("previous = %s..%s", p.StartDay(), p.EndDay())
	}
	if p.Days() != r.Days() {
		t.Fatalf("lengths differ: %d vs %d", p.Days(), r.Days())
	}
}

func TestNewRangeRejectsInverted(t *testing.T) {
	t.Parallel()
	if _, err := NewRange("2024-03-02", "2024-03-01"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewRange("03/01/2024", "2024-03-01"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBucketsInRange(t *testing.T) {
	t.Parallel()
	r := mustRange(t, "2024-03-01", "2024-03-31")
	cases := map[snapshots.Period]int{
		snapshots.Daily:   31,
		snapshots.Weekly:  5, // Mondays Feb 26, Mar 4, 11, 18, 25
		snapshots.Monthly: 1,
	}
	for p, want := range cases {
		if got := BucketsInRange(p, r); got != want {
			t.Fatalf("%s: got %d want %d", p, got, want)
		}
	}
}

func TestChangeIsNullWhenPreviousIsZero(t *testing.T) {
	t.Parallel()
	r := mustRange(t, "2024-03-04", "2024-03-10")
	current := []Point{{Date: "2024-03-04", Metrics: metrics(map[extractor.Field]int64{
		extractor.Revenue: 100, extractor.LaborCost: 40, extractor.Attendance: 9,
	})}}
	previous := []Point{{Date: "2024-02-26", Metrics: metrics(map[extractor.Field]int64{
		extractor.Revenue: 0, extractor.LaborCost: 0, extractor.Attendance: 0,
	})}}
	s := Summarize(snapshots.Weekly, r, current, previous)
	for _, f := range []extractor.Field{extractor.Revenue, extractor.LaborCost, extractor.Attendance} {
		if s.Change[f] != nil {
			t.Fatalf("%s change must be null, got %v", f, *s.Change[f])
		}
	}

	previous = []Point{{Date: "2024-02-26", Metrics: metrics(map[extractor.Field]int64{
		extractor.Revenue: 80, extractor.LaborCost: 0, extractor.Attendance: -3,
	})}}
	s = Summarize(snapshots.Weekly, r, current, previous)
	if s.Change[extractor.Revenue] == nil || *s.Change[extractor.Revenue] != 25 {
		t.Fatalf("revenue change = %v", s.Change[extractor.Revenue])
	}
	if s.Change[extractor.LaborCost] != nil {
		t.Fatalf("labor cost change must stay null independently")
	}
	if s.Change[extractor.Attendance] == nil || *s.Change[extractor.Attendance] != 400 {
		t.Fatalf("attendance change divides by |previous|: %v", s.Change[extractor.Attendance])
	}
}

func TestForecast(t *testing.T) {
	t.Parallel()
	r := mustRange(t, "2024-03-01", "2024-03-10")
	points := []Point{
		{Date: "2024-03-01", Metrics: metrics(map[extractor.Field]int64{extractor.Revenue: 100})},
		{Date: "2024-03-02", Metrics: metrics(map[extractor.Field]int64{extractor.Revenue: 50})},
	}
	s := Summarize(snapshots.Daily, r, points, nil)
	if s.Forecast == nil || *s.Forecast != 750 {
		t.Fatalf("forecast = %v", s.Forecast)
	}
	if s.Current[extractor.Revenue].String() != "150" || s.Points != 2 || s.Buckets != 10 {
		t.Fatalf("summary = %+v", s)
	}

	if Forecast(decimal.Zero, 3, 10) != nil || Forecast(decimal.NewFromInt(5), 0, 10) != nil {
		t.Fatalf("forecast must be null without a positive average")
	}
}
