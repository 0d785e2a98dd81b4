// Package rollup sums stored snapshots over a date range and compares the
// result with the range of equal length that ends the day before.
package rollup

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aetherhq/aether-backend/internal/analytics/snapshots"
	"github.com/aetherhq/aether-backend/internal/ingestion/dates"
	"github.com/aetherhq/aether-backend/internal/ingestion/extractor"
	"github.com/aetherhq/aether-backend/internal/pkg/pointers"
)

var hundred = decimal.NewFromInt(100)

// Range is an inclusive span of UTC days.
type Range struct {
	Start time.Time
	End   time.Time
}

func NewRange(start, end string) (Range, error) {
	s, err := dates.ParseDay(start)
	if err != nil {
		return Range{}, fmt.Errorf("start: %w", err)
	}
	e, err := dates.ParseDay(end)
	if err != nil {
		return Range{}, fmt.Errorf("end: %w", err)
	}
	if e.Before(s) {
		return Range{}, fmt.Errorf("end %s precedes start %s", end, start)
	}
	return Range{Start: s, End: e}, nil
}

func (r Range) Days() int { return dates.DaysInclusive(r.Start, r.End) }

func (r Range) StartDay() string { return dates.Format(r.Start) }
func (r Range) EndDay() string   { return dates.Format(r.End) }

// Previous is the range of the same number of days ending the day before Start.
func (r Range) Previous() Range {
	end := r.Start.AddDate(0, 0, -1)
	return Range{Start: end.AddDate(0, 0, -(r.Days() - 1)), End: end}
}

// BucketsInRange counts the distinct period buckets that overlap r.
func BucketsInRange(p snapshots.Period, r Range) int {
	if r.End.Before(r.Start) {
		return 0
	}
	n := 0
	for b := p.Start(r.Start); !b.After(r.End); b = next(p, b) {
		n++
	}
	return n
}

func next(p snapshots.Period, start time.Time) time.Time {
	switch p {
	case snapshots.Weekly:
		return start.AddDate(0, 0, 7)
	case snapshots.Monthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Point is one stored snapshot in a series.
type Point struct {
	Date    string
	Metrics extractor.Metrics
}

// Totals sums each metric across points. Metrics never seen stay absent.
func Totals(points []Point) extractor.Metrics {
	out := extractor.Metrics{}
	for _, p := range points {
		out.Add(p.Metrics)
	}
	return out
}

type Change map[extractor.Field]*float64

type Summary struct {
	Current  extractor.Metrics
	Previous extractor.Metrics
	Change   Change
	// Forecast is average revenue per series point times the buckets in range.
	Forecast *float64
	Points   int
	Buckets  int
}

// Summarize builds the KPI summary for current against previous.
func Summarize(p snapshots.Period, r Range, current, previous []Point) Summary {
	cur, prev := Totals(current), Totals(previous)
	s := Summary{
		Current:  cur,
		Previous: prev,
		Change:   Change{},
		Points:   len(current),
		Buckets:  BucketsInRange(p, r),
	}
	for _, f := range extractor.Fields {
		s.Change[f] = PercentChange(cur[f], prev[f])
	}
	s.Forecast = Forecast(cur[extractor.Revenue], len(current), s.Buckets)
	return s
}

// PercentChange is (current-previous)/|previous|*100 rounded to 2 places, nil when previous is zero.
func PercentChange(current, previous decimal.Decimal) *float64 {
	if previous.IsZero() {
		return nil
	}
	v := current.Sub(previous).Div(previous.Abs()).Mul(hundred).Round(2)
	return pointers.Float64(v.InexactFloat64())
}

// Forecast is nil when there are no points or the average is zero.
func Forecast(totalRevenue decimal.Decimal, points, buckets int) *float64 {
	if points == 0 {
		return nil
	}
	avg := totalRevenue.Div(decimal.NewFromInt(int64(points)))
	if avg.IsZero() {
		return nil
	}
	v := avg.Mul(decimal.NewFromInt(int64(buckets))).Round(2)
	return pointers.Float64(v.InexactFloat64())
}
