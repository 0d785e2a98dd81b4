// Package snapshots folds rows into daily, weekly and monthly metric buckets.
// A Builder holds everything in memory; nothing is written until the caller
// persists Buckets in one go, so a failed pass never leaves partial sums behind.
package snapshots

import (
	"fmt"
	"sort"
	"time"

	"github.com/aetherhq/aether-backend/internal/ingestion/dates"
	"github.com/aetherhq/aether-backend/internal/ingestion/extractor"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// Periods lists every granularity in write order.
var Periods = []Period{Daily, Weekly, Monthly}

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case Daily, Weekly, Monthly:
		return Period(s), nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Start returns the bucket start containing day.
func (p Period) Start(day time.Time) time.Time {
	switch p {
	case Weekly:
		return dates.WeekStart(day)
	case Monthly:
		return dates.MonthStart(day)
	default:
		return dates.Truncate(day)
	}
}

// End returns the last day of the bucket starting at start.
func (p Period) End(start time.Time) time.Time {
	switch p {
	case Weekly:
		return start.AddDate(0, 0, 6)
	case Monthly:
		return start.AddDate(0, 1, -1)
	default:
		return start
	}
}

// Key identifies one snapshot row within an org.
type Key struct {
	Period Period
	Date   string
}

func (k Key) String() string { return string(k.Period) + ":" + k.Date }

// Span returns the first and last day covered by the bucket.
func (k Key) Span() (time.Time, time.Time, error) {
	start, err := dates.ParseDay(k.Date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, k.Period.End(start), nil
}

// KeysFor returns the day, week and month keys containing day.
func KeysFor(day time.Time) []Key {
	out := make([]Key, 0, len(Periods))
	for _, p := range Periods {
		out = append(out, Key{Period: p, Date: dates.Format(p.Start(day))})
	}
	return out
}

// Window returns the smallest [start, end] day range covering every key.
func Window(keys []Key) (string, string, bool) {
	var lo, hi time.Time
	found := false
	for _, k := range keys {
		start, end, err := k.Span()
		if err != nil {
			continue
		}
		if !found || start.Before(lo) {
			lo = start
		}
		if !found || end.After(hi) {
			hi = end
		}
		found = true
	}
	if !found {
		return "", "", false
	}
	return dates.Format(lo), dates.Format(hi), true
}

type Bucket struct {
	Key     Key
	Metrics extractor.Metrics
	Rows    int
}

// Stats counts rows excluded from the pass.
type Stats struct {
	RowsSeen           int `json:"rows_seen"`
	RowsWithoutDate    int `json:"rows_without_date"`
	RowsWithoutMetrics int `json:"rows_without_metrics"`
}

type Builder struct {
	ex      *extractor.Extractor
	buckets map[Key]*Bucket
	stats   Stats
}

func NewBuilder(ex *extractor.Extractor) *Builder {
	if ex == nil {
		ex = extractor.New(nil)
	}
	return &Builder{ex: ex, buckets: map[Key]*Bucket{}}
}

// Add folds one row into its three buckets. Rows without a resolvable date or
// without any extractable metric are counted and skipped.
func (b *Builder) Add(row record.Row, m mapping.Mapping, dataType string) bool {
	b.stats.RowsSeen++
	dateHeader, _ := m.Header(mapping.RoleDate)
	day, ok := dates.ResolveTime(row, dateHeader)
	if !ok {
		b.stats.RowsWithoutDate++
		return false
	}
	metrics := b.ex.Extract(row, m, dataType)
	if metrics.Empty() {
		b.stats.RowsWithoutMetrics++
		return false
	}
	for _, k := range KeysFor(day) {
		bucket, ok := b.buckets[k]
		if !ok {
			bucket = &Bucket{Key: k, Metrics: extractor.Metrics{}}
			b.buckets[k] = bucket
		}
		bucket.Metrics.Add(metrics)
		bucket.Rows++
	}
	return true
}

func (b *Builder) Stats() Stats { return b.stats }

// Keys returns every bucket key touched so far.
func (b *Builder) Keys() []Key {
	out := make([]Key, 0, len(b.buckets))
	for k := range b.buckets {
		out = append(out, k)
	}
	SortKeys(out)
	return out
}

// Buckets returns the accumulated buckets ordered by period, then date.
func (b *Builder) Buckets() []Bucket {
	out := make([]Bucket, 0, len(b.buckets))
	for _, bucket := range b.buckets {
		out = append(out, Bucket{Key: bucket.Key, Metrics: bucket.Metrics.Clone(), Rows: bucket.Rows})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Key, out[j].Key) })
	return out
}

// Get returns the bucket for k, if any row landed in it.
func (b *Builder) Get(k Key) (Bucket, bool) {
	bucket, ok := b.buckets[k]
	if !ok {
		return Bucket{}, false
	}
	return Bucket{Key: bucket.Key, Metrics: bucket.Metrics.Clone(), Rows: bucket.Rows}, true
}

var periodRank = map[Period]int{Daily: 0, Weekly: 1, Monthly: 2}

func less(a, b Key) bool {
	if a.Period != b.Period {
		return periodRank[a.Period] < periodRank[b.Period]
	}
	return a.Date < b.Date
}

// SortKeys orders keys by period, then date.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
}
