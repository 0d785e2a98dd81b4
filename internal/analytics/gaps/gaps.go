// Package gaps computes weekly revenue shortfalls per dimension value.
//
// A mapping qualifies only with exactly one revenue header and exactly one
// dimension header. Rows are grouped by (ISO week start, dimension value).
// The expected baseline is the summed expected column when one is mapped and
// non-zero, otherwise the best actual seen in that week.
package gaps

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aetherhq/aether-backend/internal/ingestion/dates"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
)

// BlankDimension replaces empty dimension values.
const BlankDimension = "(blank)"

const (
	SourceColumn  = "column"
	SourceWeekMax = "week_max"
)

var hundred = decimal.NewFromInt(100)

type Gap struct {
	WeekStart      string
	DimensionField string
	DimensionValue string
	Actual         decimal.Decimal
	Expected       decimal.Decimal
	ExpectedSource string
	Gap            decimal.Decimal
	// GapPct is nil when Expected is zero.
	GapPct *decimal.Decimal
}

type Stats struct {
	RowsSeen        int `json:"rows_seen"`
	RowsWithoutDate int `json:"rows_without_date"`
	Groups          int `json:"groups"`
}

// Eligible reports whether m carries exactly one revenue and one dimension header.
func Eligible(m mapping.Mapping) bool {
	return m.Count(mapping.RoleRevenue) == 1 && m.Count(mapping.RoleDimension) == 1
}

type group struct {
	week     string
	value    string
	actual   decimal.Decimal
	expected decimal.Decimal
}

// Compute returns nil without error when the mapping is not eligible.
func Compute(rows []record.Row, m mapping.Mapping) ([]Gap, Stats) {
	var st Stats
	if !Eligible(m) {
		return nil, st
	}
	revenueHeader, _ := m.Header(mapping.RoleRevenue)
	dimensionHeader, _ := m.Header(mapping.RoleDimension)
	dateHeader, _ := m.Header(mapping.RoleDate)
	expectedHeaders := m.Headers(mapping.RoleExpected)

	groups := map[[2]string]*group{}
	for _, row := range rows {
		st.RowsSeen++
		day, ok := dates.ResolveTime(row, dateHeader)
		if !ok {
			st.RowsWithoutDate++
			continue
		}
		week := dates.Format(dates.WeekStart(day))
		value := dimensionValue(row, dimensionHeader)
		k := [2]string{week, value}
		g, ok := groups[k]
		if !ok {
			g = &group{week: week, value: value}
			groups[k] = g
		}
		g.actual = g.actual.Add(number(row, revenueHeader))
		for _, h := range expectedHeaders {
			g.expected = g.expected.Add(number(row, h))
		}
	}
	st.Groups = len(groups)

	weekMax := map[string]decimal.Decimal{}
	for _, g := range groups {
		if cur, ok := weekMax[g.week]; !ok || g.actual.GreaterThan(cur) {
			weekMax[g.week] = g.actual
		}
	}

	out := make([]Gap, 0, len(groups))
	for _, g := range groups {
		expected, source := g.expected, SourceColumn
		if len(expectedHeaders) == 0 || expected.IsZero() {
			expected, source = weekMax[g.week], SourceWeekMax
		}
		gap := decimal.Max(expected.Sub(g.actual), decimal.Zero)
		item := Gap{
			WeekStart:      g.week,
			DimensionField: dimensionHeader,
			DimensionValue: g.value,
			Actual:         g.actual,
			Expected:       expected,
			ExpectedSource: source,
			Gap:            gap,
		}
		if expected.IsPositive() {
			pct := gap.Div(expected).Mul(hundred).Round(2)
			item.GapPct = &pct
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeekStart != out[j].WeekStart {
			return out[i].WeekStart < out[j].WeekStart
		}
		return out[i].DimensionValue < out[j].DimensionValue
	})
	return out, st
}

func dimensionValue(row record.Row, header string) string {
	v, _ := row.GetFold(header)
	s := strings.TrimSpace(record.Text(v))
	if s == "" {
		return BlankDimension
	}
	return s
}

// number reads a cell as a decimal; missing or non-numeric cells count as zero.
func number(row record.Row, header string) decimal.Decimal {
	v, ok := row.GetFold(header)
	if !ok {
		return decimal.Zero
	}
	n, ok := record.ParseNumber(v)
	if !ok {
		return decimal.Zero
	}
	return n
}
