// Package extractor pulls numeric metrics out of one row. Three strategies are
// tried in order and the first that finds anything wins outright:
//
//  1. the column mapping (every mapped metric header is summed into its field)
//  2. header keyword lists (first non-zero candidate per field)
//  3. fixed header variants for the upload's declared data type
//
// Strategies 2 and 3 treat an explicit zero as absent.
package extractor

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aetherhq/aether-backend/internal/ingestion/catalog"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
)

type Strategy string

const (
	StrategyNone     Strategy = ""
	StrategyMapping  Strategy = "mapping"
	StrategyKeywords Strategy = "keywords"
	StrategyDeclared Strategy = "declared_type"
)

var roleFields = map[mapping.Role]Field{
	mapping.RoleRevenue:     Revenue,
	mapping.RoleCost:        LaborCost,
	mapping.RoleLaborHours:  LaborHours,
	mapping.RoleAttendance:  Attendance,
	mapping.RoleUtilization: Utilization,
}

type Extractor struct {
	cat *catalog.Catalog
}

func New(cat *catalog.Catalog) *Extractor {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Extractor{cat: cat}
}

func (e *Extractor) Extract(row record.Row, m mapping.Mapping, declaredType string) Metrics {
	out, _ := e.ExtractWithStrategy(row, m, declaredType)
	return out
}

// ExtractWithStrategy also reports which strategy produced the result.
func (e *Extractor) ExtractWithStrategy(row record.Row, m mapping.Mapping, declaredType string) (Metrics, Strategy) {
	if out := e.fromMapping(row, m); !out.Empty() {
		return out, StrategyMapping
	}
	if out := e.fromKeywords(row); !out.Empty() {
		return out, StrategyKeywords
	}
	if out := e.fromDeclaredType(row, declaredType); !out.Empty() {
		return out, StrategyDeclared
	}
	return Metrics{}, StrategyNone
}

func (e *Extractor) fromMapping(row record.Row, m mapping.Mapping) Metrics {
	out := Metrics{}
	for _, a := range m {
		f, ok := roleFields[a.Role]
		if !ok {
			continue
		}
		v, ok := row.GetFold(a.Header)
		if !ok {
			continue
		}
		n, ok := record.ParseNumber(v)
		if !ok {
			continue
		}
		out[f] = out[f].Add(n)
	}
	return out
}

func (e *Extractor) fromKeywords(row record.Row) Metrics {
	index := lowerIndex(row)
	out := Metrics{}
	for _, f := range Fields {
		for _, kw := range e.cat.MetricKeywords(string(f)) {
			v, ok := index[kw]
			if !ok {
				continue
			}
			if n, ok := nonZero(v); ok {
				out[f] = n
				break
			}
		}
	}
	return out
}

func (e *Extractor) fromDeclaredType(row record.Row, declaredType string) Metrics {
	out := Metrics{}
	for _, f := range Fields {
		for _, key := range e.cat.DeclaredVariants(declaredType, string(f)) {
			v, ok := row.Get(key)
			if !ok {
				continue
			}
			if n, ok := nonZero(v); ok {
				out[f] = n
				break
			}
		}
	}
	return out
}

func nonZero(v any) (decimal.Decimal, bool) {
	n, ok := record.ParseNumber(v)
	if !ok || n.IsZero() {
		return decimal.Zero, false
	}
	return n, true
}

// lowerIndex keys the row by lowercased header, and also by its snake_case
// spelling so "Total Revenue" answers to total_revenue. Earlier columns win.
func lowerIndex(row record.Row) map[string]any {
	index := make(map[string]any, len(row.Fields)*2)
	for _, f := range row.Fields {
		lower := strings.ToLower(strings.TrimSpace(f.Key))
		if _, ok := index[lower]; !ok {
			index[lower] = f.Value
		}
		snake := strings.ReplaceAll(record.NormalizeHeader(f.Key), " ", "_")
		if _, ok := index[snake]; !ok {
			index[snake] = f.Value
		}
	}
	return index
}
