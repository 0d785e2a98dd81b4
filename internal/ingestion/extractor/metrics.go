package extractor

import (
	"github.com/shopspring/decimal"

	"github.com/aetherhq/aether-backend/internal/pkg/pointers"
)

// Field names match the keys of the stored snapshot metrics object.
type Field string

const (
	Revenue     Field = "revenue"
	LaborCost   Field = "laborCost"
	LaborHours  Field = "laborHours"
	Attendance  Field = "attendance"
	Utilization Field = "utilization"
)

// Fields lists every metric in output order.
var Fields = []Field{Revenue, LaborCost, LaborHours, Attendance, Utilization}

// Metrics is sparse: a missing key means the metric was not found, which is
// different from a present zero.
type Metrics map[Field]decimal.Decimal

func (m Metrics) Empty() bool { return len(m) == 0 }

func (m Metrics) Get(f Field) (decimal.Decimal, bool) {
	v, ok := m[f]
	return v, ok
}

// Add accumulates other into m field by field.
func (m Metrics) Add(other Metrics) {
	for f, v := range other {
		m[f] = m[f].Add(v)
	}
}

func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for f, v := range m {
		out[f] = v
	}
	return out
}

// Float returns the metric as *float64, nil when absent.
func (m Metrics) Float(f Field) *float64 {
	v, ok := m[f]
	if !ok {
		return nil
	}
	return pointers.Float64(v.InexactFloat64())
}

// FromFloats is the inverse of Float for stored values.
func FromFloats(vals map[Field]*float64) Metrics {
	out := Metrics{}
	for f, v := range vals {
		if v != nil {
			out[f] = decimal.NewFromFloat(*v)
		}
	}
	return out
}
