package record

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

var numberNoise = strings.NewReplacer("$", "", ",", "", "%", "", " ", "", "\u00a0", "")

// ParseNumber accepts native numbers and strings carrying currency symbols,
// thousands separators or percent signs. "(12.50)" is read as -12.50.
func ParseNumber(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return t, true
	case json.Number:
		return parseNumberString(t.String())
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case int32:
		return decimal.NewFromInt32(t), true
	case string:
		return parseNumberString(t)
	default:
		return decimal.Zero, false
	}
}

func parseNumberString(s string) (decimal.Decimal, bool) {
	s = numberNoise.Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}
