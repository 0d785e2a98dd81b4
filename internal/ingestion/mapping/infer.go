package mapping

import (
	"strings"

	"github.com/aetherhq/aether-backend/internal/ingestion/catalog"
	"github.com/aetherhq/aether-backend/internal/ingestion/dates"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
)

// inferenceOrder is the order roles are tried per header; "Expected Revenue" must
// land on expected and "Labor Cost" on cost before revenue gets a chance.
var inferenceOrder = []Role{
	RoleExpected, RoleDate, RoleCost, RoleLaborHours, RoleAttendance, RoleUtilization, RoleRevenue, RoleDimension,
}

// Infer proposes a mapping from header names and a sample of rows. At most one
// date and one dimension header are chosen; numeric roles need numeric samples.
func Infer(headers []string, sample []record.Row, cat *catalog.Catalog) Mapping {
	out := Mapping{}
	haveDate, haveDim := false, false
	for _, h := range headers {
		norm := " " + record.NormalizeHeader(h) + " "
		if strings.TrimSpace(norm) == "" {
			continue
		}
		for _, role := range inferenceOrder {
			if (role == RoleDate && haveDate) || (role == RoleDimension && haveDim) {
				continue
			}
			if !matchesAny(norm, cat.InferenceKeywords(string(role))) {
				continue
			}
			if !samplesFit(role, h, sample) {
				continue
			}
			out = append(out, Assignment{Header: h, Role: role})
			switch role {
			case RoleDate:
				haveDate = true
			case RoleDimension:
				haveDim = true
			}
			break
		}
	}
	return out
}

func matchesAny(paddedHeader string, keywords []string) bool {
	for _, kw := range keywords {
		kw = record.NormalizeHeader(kw)
		if kw != "" && strings.Contains(paddedHeader, " "+kw+" ") {
			return true
		}
	}
	return false
}

// samplesFit requires a majority of non-blank sample values to look like the role.
// With no usable samples the header name alone decides.
func samplesFit(role Role, header string, sample []record.Row) bool {
	seen, fit := 0, 0
	for _, row := range sample {
		v, ok := row.Get(header)
		if !ok || record.IsBlank(v) {
			continue
		}
		seen++
		_, numeric := record.ParseNumber(v)
		switch role {
		case RoleDate:
			if _, ok := dates.Parse(v); ok {
				fit++
			}
		case RoleDimension:
			if !numeric {
				fit++
			}
		default:
			if numeric {
				fit++
			}
		}
	}
	if seen == 0 {
		return true
	}
	return fit*2 > seen
}
