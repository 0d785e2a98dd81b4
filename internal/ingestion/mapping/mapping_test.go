package mapping

import (
	"testing"

	"github.com/aetherhq/aether-backend/internal/ingestion/catalog"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
)

func assertMapping(t *testing.T, got Mapping, want Mapping) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("mapping=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mapping=%v want %v", got, want)
		}
	}
}

func TestParseOrientationsAreEquivalent(t *testing.T) {
	t.Parallel()
	headerToRole := Parse([]byte(`{"Date":"date","Amount":"revenue","Studio":"dimension"}`))
	roleToHeader := Parse([]byte(`{"date":"Date","revenue":"Amount","dimension":"Studio"}`))
	want := Mapping{
		{Header: "Date", Role: RoleDate},
		{Header: "Amount", Role: RoleRevenue},
		{Header: "Studio", Role: RoleDimension},
	}
	assertMapping(t, headerToRole, want)
	assertMapping(t, roleToHeader, want)
	for _, role := range []Role{RoleDate, RoleRevenue, RoleDimension} {
		a, _ := headerToRole.Header(role)
		b, _ := roleToHeader.Header(role)
		if a != b {
			t.Fatalf("role %s resolves to %q and %q", role, a, b)
		}
	}
}

func TestParseRoleToHeaderWithRoleNamedHeaders(t *testing.T) {
	t.Parallel()
	got := Parse([]byte(`{"date":"Date","revenue":"Revenue","dimension":"Studio"}`))
	assertMapping(t, got, Mapping{
		{Header: "Date", Role: RoleDate},
		{Header: "Revenue", Role: RoleRevenue},
		{Header: "Studio", Role: RoleDimension},
	})
	if n := got.Count(RoleRevenue); n != 1 {
		t.Fatalf("revenue count = %d want 1", n)
	}

	// One lower-case header spelling a role is outvoted by the role keys.
	got = Parse([]byte(`{"date":"date","revenue":"Amount"}`))
	assertMapping(t, got, Mapping{
		{Header: "date", Role: RoleDate},
		{Header: "Amount", Role: RoleRevenue},
	})
}

func TestParseDropsUnclassifiable(t *testing.T) {
	t.Parallel()
	got := Parse([]byte(`{"Amount":"revenue","Notes":"free text","Count":3,"Hours":"LABOR_HOURS"}`))
	assertMapping(t, got, Mapping{
		{Header: "Amount", Role: RoleRevenue},
		{Header: "Hours", Role: RoleLaborHours},
	})

	got = Parse([]byte(`{"revenue":["Cash","Card"],"bogus":"X","expected":""}`))
	assertMapping(t, got, Mapping{
		{Header: "Cash", Role: RoleRevenue},
		{Header: "Card", Role: RoleRevenue},
	})
}

func TestParseNonObjectIsEmpty(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{``, `null`, `[]`, `"date"`, `{bad json`} {
		if got := Parse([]byte(raw)); len(got) != 0 {
			t.Fatalf("Parse(%q)=%v", raw, got)
		}
	}
}

func TestUtilizationOnlyMappingReadsAsRoleToHeader(t *testing.T) {
	t.Parallel()
	got := Parse([]byte(`{"utilization":"Util %"}`))
	assertMapping(t, got, Mapping{{Header: "Util %", Role: RoleUtilization}})
}

func TestHeaderFirstWinsAndCount(t *testing.T) {
	t.Parallel()
	m := Mapping{
		{Header: "Booked", Role: RoleDate},
		{Header: "Paid", Role: RoleDate},
		{Header: "Cash", Role: RoleRevenue},
		{Header: "Card", Role: RoleRevenue},
	}
	if h, _ := m.Header(RoleDate); h != "Booked" {
		t.Fatalf("first date header should win, got %q", h)
	}
	if m.Count(RoleRevenue) != 2 || len(m.Headers(RoleRevenue)) != 2 {
		t.Fatalf("expected two revenue headers")
	}
	if _, ok := m.Header(RoleExpected); ok {
		t.Fatalf("no expected header mapped")
	}
}

func TestOrderByAndJSON(t *testing.T) {
	t.Parallel()
	m := FromMap(map[string]any{"Revenue": "revenue", "Day": "date", "Extra": "cost"})
	ordered := m.OrderBy([]string{"Day", "Revenue"})
	assertMapping(t, ordered, Mapping{
		{Header: "Day", Role: RoleDate},
		{Header: "Revenue", Role: RoleRevenue},
		{Header: "Extra", Role: RoleCost},
	})
	if got := string(ordered.JSON()); got != `{"Day":"date","Revenue":"revenue","Extra":"cost"}` {
		t.Fatalf("JSON=%s", got)
	}
	assertMapping(t, Parse(ordered.JSON()), ordered)
}

func TestInfer(t *testing.T) {
	t.Parallel()
	headers := []string{"Week Start", "Studio", "Expected Revenue", "Revenue", "Labor Cost", "Notes"}
	sample := []record.Row{
		{Fields: []record.Field{
			{Key: "Week Start", Value: "2024-01-01"},
			{Key: "Studio", Value: "Downtown"},
			{Key: "Expected Revenue", Value: "1,000"},
			{Key: "Revenue", Value: "$900"},
			{Key: "Labor Cost", Value: "300"},
			{Key: "Notes", Value: "busy"},
		}},
	}
	got := Infer(headers, sample, catalog.Default())
	assertMapping(t, got, Mapping{
		{Header: "Week Start", Role: RoleDate},
		{Header: "Studio", Role: RoleDimension},
		{Header: "Expected Revenue", Role: RoleExpected},
		{Header: "Revenue", Role: RoleRevenue},
		{Header: "Labor Cost", Role: RoleCost},
	})
}

func TestInferRejectsTextInNumericColumn(t *testing.T) {
	t.Parallel()
	sample := []record.Row{{Fields: []record.Field{{Key: "Total", Value: "see notes"}}}}
	if got := Infer([]string{"Total"}, sample, catalog.Default()); len(got) != 0 {
		t.Fatalf("expected nothing inferred, got %v", got)
	}
}
