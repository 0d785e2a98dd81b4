package record

import (
	"encoding/json"
	"testing"
)

func TestParseNumber(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{"$1,234.50", "1234.5", true},
		{"45%", "45", true},
		{" 12 ", "12", true},
		{"(30.25)", "-30.25", true},
		{json.Number("19.99"), "19.99", true},
		{float64(3.5), "3.5", true},
		{7, "7", true},
		{"n/a", "0", false},
		{"", "0", false},
		{nil, "0", false},
		{true, "0", false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseNumber(%v) ok=%v want %v", tc.in, ok, tc.ok)
		}
		if ok && got.String() != tc.want {
			t.Fatalf("ParseNumber(%v)=%s want %s", tc.in, got.String(), tc.want)
		}
	}
}

func TestNormalizeHeader(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"Week_Start":     "week start",
		"  WEEK   start": "week start",
		"period-start":   "period start",
		"Date":           "date",
	} {
		if got := NormalizeHeader(in); got != want {
			t.Fatalf("NormalizeHeader(%q)=%q want %q", in, got, want)
		}
	}
}

func TestDecodeOrdersByHeaders(t *testing.T) {
	t.Parallel()
	row, err := Decode([]byte(`{"b":"2","a":1.50,"z":null,"c":"x"}`), []string{"c", "a", "b"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	keys := row.Keys()
	want := []string{"c", "a", "b", "z"}
	if len(keys) != len(want) {
		t.Fatalf("keys=%v want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys=%v want %v", keys, want)
		}
	}
	v, _ := row.Get("a")
	if Text(v) != "1.50" {
		t.Fatalf("number lost its digits: %v", v)
	}
}

func TestGetFold(t *testing.T) {
	t.Parallel()
	row := Row{Fields: []Field{{Key: "Week Start", Value: "2024-01-01"}}}
	if _, ok := row.GetFold("week_start"); !ok {
		t.Fatalf("expected case/whitespace-insensitive match")
	}
	if _, ok := row.GetFold("week"); ok {
		t.Fatalf("GetFold must not do substring matches")
	}
}

func TestEncodeFieldsKeepsColumnOrder(t *testing.T) {
	t.Parallel()
	row := Row{Fields: []Field{
		{Key: "Week", Value: "2024-01-01"},
		{Key: "Amount", Value: "10"},
		{Key: "Week", Value: "ignored"},
		{Key: "Site", Value: nil},
	}}
	raw, err := row.EncodeFields()
	if err != nil {
		t.Fatalf("EncodeFields: %v", err)
	}
	want := `{"Week":"2024-01-01","Amount":"10","Site":null}`
	if string(raw) != want {
		t.Fatalf("EncodeFields = %s want %s", raw, want)
	}
	back, err := Decode(raw, []string{"Week", "Amount", "Site"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := back.Keys(); len(got) != 3 || got[0] != "Week" || got[2] != "Site" {
		t.Fatalf("round trip keys = %v", got)
	}
}
