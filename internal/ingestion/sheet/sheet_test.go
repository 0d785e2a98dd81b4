package sheet

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	t.Parallel()
	data := "\xef\xbb\xbf\n" +
		"Week Start,Studio,Revenue,,Revenue\n" +
		"2024-01-01,North,\"$1,200\",x,5\n" +
		",,,,\n" +
		"2024-01-08,South,300\n"
	tbl, err := Parse("export.CSV", strings.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	wantHeaders := []string{"Week Start", "Studio", "Revenue", "column_4", "Revenue_2"}
	if strings.Join(tbl.Headers, "|") != strings.Join(wantHeaders, "|") {
		t.Fatalf("headers = %v", tbl.Headers)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("blank rows must be skipped, got %d rows", len(tbl.Rows))
	}
	if v, _ := tbl.Rows[0].Get("Revenue"); v != "$1,200" {
		t.Fatalf("Revenue = %v", v)
	}
	if v, _ := tbl.Rows[1].Get("Revenue_2"); v != "" {
		t.Fatalf("ragged rows pad with empty strings, got %v", v)
	}
}

func TestParseXLSX(t *testing.T) {
	t.Parallel()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Date", "Location", "Amount"},
		{"2024-02-05", "Downtown", 250.5},
		{"2024-02-06", "Uptown", 99},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	tbl, err := Parse("report.xlsx", &buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tbl.Headers) != 3 || tbl.Headers[2] != "Amount" {
		t.Fatalf("headers = %v", tbl.Headers)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows = %d", len(tbl.Rows))
	}
	if v, _ := tbl.Rows[0].Get("Amount"); v != "250.5" {
		t.Fatalf("Amount = %v", v)
	}
}

func TestUnsupportedAndEmpty(t *testing.T) {
	t.Parallel()
	if _, err := Parse("notes.pdf", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v", err)
	}
	for _, name := range []string{"notes.txt", "export.tsv", "noext"} {
		if _, err := DetectFormat(name); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("DetectFormat(%q) err = %v want ErrUnsupportedFormat", name, err)
		}
	}
	if _, err := Parse("empty.csv", strings.NewReader("\n , \n")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("err = %v", err)
	}
}
