// Package sheet reads the first worksheet of an uploaded spreadsheet into
// header-keyed rows. Supported formats are .xlsx, .xls and .csv.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/aetherhq/aether-backend/internal/ingestion/record"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrNoHeader          = errors.New("spreadsheet has no header row")
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// DetectFormat picks the reader by file extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "xlsx", "xlsm":
		return FormatXLSX, nil
	case "xls":
		return FormatXLS, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

type Table struct {
	Headers []string
	Rows    []record.Row
}

// Parse reads r fully and decodes it according to filename's extension.
func Parse(filename string, r io.Reader) (*Table, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	var cells [][]string
	switch format {
	case FormatXLSX:
		cells, err = readXLSX(data)
	case FormatXLS:
		cells, err = readXLS(data)
	default:
		cells, err = readCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}
	return Build(cells)
}

// Build turns a cell grid into a table. The first non-blank row is the
// header row; blank headers become column_N and repeats get _2, _3 suffixes.
// Fully blank data rows are dropped.
func Build(cells [][]string) (*Table, error) {
	start := -1
	for i, row := range cells {
		if !blankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrNoHeader
	}
	headers := uniqueHeaders(cells[start])
	t := &Table{Headers: headers}
	for _, row := range cells[start+1:] {
		if blankRow(row) {
			continue
		}
		out := record.Row{Fields: make([]record.Field, 0, len(headers))}
		for j, h := range headers {
			v := ""
			if j < len(row) {
				v = strings.TrimSpace(row[j])
			}
			out.Fields = append(out.Fields, record.Field{Key: h, Value: v})
		}
		t.Rows = append(t.Rows, out)
	}
	return t, nil
}

func uniqueHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := map[string]int{}
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		key := strings.ToLower(h)
		seen[key]++
		if n := seen[key]; n > 1 {
			h = h + "_" + strconv.Itoa(n)
		}
		out[i] = h
	}
	return out
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readXLSX(data []byte) ([][]string, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer xl.Close()

	sheetName := xl.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("workbook has no sheets")
	}
	return xl.GetRows(sheetName)
}

func readXLS(data []byte) ([][]string, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}
	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cols := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cols = append(cols, row.Col(j))
		}
		rows = append(rows, cols)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}
