// Package record holds the in-memory shape of one spreadsheet row: an ordered
// list of header/value pairs plus the canonical date captured at ingestion.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Field struct {
	Key   string
	Value any
}

type Row struct {
	// ResolvedDate is YYYY-MM-DD or empty when no date was captured.
	ResolvedDate string
	Fields       []Field
}

// FromMap orders m by headers first; keys missing from headers follow in sorted order.
func FromMap(m map[string]any, headers []string) Row {
	out := Row{Fields: make([]Field, 0, len(m))}
	seen := make(map[string]struct{}, len(m))
	for _, h := range headers {
		if v, ok := m[h]; ok {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			out.Fields = append(out.Fields, Field{Key: h, Value: v})
		}
	}
	if len(seen) == len(m) {
		return out
	}
	rest := make([]string, 0, len(m)-len(seen))
	for k := range m {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out.Fields = append(out.Fields, Field{Key: k, Value: m[k]})
	}
	return out
}

// Decode reads a stored JSON object. Numbers stay json.Number so money keeps its digits.
func Decode(raw []byte, headers []string) (Row, error) {
	m := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return Row{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return Row{}, fmt.Errorf("decode row fields: %w", err)
	}
	return FromMap(m, headers), nil
}

// Get is an exact key lookup; the first field wins on duplicates.
func (r Row) Get(key string) (any, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// GetFold matches key case- and whitespace-insensitively.
func (r Row) GetFold(key string) (any, bool) {
	if v, ok := r.Get(key); ok {
		return v, true
	}
	want := NormalizeHeader(key)
	if want == "" {
		return nil, false
	}
	for _, f := range r.Fields {
		if NormalizeHeader(f.Key) == want {
			return f.Value, true
		}
	}
	return nil, false
}

func (r Row) Keys() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Key
	}
	return out
}

func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		if _, ok := out[f.Key]; !ok {
			out[f.Key] = f.Value
		}
	}
	return out
}

// EncodeFields writes the fields as a JSON object in column order. Duplicate
// keys keep their first value, matching Get.
func (r Row) EncodeFields() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := make(map[string]struct{}, len(r.Fields))
	for _, f := range r.Fields {
		if _, ok := seen[f.Key]; ok {
			continue
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", f.Key, err)
		}
		if len(seen) > 0 {
			buf.WriteByte(',')
		}
		seen[f.Key] = struct{}{}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NormalizeHeader lowercases and collapses whitespace, treating '_' and '-' as spaces,
// so "Week_Start", "week start" and " WEEK-START " compare equal.
func NormalizeHeader(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Text renders a cell value as a trimmed string.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func IsBlank(v any) bool { return Text(v) == "" }
