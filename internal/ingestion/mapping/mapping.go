// Package mapping turns a user-supplied column mapping, in either
// header→role or role→header orientation, into one canonical ordered list.
package mapping

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

type Role string

const (
	RoleDate        Role = "date"
	RoleRevenue     Role = "revenue"
	RoleCost        Role = "cost"
	RoleLaborHours  Role = "labor_hours"
	RoleAttendance  Role = "attendance"
	RoleUtilization Role = "utilization"
	RoleDimension   Role = "dimension"
	RoleExpected    Role = "expected"
)

// Roles is every role a header can carry.
var Roles = []Role{RoleDate, RoleRevenue, RoleCost, RoleLaborHours, RoleAttendance, RoleUtilization, RoleDimension, RoleExpected}

// orientationRoles decides whether a raw object is header→role. utilization is
// absent: a mapping whose only values are "utilization" is read as role→header.
var orientationRoles = map[Role]struct{}{
	RoleDate: {}, RoleRevenue: {}, RoleExpected: {}, RoleDimension: {},
	RoleCost: {}, RoleLaborHours: {}, RoleAttendance: {},
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

type Assignment struct {
	Header string `json:"header"`
	Role   Role   `json:"role"`
}

// Mapping is ordered; single-pick lookups take the first matching header.
type Mapping []Assignment

// Pair is one key/value of the raw mapping object in source order.
type Pair struct {
	Key   string
	Value any
}

// Parse decodes a raw JSON mapping object preserving key order and normalizes it.
// Anything that is not a JSON object yields an empty mapping.
func Parse(raw []byte) Mapping {
	pairs, ok := decodePairs(raw)
	if !ok {
		return Mapping{}
	}
	return Normalize(pairs)
}

// FromMap normalizes an already-decoded object. Go maps have no order, so keys are sorted.
func FromMap(raw map[string]any) Mapping {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, Pair{Key: k, Value: raw[k]})
	}
	return Normalize(pairs)
}

// Normalize detects orientation. The pairs read as header→role when some value
// is exactly a role name and no more keys than values name a role; otherwise
// every key that names a role is inverted. Pairs that fit neither reading are
// dropped.
func Normalize(pairs []Pair) Mapping {
	out := Mapping{}
	if len(pairs) == 0 {
		return out
	}
	if headerToRole(pairs) {
		for _, p := range pairs {
			s, ok := p.Value.(string)
			if !ok {
				continue
			}
			role, ok := ParseRole(s)
			header := strings.TrimSpace(p.Key)
			if !ok || header == "" {
				continue
			}
			out = append(out, Assignment{Header: header, Role: role})
		}
		return out
	}
	for _, p := range pairs {
		role, ok := ParseRole(p.Key)
		if !ok {
			continue
		}
		for _, header := range headerValues(p.Value) {
			out = append(out, Assignment{Header: header, Role: role})
		}
	}
	return out
}

// headerToRole compares role names case-sensitively so a header that merely
// spells a role ("Date") does not flip a role→header object.
func headerToRole(pairs []Pair) bool {
	values, keys := 0, 0
	for _, p := range pairs {
		if s, ok := p.Value.(string); ok {
			if _, ok := orientationRoles[Role(strings.TrimSpace(s))]; ok {
				values++
			}
		}
		if _, ok := exactRole(p.Key); ok && len(headerValues(p.Value)) > 0 {
			keys++
		}
	}
	return values > 0 && values >= keys
}

func exactRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(s))
	for _, known := range Roles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// headerValues accepts a single header or a list of headers for one role.
func headerValues(v any) []string {
	switch t := v.(type) {
	case string:
		if h := strings.TrimSpace(t); h != "" {
			return []string{h}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

// Header returns the first header mapped to role.
func (m Mapping) Header(role Role) (string, bool) {
	for _, a := range m {
		if a.Role == role {
			return a.Header, true
		}
	}
	return "", false
}

func (m Mapping) Headers(role Role) []string {
	var out []string
	for _, a := range m {
		if a.Role == role {
			out = append(out, a.Header)
		}
	}
	return out
}

func (m Mapping) Count(role Role) int {
	n := 0
	for _, a := range m {
		if a.Role == role {
			n++
		}
	}
	return n
}

// OrderBy stably sorts assignments by the position of their header in headers.
// Headers not present keep their relative order after the known ones.
func (m Mapping) OrderBy(headers []string) Mapping {
	if len(m) < 2 || len(headers) == 0 {
		return m
	}
	pos := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, ok := pos[h]; !ok {
			pos[h] = i
		}
	}
	out := make(Mapping, len(m))
	copy(out, m)
	sort.SliceStable(out, func(i, j int) bool {
		pi, iok := pos[out[i].Header]
		pj, jok := pos[out[j].Header]
		switch {
		case iok && jok:
			return pi < pj
		case iok:
			return true
		default:
			return false
		}
	})
	return out
}

// JSON renders the canonical header→role form. Duplicate headers keep their first role.
func (m Mapping) JSON() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := map[string]struct{}{}
	for _, a := range m {
		if _, ok := seen[a.Header]; ok {
			continue
		}
		seen[a.Header] = struct{}{}
		if len(seen) > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(a.Header)
		v, _ := json.Marshal(string(a.Role))
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// decodePairs walks a JSON object token by token so key order survives.
func decodePairs(raw []byte) ([]Pair, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}
	var pairs []Pair
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := kt.(string)
		if !ok {
			return nil, false
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		pairs = append(pairs, Pair{Key: key, Value: v})
	}
	return pairs, true
}
