package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// MatchResult is the tree returned by the Excel matching endpoint.
type MatchResult struct {
	TotalRows         int                 `json:"totalRows"`
	PlatformStructure []PlatformGroupNode `json:"platformStructure"`
	ExcelColumns      []string            `json:"excelColumns"`
	GlobalStatistics  Statistics          `json:"globalStatistics,omitempty"`
}

// PlatformGroupNode is one platform group in a match result.
type PlatformGroupNode struct {
	GroupID    int64          `json:"platformGroupId"`
	GroupName  string         `json:"platformGroupName"`
	Order      int            `json:"order"`
	MatchCount int            `json:"matchCount"`
	Statistics Statistics     `json:"statistics,omitempty"`
	Children   []PlatformNode `json:"platformGroupChildren"`
}

// PlatformNode is one platform in a match result with the rows it matched.
type PlatformNode struct {
	PlatformID       int64      `json:"platformId"`
	PlatformName     string     `json:"platformName"`
	PlatformTypeName string     `json:"platformTypeName"`
	MatchCount       int        `json:"matchCount"`
	MatchedData      []Row      `json:"matchedData"`
	Statistics       Statistics `json:"statistics,omitempty"`
}

// FindGroup returns the group with the given name.
func (m *MatchResult) FindGroup(name string) (*PlatformGroupNode, bool) {
	if m == nil {
		return nil, false
	}
	for i := range m.PlatformStructure {
		if m.PlatformStructure[i].GroupName == name {
			return &m.PlatformStructure[i], true
		}
	}
	return nil, false
}

// FindPlatform returns the named platform inside the named group.
func (m *MatchResult) FindPlatform(group, platform string) (*PlatformNode, bool) {
	g, ok := m.FindGroup(group)
	if !ok {
		return nil, false
	}
	for i := range g.Children {
		if g.Children[i].PlatformName == platform {
			return &g.Children[i], true
		}
	}
	return nil, false
}

// Statistics maps a dimension (column name) to the occurrence count of each
// distinct value in that column.
type Statistics map[string]map[string]int64

// UnmarshalJSON decodes counts leniently: integers, floats and numeric
// strings are all accepted.
func (s *Statistics) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(Statistics, len(raw))
	for dim, values := range raw {
		counts := make(map[string]int64, len(values))
		for value, count := range values {
			n, err := cast.ToInt64E(count)
			if err != nil {
				return fmt.Errorf("model: statistics %s/%s: %w", dim, value, err)
			}
			counts[value] = n
		}
		out[dim] = counts
	}
	*s = out
	return nil
}

// Empty reports whether no dimension has any value.
func (s Statistics) Empty() bool {
	for _, values := range s {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

// Row is one spreadsheet row. Keys keeps the column order the backend sent
// so exports reproduce it.
type Row struct {
	Keys   []string
	Values map[string]any
}

// NewRow builds a row from alternating key, value arguments.
func NewRow(kv ...any) Row {
	r := Row{Values: make(map[string]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return r
}

// Set stores a value, appending the key if it is new.
func (r *Row) Set(key string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, exists := r.Values[key]; !exists {
		r.Keys = append(r.Keys, key)
	}
	r.Values[key] = value
}

// Get returns the value for key.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Clone returns a copy that shares no maps or slices with r.
func (r Row) Clone() Row {
	out := Row{Keys: append([]string(nil), r.Keys...), Values: make(map[string]any, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// MarshalJSON writes the row as an object in key order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.Values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, remembering key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = Row{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("model: row must be a JSON object")
	}
	out := Row{Values: make(map[string]any)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("model: row key %v is not a string", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("model: row value for %q: %w", key, err)
		}
		if n, ok := value.(json.Number); ok {
			value = numberValue(n)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
