// Structured values (§3.4): the `text`/`data` dual-view wrapper results
// carry through pipelines and field access. Field/slice access follows
// §4.3's Python-style slicing and optional-suffix null semantics.
package value

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StructuredKind enumerates the wrapper's source format.
type StructuredKind string

const (
	StructuredJSON StructuredKind = "json"
	StructuredXML  StructuredKind = "xml"
	StructuredCSV  StructuredKind = "csv"
	StructuredText StructuredKind = "text"
)

// Structured wraps a result so both its canonical string form (Text) and
// its parsed form (Data) survive through pipelines and field access.
type Structured struct {
	Kind     StructuredKind
	Data     interface{} // map[string]interface{}, []interface{}, scalar
	Text     string
	Metadata map[string]interface{}
	Internal map[string]interface{}
	// PerElementMetadata holds metadata for each element when Data is a
	// []interface{} produced by a multi-file load (§3.4: "Arrays of
	// structured values may expose per-element metadata").
	PerElementMetadata []map[string]interface{}
}

// NewText wraps a plain string result with Kind=text, Data==Text.
func NewText(s string) *Structured {
	return &Structured{Kind: StructuredText, Data: s, Text: s}
}

// NewJSON parses raw JSON text into a Structured wrapper.
func NewJSON(raw string) (*Structured, error) {
	var data interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("structured-parse: invalid json: %w", err)
	}
	return &Structured{Kind: StructuredJSON, Data: data, Text: raw}, nil
}

// String implements fmt.Stringer using the canonical Text form.
func (s *Structured) String() string {
	if s == nil {
		return ""
	}
	return s.Text
}

// Accessor mirrors ast.FieldAccessor but operates over resolved
// values instead of AST nodes (used by internal/evaluator).
type Accessor struct {
	DotName    string
	BracketIdx *int
	SliceStart *int
	SliceEnd   *int
	StringKey  *string
	Optional   bool
}

// Access walks a chain of Accessors over root, implementing dot/bracket/
// string-index/slice access with Python-style negative indices and
// optional-suffix null semantics (§4.3).
func Access(root interface{}, chain []Accessor) (interface{}, error) {
	cur := root
	for _, a := range chain {
		next, err := accessOne(cur, a)
		if err != nil {
			if a.Optional {
				return nil, nil
			}
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func unwrapStructured(v interface{}) interface{} {
	if s, ok := v.(*Structured); ok {
		return s.Data
	}
	return v
}

func accessOne(v interface{}, a Accessor) (interface{}, error) {
	v = unwrapStructured(v)

	switch {
	case a.DotName != "":
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field-access: cannot access field %q on non-object", a.DotName)
		}
		val, ok := m[a.DotName]
		if !ok {
			if a.Optional {
				return nil, nil
			}
			return nil, fmt.Errorf("field-access: field %q not found", a.DotName)
		}
		return val, nil

	case a.StringKey != nil:
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field-access: cannot index %q on non-object", *a.StringKey)
		}
		val, ok := m[*a.StringKey]
		if !ok {
			if a.Optional {
				return nil, nil
			}
			return nil, fmt.Errorf("field-access: key %q not found", *a.StringKey)
		}
		return val, nil

	case a.BracketIdx != nil:
		arr, ok := toSlice(v)
		if !ok {
			return nil, fmt.Errorf("field-access: cannot index non-array")
		}
		idx := normalizeIndex(*a.BracketIdx, len(arr))
		if idx < 0 || idx >= len(arr) {
			if a.Optional {
				return nil, nil
			}
			return nil, fmt.Errorf("field-access: index %d out of range (len %d)", *a.BracketIdx, len(arr))
		}
		return arr[idx], nil

	case a.SliceStart != nil || a.SliceEnd != nil:
		arr, ok := toSlice(v)
		if !ok {
			return nil, fmt.Errorf("field-access: cannot slice non-array")
		}
		n := len(arr)
		start, end := 0, n
		if a.SliceStart != nil {
			start = clampIndex(normalizeIndex(*a.SliceStart, n), n)
		}
		if a.SliceEnd != nil {
			end = clampIndex(normalizeIndex(*a.SliceEnd, n), n)
		}
		if start > end {
			start = end
		}
		return arr[start:end], nil
	}

	return nil, fmt.Errorf("field-access: empty accessor")
}

func toSlice(v interface{}) ([]interface{}, bool) {
	arr, ok := v.([]interface{})
	return arr, ok
}

// normalizeIndex applies Python-style negative indexing: -1 is the last element.
func normalizeIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// ParseAccessorPath parses a dotted/bracketed path string like
// `foo.bar[2].baz?` into an Accessor chain, for contexts (like sign/
// verify identifiers) that reference fields by string rather than by
// parsed ast.FieldAccessor.
func ParseAccessorPath(path string) ([]Accessor, error) {
	var out []Accessor
	i := 0
	for i < len(path) {
		switch {
		case path[i] == '.':
			i++
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			name := path[i:j]
			optional := strings.HasSuffix(name, "?")
			name = strings.TrimSuffix(name, "?")
			out = append(out, Accessor{DotName: name, Optional: optional})
			i = j
		case path[i] == '[':
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				return nil, fmt.Errorf("field-access: unterminated bracket in %q", path)
			}
			inner := path[i+1 : i+j]
			i += j + 1
			optional := i < len(path) && path[i] == '?'
			if optional {
				i++
			}
			if strings.Contains(inner, ":") {
				parts := strings.SplitN(inner, ":", 2)
				var start, end *int
				if parts[0] != "" {
					v, err := strconv.Atoi(parts[0])
					if err != nil {
						return nil, fmt.Errorf("field-access: bad slice start %q", parts[0])
					}
					start = &v
				}
				if parts[1] != "" {
					v, err := strconv.Atoi(parts[1])
					if err != nil {
						return nil, fmt.Errorf("field-access: bad slice end %q", parts[1])
					}
					end = &v
				}
				out = append(out, Accessor{SliceStart: start, SliceEnd: end, Optional: optional})
			} else if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') {
				key := inner[1 : len(inner)-1]
				out = append(out, Accessor{StringKey: &key, Optional: optional})
			} else {
				v, err := strconv.Atoi(inner)
				if err != nil {
					return nil, fmt.Errorf("field-access: bad index %q", inner)
				}
				out = append(out, Accessor{BracketIdx: &v, Optional: optional})
			}
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			name := path[i:j]
			optional := strings.HasSuffix(name, "?")
			name = strings.TrimSuffix(name, "?")
			out = append(out, Accessor{DotName: name, Optional: optional})
			i = j
		}
	}
	return out, nil
}
