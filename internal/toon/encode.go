// Package toon re-encodes JSON tool results into token-oriented notation, a
// compact tabular text form that large models read reliably at a fraction of
// the JSON token cost.
package toon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Encode renders a materialized JSON value as token-oriented notation.
//
// Arrays of flat objects with a uniform key set collapse into one header row
// plus one comma-delimited line per element:
//
//	[2]{id,name}:
//	  1,alpha
//	  2,beta
//
// Scalar arrays render inline, objects render as indented key/value lines,
// and nested values recurse. Strings that could be misread (embedded commas,
// colons, leading/trailing space) are JSON-quoted.
func Encode(v any) string {
	var b strings.Builder
	encodeValue(&b, v, 0)
	return strings.TrimRight(b.String(), "\n")
}

func encodeValue(b *strings.Builder, v any, depth int) {
	switch val := v.(type) {
	case []any:
		encodeArray(b, val, depth)
	case map[string]any:
		encodeObject(b, val, depth)
	default:
		b.WriteString(indent(depth))
		b.WriteString(scalar(val))
		b.WriteString("\n")
	}
}

func encodeArray(b *strings.Builder, arr []any, depth int) {
	if keys, ok := uniformKeys(arr); ok {
		b.WriteString(indent(depth))
		fmt.Fprintf(b, "[%d]{%s}:\n", len(arr), strings.Join(keys, ","))
		for _, el := range arr {
			obj := el.(map[string]any)
			row := make([]string, len(keys))
			for i, k := range keys {
				row[i] = scalar(obj[k])
			}
			b.WriteString(indent(depth + 1))
			b.WriteString(strings.Join(row, ","))
			b.WriteString("\n")
		}
		return
	}

	if allScalar(arr) {
		row := make([]string, len(arr))
		for i, el := range arr {
			row[i] = scalar(el)
		}
		b.WriteString(indent(depth))
		fmt.Fprintf(b, "[%d]: %s\n", len(arr), strings.Join(row, ","))
		return
	}

	b.WriteString(indent(depth))
	fmt.Fprintf(b, "[%d]:\n", len(arr))
	for _, el := range arr {
		encodeValue(b, el, depth+1)
	}
}

func encodeObject(b *strings.Builder, obj map[string]any, depth int) {
	for _, k := range sortedKeys(obj) {
		v := obj[k]
		switch val := v.(type) {
		case map[string]any:
			b.WriteString(indent(depth))
			b.WriteString(k)
			b.WriteString(":\n")
			encodeObject(b, val, depth+1)
		case []any:
			b.WriteString(indent(depth))
			b.WriteString(k)
			b.WriteString(" ")
			trimmed := &strings.Builder{}
			encodeArray(trimmed, val, 0)
			// splice the array header onto the key line
			body := strings.TrimPrefix(trimmed.String(), indent(0))
			b.WriteString(reindent(body, depth))
		default:
			b.WriteString(indent(depth))
			fmt.Fprintf(b, "%s: %s\n", k, scalar(val))
		}
	}
}

// uniformKeys reports whether every element is a flat object sharing one key
// set, returning the sorted keys.
func uniformKeys(arr []any) ([]string, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	var keys []string
	for i, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok || len(obj) == 0 {
			return nil, false
		}
		for _, v := range obj {
			switch v.(type) {
			case map[string]any, []any:
				return nil, false
			}
		}
		if i == 0 {
			keys = sortedKeys(obj)
			continue
		}
		if len(obj) != len(keys) {
			return nil, false
		}
		for _, k := range keys {
			if _, present := obj[k]; !present {
				return nil, false
			}
		}
	}
	return keys, true
}

func allScalar(arr []any) bool {
	for _, el := range arr {
		switch el.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// scalar renders a leaf value. Strings that would be ambiguous inside a
// comma-delimited row are JSON-quoted; everything else renders bare.
func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		if needsQuoting(val) {
			quoted, _ := json.Marshal(val)
			return string(quoted)
		}
		return val
	case float64:
		// keep integral floats free of the trailing ".0" JSON never had
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(out)
	}
}

func needsQuoting(s string) bool {
	if s == "" || s == "null" || s == "true" || s == "false" {
		return true
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	return strings.ContainsAny(s, ",:\n\"{}[]")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}

// reindent shifts a rendered block right by depth levels, leaving the first
// line in place (it continues the current key line).
func reindent(block string, depth int) string {
	lines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = indent(depth) + lines[i]
	}
	return strings.Join(lines, "\n") + "\n"
}
