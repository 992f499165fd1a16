package kuma

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The Uptime Kuma API is loose about scalar types: numbers arrive as strings,
// booleans as 0/1, lists as JSON-encoded strings. The wrapper types below
// accept all of those spellings on decode and emit the canonical form on
// encode, so entities synthesized from labels and entities read back from the
// server compare cleanly.

// Int decodes from a JSON number or a numeric string.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*i = Int(v)
		return nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("cannot parse %q as int: %w", v, err)
		}
		*i = Int(n)
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("cannot parse %T as int", raw)
	}
}

// Bool decodes from a JSON bool, a "true"/"false" string, or a number where
// any non-zero value is true.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*b = Bool(v)
		return nil
	case string:
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			return fmt.Errorf("cannot parse %q as bool: %w", v, err)
		}
		*b = Bool(parsed)
		return nil
	case float64:
		*b = v != 0
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("cannot parse %T as bool", raw)
	}
}

// StringList decodes from a JSON array, a JSON-encoded array string, or a
// bare scalar (wrapped into a single-element list).
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		*l = out
		return nil
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var nested []any
			if err := json.Unmarshal([]byte(trimmed), &nested); err == nil {
				out := make([]string, 0, len(nested))
				for _, item := range nested {
					out = append(out, stringify(item))
				}
				*l = out
				return nil
			}
		}
		*l = []string{v}
		return nil
	case float64:
		*l = []string{stringify(v)}
		return nil
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("cannot parse %T as string list", raw)
	}
}

// BoolMap decodes from a JSON object or a JSON-encoded object string. Used
// for notificationIDList, which maps notification id strings to true.
type BoolMap map[string]bool

func (m *BoolMap) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]bool, len(v))
		for key, value := range v {
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("cannot parse %T as bool in map", value)
			}
			out[key] = b
		}
		*m = out
		return nil
	case string:
		var nested map[string]bool
		if err := json.Unmarshal([]byte(v), &nested); err != nil {
			return fmt.Errorf("cannot parse %q as bool map: %w", v, err)
		}
		*m = nested
		return nil
	case nil:
		*m = nil
		return nil
	default:
		return fmt.Errorf("cannot parse %T as bool map", raw)
	}
}

// JSONObject decodes from a JSON object or a JSON-encoded object string.
// Used for notification provider config blobs.
type JSONObject map[string]any

func (o *JSONObject) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case map[string]any:
		*o = v
		return nil
	case string:
		var nested map[string]any
		if err := json.Unmarshal([]byte(v), &nested); err != nil {
			return fmt.Errorf("cannot parse %q as object: %w", v, err)
		}
		*o = nested
		return nil
	case nil:
		*o = nil
		return nil
	default:
		return fmt.Errorf("cannot parse %T as object", raw)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

// ExpandStatusCodes expands an accepted_statuscodes list into the full
// integer set, interpreting "a-b" entries as inclusive ranges. Entries that
// parse as neither a number nor a range are ignored.
func ExpandStatusCodes(codes []string) map[int]struct{} {
	out := make(map[int]struct{})
	for _, code := range codes {
		if lo, hi, ok := strings.Cut(code, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil || end < start {
				continue
			}
			for n := start; n <= end; n++ {
				out[n] = struct{}{}
			}
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(code)); err == nil {
			out[n] = struct{}{}
		}
	}
	return out
}

func intPtr(v Int) *Int    { return &v }
func boolPtr(v Bool) *Bool { return &v }
func strPtr(v string) *string {
	return &v
}
