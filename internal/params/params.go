// Package params recovers a canonical parameter mapping from the several
// incompatible payload shapes the agent runtime delivers.
//
// Normalization is total: no shape, malformed JSON, or unparseable text ever
// produces an error — it degrades to an empty mapping and the missing-field
// validation happens downstream where it can be reported meaningfully.
package params

import (
	"encoding/json"
	"strings"

	"github.com/kcalhq/kcal/internal/model"
)

// Params is the canonical string-keyed parameter mapping. Values are int64,
// float64, or string after coercion; direct mappings pass through as decoded.
type Params map[string]any

// Normalize extracts parameters from an invocation event. Shapes are tried
// in fixed precedence order and exactly one is consulted: the first that
// yields a non-empty mapping wins.
//
//  1. direct name→value object
//  2. list of entries: first entry's delimited value string, else its nested
//     properties entry named "parameters"
//  3. request body JSON content: properties entry named "parameters", else an
//     already-decoded parameters object
//  4. the raw free-text input field, as a last resort
func Normalize(ev model.InvocationEvent) Params {
	if len(ev.Parameters) > 0 {
		var direct map[string]any
		if err := json.Unmarshal(ev.Parameters, &direct); err == nil && len(direct) > 0 {
			// Already a typed mapping: pass through verbatim.
			return Params(direct)
		}
		var entries []model.NamedProperty
		if err := json.Unmarshal(ev.Parameters, &entries); err == nil && len(entries) > 0 {
			if p := fromEntries(entries); len(p) > 0 {
				return p
			}
		}
	}
	if ev.RequestBody != nil {
		if p := fromRequestBody(*ev.RequestBody); len(p) > 0 {
			return p
		}
	}
	if p := ParseDelimited(ev.InputText); len(p) > 0 {
		return p
	}
	return Params{}
}

// fromEntries handles the list-wrapped shapes: the first entry either carries
// the whole parameter blob in its value string, or nests a properties list
// whose "parameters" entry does.
func fromEntries(entries []model.NamedProperty) Params {
	first := entries[0]
	if first.Value != "" {
		if p := ParseDelimited(first.Value); len(p) > 0 {
			return p
		}
	}
	for _, prop := range first.Properties {
		if prop.Name == "parameters" && prop.Value != "" {
			if p := ParseDelimited(prop.Value); len(p) > 0 {
				return p
			}
		}
	}
	return nil
}

func fromRequestBody(rb model.RequestBody) Params {
	for mediaType, content := range rb.Content {
		if !strings.Contains(strings.ToLower(mediaType), "json") {
			continue
		}
		for _, prop := range content.Properties {
			if prop.Name == "parameters" && prop.Value != "" {
				if p := ParseDelimited(prop.Value); len(p) > 0 {
					return p
				}
			}
		}
		if len(content.Parameters) > 0 {
			p := make(Params, len(content.Parameters))
			for k, v := range content.Parameters {
				if s, ok := v.(string); ok {
					p[k] = Coerce(s)
				} else {
					p[k] = v
				}
			}
			return p
		}
	}
	return nil
}

// String returns the named parameter rendered as a trimmed string,
// or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	default:
		return strings.TrimSpace(formatScalar(v))
	}
}

// Float returns the named parameter as a float64. Numeric strings are
// coerced; the second return is false when the parameter is absent or
// non-numeric.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Int64 returns the named parameter as an int64, truncating floats.
func (p Params) Int64(key string) (int64, bool) {
	f, ok := p.Float(key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Has reports whether the named parameter is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		switch c := Coerce(n).(type) {
		case int64:
			return float64(c), true
		case float64:
			return c, true
		}
	}
	return 0, false
}
