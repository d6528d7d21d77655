package params

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// tagPairRE matches <key>value</key> pairs. RE2 has no backreferences, so
// the closing tag is checked against the opening tag in code.
var tagPairRE = regexp.MustCompile(`<([A-Za-z0-9_]+)>(.*?)</([A-Za-z0-9_]+)>`)

// ParseDelimited parses a free-form parameter blob into a mapping. Three
// strategies are tried in order: a JSON object/array literal, angle-bracket
// tag pairs, and brace-stripped comma-separated key/value pairs split at the
// first '=' or ':'. Lines matching no delimiter are skipped; the function
// never fails, returning nil when nothing parses.
func ParseDelimited(raw string) Params {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		if p := parseJSONLiteral(s); len(p) > 0 {
			return p
		}
	}

	if matches := tagPairRE.FindAllStringSubmatch(s, -1); len(matches) > 0 {
		p := Params{}
		for _, m := range matches {
			if m[1] != m[3] {
				continue
			}
			p[m[1]] = Coerce(m[2])
		}
		if len(p) > 0 {
			return p
		}
	}

	p := Params{}
	for part := range strings.SplitSeq(stripBraces(s), ",") {
		key, val, ok := splitKV(part)
		if !ok {
			continue
		}
		p[key] = Coerce(val)
	}
	if len(p) == 0 {
		return nil
	}
	return p
}

// parseJSONLiteral decodes a JSON object, or an array of objects merged in
// order, coercing string values. Invalid JSON falls through to the other
// strategies by returning nil.
func parseJSONLiteral(s string) Params {
	merge := func(dst Params, src map[string]any) {
		for k, v := range src {
			if str, ok := v.(string); ok {
				dst[k] = Coerce(str)
			} else {
				dst[k] = v
			}
		}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		p := make(Params, len(obj))
		merge(p, obj)
		return p
	}

	var arr []map[string]any
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		p := Params{}
		for _, obj := range arr {
			merge(p, obj)
		}
		return p
	}
	return nil
}

// splitKV splits a "key=value" or "key: value" fragment at the first
// delimiter. Fragments without one are reported as unparseable.
func splitKV(part string) (key, val string, ok bool) {
	idx := strings.Index(part, "=")
	if idx < 0 {
		idx = strings.Index(part, ":")
	}
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(part[:idx])
	val = strings.TrimSpace(part[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, val, true
}

// stripBraces removes one layer of enclosing {} or [] if present.
func stripBraces(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '{' && last == '}') || (first == '[' && last == ']') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

var (
	// unitSuffixRE strips a trailing mass or energy unit before the numeric
	// parse, so "480 kcal" and "30g" coerce to numbers.
	unitSuffixRE = regexp.MustCompile(`(?i)\s*(kcal|kj|calories|cals|cal|grams|gram|mg|kg|g|oz|lbs|lb)\.?\s*$`)
	numberRE     = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// Coerce converts a raw string to an int64, float64, or trimmed string.
// Enclosing braces, thousands separators, and unit suffixes are stripped
// before the numeric parse. Coercion is total: anything non-numeric is
// returned as the trimmed original.
func Coerce(raw string) any {
	s := strings.TrimSpace(stripBraces(raw))
	if s == "" {
		return ""
	}

	candidate := unitSuffixRE.ReplaceAllString(s, "")
	candidate = strings.TrimSpace(strings.ReplaceAll(candidate, ",", ""))
	if !numberRE.MatchString(candidate) {
		return s
	}
	if !strings.Contains(candidate, ".") {
		if n, err := strconv.ParseInt(candidate, 10, 64); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(candidate, 64); err == nil {
		return f
	}
	return s
}

// formatScalar renders a coerced value back to text.
func formatScalar(v any) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}
