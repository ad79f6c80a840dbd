package configutil

import (
	"fmt"
	"sort"
	"strings"
)

// Schema lists the keys a vendor settings block may carry.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SchemaError describes every problem found in one settings block so a
// misconfigured vendor can be fixed in a single pass.
type SchemaError struct {
	Missing []string
	// Unset holds required keys whose value is a ${VAR} reference that the
	// environment did not provide.
	Unset   []string
	Unknown []string
	// Suggest maps an unknown key to the closest allowed key.
	Suggest map[string]string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unset) > 0 {
		parts = append(parts, "env not set for: "+strings.Join(e.Unset, ", "))
	}
	if len(e.Unknown) > 0 {
		names := make([]string, 0, len(e.Unknown))
		for _, k := range e.Unknown {
			if s, ok := e.Suggest[k]; ok {
				names = append(names, fmt.Sprintf("%s (did you mean %s?)", k, s))
				continue
			}
			names = append(names, k)
		}
		parts = append(parts, "unknown: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}

// ValidateSettings checks a settings map against schema. Keys match
// regardless of case, underscores and hyphens.
func ValidateSettings(input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	allowed := make(map[string]string, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
		allowed[normalizeKey(k)] = k
	}
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = k
	}

	serr := &SchemaError{Suggest: map[string]string{}}
	seen := make(map[string]bool, len(input))
	for k, v := range input {
		nk := normalizeKey(k)
		seen[nk] = true
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			serr.Unknown = append(serr.Unknown, k)
			if s := closestKey(nk, allowed); s != "" {
				serr.Suggest[k] = s
			}
		}
		reqKey, ok := required[nk]
		if !ok {
			continue
		}
		switch {
		case isUnexpanded(v):
			serr.Unset = append(serr.Unset, reqKey)
		case isEmptyValue(v):
			serr.Missing = append(serr.Missing, reqKey)
		}
	}
	for nk, reqKey := range required {
		if !seen[nk] {
			serr.Missing = append(serr.Missing, reqKey)
		}
	}

	if len(serr.Missing) == 0 && len(serr.Unset) == 0 && len(serr.Unknown) == 0 {
		return nil
	}
	sort.Strings(serr.Missing)
	sort.Strings(serr.Unset)
	sort.Strings(serr.Unknown)
	return serr
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

func isUnexpanded(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}

// closestKey returns the allowed key within two edits of key, if any.
func closestKey(key string, allowed map[string]string) string {
	best, bestDist := "", 3
	names := make([]string, 0, len(allowed))
	for nk := range allowed {
		names = append(names, nk)
	}
	sort.Strings(names)
	for _, nk := range names {
		if d := editDistance(key, nk); d < bestDist {
			best, bestDist = allowed[nk], d
		}
	}
	return best
}

func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
