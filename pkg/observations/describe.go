package observations

import (
	"fmt"
	"strconv"
	"strings"
)

// TranslateFunc resolves a translation key for a locale. It returns the key
// itself when nothing matches.
type TranslateFunc func(key, locale string) string

// maxDepth bounds the walk; stored records are far shallower.
const maxDepth = 32

var bookkeepingKeys = map[string]bool{
	"id":          true,
	"_id":         true,
	"submitterId": true,
	"createdAt":   true,
	"updatedAt":   true,
	"__v":         true,
}

// ResolveDescriptions walks doc and, next to every "code" it finds, sets a
// "description" translated from "models:<entity>.<path>.<code>". The path is
// the chain of keys leading to the object with array indices dropped and any
// "instrument" segment removed, so measures.ph.instrument.type resolves as
// measures.ph.type. doc is modified in place.
func ResolveDescriptions(doc map[string]any, entity, locale string, translate TranslateFunc) {
	r := resolver{entity: entity, locale: locale, translate: translate}
	r.walk(doc, nil, 0)
}

type resolver struct {
	entity    string
	locale    string
	translate TranslateFunc
}

func (r resolver) walk(v any, path []string, depth int) {
	if depth > maxDepth {
		return
	}
	switch t := v.(type) {
	case map[string]any:
		if code, ok := codeString(t["code"]); ok && len(path) > 0 {
			key := fmt.Sprintf("models:%s.%s.%s", r.entity, taxonomyPath(path), code)
			t["description"] = r.translate(key, r.locale)
		}
		for k, e := range t {
			if bookkeepingKeys[k] || k == "code" || k == "description" {
				continue
			}
			// full slice expression so siblings never share a backing array
			r.walk(e, append(path[:len(path):len(path)], k), depth+1)
		}
	case []any:
		for _, e := range t {
			r.walk(e, path, depth+1)
		}
	}
}

func codeString(v any) (string, bool) {
	switch c := v.(type) {
	case int:
		return strconv.Itoa(c), true
	case int32:
		return strconv.FormatInt(int64(c), 10), true
	case int64:
		return strconv.FormatInt(c, 10), true
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64), true
	case string:
		return c, c != ""
	}
	return "", false
}

func taxonomyPath(path []string) string {
	kept := make([]string, 0, len(path))
	for _, s := range path {
		if s != "instrument" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ".")
}
