package observations

import "strconv"

// NormalizeCodes returns a deep copy of tree in which every integer numeral
// string found under a "code" key, directly or inside an array there, is
// replaced by its int value. Anything else, including non-numeral strings
// under "code", is copied unchanged.
func NormalizeCodes(tree any) any {
	return normalize(tree, false)
}

func normalize(v any, underCode bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e, k == "code")
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e, underCode)
		}
		return out
	case string:
		if underCode {
			if n, err := strconv.Atoi(t); err == nil {
				return n
			}
		}
		return t
	default:
		return v
	}
}

// cloneTree deep-copies maps and slices.
func cloneTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneTree(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneTree(e)
		}
		return out
	default:
		return v
	}
}
