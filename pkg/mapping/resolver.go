package mapping

import (
	"strconv"
	"strings"
)

// rootKey is where every API response keeps its payload.
const rootKey = "data"

// Resolve walks dottedPath from doc["data"] and returns the deepest value it reached.
//
// The walk is best effort: at the first segment that cannot be followed it stops
// and returns the value reached so far, so callers must check the result's type.
// Numeric segments index into sequences. JSON null counts as absent.
func Resolve(doc map[string]any, dottedPath string) any {
	current := doc[rootKey]
	if dottedPath == "" {
		return current
	}
	for _, key := range strings.Split(dottedPath, ".") {
		next, ok := step(current, key)
		if !ok {
			break
		}
		current = next
	}
	return current
}

func step(current any, key string) (any, bool) {
	switch node := current.(type) {
	case map[string]any:
		v, ok := node[key]
		if !ok || v == nil {
			return nil, false
		}
		return v, true
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(node) || node[i] == nil {
			return nil, false
		}
		return node[i], true
	}
	return nil, false
}

// lookup follows keys through nested objects only, without the best-effort fallback.
func lookup(v any, keys ...string) (any, bool) {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[k]
		if !ok || next == nil {
			return nil, false
		}
		v = next
	}
	return v, true
}

func lookupString(v any, keys ...string) (string, bool) {
	found, ok := lookup(v, keys...)
	if !ok {
		return "", false
	}
	s, ok := found.(string)
	return s, ok
}
