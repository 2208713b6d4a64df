package maputil

import (
	"fmt"
	"strings"
)

func String(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	raw, ok := params[key]
	if !ok || raw == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", raw))
}

// Get returns params[key], or nil when params is nil or the key is absent.
func Get(params map[string]any, key string) any {
	if params == nil {
		return nil
	}
	return params[key]
}

// Ref names a key inside one of several source maps.
type Ref struct {
	Src map[string]any
	Key string
}

// FirstRef resolves refs in order and returns the first non-nil value with
// the key it came from.
func FirstRef(refs ...Ref) (any, string) {
	for _, r := range refs {
		if v := Get(r.Src, r.Key); v != nil {
			return v, r.Key
		}
	}
	return nil, ""
}

// FirstString returns the first non-empty string value among keys.
// Values that are not strings, or that match skip, are ignored.
func FirstString(params map[string]any, skip func(string) bool, keys ...string) string {
	for _, key := range keys {
		s, ok := Get(params, key).(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || (skip != nil && skip(s)) {
			continue
		}
		return s
	}
	return ""
}
