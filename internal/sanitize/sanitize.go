// Package sanitize strips markup from request input before validation.
// The policy allows zero tags and zero attributes, so every string leaf
// comes out as plain text.
package sanitize

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Nesting bound for attacker-supplied bodies; branches below it are dropped.
const maxDepth = 64

func String(s string) string {
	return policy.Sanitize(s)
}

// Value sanitizes every string leaf of a decoded JSON value.
// Non-string scalars pass through unchanged.
func Value(v any) any {
	return walk(v, 0)
}

func Map(m map[string]any) map[string]any {
	out, _ := walk(m, 0).(map[string]any)
	return out
}

// Values sanitizes query or form parameters in place and returns them.
func Values(vals url.Values) url.Values {
	for k, list := range vals {
		for i, v := range list {
			list[i] = String(v)
		}
		vals[k] = list
	}
	return vals
}

func walk(v any, depth int) any {
	if depth >= maxDepth {
		return nil
	}
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		for k, child := range t {
			t[k] = walk(child, depth+1)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = walk(child, depth+1)
		}
		return t
	default:
		return v
	}
}
