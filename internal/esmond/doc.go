package esmond

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Lookup returns the value at a dotted path of a stored document. Both
// nested objects and literal dotted keys (as written by rollup jobs) are
// followed. A null value counts as absent.
func Lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	if doc == nil {
		return nil, false
	}
	if v, ok := doc[path]; ok {
		return v, v != nil
	}
	for i := strings.IndexByte(path, '.'); i >= 0; {
		if sub, ok := doc[path[:i]].(map[string]interface{}); ok {
			if v, ok := Lookup(sub, path[i+1:]); ok {
				return v, true
			}
		}
		next := strings.IndexByte(path[i+1:], '.')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, false
}

// LookupMap returns the object at path.
func LookupMap(doc map[string]interface{}, path string) (map[string]interface{}, bool) {
	v, ok := Lookup(doc, path)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// LookupString returns the non-empty string at path.
func LookupString(doc map[string]interface{}, path string) (string, bool) {
	v, ok := Lookup(doc, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Number converts a decoded JSON value into a float64.
func Number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Timestamp converts a stored time into epoch seconds. Strings are parsed
// in any common layout (zone-less strings as UTC); numbers are epoch
// milliseconds, the encoding of date fields in rollup documents.
func Timestamp(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := dateparse.ParseIn(t, time.UTC)
		if err != nil {
			return 0, false
		}
		return parsed.Unix(), true
	default:
		ms, ok := Number(v)
		if !ok {
			return 0, false
		}
		return int64(ms) / 1000, true
	}
}
