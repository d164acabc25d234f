package model

import "net/url"

// Params is the flat, case-sensitive set of client query parameters. Only
// the first value of a repeated parameter is used.
type Params map[string]string

// ParamsFromValues converts url.Values into Params.
func ParamsFromValues(v url.Values) Params {
	p := make(Params, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			p[k] = vals[0]
		}
	}
	return p
}

// Get returns the value of key and whether it was set to a non-empty value.
func (p Params) Get(key string) (string, bool) {
	v, ok := p[key]
	return v, ok && v != ""
}

// Predicate is an opaque fragment of a backend query.
type Predicate map[string]interface{}

// SearchRequest is a single query issued against an index pattern.
type SearchRequest struct {
	Index string
	Body  map[string]interface{}
}
