package esmond

import (
	"fmt"
	"strings"
)

// URL names of the summary types, keyed by their JSON names.
var summaryURLNames = map[string]string{
	"base":        "base",
	"aggregation": "aggregations",
	"statistics":  "statistics",
	"average":     "averages",
}

// SummaryTypeFromURL maps a URL summary-type segment to its JSON name.
func SummaryTypeFromURL(s string) (string, bool) {
	for json, url := range summaryURLNames {
		if url == s {
			return json, true
		}
	}
	return "", false
}

// SummaryTypeToURL maps a JSON summary-type name to its URL segment.
func SummaryTypeToURL(s string) string {
	if u, ok := summaryURLNames[s]; ok {
		return u
	}
	return s
}

// URIBuilder builds resource identifiers below a base path.
type URIBuilder struct {
	Base string
}

// Metadata returns the URI of a metadata record.
func (b URIBuilder) Metadata(key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(b.Base, "/"), key)
}

// EventType returns the base URI of an event type of a record.
func (b URIBuilder) EventType(key, eventType string) string {
	return b.Summary(key, eventType, "base", 0)
}

// Summary returns the URI of one summary of an event type.
func (b URIBuilder) Summary(key, eventType, summaryType string, window int) string {
	return fmt.Sprintf("%s/%s/%s/%d", b.Metadata(key), eventType, SummaryTypeToURL(summaryType), window)
}
