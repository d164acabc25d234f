// Package summaries is the registry of summaries available per event type.
package summaries

import (
	"sort"

	"github.com/perfsonar/elmond/internal/model"
)

// Summary types.
const (
	Base        = "base"
	Statistics  = "statistics"
	Aggregation = "aggregation"
	Average     = "average"
)

// Standard rollup windows in seconds.
const (
	Window5m = 300
	Window1h = 3600
	Window1d = 86400
)

// Catalog maps an event type to the summaries the archive can serve for it.
// The base summary with window 0 is implied for every event type and is
// never listed. A Catalog is read-only after construction.
type Catalog struct {
	entries map[string][]model.SummaryEntry
}

// New returns a catalog over entries. The map is copied.
func New(entries map[string][]model.SummaryEntry) *Catalog {
	c := &Catalog{entries: make(map[string][]model.SummaryEntry, len(entries))}
	for et, list := range entries {
		cp := make([]model.SummaryEntry, len(list))
		copy(cp, list)
		for i := range cp {
			if cp[i].EventType == "" {
				cp[i].EventType = et
			}
		}
		c.entries[et] = cp
	}
	return c
}

// Default returns the catalog the archive ships with.
func Default() *Catalog {
	return New(DefaultEntries())
}

// DefaultEntries returns a fresh copy of the built-in catalog.
func DefaultEntries() map[string][]model.SummaryEntry {
	aggregations := func(et string) []model.SummaryEntry {
		return windows(et, Aggregation, Window5m, Window1h, Window1d)
	}
	return map[string][]model.SummaryEntry{
		"throughput":              windows("throughput", Average, Window1d),
		"packet-loss-rate":        aggregations("packet-loss-rate"),
		"packet-count-sent":       aggregations("packet-count-sent"),
		"packet-count-lost":       aggregations("packet-count-lost"),
		"packet-count-lost-bidir": aggregations("packet-count-lost-bidir"),
		"packet-loss-rate-bidir":  aggregations("packet-loss-rate-bidir"),
		"histogram-owdelay":       windows("histogram-owdelay", Statistics, 0, Window5m, Window1h, Window1d),
		"histogram-rtt":           windows("histogram-rtt", Statistics, 0, Window5m, Window1h, Window1d),
	}
}

func windows(eventType, summaryType string, ws ...int) []model.SummaryEntry {
	out := make([]model.SummaryEntry, 0, len(ws))
	for _, w := range ws {
		out = append(out, model.SummaryEntry{
			EventType:     eventType,
			SummaryType:   summaryType,
			SummaryWindow: w,
		})
	}
	return out
}

// Summaries returns the catalog entries of eventType, or nil.
func (c *Catalog) Summaries(eventType string) []model.SummaryEntry {
	list, ok := c.entries[eventType]
	if !ok {
		return nil
	}
	cp := make([]model.SummaryEntry, len(list))
	copy(cp, list)
	return cp
}

// Supports reports whether eventType can be served with the given summary.
func (c *Catalog) Supports(eventType, summaryType string, window int) bool {
	if summaryType == Base && window == 0 {
		return true
	}
	for _, s := range c.entries[eventType] {
		if s.SummaryType == summaryType && s.SummaryWindow == window {
			return true
		}
	}
	return false
}

// Match returns, sorted, the event types that have a summary compatible with
// every non-empty argument. An empty eventType or summaryType and a nil
// window act as wildcards.
func (c *Catalog) Match(eventType, summaryType string, window *int) []string {
	var out []string
	for et, list := range c.entries {
		if eventType != "" && eventType != et {
			continue
		}
		for _, s := range list {
			if summaryType != "" && summaryType != s.SummaryType {
				continue
			}
			if window != nil && *window != s.SummaryWindow {
				continue
			}
			out = append(out, et)
			break
		}
	}
	sort.Strings(out)
	return out
}
