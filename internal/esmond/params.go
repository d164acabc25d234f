// Package esmond holds the small pure helpers shared by the archive
// components: parameter names, time filters, paging, durations and URIs.
package esmond

// Client-facing query parameter names.
const (
	LimitParam         = "limit"
	OffsetParam        = "offset"
	FormatParam        = "format"
	DNSMatchRuleParam  = "dns-match-rule"
	TimeParam          = "time"
	TimeStartParam     = "time-start"
	TimeEndParam       = "time-end"
	TimeRangeParam     = "time-range"
	EventTypeParam     = "event-type"
	SummaryTypeParam   = "summary-type"
	SummaryWindowParam = "summary-window"
)

// Paging limits.
const (
	DefaultResultLimit = 1000
	MaxResultLimit     = 10000
)

// DefaultBaseURI is the path prefix of every archive resource.
const DefaultBaseURI = "/esmond/perfsonar/archive"

// Event types every metadata record exposes regardless of test type.
const (
	EventTypeRunHref  = "pscheduler-run-href"
	EventTypeRaw      = "pscheduler-raw"
	EventTypeFailures = "failures"
)
