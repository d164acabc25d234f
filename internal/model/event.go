package model

// Record is one normalized metadata object as returned to esmond clients.
// Type-specific and reference fields are flattened into arbitrary keys, so
// the record is kept as a map and serialized with sorted keys.
type Record map[string]interface{}

// SummaryEntry describes one summary available for an event type.
type SummaryEntry struct {
	EventType     string `json:"event-type"`
	SummaryType   string `json:"summary-type"`
	SummaryWindow int    `json:"summary-window"`
	URI           string `json:"uri,omitempty"`
}

// EventTypeEntry is one element of a metadata record's event-types list.
type EventTypeEntry struct {
	EventType   string         `json:"event-type"`
	BaseURI     string         `json:"base-uri,omitempty"`
	TimeUpdated *int64         `json:"time-updated,omitempty"`
	Summaries   []SummaryEntry `json:"summaries,omitempty"`
}

// DataPoint is a single time series value. Val is a number, a histogram
// (map[string]int64), a statistics object, a list of subintervals, a list
// of per-stream values or a list of hops depending on the event type.
type DataPoint struct {
	TS  int64       `json:"ts"`
	Val interface{} `json:"val"`
}

// Subinterval is one slice of a single test run.
type Subinterval struct {
	Start    interface{} `json:"start"`
	Duration float64     `json:"duration"`
	Val      interface{} `json:"val"`
}

// Statistics holds the summary of a latency or rtt histogram.
type Statistics struct {
	Maximum           interface{} `json:"maximum"`
	Mean              interface{} `json:"mean"`
	Median            interface{} `json:"median"`
	Minimum           interface{} `json:"minimum"`
	Mode              interface{} `json:"mode"`
	Percentile25      interface{} `json:"percentile-25"`
	Percentile75      interface{} `json:"percentile-75"`
	Percentile95      interface{} `json:"percentile-95"`
	StandardDeviation interface{} `json:"standard-deviation"`
	Variance          interface{} `json:"variance"`
}

// Hop is one entry of a reconstructed packet trace.
type Hop struct {
	TTL          int         `json:"ttl"`
	Query        int         `json:"query"`
	Success      int         `json:"success"`
	ErrorMessage string      `json:"error-message,omitempty"`
	IP           string      `json:"ip,omitempty"`
	Hostname     string      `json:"hostname,omitempty"`
	AS           interface{} `json:"as,omitempty"`
	RTT          *float64    `json:"rtt,omitempty"`
	MTU          interface{} `json:"mtu,omitempty"`
}
