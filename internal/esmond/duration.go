package esmond

import (
	"github.com/sosodev/duration"
)

// ISO8601ToSeconds converts an ISO 8601 duration such as "PT1M30S" into
// seconds. Repeating, negative and year or month durations have no fixed
// length and are rejected.
func ISO8601ToSeconds(s string) (float64, bool) {
	// the parser tolerates a dangling number or designator ("P", "P1DT")
	if s == "" {
		return 0, false
	}
	switch s[len(s)-1] {
	case 'W', 'D', 'H', 'M', 'S', 'Y':
	default:
		return 0, false
	}

	d, err := duration.Parse(s)
	if err != nil || d.Negative || d.Years != 0 || d.Months != 0 {
		return 0, false
	}
	return d.Weeks*7*86400 + d.Days*86400 + d.Hours*3600 + d.Minutes*60 + d.Seconds, true
}
