package data

import "strings"

// Summary types as used in the field tables.
const (
	base        = "base"
	statistics  = "statistics"
	aggregation = "aggregation"
	average     = "average"
)

// Time and identity fields of the two document families.
const (
	rawTimeField        = "pscheduler.start_time"
	rawKeyField         = "pscheduler.test_checksum"
	rawSuccessField     = "result.succeeded"
	rollupTimeField     = "pscheduler.start_time.date_histogram.timestamp"
	rollupKeyField      = "pscheduler.test_checksum.keyword.terms.value"
	rollupIntervalField = "pscheduler.start_time.date_histogram.interval"
)

func fieldKey(eventType, summaryType string) string {
	return eventType + "/" + summaryType
}

// rawFields maps an event type and summary type to the document paths of a
// raw measurement holding its value.
var rawFields = map[string][]string{
	fieldKey("failures", base):                                {"result.error"},
	fieldKey("histogram-owdelay", base):                       {"result.latency.histogram"},
	fieldKey("histogram-owdelay", statistics):                 {"result.latency"},
	fieldKey("histogram-rtt", base):                           {"result.rtt.histogram"},
	fieldKey("histogram-rtt", statistics):                     {"result.rtt"},
	fieldKey("histogram-ttl", base):                           {"result.ttl.histogram"},
	fieldKey("histogram-ttl-reverse", base):                   {"result.ttl.histogram"},
	fieldKey("packet-count-lost", base):                       {"result.packets.lost"},
	fieldKey("packet-count-lost-bidir", base):                 {"result.packets.lost"},
	fieldKey("packet-count-sent", base):                       {"result.packets.sent"},
	fieldKey("packet-duplicates", base):                       {"result.packets.duplicated"},
	fieldKey("packet-duplicates-bidir", base):                 {"result.packets.duplicated"},
	fieldKey("packet-loss-rate", base):                        {"result.packets.loss"},
	fieldKey("packet-loss-rate-bidir", base):                  {"result.packets.loss"},
	fieldKey("packet-reorders", base):                         {"result.packets.reordered"},
	fieldKey("packet-reorders-bidir", base):                   {"result.packets.reordered"},
	fieldKey("packet-retransmits", base):                      {"result.retransmits"},
	fieldKey("packet-retransmits-subintervals", base):         {"result.intervals"},
	fieldKey("packet-trace", base):                            {"result.paths"},
	fieldKey("packet-trace-multi", base):                      {"result.paths"},
	fieldKey("path-mtu", base):                                {"result.mtu"},
	fieldKey("pscheduler-raw", base):                          {"result"},
	fieldKey("pscheduler-run-href", base):                     {"pscheduler.run_href"},
	fieldKey("streams-packet-retransmits", base):              {"result.streams"},
	fieldKey("streams-packet-retransmits-subintervals", base): {"result.intervals"},
	fieldKey("streams-throughput", base):                      {"result.streams"},
	fieldKey("streams-throughput-subintervals", base):         {"result.intervals"},
	fieldKey("throughput", base):                              {"result.throughput"},
	fieldKey("throughput-subintervals", base):                 {"result.intervals"},
	fieldKey("time-error-estimates", base):                    {"result.max_clock_error"},
}

// rollupFields is the equivalent of rawFields for rolled up documents,
// whose keys are flat dotted metric names.
var rollupFields = map[string][]string{
	fieldKey("throughput", average):                  {"result.throughput.avg"},
	fieldKey("packet-count-lost", aggregation):       {"result.packets.lost.sum.value"},
	fieldKey("packet-count-lost-bidir", aggregation): {"result.packets.lost.sum.value"},
	fieldKey("packet-count-sent", aggregation):       {"result.packets.sent.sum.value"},
	fieldKey("packet-loss-rate", aggregation):        {"result.packets.lost.sum.value", "result.packets.sent.sum.value"},
	fieldKey("packet-loss-rate-bidir", aggregation):  {"result.packets.lost.sum.value", "result.packets.sent.sum.value"},
	fieldKey("histogram-owdelay", statistics):        {"result.latency"},
	fieldKey("histogram-rtt", statistics):            {"result.rtt"},
}

// stat is one entry of a statistics object: the stored name and the name
// returned to clients.
type stat struct {
	stored string
	output string
}

var stats = []stat{
	{"max", "maximum"},
	{"mean", "mean"},
	{"median", "median"},
	{"min", "minimum"},
	{"mode", "mode"},
	{"p_25", "percentile-25"},
	{"p_75", "percentile-75"},
	{"p_95", "percentile-95"},
	{"stddev", "standard-deviation"},
	{"variance", "variance"},
}

// conversionFactors scale stored statistics into client units. Round trip
// times are stored in seconds and served in milliseconds.
var conversionFactors = map[string]float64{
	"histogram-rtt": 1000,
}

func conversionFactor(eventType string) float64 {
	if f, ok := conversionFactors[eventType]; ok {
		return f
	}
	return 1
}

// BaseEventType strips the per-stream and subinterval decorations, e.g.
// streams-throughput-subintervals becomes throughput.
func BaseEventType(eventType string) string {
	return strings.TrimSuffix(strings.TrimPrefix(eventType, "streams-"), "-subintervals")
}

// derivedField returns the key of eventType's value inside a stream or an
// interval summary object.
func derivedField(eventType string) (string, bool) {
	paths, ok := rawFields[fieldKey(BaseEventType(eventType), base)]
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(paths[0], "result."), true
}

func isHistogram(eventType string) bool {
	return strings.HasPrefix(eventType, "histogram-")
}

func isStreams(eventType string) bool {
	return strings.HasPrefix(eventType, "streams-")
}

func isSubintervals(eventType string) bool {
	return strings.HasSuffix(eventType, "-subintervals")
}

func isTrace(eventType string) bool {
	return eventType == "packet-trace" || eventType == "packet-trace-multi"
}

func isLossRate(eventType string) bool {
	return eventType == "packet-loss-rate" || eventType == "packet-loss-rate-bidir"
}
