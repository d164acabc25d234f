package filters

import "github.com/perfsonar/elmond/internal/esmond"

// mappedFilters maps a client parameter to a single document path.
var mappedFilters = map[string]string{
	// standard
	"input-source":         "test.spec.source",
	"input-destination":    "test.spec.dest",
	"metadata-key":         "pscheduler.test_checksum",
	"pscheduler-test-type": "test.type",
	// type specific
	"bw-buffer-size":          "test.spec.buffer-length",
	"bw-parallel-streams":     "test.spec.parallel",
	"bw-target-bandwidth":     "test.spec.bandwidth",
	"bw-ignore-first-seconds": "test.spec.omit",
	"ip-dscp":                 "test.spec.dscp",
	"ip-fragment":             "test.spec.fragment",
	"ip-packet-flowlabel":     "test.spec.flowlabel",
	"ip-packet-padding":       "test.spec.packet-padding",
	"ip-packet-size":          "test.spec.length",
	"ip-tos":                  "test.spec.tos",
	"ip-ttl":                  "test.spec.ttl",
	"mode-flip":               "test.spec.flip",
	"mode-single-participant": "test.spec.single-participant-mode",
	"sample-bucket-width":     "test.spec.bucket-width",
	"tcp-window-size":         "test.spec.window-size",
	"tcp-dynamic-window-size": "test.spec.dynamic-window-size",
	"tcp-max-segment-size":    "test.spec.mss",
	"trace-algorithm":         "test.spec.algorithm",
	"trace-first-ttl":         "test.spec.first-ttl",
	"trace-max-ttl":           "test.spec.hops",
	"trace-num-queries":       "test.spec.queries",
}

// multiFilters maps a parameter to every path older and newer documents
// have used for the same concept.
var multiFilters = map[string][]string{
	"sample-size":         {"test.spec.packet-count", "test.spec.count"},
	"time-probe-interval": {"test.spec.packet-interval", "test.spec.interval", "test.spec.sendwait"},
	"time-probe-timeout":  {"test.spec.packet-timeout", "test.spec.deadline"},
	"time-test-timeout":   {"test.spec.timeout", "test.spec.wait"},
}

// ipFilters are matched against resolved addresses of the given host.
var ipFilters = map[string]string{
	"source":            "meta.source.ip",
	"destination":       "meta.destination.ip",
	"measurement-agent": "meta.observer.ip",
}

// pointToPointTests are the test types with a source and a destination.
var pointToPointTests = []string{
	"disk-to-disk",
	"latency",
	"latencybg",
	"rtt",
	"throughput",
	"trace",
}

// anyTestEventTypes are reported by every test type.
var anyTestEventTypes = map[string]bool{
	esmond.EventTypeFailures: true,
	esmond.EventTypeRaw:      true,
	esmond.EventTypeRunHref:  true,
}

// eventTestTypes lists the test types able to produce each event type.
var eventTestTypes = map[string][]string{
	"histogram-owdelay":                       {"latency", "latencybg"},
	"histogram-ttl":                           {"latency", "latencybg"},
	"histogram-ttl-reverse":                   {"rtt"},
	"histogram-rtt":                           {"rtt"},
	"packet-count-lost":                       {"latency", "latencybg", "throughput"},
	"packet-count-lost-bidir":                 {"rtt"},
	"packet-count-sent":                       {"latency", "latencybg", "throughput", "rtt"},
	"packet-duplicates":                       {"latency", "latencybg"},
	"packet-duplicates-bidir":                 {"rtt"},
	"packet-loss-rate":                        {"latency", "latencybg", "throughput"},
	"packet-loss-rate-bidir":                  {"rtt"},
	"packet-reorders":                         {"latency", "latencybg"},
	"packet-reorders-bidir":                   {"rtt"},
	"packet-retransmits":                      {"throughput"},
	"packet-retransmits-subintervals":         {"throughput"},
	"packet-trace":                            {"trace"},
	"packet-trace-multi":                      {"trace"},
	"path-mtu":                                {"trace"},
	"streams-packet-retransmits":              {"throughput"},
	"streams-packet-retransmits-subintervals": {"throughput"},
	"streams-throughput":                      {"throughput"},
	"streams-throughput-subintervals":         {"throughput"},
	"throughput":                              {"throughput", "disk-to-disk"},
	"throughput-subintervals":                 {"throughput"},
	"time-error-estimates":                    {"latency", "latencybg"},
}

// referenceRewrites restore hyphens that belong to reference key names
// after the dash to dot decoding. Applied in order.
var referenceRewrites = [][2]string{
	{"display.set", "display-set"},
	{"psconfig.created.by", "psconfig.created-by"},
	{"psconfig.created-by.user.agent", "psconfig.created-by.user-agent"},
}
