package metadata

import (
	"fmt"
	"strings"

	"github.com/perfsonar/elmond/internal/esmond"
	"github.com/perfsonar/elmond/internal/model"
)

// TestType is the pscheduler test type of a measurement.
type TestType string

// Test types with a dedicated field parser. Anything else is handled as
// TestOther.
const (
	TestThroughput TestType = "throughput"
	TestLatency    TestType = "latency"
	TestLatencyBG  TestType = "latencybg"
	TestRTT        TestType = "rtt"
	TestTrace      TestType = "trace"
	TestDiskToDisk TestType = "disk-to-disk"
	TestOther      TestType = "other"
)

// fieldParser is the capability set shared by every test type variant.
type fieldParser struct {
	// fieldMap maps a test spec field to its metadata name.
	fieldMap map[string]string
	// additional adds fields that need derived logic.
	additional func(testType string, spec map[string]interface{}, target model.Record)
	// eventTypes lists the event types a test with spec reports.
	eventTypes func(spec map[string]interface{}) []string
}

var parsers = map[TestType]fieldParser{
	TestThroughput: {
		fieldMap: map[string]string{
			"tos":                 "ip-tos",
			"dscp":                "ip-dscp",
			"buffer-length":       "bw-buffer-size",
			"parallel":            "bw-parallel-streams",
			"bandwidth":           "bw-target-bandwidth",
			"window-size":         "tcp-window-size",
			"dynamic-window-size": "tcp-dynamic-window-size",
			"mss":                 "tcp-max-segment-size",
			"omit":                "bw-ignore-first-seconds",
		},
		additional: throughputAdditional,
		eventTypes: throughputEventTypes,
	},
	TestLatency: {
		fieldMap:   latencyFieldMap,
		eventTypes: latencyEventTypes,
	},
	TestLatencyBG: {
		fieldMap:   latencyFieldMap,
		eventTypes: latencyEventTypes,
	},
	TestRTT: {
		fieldMap: map[string]string{
			"count":     "sample-size",
			"flowlabel": "ip-packet-flowlabel",
			"tos":       "ip-tos",
			"length":    "ip-packet-size",
			"ttl":       "ip-ttl",
		},
		additional: durationFields(map[string]string{
			"interval": "time-probe-interval",
			"timeout":  "time-test-timeout",
			"deadline": "time-probe-timeout",
		}),
		eventTypes: fixedEventTypes(
			"failures",
			"packet-count-sent",
			"histogram-rtt",
			"histogram-ttl-reverse",
			"packet-duplicates-bidir",
			"packet-loss-rate-bidir",
			"packet-count-lost-bidir",
			"packet-reorders-bidir",
		),
	},
	TestTrace: {
		fieldMap: map[string]string{
			"algorithm":  "trace-algorithm",
			"first-ttl":  "trace-first-ttl",
			"fragment":   "ip-fragment",
			"hops":       "trace-max-ttl",
			"length":     "ip-packet-size",
			"probe-type": "ip-transport-protocol",
			"queries":    "trace-num-queries",
			"tos":        "ip-tos",
		},
		additional: durationFields(map[string]string{
			"sendwait": "time-probe-interval",
			"wait":     "time-test-timeout",
		}),
		eventTypes: traceEventTypes,
	},
	TestDiskToDisk: {
		fieldMap: map[string]string{
			"parallel": "bw-parallel-streams",
		},
		additional: flattenSpec,
		eventTypes: fixedEventTypes("failures", "throughput"),
	},
	TestOther: {
		additional: flattenSpec,
		eventTypes: fixedEventTypes(),
	},
}

var latencyFieldMap = map[string]string{
	"packet-count":            "sample-size",
	"bucket-width":            "sample-bucket-width",
	"packet-interval":         "time-probe-interval",
	"packet-timeout":          "time-probe-timeout",
	"ip-tos":                  "ip-tos",
	"flip":                    "mode-flip",
	"packet-padding":          "ip-packet-padding",
	"single-participant-mode": "mode-single-participant",
}

var latencyEventTypes = fixedEventTypes(
	"failures",
	"packet-count-sent",
	"histogram-owdelay",
	"histogram-ttl",
	"packet-duplicates",
	"packet-loss-rate",
	"packet-count-lost",
	"packet-reorders",
	"time-error-estimates",
)

// parserFor selects the variant for testType.
func parserFor(testType string) fieldParser {
	if p, ok := parsers[TestType(testType)]; ok {
		return p
	}
	return parsers[TestOther]
}

func fixedEventTypes(ets ...string) func(map[string]interface{}) []string {
	return func(map[string]interface{}) []string {
		out := make([]string, len(ets))
		copy(out, ets)
		return out
	}
}

func throughputAdditional(_ string, spec map[string]interface{}, target model.Record) {
	if isUDP(spec) {
		target["ip-transport-protocol"] = "udp"
	} else {
		target["ip-transport-protocol"] = "tcp"
	}
}

func throughputEventTypes(spec map[string]interface{}) []string {
	ets := []string{
		"failures",
		"throughput",
		"throughput-subintervals",
	}
	parallel := parallelStreams(spec) > 1
	if parallel {
		ets = append(ets, "streams-throughput", "streams-throughput-subintervals")
	}
	if isUDP(spec) {
		ets = append(ets, "packet-loss-rate", "packet-count-lost", "packet-count-sent")
	} else {
		ets = append(ets, "packet-retransmits", "packet-retransmits-subintervals")
		if parallel {
			ets = append(ets, "streams-packet-retransmits", "streams-packet-retransmits-subintervals")
		}
	}
	return ets
}

func traceEventTypes(spec map[string]interface{}) []string {
	ets := []string{"failures", "packet-trace", "path-mtu"}
	if alg, _ := spec["algorithm"].(string); alg == "paris-traceroute" {
		ets = append(ets, "packet-trace-multi")
	}
	return ets
}

// durationFields converts ISO 8601 spec fields into seconds.
func durationFields(fields map[string]string) func(string, map[string]interface{}, model.Record) {
	return func(_ string, spec map[string]interface{}, target model.Record) {
		for field, name := range fields {
			s, ok := spec[field].(string)
			if !ok || s == "" {
				continue
			}
			if secs, ok := esmond.ISO8601ToSeconds(s); ok {
				target[name] = secs
			} else {
				target[name] = nil
			}
		}
	}
}

// flattenSpec exposes every spec field under a test type prefixed key so
// unmodeled test types remain searchable.
func flattenSpec(testType string, spec map[string]interface{}, target model.Record) {
	for field, val := range spec {
		flattenField(fmt.Sprintf("pscheduler-%s-%s", testType, field), val, target)
	}
}

// flattenField stores val under key, expanding maps into key-sub entries
// and lists into key-index entries. Keys starting with an underscore are
// internal and skipped.
func flattenField(key string, val interface{}, target model.Record) {
	switch v := val.(type) {
	case []interface{}:
		for i, item := range v {
			target[fmt.Sprintf("%s-%d", key, i)] = item
		}
	case map[string]interface{}:
		for sub, item := range v {
			if strings.HasPrefix(sub, "_") {
				continue
			}
			flattenField(key+"-"+sub, item, target)
		}
	default:
		target[key] = val
	}
}

func isUDP(spec map[string]interface{}) bool {
	b, _ := spec["udp"].(bool)
	return b
}

func parallelStreams(spec map[string]interface{}) float64 {
	switch v := spec["parallel"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
