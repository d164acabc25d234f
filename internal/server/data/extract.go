package data

import (
	"math"
	"sort"
	"strconv"

	"github.com/perfsonar/elmond/internal/esmond"
	"github.com/perfsonar/elmond/internal/model"
)

// selection is everything an extractor needs to know about the request.
type selection struct {
	eventType   string
	summaryType string
	rollup      bool
	paths       []string
}

// extract returns the value of one document for sel. ok is false when the
// document holds no usable value and the point must be dropped.
func extract(sel selection, doc map[string]interface{}) (interface{}, bool) {
	et := sel.eventType
	switch {
	case et == esmond.EventTypeRaw:
		return esmond.Lookup(doc, "result")
	case isHistogram(et) && sel.summaryType == statistics:
		return extractStatistics(doc, sel.paths[0], sel.rollup, conversionFactor(et))
	case isHistogram(et):
		v, ok := esmond.Lookup(doc, sel.paths[0])
		if !ok {
			return nil, false
		}
		return buildHistogram(v)
	case isStreams(et) && isSubintervals(et):
		field, ok := derivedField(et)
		if !ok {
			return nil, false
		}
		return extractStreamIntervals(doc, sel.paths[0], field)
	case isStreams(et):
		field, ok := derivedField(et)
		if !ok {
			return nil, false
		}
		return extractStreams(doc, sel.paths[0], field)
	case isSubintervals(et):
		field, ok := derivedField(et)
		if !ok {
			return nil, false
		}
		return extractIntervals(doc, sel.paths[0], field)
	case isTrace(et):
		return extractTrace(doc, sel.paths[0], et == "packet-trace-multi")
	case et == "failures":
		msg, ok := esmond.LookupString(doc, sel.paths[0])
		if !ok {
			return nil, false
		}
		return map[string]interface{}{"error": msg}, true
	case isLossRate(et) && sel.summaryType == aggregation:
		return lossRate(doc, sel.paths[0], sel.paths[1])
	case sel.rollup && sel.summaryType == average:
		return rollupAverage(doc, sel.paths[0])
	default:
		return esmond.Lookup(doc, sel.paths[0])
	}
}

// buildHistogram converts a {values, counts} pair of parallel arrays into a
// bucket label to count map.
func buildHistogram(v interface{}) (map[string]int64, bool) {
	h, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	values, _ := h["values"].([]interface{})
	counts, _ := h["counts"].([]interface{})
	if len(values) != len(counts) {
		return nil, false
	}
	out := make(map[string]int64, len(values))
	for i := range values {
		c, ok := esmond.Number(counts[i])
		if !ok || c != math.Trunc(c) {
			return nil, false
		}
		out[bucketLabel(values[i])] = int64(c)
	}
	return out, true
}

func bucketLabel(v interface{}) string {
	switch b := v.(type) {
	case string:
		return b
	case float64:
		return strconv.FormatFloat(b, 'f', -1, 64)
	}
	if n, ok := esmond.Number(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

// extractStatistics reads the ten statistics below prefix. Rolled up
// documents keep max and min as such and every other statistic as a sum
// and a count.
func extractStatistics(doc map[string]interface{}, prefix string, rollup bool, factor float64) (*model.Statistics, bool) {
	values := make(map[string]interface{}, len(stats))
	found := false
	for _, s := range stats {
		var (
			v  float64
			ok bool
		)
		switch {
		case !rollup:
			var raw interface{}
			if raw, ok = esmond.Lookup(doc, prefix+"."+s.stored); ok {
				v, ok = esmond.Number(raw)
			}
		case s.stored == "max" || s.stored == "min":
			v, ok = lookupNumber(doc, prefix+"."+s.stored+"."+s.stored+".value")
		default:
			v, ok = rollupAverage(doc, prefix+"."+s.stored+".avg")
		}
		if !ok {
			values[s.output] = nil
			continue
		}
		found = true
		values[s.output] = v * factor
	}
	if !found {
		return nil, false
	}
	return &model.Statistics{
		Maximum:           values["maximum"],
		Mean:              values["mean"],
		Median:            values["median"],
		Minimum:           values["minimum"],
		Mode:              values["mode"],
		Percentile25:      values["percentile-25"],
		Percentile75:      values["percentile-75"],
		Percentile95:      values["percentile-95"],
		StandardDeviation: values["standard-deviation"],
		Variance:          values["variance"],
	}, true
}

// rollupAverage divides the sum stored at path.value by path._count.
func rollupAverage(doc map[string]interface{}, path string) (float64, bool) {
	sum, ok := lookupNumber(doc, path+".value")
	if !ok {
		return 0, false
	}
	count, ok := lookupNumber(doc, path+"._count")
	if !ok || count == 0 {
		return 0, false
	}
	return sum / count, true
}

func lossRate(doc map[string]interface{}, lostPath, sentPath string) (float64, bool) {
	lost, ok := lookupNumber(doc, lostPath)
	if !ok {
		return 0, false
	}
	sent, ok := lookupNumber(doc, sentPath)
	if !ok || sent == 0 {
		return 0, false
	}
	return lost / sent, true
}

func lookupNumber(doc map[string]interface{}, path string) (float64, bool) {
	v, ok := esmond.Lookup(doc, path)
	if !ok {
		return 0, false
	}
	return esmond.Number(v)
}

// ---- intervals and streams ----

func objects(v interface{}, ok bool) []map[string]interface{} {
	if !ok {
		return nil
	}
	list, _ := v.([]interface{})
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// subinterval builds one slice from an object carrying start, end and the
// value under field.
func subinterval(obj map[string]interface{}, field string) (model.Subinterval, bool) {
	val, ok := obj[field]
	if !ok || val == nil {
		return model.Subinterval{}, false
	}
	start, ok := esmond.Number(obj["start"])
	if !ok {
		return model.Subinterval{}, false
	}
	end, ok := esmond.Number(obj["end"])
	if !ok {
		return model.Subinterval{}, false
	}
	return model.Subinterval{Start: obj["start"], Duration: end - start, Val: val}, true
}

func extractIntervals(doc map[string]interface{}, path, field string) ([]model.Subinterval, bool) {
	var out []model.Subinterval
	for _, interval := range objects(esmond.Lookup(doc, path)) {
		summary, ok := interval["summary"].(map[string]interface{})
		if !ok {
			continue
		}
		if si, ok := subinterval(summary, field); ok {
			out = append(out, si)
		}
	}
	return out, len(out) > 0
}

// extractStreamIntervals regroups the per-interval stream readings into one
// list of intervals per stream, ordered by stream id.
func extractStreamIntervals(doc map[string]interface{}, path, field string) ([][]model.Subinterval, bool) {
	type stream struct {
		id        interface{}
		intervals []model.Subinterval
	}
	var order []*stream
	byID := make(map[string]*stream)
	for _, interval := range objects(esmond.Lookup(doc, path)) {
		for _, s := range objects(interval["streams"], true) {
			si, ok := subinterval(s, field)
			if !ok {
				continue
			}
			id := s["stream-id"]
			key := bucketLabel(id)
			st, ok := byID[key]
			if !ok {
				st = &stream{id: id}
				byID[key] = st
				order = append(order, st)
			}
			st.intervals = append(st.intervals, si)
		}
	}
	if len(order) == 0 {
		return nil, false
	}
	sort.SliceStable(order, func(i, j int) bool {
		return lessID(order[i].id, order[j].id)
	})
	out := make([][]model.Subinterval, 0, len(order))
	for _, st := range order {
		out = append(out, st.intervals)
	}
	return out, true
}

func lessID(a, b interface{}) bool {
	na, aok := esmond.Number(a)
	nb, bok := esmond.Number(b)
	if aok && bok {
		return na < nb
	}
	return bucketLabel(a) < bucketLabel(b)
}

func extractStreams(doc map[string]interface{}, path, field string) ([]interface{}, bool) {
	var out []interface{}
	for _, s := range objects(esmond.Lookup(doc, path)) {
		if v, ok := s[field]; ok && v != nil {
			out = append(out, v)
		}
	}
	return out, len(out) > 0
}

// ---- traces ----

// extractTrace rebuilds the hop lists of a trace. Only the first path is
// returned unless multi is set.
func extractTrace(doc map[string]interface{}, path string, multi bool) (interface{}, bool) {
	v, ok := esmond.Lookup(doc, path)
	if !ok {
		return nil, false
	}
	paths, _ := v.([]interface{})
	var out [][]model.Hop
	for _, p := range paths {
		hops := buildHops(objects(p, true))
		if len(hops) == 0 {
			continue
		}
		out = append(out, hops)
	}
	if len(out) == 0 {
		return nil, false
	}
	if multi {
		return out, true
	}
	return out[0], true
}

func buildHops(raw []map[string]interface{}) []model.Hop {
	hops := make([]model.Hop, 0, len(raw))
	var mtu interface{}
	for i, h := range raw {
		hop := model.Hop{TTL: i + 1, Query: 1, Success: 1}
		if msg, ok := h["error"].(string); ok && msg != "" {
			hop.Success = 0
			hop.ErrorMessage = msg
		}
		if ip, ok := h["ip"].(string); ok && ip != "" {
			hop.IP = ip
		} else {
			hop.Success = 0
		}
		if name, ok := h["hostname"].(string); ok {
			hop.Hostname = name
		}
		if as, ok := h["as"]; ok && as != nil {
			hop.AS = as
		}
		if rtt, ok := hopRTT(h["rtt"]); ok {
			ms := rtt * 1000
			hop.RTT = &ms
		}
		if m, ok := h["mtu"]; ok && m != nil {
			mtu = m
		}
		hop.MTU = mtu
		hops = append(hops, hop)
	}
	return hops
}

// hopRTT reads a hop round trip time in seconds. pscheduler writes it as an
// ISO 8601 duration; normalized documents hold a number.
func hopRTT(v interface{}) (float64, bool) {
	if s, ok := v.(string); ok {
		return esmond.ISO8601ToSeconds(s)
	}
	return esmond.Number(v)
}
