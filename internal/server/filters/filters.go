// Package filters translates esmond query parameters into backend filter
// predicates.
package filters

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/perfsonar/elmond/internal/esmond"
	"github.com/perfsonar/elmond/internal/model"
	"github.com/perfsonar/elmond/internal/server/summaries"
)

// RawTimeField is the run start time on raw documents.
const RawTimeField = "pscheduler.start_time"

// DNS match rules.
const (
	DNSMatchOnlyV4   = "only-v4"
	DNSMatchOnlyV6   = "only-v6"
	DNSMatchPreferV4 = "prefer-v4"
	DNSMatchPreferV6 = "prefer-v6"
	DNSMatchV4V6     = "v4v6"
)

// Subject types.
const (
	SubjectPointToPoint   = "point-to-point"
	SubjectNetworkElement = "network-element"
)

var reservedParams = map[string]bool{
	esmond.FormatParam:        true,
	esmond.LimitParam:         true,
	esmond.OffsetParam:        true,
	esmond.DNSMatchRuleParam:  true,
	esmond.TimeParam:          true,
	esmond.TimeStartParam:     true,
	esmond.TimeEndParam:       true,
	esmond.TimeRangeParam:     true,
	esmond.EventTypeParam:     true,
	esmond.SummaryTypeParam:   true,
	esmond.SummaryWindowParam: true,
}

var testTypePrefixRE = regexp.MustCompile(`^pscheduler-.+?-`)

// Resolver looks up the addresses of a host. *net.Resolver implements it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Filters is the outcome of Build. Impossible is set when no document can
// match, which is different from an empty predicate list (match all).
type Filters struct {
	Predicates []model.Predicate
	Impossible bool
}

// Builder is stateless apart from its read-only catalog and resolver and is
// safe for concurrent use.
type Builder struct {
	catalog  *summaries.Catalog
	resolver Resolver
	logger   *zap.Logger
}

// NewBuilder creates a Builder. A nil resolver uses net.DefaultResolver.
func NewBuilder(catalog *summaries.Catalog, resolver Resolver, logger *zap.Logger) *Builder {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Builder{
		catalog:  catalog,
		resolver: resolver,
		logger:   logger.Named("filters"),
	}
}

// Build translates every parameter of p into predicates.
func (b *Builder) Build(ctx context.Context, p model.Params) (*Filters, error) {
	out := &Filters{}
	if len(p) == 0 {
		return out, nil
	}

	tr, err := esmond.ParseTimeRange(p)
	if err != nil {
		return nil, err
	}
	if tr != nil {
		out.Predicates = append(out.Predicates, tr.Predicate(RawTimeField))
	}

	dnsRule := DNSMatchV4V6
	if v, ok := p.Get(esmond.DNSMatchRuleParam); ok {
		dnsRule = v
	}
	switch dnsRule {
	case DNSMatchOnlyV4, DNSMatchOnlyV6, DNSMatchPreferV4, DNSMatchPreferV6, DNSMatchV4V6:
	default:
		return nil, fmt.Errorf("%w: invalid dns-match-rule parameter %s", model.ErrInvalidRequest, dnsRule)
	}

	eventType, _ := p.Get(esmond.EventTypeParam)
	summaryType, _ := p.Get(esmond.SummaryTypeParam)
	summaryWindow, _ := p.Get(esmond.SummaryWindowParam)
	if eventType != "" || summaryType != "" || summaryWindow != "" {
		pred, impossible, err := b.eventTypeFilter(eventType, summaryType, summaryWindow)
		if err != nil {
			return nil, err
		}
		if impossible {
			b.logger.Debug("event and summary filters cannot match",
				zap.String("eventType", eventType),
				zap.String("summaryType", summaryType),
				zap.String("summaryWindow", summaryWindow),
			)
			return &Filters{Impossible: true}, nil
		}
		if pred != nil {
			out.Predicates = append(out.Predicates, pred)
		}
	}

	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, param := range keys {
		if reservedParams[param] {
			continue
		}
		pred, err := b.fieldFilter(ctx, param, p[param], dnsRule)
		if err != nil {
			return nil, err
		}
		out.Predicates = append(out.Predicates, pred)
	}

	b.logger.Debug("built filters", zap.Any("filters", out.Predicates))
	return out, nil
}

// fieldFilter resolves one non-reserved parameter.
func (b *Builder) fieldFilter(ctx context.Context, param, value, dnsRule string) (model.Predicate, error) {
	if key, ok := mappedFilters[param]; ok {
		return term(key, value), nil
	}
	if keys, ok := multiFilters[param]; ok {
		return keyOr(keys, value), nil
	}
	if key, ok := ipFilters[param]; ok {
		return b.ipFilter(ctx, key, value, dnsRule)
	}

	switch {
	case param == "ip-transport-protocol":
		return protocolFilter(value)
	case param == "tool-name":
		return term("pscheduler.tool", strings.TrimPrefix(value, "pscheduler/")), nil
	case param == "subject-type":
		return subjectTypeFilter(value)
	case strings.HasPrefix(param, "pscheduler-reference"):
		return term(ReferenceKey(param), value), nil
	case strings.HasPrefix(param, "pscheduler-"):
		return term(TestSpecKey(param), value), nil
	}
	return term("test.spec."+param, value), nil
}

// ReferenceKey decodes a pscheduler-reference-* parameter into the dotted
// path of the reference object. Hyphens cannot be told apart from nesting,
// so a fixed list of known key names is restored afterwards.
func ReferenceKey(param string) string {
	key := strings.TrimPrefix(param, "pscheduler-")
	key = strings.ReplaceAll(key, "-", ".")
	for _, rw := range referenceRewrites {
		key = strings.ReplaceAll(key, rw[0], rw[1])
	}
	return key
}

// TestSpecKey decodes a pscheduler-<test type>-<field> parameter into a
// test spec path.
func TestSpecKey(param string) string {
	key := testTypePrefixRE.ReplaceAllString(param, "")
	key = strings.TrimPrefix(key, "to-disk-")
	key = strings.ReplaceAll(key, "-", ".")
	return "test.spec." + key
}

// eventTypeFilter restricts test types to those able to produce the
// requested event and summary.
func (b *Builder) eventTypeFilter(eventType, summaryType, summaryWindow string) (model.Predicate, bool, error) {
	var (
		eventTypes  []string
		fromCatalog bool
	)
	if summaryType != "" || summaryWindow != "" {
		var window *int
		if summaryWindow != "" {
			w, err := strconv.Atoi(summaryWindow)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %s parameter must be an integer", model.ErrInvalidRequest, esmond.SummaryWindowParam)
			}
			window = &w
		}
		eventTypes = b.catalog.Match(eventType, summaryType, window)
		if len(eventTypes) == 0 {
			return nil, true, nil
		}
		fromCatalog = true
	} else {
		eventTypes = []string{eventType}
	}

	var testTypes []string
	seen := make(map[string]bool)
	for _, et := range eventTypes {
		tts, ok := eventTestTypes[et]
		if !ok {
			// configured summaries may name event types of any test
			if anyTestEventTypes[et] || fromCatalog {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("%w: invalid event-type parameter %s", model.ErrInvalidRequest, et)
		}
		for _, tt := range tts {
			if !seen[tt] {
				seen[tt] = true
				testTypes = append(testTypes, tt)
			}
		}
	}

	should := make([]model.Predicate, 0, len(testTypes))
	for _, tt := range testTypes {
		should = append(should, testTypeFilter(eventType, tt))
	}
	return anyOf(should), false, nil
}

// testTypeFilter matches tt, refined by spec values that decide whether a
// test of that type reports eventType at all.
func testTypeFilter(eventType, tt string) model.Predicate {
	typeTerm := term("test.type", tt)
	switch {
	case eventType != "" && tt == "throughput":
		switch {
		case strings.HasPrefix(eventType, "streams-packet-retransmits"):
			return allOf([]model.Predicate{typeTerm, gte("test.spec.parallel", 2)}, term("test.spec.udp", true))
		case strings.HasPrefix(eventType, "streams-"):
			return allOf([]model.Predicate{typeTerm, gte("test.spec.parallel", 2)}, nil)
		case strings.HasPrefix(eventType, "packet-retransmits"):
			return allOf([]model.Predicate{typeTerm}, term("test.spec.udp", true))
		case strings.HasPrefix(eventType, "packet-"):
			return allOf([]model.Predicate{typeTerm, term("test.spec.udp", true)}, nil)
		}
	case eventType == "packet-trace-multi":
		return allOf([]model.Predicate{typeTerm, term("test.spec.algorithm", "paris-traceroute")}, nil)
	}
	return typeTerm
}

func subjectTypeFilter(value string) (model.Predicate, error) {
	should := make([]model.Predicate, 0, len(pointToPointTests))
	for _, tt := range pointToPointTests {
		should = append(should, term("test.type", tt))
	}
	switch value {
	case SubjectPointToPoint:
		return anyOf(should), nil
	case SubjectNetworkElement:
		return model.Predicate{
			"bool": map[string]interface{}{
				"must_not": anyOf(should),
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: invalid subject-type %s", model.ErrInvalidRequest, value)
}

func protocolFilter(value string) (model.Predicate, error) {
	proto := strings.ToLower(value)
	// trace tests record the probe type; throughput tests only a udp flag
	should := []model.Predicate{term("test.spec.probe-type", proto)}
	switch proto {
	case "udp":
		should = append(should, term("test.spec.udp", true))
		return anyOf(should), nil
	case "tcp":
		should = append(should, term("test.type", "throughput"))
		pred := anyOf(should)
		pred["bool"].(map[string]interface{})["must_not"] = term("test.spec.udp", true)
		return pred, nil
	case "icmp":
		return anyOf(should), nil
	}
	return nil, fmt.Errorf("%w: invalid ip-transport-protocol %s", model.ErrInvalidRequest, value)
}

// ipFilter resolves host under rule and matches any of its addresses.
func (b *Builder) ipFilter(ctx context.Context, key, host, rule string) (model.Predicate, error) {
	var addr4, addr6 string
	switch rule {
	case DNSMatchOnlyV6:
		addr6 = b.lookup(ctx, host, "ip6")
	case DNSMatchOnlyV4:
		addr4 = b.lookup(ctx, host, "ip4")
	case DNSMatchPreferV6:
		if addr6 = b.lookup(ctx, host, "ip6"); addr6 == "" {
			addr4 = b.lookup(ctx, host, "ip4")
		}
	case DNSMatchPreferV4:
		if addr4 = b.lookup(ctx, host, "ip4"); addr4 == "" {
			addr6 = b.lookup(ctx, host, "ip6")
		}
	case DNSMatchV4V6:
		addr6 = b.lookup(ctx, host, "ip6")
		addr4 = b.lookup(ctx, host, "ip4")
	default:
		return nil, fmt.Errorf("%w: invalid dns-match-rule parameter %s", model.ErrInvalidRequest, rule)
	}

	var addrs []string
	if addr4 != "" {
		addrs = append(addrs, addr4)
	}
	if addr6 != "" {
		addrs = append(addrs, addr6)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: unable to find address for host %s", model.ErrInvalidRequest, host)
	}
	return valOr(key, addrs), nil
}

// lookup returns the first address of host in network ("ip4" or "ip6").
func (b *Builder) lookup(ctx context.Context, host, network string) string {
	ips, err := b.resolver.LookupIP(ctx, network, host)
	if err != nil || len(ips) == 0 {
		b.logger.Debug("host lookup failed",
			zap.String("host", host),
			zap.String("network", network),
			zap.Error(err),
		)
		return ""
	}
	return ips[0].String()
}

// -----------------------------------------------------------------------
// Predicate constructors
// -----------------------------------------------------------------------

func term(key string, value interface{}) model.Predicate {
	return model.Predicate{
		"term": map[string]interface{}{key: value},
	}
}

func gte(key string, value interface{}) model.Predicate {
	return model.Predicate{
		"range": map[string]interface{}{
			key: map[string]interface{}{"gte": value},
		},
	}
}

func anyOf(should []model.Predicate) model.Predicate {
	return model.Predicate{
		"bool": map[string]interface{}{
			"should":               should,
			"minimum_should_match": 1,
		},
	}
}

func allOf(must []model.Predicate, mustNot model.Predicate) model.Predicate {
	b := map[string]interface{}{"must": must}
	if mustNot != nil {
		b["must_not"] = mustNot
	}
	return model.Predicate{"bool": b}
}

func keyOr(keys []string, value string) model.Predicate {
	should := make([]model.Predicate, 0, len(keys))
	for _, k := range keys {
		should = append(should, term(k, value))
	}
	return anyOf(should)
}

func valOr(key string, values []string) model.Predicate {
	should := make([]model.Predicate, 0, len(values))
	for _, v := range values {
		should = append(should, term(key, v))
	}
	return anyOf(should)
}

// Term builds a term predicate. Exported for the components that add their
// own fixed filters next to the built ones.
func Term(key string, value interface{}) model.Predicate {
	return term(key, value)
}
