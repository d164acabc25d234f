package filters

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/perfsonar/elmond/internal/model"
	"github.com/perfsonar/elmond/internal/server/summaries"
)

type fakeResolver struct {
	v4    map[string]string
	v6    map[string]string
	calls int
}

func (r *fakeResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	r.calls++
	table := r.v4
	if network == "ip6" {
		table = r.v6
	}
	if addr, ok := table[host]; ok {
		return []net.IP{net.ParseIP(addr)}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func newTestBuilder() (*Builder, *fakeResolver) {
	r := &fakeResolver{
		v4: map[string]string{"dual.example.net": "192.0.2.1", "v4.example.net": "192.0.2.2"},
		v6: map[string]string{"dual.example.net": "2001:db8::1"},
	}
	return NewBuilder(summaries.Default(), r, zap.NewNop()), r
}

func shouldOf(t *testing.T, p model.Predicate) []model.Predicate {
	t.Helper()
	b, ok := p["bool"].(map[string]interface{})
	require.True(t, ok, "not a bool predicate: %v", p)
	should, ok := b["should"].([]model.Predicate)
	require.True(t, ok, "no should clause: %v", p)
	return should
}

func TestBuild_Empty(t *testing.T) {
	b, _ := newTestBuilder()
	f, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, f.Impossible)
	require.Empty(t, f.Predicates)
}

func TestBuild_ReservedParamsIgnored(t *testing.T) {
	b, _ := newTestBuilder()
	f, err := b.Build(context.Background(), model.Params{
		"format": "json",
		"limit":  "10",
		"offset": "5",
	})
	require.NoError(t, err)
	require.Empty(t, f.Predicates)
}

func TestBuild_MappedAndFallbackFilters(t *testing.T) {
	b, _ := newTestBuilder()
	tests := []struct {
		param string
		value string
		want  model.Predicate
	}{
		{"metadata-key", "abc", term("pscheduler.test_checksum", "abc")},
		{"bw-parallel-streams", "4", term("test.spec.parallel", "4")},
		{"tool-name", "pscheduler/iperf3", term("pscheduler.tool", "iperf3")},
		{"tool-name", "owping", term("pscheduler.tool", "owping")},
		{"probe-type", "udp", term("test.spec.probe-type", "udp")},
		{"pscheduler-throughput-omit", "5", term("test.spec.omit", "5")},
		{"pscheduler-disk-to-disk-dest-path", "/tmp", term("test.spec.dest.path", "/tmp")},
		{"pscheduler-reference-psconfig-created-by-user-agent", "psconfig-pscheduler-agent",
			term("reference.psconfig.created-by.user-agent", "psconfig-pscheduler-agent")},
		{"pscheduler-reference-display-set-source", "a", term("reference.display-set.source", "a")},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			f, err := b.Build(context.Background(), model.Params{tt.param: tt.value})
			require.NoError(t, err)
			require.Equal(t, []model.Predicate{tt.want}, f.Predicates)
		})
	}
}

func TestBuild_MultiFilter(t *testing.T) {
	b, _ := newTestBuilder()
	f, err := b.Build(context.Background(), model.Params{"time-test-timeout": "10"})
	require.NoError(t, err)
	require.Len(t, f.Predicates, 1)
	require.Equal(t, []model.Predicate{
		term("test.spec.timeout", "10"),
		term("test.spec.wait", "10"),
	}, shouldOf(t, f.Predicates[0]))
}

func TestBuild_TimeFilter(t *testing.T) {
	b, _ := newTestBuilder()
	f, err := b.Build(context.Background(), model.Params{"time-start": "0", "time-end": "60"})
	require.NoError(t, err)
	require.Equal(t, []model.Predicate{{
		"range": map[string]interface{}{
			RawTimeField: map[string]interface{}{
				"gte": "1970-01-01T00:00:00Z",
				"lte": "1970-01-01T00:01:00Z",
			},
		},
	}}, f.Predicates)

	_, err = b.Build(context.Background(), model.Params{"time-start": "60", "time-end": "0"})
	require.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestBuild_IPFilters(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		host    string
		want    []string
		wantErr bool
	}{
		{"default both", "", "dual.example.net", []string{"192.0.2.1", "2001:db8::1"}, false},
		{"v4v6", "v4v6", "dual.example.net", []string{"192.0.2.1", "2001:db8::1"}, false},
		{"only-v4", "only-v4", "dual.example.net", []string{"192.0.2.1"}, false},
		{"only-v6", "only-v6", "dual.example.net", []string{"2001:db8::1"}, false},
		{"prefer-v6", "prefer-v6", "dual.example.net", []string{"2001:db8::1"}, false},
		{"prefer-v6 fallback", "prefer-v6", "v4.example.net", []string{"192.0.2.2"}, false},
		{"prefer-v4", "prefer-v4", "dual.example.net", []string{"192.0.2.1"}, false},
		{"only-v6 without AAAA", "only-v6", "v4.example.net", nil, true},
		{"unknown host", "", "missing.example.net", nil, true},
		{"bad rule", "v5", "dual.example.net", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBuilder()
			p := model.Params{"source": tt.host}
			if tt.rule != "" {
				p["dns-match-rule"] = tt.rule
			}
			f, err := b.Build(context.Background(), p)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, model.ErrInvalidRequest))
				return
			}
			require.NoError(t, err)
			var want []model.Predicate
			for _, a := range tt.want {
				want = append(want, term("meta.source.ip", a))
			}
			require.Equal(t, want, shouldOf(t, f.Predicates[0]))
		})
	}
}

func TestBuild_UnableToFindAddressMessage(t *testing.T) {
	b, _ := newTestBuilder()
	_, err := b.Build(context.Background(), model.Params{
		"destination":    "v4.example.net",
		"dns-match-rule": "only-v6",
	})
	require.ErrorContains(t, err, "unable to find address")
}

func TestBuild_LookupRepeatsPerRequest(t *testing.T) {
	b, r := newTestBuilder()
	p := model.Params{"source": "v4.example.net", "dns-match-rule": "only-v4"}
	for i := 0; i < 2; i++ {
		_, err := b.Build(context.Background(), p)
		require.NoError(t, err)
	}
	require.Equal(t, 2, r.calls)
}

func TestBuild_Protocol(t *testing.T) {
	b, _ := newTestBuilder()

	f, err := b.Build(context.Background(), model.Params{"ip-transport-protocol": "UDP"})
	require.NoError(t, err)
	require.Equal(t, []model.Predicate{
		term("test.spec.probe-type", "udp"),
		term("test.spec.udp", true),
	}, shouldOf(t, f.Predicates[0]))

	f, err = b.Build(context.Background(), model.Params{"ip-transport-protocol": "tcp"})
	require.NoError(t, err)
	require.Equal(t, []model.Predicate{
		term("test.spec.probe-type", "tcp"),
		term("test.type", "throughput"),
	}, shouldOf(t, f.Predicates[0]))
	require.Equal(t, term("test.spec.udp", true), f.Predicates[0]["bool"].(map[string]interface{})["must_not"])

	_, err = b.Build(context.Background(), model.Params{"ip-transport-protocol": "sctp"})
	require.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestBuild_SubjectType(t *testing.T) {
	b, _ := newTestBuilder()

	f, err := b.Build(context.Background(), model.Params{"subject-type": "point-to-point"})
	require.NoError(t, err)
	require.Len(t, shouldOf(t, f.Predicates[0]), len(pointToPointTests))

	f, err = b.Build(context.Background(), model.Params{"subject-type": "network-element"})
	require.NoError(t, err)
	mustNot := f.Predicates[0]["bool"].(map[string]interface{})["must_not"].(model.Predicate)
	require.Len(t, shouldOf(t, mustNot), len(pointToPointTests))

	_, err = b.Build(context.Background(), model.Params{"subject-type": "mesh"})
	require.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestBuild_EventType(t *testing.T) {
	b, _ := newTestBuilder()

	f, err := b.Build(context.Background(), model.Params{"event-type": "histogram-rtt"})
	require.NoError(t, err)
	require.Equal(t, []model.Predicate{term("test.type", "rtt")}, shouldOf(t, f.Predicates[0]))

	f, err = b.Build(context.Background(), model.Params{"event-type": "throughput"})
	require.NoError(t, err)
	require.Equal(t, []model.Predicate{
		term("test.type", "throughput"),
		term("test.type", "disk-to-disk"),
	}, shouldOf(t, f.Predicates[0]))
}

func TestBuild_EventTypeThroughputRefinements(t *testing.T) {
	b, _ := newTestBuilder()
	tests := []struct {
		eventType string
		want      model.Predicate
	}{
		{"streams-packet-retransmits", allOf(
			[]model.Predicate{term("test.type", "throughput"), gte("test.spec.parallel", 2)},
			term("test.spec.udp", true))},
		{"streams-throughput-subintervals", allOf(
			[]model.Predicate{term("test.type", "throughput"), gte("test.spec.parallel", 2)}, nil)},
		{"packet-retransmits", allOf(
			[]model.Predicate{term("test.type", "throughput")},
			term("test.spec.udp", true))},
		{"packet-loss-rate", allOf(
			[]model.Predicate{term("test.type", "throughput"), term("test.spec.udp", true)}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			f, err := b.Build(context.Background(), model.Params{"event-type": tt.eventType})
			require.NoError(t, err)
			require.Contains(t, shouldOf(t, f.Predicates[0]), tt.want)
		})
	}
}

func TestBuild_EventTypeTraceMulti(t *testing.T) {
	b, _ := newTestBuilder()
	f, err := b.Build(context.Background(), model.Params{"event-type": "packet-trace-multi"})
	require.NoError(t, err)
	require.Equal(t, []model.Predicate{allOf([]model.Predicate{
		term("test.type", "trace"),
		term("test.spec.algorithm", "paris-traceroute"),
	}, nil)}, shouldOf(t, f.Predicates[0]))
}

func TestBuild_EventTypeAnyTest(t *testing.T) {
	b, _ := newTestBuilder()
	for _, et := range []string{"pscheduler-raw", "pscheduler-run-href", "failures"} {
		f, err := b.Build(context.Background(), model.Params{"event-type": et})
		require.NoError(t, err)
		require.False(t, f.Impossible)
		require.Empty(t, f.Predicates)
	}
}

func TestBuild_ConfiguredEventTypeAnyTest(t *testing.T) {
	entries := summaries.DefaultEntries()
	entries["jitter"] = []model.SummaryEntry{{SummaryType: summaries.Average, SummaryWindow: summaries.Window1h}}
	b := NewBuilder(summaries.New(entries), &fakeResolver{}, zap.NewNop())

	f, err := b.Build(context.Background(), model.Params{
		"event-type":     "jitter",
		"summary-type":   "average",
		"summary-window": "3600",
	})
	require.NoError(t, err)
	require.False(t, f.Impossible)
	require.Empty(t, f.Predicates)

	// unknown without a summary filter stays invalid
	_, err = b.Build(context.Background(), model.Params{"event-type": "jitter"})
	require.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestBuild_EventTypeInvalid(t *testing.T) {
	b, _ := newTestBuilder()
	_, err := b.Build(context.Background(), model.Params{"event-type": "bogus"})
	require.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestBuild_SummaryFilters(t *testing.T) {
	b, _ := newTestBuilder()

	f, err := b.Build(context.Background(), model.Params{"summary-type": "average"})
	require.NoError(t, err)
	require.Equal(t, []model.Predicate{
		term("test.type", "throughput"),
		term("test.type", "disk-to-disk"),
	}, shouldOf(t, f.Predicates[0]))

	f, err = b.Build(context.Background(), model.Params{
		"event-type":     "histogram-owdelay",
		"summary-type":   "statistics",
		"summary-window": "0",
	})
	require.NoError(t, err)
	require.False(t, f.Impossible)

	f, err = b.Build(context.Background(), model.Params{
		"event-type":     "throughput",
		"summary-window": "300",
	})
	require.NoError(t, err)
	require.True(t, f.Impossible)
	require.Empty(t, f.Predicates)

	_, err = b.Build(context.Background(), model.Params{"summary-window": "five"})
	require.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestReferenceKey(t *testing.T) {
	require.Equal(t, "reference.psconfig.created-by.uuid", ReferenceKey("pscheduler-reference-psconfig-created-by-uuid"))
	require.Equal(t, "reference.foo", ReferenceKey("pscheduler-reference-foo"))
}

func TestTestSpecKey(t *testing.T) {
	require.Equal(t, "test.spec.ip.version", TestSpecKey("pscheduler-rtt-ip-version"))
	require.Equal(t, "test.spec.source", TestSpecKey("pscheduler-disk-to-disk-source"))
}
