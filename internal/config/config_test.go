package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perfsonar/elmond/internal/esmond"
)

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, esmond.DefaultBaseURI, cfg.BaseURI)
	require.Equal(t, "pscheduler_*", cfg.RawIndex)
	require.Equal(t, "pscheduler_rollup_*", cfg.RollupIndex)

	name, ok := cfg.IntervalName(3600)
	require.True(t, ok)
	require.Equal(t, "1h", name)
	_, ok = cfg.IntervalName(60)
	require.False(t, ok)

	require.True(t, cfg.Catalog.Supports("throughput", "average", 86400))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elmond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_uri: /archive
rollup_index: rollups-*
rollup_intervals:
  600: 10m
summaries:
  throughput:
    - {summary-type: average, summary-window: 600}
  histogram-owdelay:
    - {event-type: histogram-owdelay, summary-type: statistics, summary-window: 0}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/archive", cfg.BaseURI)
	require.Equal(t, "pscheduler_*", cfg.RawIndex)
	require.Equal(t, "rollups-*", cfg.RollupIndex)
	require.Equal(t, map[int]string{600: "10m"}, cfg.RollupIntervals)

	require.True(t, cfg.Catalog.Supports("throughput", "average", 600))
	require.False(t, cfg.Catalog.Supports("throughput", "average", 86400))
	require.False(t, cfg.Catalog.Supports("packet-loss-rate", "aggregation", 300))
	require.Equal(t, "throughput", cfg.Catalog.Summaries("throughput")[0].EventType)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "base_uri: [unterminated"},
		{"window 0 aggregation", "summaries:\n  packet-loss-rate:\n    - {summary-type: aggregation, summary-window: 0}\n"},
		{"empty interval name", "rollup_intervals:\n  300: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
