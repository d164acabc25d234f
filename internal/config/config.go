// Package config loads the archive's read-only process configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/perfsonar/elmond/internal/esmond"
	"github.com/perfsonar/elmond/internal/model"
	"github.com/perfsonar/elmond/internal/server/summaries"
)

// Default index patterns.
const (
	DefaultRawIndex    = "pscheduler_*"
	DefaultRollupIndex = "pscheduler_rollup_*"
)

// Config is loaded once at start and shared read-only between requests.
type Config struct {
	BaseURI     string
	RawIndex    string
	RollupIndex string

	// RollupIntervals maps a summary window in seconds to the interval name
	// stored on rollup documents.
	RollupIntervals map[int]string

	Catalog *summaries.Catalog
}

// DefaultRollupIntervals returns the built-in window to interval mapping.
func DefaultRollupIntervals() map[int]string {
	return map[int]string{
		summaries.Window5m: "5m",
		summaries.Window1h: "1h",
		summaries.Window1d: "1d",
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BaseURI:         esmond.DefaultBaseURI,
		RawIndex:        DefaultRawIndex,
		RollupIndex:     DefaultRollupIndex,
		RollupIntervals: DefaultRollupIntervals(),
		Catalog:         summaries.Default(),
	}
}

// fileConfig is the on-disk YAML layout.
type fileConfig struct {
	BaseURI         string                   `yaml:"base_uri"`
	RawIndex        string                   `yaml:"raw_index"`
	RollupIndex     string                   `yaml:"rollup_index"`
	RollupIntervals map[int]string           `yaml:"rollup_intervals"`
	Summaries       map[string][]fileSummary `yaml:"summaries"`
}

type fileSummary struct {
	EventType     string `yaml:"event-type"`
	SummaryType   string `yaml:"summary-type"`
	SummaryWindow int    `yaml:"summary-window"`
}

// Load reads a YAML configuration file. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML. Keys that are absent keep their defaults;
// a summaries or rollup_intervals section replaces the default table.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()
	if fc.BaseURI != "" {
		cfg.BaseURI = fc.BaseURI
	}
	if fc.RawIndex != "" {
		cfg.RawIndex = fc.RawIndex
	}
	if fc.RollupIndex != "" {
		cfg.RollupIndex = fc.RollupIndex
	}
	if len(fc.RollupIntervals) > 0 {
		cfg.RollupIntervals = make(map[int]string, len(fc.RollupIntervals))
		for w, name := range fc.RollupIntervals {
			if w <= 0 || name == "" {
				return nil, fmt.Errorf("invalid rollup interval %d=%q", w, name)
			}
			cfg.RollupIntervals[w] = name
		}
	}
	if len(fc.Summaries) > 0 {
		entries := make(map[string][]model.SummaryEntry, len(fc.Summaries))
		for et, list := range fc.Summaries {
			for _, s := range list {
				if s.SummaryWindow == 0 && s.SummaryType != summaries.Base && s.SummaryType != summaries.Statistics {
					return nil, fmt.Errorf("summary %s/%s: window 0 only supports base and statistics", et, s.SummaryType)
				}
				eventType := s.EventType
				if eventType == "" {
					eventType = et
				}
				entries[et] = append(entries[et], model.SummaryEntry{
					EventType:     eventType,
					SummaryType:   s.SummaryType,
					SummaryWindow: s.SummaryWindow,
				})
			}
		}
		cfg.Catalog = summaries.New(entries)
	}
	return cfg, nil
}

// IntervalName returns the rollup interval name for window.
func (c *Config) IntervalName(window int) (string, bool) {
	name, ok := c.RollupIntervals[window]
	return name, ok
}
