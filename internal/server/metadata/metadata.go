// Package metadata groups raw measurement documents into one esmond
// metadata record per test.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/perfsonar/elmond/internal/config"
	"github.com/perfsonar/elmond/internal/esmond"
	"github.com/perfsonar/elmond/internal/model"
	"github.com/perfsonar/elmond/internal/server/filters"
	"github.com/perfsonar/elmond/internal/server/metrics"
)

const (
	checksumField  = "pscheduler.test_checksum.keyword"
	startTimeField = "pscheduler.start_time"

	// maxTermsBuckets matches the default search.max_buckets of the cluster.
	maxTermsBuckets = 65536
)

// Aggregator answers metadata searches. It holds no per-request state.
type Aggregator struct {
	cfg      *config.Config
	searcher model.Searcher
	builder  *filters.Builder
	uris     esmond.URIBuilder
	logger   *zap.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg *config.Config, searcher model.Searcher, builder *filters.Builder, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		cfg:      cfg,
		searcher: searcher,
		builder:  builder,
		uris:     esmond.URIBuilder{Base: cfg.BaseURI},
		logger:   logger.Named("metadata"),
	}
}

// aggregation response shapes
type testsAgg struct {
	Buckets []testBucket `json:"buckets"`
}

type testBucket struct {
	Key        string `json:"key"`
	TestParams struct {
		Hits struct {
			Hits []model.SearchHit `json:"hits"`
		} `json:"hits"`
	} `json:"test_params"`
}

type countAgg struct {
	Value int `json:"value"`
}

// Search returns one record per test matching params, most recently run
// first. With paginate set the first record carries the total count and
// the previous/next page links derived from requestURL.
func (a *Aggregator) Search(ctx context.Context, params model.Params, requestURL *url.URL, paginate bool) ([]model.Record, error) {
	limit, offset, err := esmond.Page(params)
	if err != nil {
		return nil, err
	}
	if offset+limit > maxTermsBuckets {
		return nil, fmt.Errorf("%w: offset plus limit may not exceed %d tests", model.ErrInvalidRequest, maxTermsBuckets)
	}

	f, err := a.builder.Build(ctx, params)
	if err != nil {
		return nil, err
	}
	if f.Impossible {
		return []model.Record{}, nil
	}

	req := model.SearchRequest{
		Index: a.cfg.RawIndex,
		Body:  buildSearchQuery(f.Predicates, limit, offset),
	}
	res, err := a.searcher.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search metadata: %w", err)
	}

	var tests testsAgg
	if raw, ok := res.Aggregations["tests"]; ok {
		if err := json.Unmarshal(raw, &tests); err != nil {
			return nil, fmt.Errorf("failed to decode tests aggregation: %w", err)
		}
	}

	records := make([]model.Record, 0, len(tests.Buckets))
	for _, bucket := range tests.Buckets {
		rec, reason := a.buildRecord(bucket)
		if rec == nil {
			a.logger.Debug("skipping test", zap.String("key", bucket.Key), zap.String("reason", reason))
			metrics.DroppedItems.WithLabelValues("metadata").Inc()
			continue
		}
		if requestURL != nil {
			rec["url"] = recordURL(requestURL, bucket.Key)
		}
		records = append(records, rec)
	}

	var total countAgg
	if raw, ok := res.Aggregations["tests_total_count"]; ok {
		if err := json.Unmarshal(raw, &total); err != nil {
			return nil, fmt.Errorf("failed to decode tests count: %w", err)
		}
	}

	if paginate && total.Value != 0 && len(records) > 0 {
		first := records[0]
		first["metadata-count-total"] = total.Value
		first["metadata-previous-page"] = nil
		first["metadata-next-page"] = nil
		if requestURL != nil {
			if prev, ok := prevLink(requestURL, limit, offset); ok {
				first["metadata-previous-page"] = prev
			}
			if next, ok := nextLink(requestURL, limit, offset, total.Value); ok {
				first["metadata-next-page"] = next
			}
		}
	}
	return records, nil
}

// Get returns the record of the test identified by key.
func (a *Aggregator) Get(ctx context.Context, key string, params model.Params, requestURL *url.URL) (model.Record, error) {
	q := make(model.Params, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q["metadata-key"] = key
	delete(q, esmond.LimitParam)
	delete(q, esmond.OffsetParam)

	records, err := a.Search(ctx, q, requestURL, false)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no metadata with key %s", model.ErrNotFound, key)
	}
	return records[0], nil
}

func buildSearchQuery(predicates []model.Predicate, limit, offset int) map[string]interface{} {
	termsSize := offset + limit
	if termsSize < 1 {
		termsSize = 1
	}
	query := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"tests_total_count": map[string]interface{}{
				"cardinality": map[string]interface{}{"field": checksumField},
			},
			"tests": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": checksumField,
					"size":  termsSize,
					"order": map[string]interface{}{"latest_test": "desc"},
				},
				"aggs": map[string]interface{}{
					"test_params": map[string]interface{}{
						"top_hits": map[string]interface{}{
							"size": 1,
							"sort": []map[string]interface{}{
								{startTimeField: map[string]interface{}{"order": "desc"}},
							},
							"_source": []string{"test.*", "meta.*", "pscheduler.*", "reference.*"},
						},
					},
					"latest_test": map[string]interface{}{
						"max": map[string]interface{}{"field": startTimeField},
					},
					"sorted_test": map[string]interface{}{
						"bucket_sort": map[string]interface{}{
							"sort": []map[string]interface{}{
								{"latest_test": map[string]interface{}{"order": "desc"}},
							},
							"size": limit,
							"from": offset,
						},
					},
				},
			},
		},
	}
	if len(predicates) > 0 {
		query["query"] = map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": predicates,
			},
		}
	}
	return query
}

// buildRecord converts the representative document of a test. A nil record
// comes with the reason it was skipped.
func (a *Aggregator) buildRecord(bucket testBucket) (model.Record, string) {
	hits := bucket.TestParams.Hits.Hits
	if len(hits) == 0 {
		return nil, "no representative document"
	}
	doc := hits[0].Source

	rec := model.Record{
		"metadata-key": bucket.Key,
		"uri":          a.uris.Metadata(bucket.Key),
	}

	observer, ok := esmond.LookupString(doc, "meta.observer.ip")
	if !ok {
		return nil, "missing observer address"
	}
	rec["measurement-agent"] = observer

	source, hasSource := esmond.LookupString(doc, "meta.source.ip")
	dest, hasDest := esmond.LookupString(doc, "meta.destination.ip")
	switch {
	case hasSource && hasDest:
		rec["subject-type"] = "point-to-point"
		rec["source"] = source
		rec["destination"] = dest
	case hasSource:
		rec["subject-type"] = "network-element"
		rec["source"] = source
	default:
		rec["subject-type"] = "network-element"
		rec["source"] = observer
	}

	tool, ok := esmond.LookupString(doc, "pscheduler.tool")
	if !ok {
		return nil, "missing tool"
	}
	rec["tool-name"] = "pscheduler/" + tool
	duration, _ := esmond.Lookup(doc, "pscheduler.duration")
	rec["time-duration"] = duration

	testType, _ := esmond.LookupString(doc, "test.type")
	if testType == "" {
		return nil, "missing test type"
	}
	rec["pscheduler-test-type"] = testType
	spec, ok := esmond.LookupMap(doc, "test.spec")
	if !ok || len(spec) == 0 {
		return nil, "missing test spec"
	}
	if src, ok := spec["source"]; ok && src != nil && src != "" {
		rec["input-source"] = src
	} else {
		rec["input-source"] = observer
	}
	if dst, ok := spec["dest"]; ok && dst != nil && dst != "" {
		rec["input-destination"] = dst
	}

	var updated *int64
	if added, ok := esmond.Lookup(doc, "pscheduler.added"); ok {
		if ts, ok := esmond.Timestamp(added); ok {
			updated = &ts
		}
	}

	reference, _ := esmond.LookupMap(doc, "reference")
	a.parse(testType, spec, reference, bucket.Key, updated, rec)
	return rec, ""
}

// parse applies the field parser of testType and lists the event types.
func (a *Aggregator) parse(testType string, spec, reference map[string]interface{}, key string, updated *int64, target model.Record) {
	p := parserFor(testType)
	for field, name := range p.fieldMap {
		if v, ok := spec[field]; ok {
			target[name] = v
		}
	}
	if p.additional != nil {
		p.additional(testType, spec, target)
	}

	// reference is not part of the checksum, so these are the fields of the
	// latest run only
	for field, val := range reference {
		if strings.HasPrefix(field, "_") {
			continue
		}
		flattenField("pscheduler-reference-"+field, val, target)
	}

	var ets []string
	if p.eventTypes != nil {
		ets = p.eventTypes(spec)
	}
	ets = append(ets, esmond.EventTypeRunHref, esmond.EventTypeRaw)

	entries := make([]model.EventTypeEntry, 0, len(ets))
	for _, et := range ets {
		entries = append(entries, a.eventTypeEntry(key, et, updated))
	}
	target["event-types"] = entries
}

func (a *Aggregator) eventTypeEntry(key, eventType string, updated *int64) model.EventTypeEntry {
	entry := model.EventTypeEntry{
		EventType:   eventType,
		BaseURI:     a.uris.EventType(key, eventType),
		TimeUpdated: updated,
	}
	for _, s := range a.cfg.Catalog.Summaries(eventType) {
		s.URI = a.uris.Summary(key, eventType, s.SummaryType, s.SummaryWindow)
		entry.Summaries = append(entry.Summaries, s)
	}
	return entry
}

// ---- links ----

// recordURL is the request URL with the metadata key as last path segment.
func recordURL(u *url.URL, key string) string {
	out := *u
	out.Path = strings.TrimSuffix(out.Path, "/")
	if !strings.HasSuffix(out.Path, key) {
		out.Path = out.Path + "/" + key
	}
	out.RawPath = ""
	return out.String()
}

func prevLink(u *url.URL, limit, offset int) (string, bool) {
	if offset == 0 {
		return "", false
	}
	newOffset := offset - limit
	newLimit := limit
	if limit > offset {
		newOffset = 0
		newLimit = offset
	}
	return pageURL(u, newLimit, newOffset), true
}

func nextLink(u *url.URL, limit, offset, total int) (string, bool) {
	if limit+offset >= total {
		return "", false
	}
	newOffset := limit + offset
	newLimit := limit
	if newOffset+newLimit > total && newOffset < total {
		newLimit = total - newOffset
	}
	return pageURL(u, newLimit, newOffset), true
}

func pageURL(u *url.URL, limit, offset int) string {
	out := *u
	q := out.Query()
	q.Set(esmond.LimitParam, strconv.Itoa(limit))
	q.Set(esmond.OffsetParam, strconv.Itoa(offset))
	out.RawQuery = q.Encode()
	return out.String()
}
