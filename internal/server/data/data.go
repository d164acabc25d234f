// Package data fetches the time series of one event type of a test and
// normalizes every stored document into a data point.
package data

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/perfsonar/elmond/internal/config"
	"github.com/perfsonar/elmond/internal/esmond"
	"github.com/perfsonar/elmond/internal/model"
	"github.com/perfsonar/elmond/internal/server/filters"
	"github.com/perfsonar/elmond/internal/server/metrics"
)

// Fetcher reads data points from the raw or the rolled up indices.
type Fetcher struct {
	cfg      *config.Config
	searcher model.Searcher
	logger   *zap.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg *config.Config, searcher model.Searcher, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		searcher: searcher,
		logger:   logger.Named("data"),
	}
}

// Fetch returns the points of eventType for the test identified by key,
// oldest first. A window of 0 reads raw measurements, anything else reads
// the rollup for that window.
func (f *Fetcher) Fetch(ctx context.Context, key, eventType, summaryType, window string, params model.Params) ([]model.DataPoint, error) {
	w, err := strconv.Atoi(window)
	if err != nil {
		return nil, fmt.Errorf("%w: summary window must be an integer", model.ErrInvalidRequest)
	}
	if eventType == esmond.EventTypeRaw {
		// the raw passthrough serves whole results whatever the summary
		summaryType, w = base, 0
	} else if !f.cfg.Catalog.Supports(eventType, summaryType, w) {
		return nil, fmt.Errorf("%w: %s summary with window %d is not available for %s",
			model.ErrNotImplemented, summaryType, w, eventType)
	}

	limit, offset, err := esmond.Page(params)
	if err != nil {
		return nil, err
	}
	tr, err := esmond.ParseTimeRange(params)
	if err != nil {
		return nil, err
	}

	sel := selection{
		eventType:   eventType,
		summaryType: summaryType,
		rollup:      w > 0,
	}
	var (
		index     string
		timeField string
		preds     []model.Predicate
	)
	if sel.rollup {
		interval, ok := f.cfg.IntervalName(w)
		if !ok {
			return nil, fmt.Errorf("%w: no rollup configured for window %d", model.ErrNotImplemented, w)
		}
		sel.paths = rollupFields[fieldKey(eventType, summaryType)]
		index, timeField = f.cfg.RollupIndex, rollupTimeField
		preds = []model.Predicate{
			filters.Term(rollupKeyField, key),
			filters.Term(rollupIntervalField, interval),
		}
	} else {
		sel.paths = rawFields[fieldKey(eventType, summaryType)]
		index, timeField = f.cfg.RawIndex, rawTimeField
		preds = []model.Predicate{
			filters.Term(rawKeyField, key),
			filters.Term(rawSuccessField, eventType != esmond.EventTypeFailures),
		}
	}
	if len(sel.paths) == 0 {
		return nil, fmt.Errorf("%w: unrecognized event type %s", model.ErrInvalidRequest, eventType)
	}
	if tr != nil {
		preds = append(preds, tr.Predicate(timeField))
	}

	req := model.SearchRequest{
		Index: index,
		Body:  buildDataQuery(timeField, sel.paths, preds, limit, offset),
	}
	res, err := f.searcher.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s data: %w", eventType, err)
	}

	points := make([]model.DataPoint, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		ts, ok := hitTimestamp(hit.Source, timeField)
		if !ok {
			f.drop(hit, "missing timestamp")
			continue
		}
		val, ok := extract(sel, hit.Source)
		if !ok || val == nil {
			f.drop(hit, "no value")
			continue
		}
		points = append(points, model.DataPoint{TS: ts, Val: val})
	}
	return points, nil
}

func (f *Fetcher) drop(hit model.SearchHit, reason string) {
	f.logger.Debug("dropping data point",
		zap.String("index", hit.Index),
		zap.String("id", hit.ID),
		zap.String("reason", reason),
	)
	metrics.DroppedItems.WithLabelValues("datapoint").Inc()
}

func hitTimestamp(doc map[string]interface{}, field string) (int64, bool) {
	v, ok := esmond.Lookup(doc, field)
	if !ok {
		return 0, false
	}
	return esmond.Timestamp(v)
}

func buildDataQuery(timeField string, paths []string, preds []model.Predicate, limit, offset int) map[string]interface{} {
	source := []string{timeField}
	for _, p := range paths {
		source = append(source, p, p+".*")
	}
	return map[string]interface{}{
		"size":    limit,
		"from":    offset,
		"_source": source,
		"sort": []map[string]interface{}{
			{timeField: map[string]interface{}{"order": "asc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": preds,
			},
		},
	}
}
