package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/perfsonar/elmond/internal/model"
	"github.com/perfsonar/elmond/internal/server/metrics"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Username  string
	Password  string
}

// Client implements model.Searcher backed by Elasticsearch.
type Client struct {
	es     *elasticsearch.Client
	logger *zap.Logger
}

var _ model.Searcher = (*Client)(nil)

// NewClient creates a new Elasticsearch storage client. No connection is
// made until the first request.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Client{
		es:     es,
		logger: logger.Named("elasticsearch"),
	}, nil
}

// Ping checks that the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping error: %s", res.String())
	}
	return nil
}

// Search runs one search request. Query construction, sorting and paging
// are all part of the request body.
func (c *Client) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResult, error) {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	c.logger.Debug("search", zap.String("index", req.Index), zap.ByteString("body", body))

	start := time.Now()
	result, err := c.search(ctx, req.Index, body)
	metrics.BackendQueryDuration.WithLabelValues(req.Index).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.BackendQueries.WithLabelValues(req.Index, outcome).Inc()
	return result, err
}

func (c *Client) search(ctx context.Context, index string, body []byte) (*model.SearchResult, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var result model.SearchResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
