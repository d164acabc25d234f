package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-lab/go/flagx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/perfsonar/elmond/internal/config"
	"github.com/perfsonar/elmond/internal/server/api"
	"github.com/perfsonar/elmond/internal/server/data"
	"github.com/perfsonar/elmond/internal/server/filters"
	"github.com/perfsonar/elmond/internal/server/metadata"
	"github.com/perfsonar/elmond/internal/server/storage/elasticsearch"
)

var (
	esAddresses = flag.String("es-addresses", "http://localhost:9200", "Comma separated Elasticsearch addresses")
	esUsername  = flag.String("es-username", "", "Elasticsearch user")
	esPassword  = flag.String("es-password", "", "Elasticsearch password")
	esRetries   = flag.Int("es-connect-retries", 10, "Attempts to reach Elasticsearch at startup")
	listenAddr  = flag.String("listen-addr", ":8080", "Address of the HTTP API")
	configPath  = flag.String("config", "", "Optional YAML configuration file")
	debug       = flag.Bool("debug", false, "Enable debug logging")
)

const shutdownTimeout = 15 * time.Second

func main() {
	flag.Parse()
	if err := flagx.ArgsFromEnv(flag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read flags from environment: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger.
	newLogger := zap.NewProduction
	if *debug {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	addresses := strings.Split(*esAddresses, ",")
	for i := range addresses {
		addresses[i] = strings.TrimSpace(addresses[i])
	}

	logger.Info("starting elmond-server",
		zap.Strings("esAddresses", addresses),
		zap.String("listenAddr", *listenAddr),
		zap.String("baseURI", cfg.BaseURI),
		zap.String("rawIndex", cfg.RawIndex),
		zap.String("rollupIndex", cfg.RollupIndex),
	)

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  *esUsername,
		Password:  *esPassword,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create elasticsearch client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// The API starts either way; requests report the backend state.
	if err := waitForCluster(ctx, esClient, *esRetries, logger); err != nil {
		logger.Warn("elasticsearch is not reachable yet", zap.Error(err))
	}

	builder := filters.NewBuilder(cfg.Catalog, nil, logger)
	aggregator := metadata.NewAggregator(cfg, esClient, builder, logger)
	fetcher := data.NewFetcher(cfg, esClient, logger)
	apiHandler := api.NewHandler(cfg.BaseURI, aggregator, fetcher, logger)

	httpServer := &http.Server{
		Addr:         *listenAddr,
		Handler:      apiHandler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("elmond-server stopped")
}

// waitForCluster pings Elasticsearch with exponential backoff.
func waitForCluster(ctx context.Context, es *elasticsearch.Client, retries int, logger *zap.Logger) error {
	if retries < 1 {
		retries = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries-1)), ctx)
	return backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return es.Ping(pingCtx)
	}, b, func(err error, wait time.Duration) {
		logger.Info("waiting for elasticsearch", zap.Error(err), zap.Duration("retryIn", wait))
	})
}
