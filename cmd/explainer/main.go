// Command explainer generates plain-language explanations for health-based
// violations.
//
// By default it runs the worker: it consumes explanation requests from
// Kafka, generates explanations, and stores them. With -enqueue it instead
// queries violations that need explanations and publishes requests.
//
// Usage:
//
//	explainer
//	explainer -enqueue [-limit N] [-regenerate] [-include-historical]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/water-compliance-api/internal/adapter/genai"
	httpadapter "github.com/couchcryptid/water-compliance-api/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/water-compliance-api/internal/adapter/kafka"
	"github.com/couchcryptid/water-compliance-api/internal/adapter/postgres"
	"github.com/couchcryptid/water-compliance-api/internal/config"
	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/couchcryptid/water-compliance-api/internal/observability"
	"github.com/couchcryptid/water-compliance-api/internal/pipeline"
)

func main() {
	enqueue := flag.Bool("enqueue", false, "publish explanation requests instead of running the worker")
	limit := flag.Int("limit", 0, "maximum violations to enqueue (0 for all)")
	regenerate := flag.Bool("regenerate", false, "enqueue violations that already have a current explanation")
	includeHistorical := flag.Bool("include-historical", false, "include resolved and archived violations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *enqueue {
		q := domain.ExplanationQuery{
			Limit:             *limit,
			IncludeHistorical: *includeHistorical,
			Regenerate:        *regenerate,
		}
		if err := runEnqueue(ctx, cfg, q, logger); err != nil {
			logger.Error("enqueue failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runWorker(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

// runEnqueue publishes a request for every violation matching q.
func runEnqueue(ctx context.Context, cfg *config.Config, q domain.ExplanationQuery, logger *slog.Logger) error {
	store, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.BackendTimeout, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	violations, err := store.ViolationsNeedingExplanations(ctx, q)
	if err != nil {
		return err
	}
	logger.Info("violations needing explanations",
		"count", len(violations),
		"include_historical", q.IncludeHistorical,
		"regenerate", q.Regenerate,
	)
	if len(violations) == 0 {
		return nil
	}

	writer := kafkaadapter.NewWriter(cfg, cfg.KafkaRequestTopic, logger)
	defer writer.Close()

	for start := 0; start < len(violations); start += cfg.BatchSize {
		end := min(start+cfg.BatchSize, len(violations))
		if err := writer.PublishRequests(ctx, violations[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// runWorker consumes requests until ctx is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	var generator domain.ExplanationGenerator
	if cfg.GenAIEnabled {
		g, err := genai.NewGenerator(ctx, cfg, logger, metrics)
		if err != nil {
			return err
		}
		generator = g
		metrics.GenerateEnabled.Set(1)
		logger.Info("genai explanations enabled",
			"model", cfg.GenAIModel,
			"rate_limit", cfg.GenAIRateLimit,
			"cache_size", cfg.GenAICacheSize,
		)
	} else {
		logger.Info("genai explanations disabled, using fallback text")
	}

	sink, err := openSink(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	transformer := pipeline.NewTransformer(generator, cfg.ModelVersion(), logger, metrics)
	p := pipeline.New(reader, transformer, sink, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger, metrics)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := sink.Close(); err != nil {
		logger.Error("sink close error", "sink", cfg.ExplainSink, "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

type sink interface {
	pipeline.BatchLoader
	io.Closer
}

func openSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sink, error) {
	switch cfg.ExplainSink {
	case config.SinkPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.BackendTimeout, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.SinkKafka:
		return kafkaadapter.NewWriter(cfg, cfg.KafkaExplanationTopic, logger), nil
	default:
		return nil, fmt.Errorf("unknown explanation sink %q", cfg.ExplainSink)
	}
}
