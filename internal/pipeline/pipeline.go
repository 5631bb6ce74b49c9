package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/couchcryptid/water-compliance-api/internal/observability"
)

// BatchExtractor reads up to batchSize explanation requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer turns an explanation request into a stored explanation.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawMessage) (domain.Explanation, error)
}

// BatchLoader writes explanations to the sink.
type BatchLoader interface {
	LoadBatch(ctx context.Context, explanations []domain.Explanation) error
}

// Pipeline orchestrates the extract-explain-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once a batch has been loaded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no explanation batch loaded yet")
	}
	return nil
}

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
//
// A fetch error may arrive with a partial batch. Those messages are explained,
// loaded, and committed before backing off; the consumer group does not hand
// them out again in this session.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, extractErr := p.extractor.ExtractBatch(ctx, p.batchSize)
	if extractErr != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", extractErr, "fetched", len(rawBatch))
	}

	if len(rawBatch) == 0 {
		if extractErr != nil {
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))

	explanations := p.explainBatch(ctx, rawBatch)
	if len(explanations) > 0 {
		if !p.loadWithRetry(ctx, explanations, maxBackoff) {
			return false
		}
		p.metrics.ExplanationsProduced.Add(float64(len(explanations)))
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}

	// Offsets are committed in fetch order only after the sink holds every
	// explanation, so a crash before this point redelivers the whole batch.
	for _, raw := range rawBatch {
		p.commitOffset(ctx, raw)
	}

	if extractErr != nil {
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}
	*backoff = initialBackoff
	return true
}

// explainBatch transforms each request. Requests that cannot be parsed are
// counted and dropped; their offsets are committed with the rest of the batch.
func (p *Pipeline) explainBatch(ctx context.Context, rawBatch []domain.RawMessage) []domain.Explanation {
	explanations := make([]domain.Explanation, 0, len(rawBatch))
	for _, raw := range rawBatch {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			continue
		}
		explanations = append(explanations, out)
	}
	return explanations
}

// loadWithRetry writes the explanations, retrying with capped exponential
// backoff until the sink accepts them. Returns false only when ctx is done.
func (p *Pipeline) loadWithRetry(ctx context.Context, explanations []domain.Explanation, maxBackoff time.Duration) bool {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := p.loader.LoadBatch(ctx, explanations)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("load batch failed, retrying",
			"error", err,
			"batch_size", len(explanations),
			"attempt", attempt,
			"backoff", backoff,
		)
		p.metrics.LoadRetries.Inc()
		if !p.backoffOrStop(ctx, &backoff, maxBackoff) {
			return false
		}
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

const initialBackoff = 200 * time.Millisecond

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
