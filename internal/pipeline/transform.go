package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/couchcryptid/water-compliance-api/internal/observability"
)

// ExplanationTransformer implements Transformer. It decodes the violation
// context and asks the generator for an explanation, falling back to the
// deterministic text when generation is disabled or fails.
type ExplanationTransformer struct {
	generator    domain.ExplanationGenerator
	modelVersion string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewTransformer creates an ExplanationTransformer. Pass a nil generator to
// produce fallback explanations only.
func NewTransformer(generator domain.ExplanationGenerator, modelVersion string, logger *slog.Logger, metrics *observability.Metrics) *ExplanationTransformer {
	return &ExplanationTransformer{
		generator:    generator,
		modelVersion: modelVersion,
		logger:       logger,
		metrics:      metrics,
	}
}

func (t *ExplanationTransformer) Transform(ctx context.Context, raw domain.RawMessage) (domain.Explanation, error) {
	v, err := domain.ParseViolationContext(raw)
	if err != nil {
		return domain.Explanation{}, err
	}

	if t.generator == nil {
		t.metrics.GenerateRequests.WithLabelValues("fallback").Inc()
		return domain.NewExplanation(v, domain.FallbackExplanation(v), t.modelVersion, true), nil
	}

	text, err := t.generator.Generate(ctx, v)
	if err != nil {
		t.logger.Warn("generation failed, using fallback explanation",
			"error", err,
			"violation", v.Key(),
			"pwsid", v.PWSID,
		)
		t.metrics.GenerateRequests.WithLabelValues("fallback").Inc()
		return domain.NewExplanation(v, domain.FallbackExplanation(v), t.modelVersion, true), nil
	}
	return domain.NewExplanation(v, text, t.modelVersion, false), nil
}
