// Package genai generates plain-language violation explanations with
// Google Gemini.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/water-compliance-api/internal/config"
	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/couchcryptid/water-compliance-api/internal/observability"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// generateFunc sends a prompt to the model and returns its raw text reply.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// Generator implements domain.ExplanationGenerator. Calls are rate limited,
// bounded by a per-call timeout, and successful results are cached.
type Generator struct {
	generate generateFunc
	limiter  *rate.Limiter
	timeout  time.Duration
	cache    *explanationCache
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewGenerator creates a Gemini-backed generator for cfg.GenAIModel.
func NewGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GenAIAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.GenAIModel
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(domain.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		MaxOutputTokens:   1000,
		ResponseMIMEType:  "application/json",
	}
	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), genCfg)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}

	return newGenerator(generate, cfg.GenAIRateLimit, cfg.GenAITimeout, cfg.GenAICacheSize, logger, metrics), nil
}

func newGenerator(fn generateFunc, perSecond float64, timeout time.Duration, cacheSize int, logger *slog.Logger, metrics *observability.Metrics) *Generator {
	return &Generator{
		generate: fn,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		timeout:  timeout,
		cache:    newExplanationCache(cacheSize),
		logger:   logger,
		metrics:  metrics,
	}
}

// Generate returns explanation text for v. The cache key includes the
// violation status so a status change produces a fresh explanation.
func (g *Generator) Generate(ctx context.Context, v domain.ViolationContext) (domain.ExplanationText, error) {
	key := keyFor(v)
	if text, ok := g.cache.lookup(key); ok {
		g.metrics.GenerateCache.WithLabelValues("hit").Inc()
		return text, nil
	}
	g.metrics.GenerateCache.WithLabelValues("miss").Inc()

	if err := g.limiter.Wait(ctx); err != nil {
		return domain.ExplanationText{}, fmt.Errorf("wait for rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	reply, err := g.generate(callCtx, domain.BuildPrompt(v))
	g.metrics.GenerateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.GenerateRequests.WithLabelValues("error").Inc()
		return domain.ExplanationText{}, fmt.Errorf("generate explanation for %s: %w", v.Key(), err)
	}

	text, err := parseExplanationJSON(reply)
	if err != nil {
		g.metrics.GenerateRequests.WithLabelValues("error").Inc()
		return domain.ExplanationText{}, fmt.Errorf("generate explanation for %s: %w", v.Key(), err)
	}

	g.metrics.GenerateRequests.WithLabelValues("success").Inc()
	g.cache.store(key, text)
	g.logger.Debug("explanation generated", "violation", v.Key(), "duration", time.Since(start))
	return text, nil
}

var errEmptyExplanation = errors.New("model returned no explanation_text")

// parseExplanationJSON decodes the model reply, accepting a ```json fenced
// block as well as bare JSON.
func parseExplanationJSON(reply string) (domain.ExplanationText, error) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	var text domain.ExplanationText
	if err := json.Unmarshal([]byte(s), &text); err != nil {
		return domain.ExplanationText{}, fmt.Errorf("decode model reply: %w", err)
	}
	if text.ExplanationText == "" {
		return domain.ExplanationText{}, errEmptyExplanation
	}
	return text, nil
}
