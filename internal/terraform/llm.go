package terraform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/devopsd/internal/config"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
)

const (
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxRetries  = 3
)

const promptTemplate = `Generate Terraform configuration for %s in %s region.
User request: "%s"

Resources to include: %s

Please generate valid Terraform HCL code with proper structure.
Include all necessary providers, resources, and outputs.`

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// langchainCompleter adapts a langchaingo model.
type langchainCompleter struct {
	model       llms.Model
	temperature float64
}

func (c *langchainCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(c.temperature))
}

// NewOpenAICompleter builds a Completer backed by an OpenAI-compatible API.
func NewOpenAICompleter(cfg config.LLMConfig) (Completer, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("llm api key required")
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey.Value()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return &langchainCompleter{model: model, temperature: cfg.Temperature}, nil
}

// LLMGenerator asks a language model for HCL.
type LLMGenerator struct {
	client     Completer
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

// LLMOption configures an LLMGenerator.
type LLMOption func(*LLMGenerator)

// WithRateLimit caps requests per minute.
func WithRateLimit(perMinute, burst int) LLMOption {
	return func(g *LLMGenerator) {
		if perMinute > 0 && burst > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
		}
	}
}

// WithMaxRetries sets how many times a failed completion is retried.
func WithMaxRetries(n int) LLMOption {
	return func(g *LLMGenerator) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between retries; it doubles per attempt.
func WithBackoff(d time.Duration) LLMOption {
	return func(g *LLMGenerator) { g.backoff = d }
}

// WithLLMLogger sets the logger.
func WithLLMLogger(l *logging.Logger) LLMOption {
	return func(g *LLMGenerator) { g.logger = l }
}

// NewLLMGenerator wraps client.
func NewLLMGenerator(client Completer, opts ...LLMOption) *LLMGenerator {
	g := &LLMGenerator{
		client:     client,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBaseBackoff,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Prompt renders the request as model input.
func Prompt(req Request) string {
	resources := req.Resources
	if len(resources) == 0 {
		resources = DefaultResources
	}
	region := req.Region
	if region == "" {
		region = req.Provider.DefaultRegion
	}
	return fmt.Sprintf(promptTemplate, req.Provider.Provider, region, req.UserRequest, strings.Join(resources, ", "))
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (string, error) {
	prompt := Prompt(req)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		text, err := g.client.Complete(ctx, prompt)
		if err == nil {
			hcl := ExtractHCL(text)
			if strings.TrimSpace(hcl) == "" {
				return "", errors.New("empty completion")
			}
			return hcl, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		g.logger.Warn(ctx, "terraform generation attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ExtractHCL strips a markdown code fence if the model wrapped its answer in one.
func ExtractHCL(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
