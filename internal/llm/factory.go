package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/justsurfingit/careerboost/internal/config"
	"golang.org/x/time/rate"
)

// Provider names accepted in config.LLMConfig.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderGenAI  = "genai"
)

// New builds the gateway selected by cfg, rate limited when
// requests_per_minute is set.
func New(ctx context.Context, cfg config.LLMConfig) (Gateway, error) {
	defaults := Options{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	var (
		gw  Gateway
		err error
	)
	switch cfg.Provider {
	case ProviderGemini:
		gw, err = NewGeminiGateway(ctx, cfg.APIKey(), defaults)
	case ProviderOpenAI:
		gw, err = NewOpenAIGateway(cfg.APIKey(), cfg.OpenAIBaseURL, defaults)
	case ProviderGenAI:
		gw, err = NewGenAIGateway(ctx, cfg.APIKey(), defaults)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limit := rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
		gw = NewRateLimited(gw, rate.NewLimiter(limit, burst))
	}
	return gw, nil
}
