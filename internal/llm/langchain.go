package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainGateway sends prompts through any langchaingo model.
type LangChainGateway struct {
	provider string
	model    llms.Model
	defaults Options
}

// NewLangChainGateway wraps an already constructed langchaingo model.
func NewLangChainGateway(provider string, model llms.Model, defaults Options) *LangChainGateway {
	return &LangChainGateway{provider: provider, model: model, defaults: defaults}
}

// NewGeminiGateway builds a Gemini client via langchaingo's googleai package.
func NewGeminiGateway(ctx context.Context, apiKey string, defaults Options) (*LangChainGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
	if defaults.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(defaults.Model))
	}
	client, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return NewLangChainGateway(ProviderGemini, client, defaults), nil
}

// NewOpenAIGateway builds an OpenAI client via langchaingo.
func NewOpenAIGateway(apiKey, baseURL string, defaults Options) (*LangChainGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	opts := []openai.Option{openai.WithToken(apiKey)}
	if defaults.Model != "" {
		opts = append(opts, openai.WithModel(defaults.Model))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return NewLangChainGateway(ProviderOpenAI, client, defaults), nil
}

func (g *LangChainGateway) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	opts = opts.Merge(g.defaults)

	var callOpts []llms.CallOption
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}

	resp, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, callOpts...)
	if err != nil {
		return "", wrapError(ctx, g.provider, err)
	}
	if strings.TrimSpace(resp) == "" {
		return "", ErrEmptyResponse
	}
	return resp, nil
}
