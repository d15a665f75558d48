package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGenAIModel = "gemini-2.5-flash"

// GenAIGateway talks to Gemini through the native google.golang.org/genai SDK.
type GenAIGateway struct {
	client   *genai.Client
	defaults Options
}

// NewGenAIGateway creates a Gemini API client.
func NewGenAIGateway(ctx context.Context, apiKey string, defaults Options) (*GenAIGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}
	if defaults.Model == "" {
		defaults.Model = defaultGenAIModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIGateway{client: client, defaults: defaults}, nil
}

func (g *GenAIGateway) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	opts = opts.Merge(g.defaults)

	cfg := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", wrapError(ctx, ProviderGenAI, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
