// Package llm is the boundary to generative model providers: send a prompt,
// get text back. Retries are not done here; callers decide per stage.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

var (
	// ErrEmptyResponse is returned when a provider answers without any text.
	ErrEmptyResponse = errors.New("empty response from model provider")
	// ErrTimeout is the ProviderError cause for an expired call deadline.
	ErrTimeout = errors.New("model provider call timed out")
)

// Options is the bounded set of generation options forwarded to providers.
// Zero values leave the provider default in place.
type Options struct {
	Model       string  `yaml:"model" json:"model,omitempty"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature,omitempty"`
}

// Merge returns o with zero fields filled from defaults.
func (o Options) Merge(defaults Options) Options {
	if o.Model == "" {
		o.Model = defaults.Model
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaults.MaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = defaults.Temperature
	}
	return o
}

// Gateway sends one prompt and returns the model text. Implementations must be
// safe for concurrent use by independent callers.
type Gateway interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, prompt string, opts Options) (string, error)

func (f GatewayFunc) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// ProviderError is a transport, auth or rate-limit failure of the provider.
type ProviderError struct {
	Provider string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the call ran past its deadline.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Cause, ErrTimeout)
}

// Retryable reports whether another attempt could succeed. Caller
// cancellation and request/auth rejections are final.
func (e *ProviderError) Retryable() bool {
	if errors.Is(e.Cause, context.Canceled) {
		return false
	}
	if code := statusCode(e.Cause); code != 0 {
		switch code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	return true
}

// statusCode digs the HTTP status out of the SDK error types, or 0.
func statusCode(err error) int {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// wrapError turns a provider SDK error into a ProviderError. A context that
// ran out of time is reported as ErrTimeout whatever the SDK said.
func wrapError(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Cause: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}
	return &ProviderError{Provider: provider, Cause: err}
}

// IsRetryable reports whether err from a Gateway is worth another attempt.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Retryable()
	}
	return false
}
