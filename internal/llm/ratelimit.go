package llm

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimited shares one token bucket across every caller of the wrapped
// gateway. Waiting for a token honors the call context.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

func NewRateLimited(next Gateway, limiter *rate.Limiter) *RateLimited {
	return &RateLimited{next: next, limiter: limiter}
}

func (r *RateLimited) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", wrapError(ctx, "ratelimit", ctx.Err())
		}
		// Wait reports a would-exceed-deadline condition without the context
		// having expired yet.
		return "", &ProviderError{Provider: "ratelimit", Cause: errors.Join(ErrTimeout, err)}
	}
	return r.next.Complete(ctx, prompt, opts)
}
