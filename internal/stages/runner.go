package stages

import (
	"context"
	"errors"
	"time"

	"github.com/justsurfingit/careerboost/internal/llm"
	"github.com/justsurfingit/careerboost/internal/logger"
	"github.com/justsurfingit/careerboost/internal/normalizer"
	"go.uber.org/zap"
)

// Runner executes single stages. It keeps no per-call state.
type Runner struct {
	gateway    llm.Gateway
	normalizer *normalizer.Normalizer
	logger     *zap.Logger
}

func NewRunner(gateway llm.Gateway, n *normalizer.Normalizer, log *zap.Logger) *Runner {
	if n == nil {
		n = normalizer.New()
	}
	return &Runner{gateway: gateway, normalizer: n, logger: logger.OrNop(log)}
}

// Run performs one attempt of spec. Gateway failures and ErrMissingInput are
// returned as errors. Output that cannot be parsed comes back as a Result
// carrying an ErrorResult, with a nil error.
func (r *Runner) Run(ctx context.Context, spec *Spec, in Input) (normalizer.Result, error) {
	prompt, err := spec.Prompt(in)
	if err != nil {
		return normalizer.Result{}, err
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := r.gateway.Complete(ctx, prompt, spec.Options)
	if err != nil {
		var pErr *llm.ProviderError
		r.logger.Warn("model call failed",
			zap.String("stage", spec.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("timeout", errors.As(err, &pErr) && pErr.Timeout()),
			zap.Error(err),
		)
		return normalizer.Result{}, err
	}

	res := r.normalizer.Normalize(text)
	if res.OK() {
		r.logger.Debug("stage output normalized",
			zap.String("stage", spec.Name),
			zap.String("method", string(res.Method)),
			zap.Duration("duration", time.Since(start)),
		)
	} else {
		r.logger.Warn("stage output is not structured",
			zap.String("stage", spec.Name),
			zap.String("reason", res.Err.Message),
			zap.Int("raw_len", len(res.Err.RawText)),
		)
	}
	return res, nil
}
