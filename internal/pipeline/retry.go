package pipeline

import (
	"context"
	"time"

	"github.com/justsurfingit/careerboost/internal/llm"
	"github.com/justsurfingit/careerboost/internal/normalizer"
	"github.com/justsurfingit/careerboost/internal/stages"
)

// retry runs f up to attempts times, doubling sleep between tries. It gives up
// early when the error is not retryable or ctx is done, and returns the number
// of attempts made with the last error.
func retry(ctx context.Context, attempts int, sleep time.Duration, retryable func(error) bool, f func(attempt int) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = f(i)
		if err == nil {
			return i, nil
		}
		if i == attempts || !retryable(err) || ctx.Err() != nil {
			return i, err
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return i, err
		case <-timer.C:
		}
		sleep *= 2
	}
	return attempts, err
}

// RunStage runs a single stage outside a pipeline with the stage's retry
// policy. It returns the output, the attempts made and the last error.
func RunStage(ctx context.Context, runner StageRunner, spec *stages.Spec, in stages.Input) (normalizer.Result, int, error) {
	var out normalizer.Result
	attempts, err := retry(ctx, spec.MaxAttempts, spec.Backoff, llm.IsRetryable, func(int) error {
		var runErr error
		out, runErr = runner.Run(ctx, spec, in)
		return runErr
	})
	return out, attempts, err
}
