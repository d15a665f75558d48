package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/justsurfingit/careerboost/internal/extractor"
	"github.com/justsurfingit/careerboost/internal/llm"
	"github.com/justsurfingit/careerboost/internal/stages"
)

// ErrNoResume is returned for requests without a document or resume text.
var ErrNoResume = errors.New("request has neither document_path nor resume_text")

// StageError reports the stage a run halted at. Err is the cause as returned
// by the failing component.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Error kinds reported by ErrorKind.
const (
	KindUnsupportedFormat = "UnsupportedFormat"
	KindReadError         = "ReadError"
	KindProviderError     = "ProviderError"
	KindEmptyResponse     = "EmptyResponse"
	KindMissingInput      = "MissingInput"
	KindInvalidRequest    = "InvalidRequest"
	KindCanceled          = "Canceled"
	KindInternal          = "Internal"
)

// ErrorKind classifies a run error for callers that report it.
func ErrorKind(err error) string {
	var pErr *llm.ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, extractor.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, extractor.ErrRead):
		return KindReadError
	case errors.As(err, &pErr):
		return KindProviderError
	case errors.Is(err, llm.ErrEmptyResponse):
		return KindEmptyResponse
	case errors.Is(err, stages.ErrMissingInput):
		return KindMissingInput
	case errors.Is(err, ErrNoResume):
		return KindInvalidRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// IsExtractionError reports whether err came from reading the document.
func IsExtractionError(err error) bool {
	return errors.Is(err, extractor.ErrUnsupportedFormat) || errors.Is(err, extractor.ErrRead) || errors.Is(err, ErrNoResume)
}

// IsGatewayError reports whether err came from the model provider.
func IsGatewayError(err error) bool {
	var pErr *llm.ProviderError
	return errors.As(err, &pErr) || errors.Is(err, llm.ErrEmptyResponse)
}
