package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/justsurfingit/careerboost/internal/dtos"
	"github.com/justsurfingit/careerboost/internal/pipeline"
)

// statusFor maps a run or stage error to the HTTP status reported for it.
func statusFor(err error) int {
	switch {
	case pipeline.IsExtractionError(err):
		return http.StatusUnprocessableEntity
	case pipeline.IsGatewayError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) *dtos.ErrorBody {
	if err == nil {
		return nil
	}
	return &dtos.ErrorBody{Kind: pipeline.ErrorKind(err), Message: err.Error()}
}
