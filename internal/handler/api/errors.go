package api

import (
	"errors"

	"QuotaGame/internal/services/barrier"
	"QuotaGame/internal/usecase"
	xhttp "QuotaGame/pkg/http"
)

// toAppError maps domain errors onto HTTP errors. Rule violations are the client's to
// fix and are never retried.
func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, barrier.ErrInvalidRegion):
		return xhttp.UnprocessableError("ERR_INVALID_REGION", "rectangle cannot be priced").WithError(err)
	case errors.Is(err, barrier.ErrInvalidInput):
		return xhttp.UnprocessableError("ERR_INVALID_INPUT", "invalid simulation input").WithError(err)
	case errors.Is(err, barrier.ErrWorkLimit):
		return xhttp.UnprocessableError("ERR_WORK_LIMIT", "simulation exceeds the work limit").WithError(err)
	case errors.Is(err, usecase.ErrRoundLocked):
		return xhttp.ConflictError("ERR_ROUND_LOCKED", "round is locked until settled and resumed").WithError(err)
	case errors.Is(err, usecase.ErrInvalidTransition):
		return xhttp.ConflictError("ERR_INVALID_TRANSITION", "action not allowed in the current phase").WithError(err)
	case errors.Is(err, usecase.ErrEstimatePending):
		return xhttp.ConflictError("ERR_ESTIMATE_PENDING", "estimate not ready").WithError(err)
	case errors.Is(err, usecase.ErrStaleEstimate):
		return xhttp.ConflictError("ERR_STALE_ESTIMATE", "proposal changed while pricing").WithError(err)
	case errors.Is(err, usecase.ErrOutsideRectangle):
		return xhttp.UnprocessableError("ERR_OUTSIDE_RECTANGLE", "confirm click is outside the rectangle").WithError(err)
	case errors.Is(err, usecase.ErrInsufficientBudget):
		return xhttp.UnprocessableError("ERR_INSUFFICIENT_BUDGET", "budget does not cover the stake").WithError(err)
	case errors.Is(err, usecase.ErrUnknownCommand):
		return xhttp.BadRequestError("unknown command").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
