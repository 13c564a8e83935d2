package view

import (
	"errors"
	"net/http"

	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

// OutcomeStatus maps a relayer outcome to the HTTP status returned for it.
func OutcomeStatus(o relayer.Outcome) int {
	switch o {
	case relayer.OutcomeSettled, relayer.OutcomeAlreadyProcessed:
		return http.StatusOK
	case relayer.OutcomeInProgress, relayer.OutcomeAwaitingConfirmation, relayer.OutcomeDeferred:
		return http.StatusAccepted
	case relayer.OutcomeInsufficientReserve:
		return http.StatusConflict
	case relayer.OutcomeRejected:
		return http.StatusUnprocessableEntity
	case relayer.OutcomePaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, relayer.ErrInvalidRequest), errors.Is(err, relayer.ErrUnsupportedChain):
		return http.StatusBadRequest
	case errors.Is(err, relayer.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
