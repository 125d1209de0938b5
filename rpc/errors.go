package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	nativecommon "lendnet/native/common"
	"lendnet/native/lending"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message})
}

// writeEngineError maps engine failures onto HTTP statuses. Business
// rejections surface as client errors with the sentinel text; anything
// unrecognised is a 500.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lending.ErrNotListed):
		status = http.StatusNotFound
	case errors.Is(err, lending.ErrAlreadyListed):
		status = http.StatusConflict
	case errors.Is(err, lending.ErrInvalidParameter),
		errors.Is(err, lending.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, lending.ErrCapExceeded),
		errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrUnhealthyPosition),
		errors.Is(err, lending.ErrNoDebt),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, lending.ErrStalePrice),
		errors.Is(err, lending.ErrPriceUnavailable),
		errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, nativecommon.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, lending.ErrReentrantCall):
		status = http.StatusTooManyRequests
	}
	writeError(w, status, err.Error())
}
