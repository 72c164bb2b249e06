package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDeviceError maps device errors to HTTP statuses.
func writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, knxip.ErrInvalidID):
		writeNotFound(w, err.Error())
	case errors.Is(err, knxip.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, knxip.ErrDisabled):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, knxip.ErrKindMismatch),
		errors.Is(err, knxip.ErrInvalidOption),
		errors.Is(err, knxip.ErrInvalidAddress),
		errors.Is(err, knxip.ErrPayloadTooLong):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, knxip.ErrNoStore), errors.Is(err, knxip.ErrNoSender):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
