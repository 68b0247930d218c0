package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"tableside/internal/logger"
	"tableside/internal/models"
)

// WriteJSON writes body with the given status.
func WriteJSON(w http.ResponseWriter, r *http.Request, log *logger.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("response_encoding_failed", "Failed to encode response", logger.RequestID(r.Context()), err, nil)
	}
}

// WriteErrorResponse writes an error response in JSON format
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}

	json.NewEncoder(w).Encode(errorResponse)
}

// Fail logs err under action and writes the status its class maps to.
// Server-side failures are logged as errors, caller mistakes at debug.
func Fail(w http.ResponseWriter, r *http.Request, log *logger.Logger, action string, err error) {
	requestID := logger.RequestID(r.Context())
	status, message := StatusFor(err)

	fields := map[string]interface{}{
		"path":        r.URL.Path,
		"status_code": status,
	}
	if status >= http.StatusInternalServerError {
		log.Error(action, "Request failed", requestID, err, fields)
	} else {
		log.Debug(action, err.Error(), requestID, fields)
	}
	WriteErrorResponse(w, status, message, requestID)
}

// StatusFor maps a service error to an HTTP status and client message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrLockHeld):
		return http.StatusLocked, err.Error()
	case errors.Is(err, models.ErrPersistenceConflict):
		return http.StatusServiceUnavailable, "Concurrent update, please retry"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// DecodeJSON reads a JSON body into dst, rejecting unknown fields. On
// failure it writes a 400 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, log *logger.Logger, dst interface{}) bool {
	requestID := logger.RequestID(r.Context())

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		WriteErrorResponse(w, http.StatusBadRequest, "Content-Type must be application/json", requestID)
		return false
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		log.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return false
	}
	return true
}

const maxBodyBytes = 1 << 20

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be
// omitted. An absent or blank body, chunked or not, leaves dst untouched.
func DecodeOptionalJSON(w http.ResponseWriter, r *http.Request, log *logger.Logger, dst interface{}) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("validation_failed", "Failed to read request body", logger.RequestID(r.Context()), err, nil)
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body", logger.RequestID(r.Context()))
		return false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return true
	}

	r.Body = io.NopCloser(bytes.NewReader(raw))
	return DecodeJSON(w, r, log, dst)
}
