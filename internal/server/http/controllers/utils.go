package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	dispatchsvc "github.com/rzbill/dispatch/internal/services/dispatch"
)

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError maps service errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatchsvc.ErrEmptyKey), errors.Is(err, dispatchsvc.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, dispatchsvc.ErrQueueFull), errors.Is(err, dispatchsvc.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, dispatchsvc.ErrAlreadySubscribed):
		return http.StatusConflict
	case errors.Is(err, dispatchsvc.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseLimit returns 0 for empty or invalid values.
func parseLimit(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return 0
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// withRequestID tags the request context with X-Request-ID, generating one
// when the client sent none, and echoes it on the response.
func withRequestID(w http.ResponseWriter, r *http.Request) context.Context {
	rid := r.Header.Get("X-Request-ID")
	if rid == "" {
		rid = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", rid)
	return dispatchsvc.WithRequestID(r.Context(), rid)
}
