// Package httpserver contains HTTP handlers and middleware.
//
// It exposes video lookup, search and recipe extraction endpoints, plus the
// administrative view of the credential pools (statistics and reset).
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/recipe-extractor/internal/domain"
)

// statusClientClosedRequest is the de-facto status for a client that went away.
const statusClientClosedRequest = 499

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrRateLimited):
		code = http.StatusTooManyRequests
		codeStr = "RATE_LIMITED"
	case errors.Is(err, domain.ErrNoCredential):
		code = http.StatusServiceUnavailable
		codeStr = "NO_CREDENTIAL"
	case errors.Is(err, domain.ErrCanceled):
		code = statusClientClosedRequest
		codeStr = "CANCELED"
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
			codeStr = "UPSTREAM_TIMEOUT"
		}
	case errors.Is(err, domain.ErrInvalidJSON):
		code = http.StatusBadGateway
		codeStr = "INVALID_UPSTREAM_RESPONSE"
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		code = http.StatusServiceUnavailable
		codeStr = "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, domain.ErrUpstreamExhausted):
		code = http.StatusBadGateway
		codeStr = "UPSTREAM_FAILED"
	}
	if code >= http.StatusInternalServerError {
		LoggerFrom(r).Error("request failed", "code", codeStr, "error", err)
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
