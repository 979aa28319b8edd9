package middleware

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in the JSON error body.
const (
	CodeRefreshTokenRequired = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	CodeTokenRotationFailed  = "TOKEN_ROTATION_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInvalidSession       = "INVALID_SESSION"
	CodeCSRFInvalid          = "CSRF_INVALID"
	CodeRateLimited          = "RATE_LIMITED"
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeBadRequest           = "BAD_REQUEST"
	CodeInternal             = "INTERNAL_ERROR"
)

var codeMessages = map[string]string{
	CodeRefreshTokenRequired: "refresh token required",
	CodeInvalidRefreshToken:  "please sign in again",
	CodeTokenRotationFailed:  "please sign in again",
	CodeUnauthorized:         "unauthorized",
	CodeInvalidSession:       "invalid session",
	CodeCSRFInvalid:          "request rejected",
	CodeRateLimited:          "too many requests",
	CodeStoreUnavailable:     "service temporarily unavailable",
	CodeBadRequest:           "bad request",
	CodeInternal:             "internal error",
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the generic JSON error body for code.
func WriteError(w http.ResponseWriter, status int, code string) {
	msg, ok := codeMessages[code]
	if !ok {
		msg = codeMessages[CodeInternal]
	}
	WriteJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
