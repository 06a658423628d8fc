// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps domain errors onto status codes in one place.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"casa/internal/core"
	applog "casa/internal/log"
	"casa/internal/middleware/trace"
	"casa/internal/vision"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the envelope of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// errBadRequest marks malformed requests: unreadable JSON, bad path ids, bad query values.
var errBadRequest = errors.New("bad request")

type errorMapping struct {
	target    error
	status    int
	code      string
	message   string
	errorType string
}

// Order matters: ErrInsufficientBalance wraps ErrNotFound and is matched first.
var errorMappings = []errorMapping{
	{errBadRequest, http.StatusBadRequest, "bad_request", "Malformed request", applog.ErrorTypeValidation},
	{core.ErrValidation, http.StatusUnprocessableEntity, "validation", "Invalid data", applog.ErrorTypeValidation},
	{core.ErrInsufficientBalance, http.StatusNotFound, "insufficient_balance", "Insufficient balance", applog.ErrorTypeNotFound},
	{core.ErrNotFound, http.StatusNotFound, "not_found", "Not found", applog.ErrorTypeNotFound},
	{core.ErrInvalidState, http.StatusConflict, "invalid_state", "Operation not allowed in the current state", applog.ErrorTypeState},
	{core.ErrReferentialConflict, http.StatusConflict, "referenced", "Still referenced by other records", applog.ErrorTypeConflict},
	{core.ErrConflict, http.StatusConflict, "conflict", "Already exists", applog.ErrorTypeConflict},
	{core.ErrForbidden, http.StatusForbidden, "forbidden", "Forbidden", applog.ErrorTypeAuth},
	{core.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Authentication required", applog.ErrorTypeAuth},
	{vision.ErrUpstream, http.StatusBadGateway, "upstream", "Receipt service unavailable, please try again", applog.ErrorTypeUpstream},
}

// writeError renders err and logs it. Internal details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, errType := http.StatusInternalServerError, "internal", "Something went wrong, please try again", applog.ErrorTypeInternal
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status, code, message, errType = m.status, m.code, m.message, m.errorType
			break
		}
	}

	detail := ErrorDetail{Code: code, Message: message, RequestID: trace.GetRequestID(r.Context())}
	if status < http.StatusInternalServerError {
		if msg := core.UserMessage(err); msg != "" {
			detail.Message = msg
		}
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		detail.Fields = ve.Fields
	}

	fields := applog.NewFields().
		WithErrorType(errType).
		WithHTTPRequest(r.Method, r.URL.Path).
		WithStatus(status)
	if a, ok := actorFrom(r.Context()); ok {
		fields = fields.WithActor(a.User.ID, a.HouseholdID)
	}
	applog.LogError(r.Context(), "Request failed", err, status >= http.StatusInternalServerError, fields)

	NewJSONResponse().Status(status).Body(ErrorBody{Error: detail}).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

func writeNoContent(w http.ResponseWriter) {
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
