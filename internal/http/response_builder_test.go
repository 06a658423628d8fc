package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"casa/internal/core"
	"casa/internal/vision"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		Body(map[string]int{"id": 7}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Error("custom header not set")
	}
	if strings.TrimSpace(w.Body.String()) != `{"id":7}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	writeNoContent(w)

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("status = %d body = %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "" {
		t.Error("Content-Type set on empty response")
	}
}

func TestWriteError(t *testing.T) {
	validation := &core.ValidationError{}
	validation.Add("amount", core.ErrInvalidAmount)

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"validation", fmt.Errorf("create: %w", validation), http.StatusUnprocessableEntity, "validation", "Invalid data"},
		{"bad request", core.NewUserError("invalid id", errBadRequest), http.StatusBadRequest, "bad_request", "invalid id"},
		{"not found", fmt.Errorf("get box 3: %w", core.ErrNotFound), http.StatusNotFound, "not_found", "Not found"},
		{"insufficient balance", core.ErrInsufficientBalance, http.StatusNotFound, "insufficient_balance", "Insufficient balance"},
		{"closed period", core.NewUserError("period is closed", core.ErrInvalidState), http.StatusConflict, "invalid_state", "period is closed"},
		{"referenced", core.ErrReferentialConflict, http.StatusConflict, "referenced", "Still referenced by other records"},
		{"duplicate", core.ErrConflict, http.StatusConflict, "conflict", "Already exists"},
		{"forbidden", core.ErrForbidden, http.StatusForbidden, "forbidden", "Forbidden"},
		{"unauthenticated", core.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Authentication required"},
		{"upstream", fmt.Errorf("extract: %w", vision.ErrNoJSON), http.StatusBadGateway, "upstream", "Receipt service unavailable, please try again"},
		{"internal keeps details private", core.NewUserError("disk on fire", errors.New("sqlite: I/O error")), http.StatusInternalServerError, "internal", "Something went wrong, please try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/things", nil)
			writeError(w, r, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error.Code != tt.wantCode || body.Error.Message != tt.wantMessage {
				t.Errorf("error = %+v, want code %q message %q", body.Error, tt.wantCode, tt.wantMessage)
			}
		})
	}
}

func TestWriteError_ValidationFields(t *testing.T) {
	v := &core.ValidationError{}
	v.Add("name", core.ErrEmptyName)
	v.Add("color", core.ErrInvalidColor)

	w := httptest.NewRecorder()
	writeError(w, httptest.NewRequest(http.MethodPost, "/", nil), v)

	var body ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Fields["name"] != core.ErrEmptyName.Error() || body.Error.Fields["color"] != core.ErrInvalidColor.Error() {
		t.Errorf("fields = %v", body.Error.Fields)
	}
}
