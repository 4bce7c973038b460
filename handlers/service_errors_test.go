package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name            string
		err             error
		expectedStatus  int
		expectedError   string
		expectedMessage string
	}{
		{"not found", services.ErrInvocationNotFound, http.StatusNotFound, "not_found", "invocation not found"},
		{"validation", services.ErrInvalidDecision, http.StatusBadRequest, "bad_request", "decision must be approve or reject"},
		{"unauthorized", services.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "unauthorized"},
		{"forbidden", services.ErrApproverMismatch, http.StatusForbidden, "forbidden", "approver does not match authenticated operator"},
		{"approval conflict", services.ErrApprovalConflict, http.StatusConflict, "conflict", "invocation is not pending approval"},
		{"mode conflict", services.ErrModeSwitchConflict, http.StatusConflict, "conflict", "mode changed concurrently"},
		{"rate limit", services.ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_exceeded", "dispatch rate limit exceeded"},
		{"dispatch", services.WrapDispatch("send failed", errors.New("relay down")), http.StatusBadGateway, "bad_gateway", ""},
		{"audit write", services.WrapAuditWrite("append failed", errors.New("disk full")), http.StatusServiceUnavailable, "service_unavailable", "audit log unavailable"},
		{"internal", services.WrapInternal("db", errors.New("boom")), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
		{"plain error", errors.New("surprise"), http.StatusInternalServerError, "internal_error", "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp utils.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedError, resp.Error)
			if tt.expectedMessage != "" {
				assert.Contains(t, resp.Message, tt.expectedMessage)
			}
		})
	}
}

func TestHandleServiceErrorCarriesDetails(t *testing.T) {
	err := services.NewDomainError(services.ErrorTypeValidation, "invalid parameters", nil).
		WithDetail("missingFields", []string{"subject"})

	w := httptest.NewRecorder()
	HandleServiceError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad_request","message":"validation: invalid parameters","details":{"missingFields":["subject"]}}`, w.Body.String())
}

func TestHandleServiceErrorHidesInternalDetails(t *testing.T) {
	err := services.NewDomainError(services.ErrorTypeInternal, "query failed", errors.New("pq: password authentication failed")).
		WithDetail("dsn", "postgres://secret")

	w := httptest.NewRecorder()
	HandleServiceError(w, err, zap.NewNop())

	assert.NotContains(t, w.Body.String(), "secret")
	assert.NotContains(t, w.Body.String(), "password")
}

func TestHandleServiceErrorNil(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, nil, zap.NewNop())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleRequestError(t *testing.T) {
	w := httptest.NewRecorder()
	HandleRequestError(w, &utils.ValidationError{Message: "Validation failed", Fields: map[string]string{"action_id": "action_id is required"}}, zap.NewNop())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "action_id is required")

	w = httptest.NewRecorder()
	HandleRequestError(w, utils.ErrEmptyBody, zap.NewNop())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "request body is required")
}
