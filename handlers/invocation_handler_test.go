package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/approval"
	"github.com/upb/action-gate/services/invocation"
	"go.uber.org/zap"
)

// MockInvocationService is a mock implementation of InvocationService
type MockInvocationService struct {
	mock.Mock
}

func (m *MockInvocationService) Submit(ctx context.Context, req invocation.SubmitRequest) (*models.Invocation, bool, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Invocation), args.Bool(1), args.Error(2)
}

func (m *MockInvocationService) Get(ctx context.Context, invocationID string) (*models.Invocation, error) {
	args := m.Called(ctx, invocationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invocation), args.Error(1)
}

func (m *MockInvocationService) Decide(ctx context.Context, req invocation.DecisionRequest) (*models.Invocation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invocation), args.Error(1)
}

func invocationRouter(h *InvocationHandler, claims *middleware.Claims) http.Handler {
	r := chi.NewRouter()
	if claims != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(middleware.WithClaims(req.Context(), claims)))
			})
		})
	}
	r.Post("/invocations", h.HandleSubmit)
	r.Get("/invocations/{id}", h.HandleGet)
	r.Post("/invocations/{id}/decision", h.HandleDecision)
	return r
}

func sampleInvocation(status models.InvocationStatus) *models.Invocation {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Invocation{
		ID:          "inv-1",
		ActionID:    "notify",
		Status:      status,
		Channel:     models.ChannelEmail,
		RequestedBy: "agent-7",
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHandleSubmit(t *testing.T) {
	logger := zap.NewNop()

	t.Run("new invocation returns 201", func(t *testing.T) {
		svc := new(MockInvocationService)
		inv := sampleInvocation(models.InvocationStatusCompleted)
		inv.Reason = "delivered"
		svc.On("Submit", mock.Anything, invocation.SubmitRequest{
			InvocationID: "inv-1",
			ActionID:     "notify",
			Parameters:   models.Parameters{"recipient": "customer@example.com", "message": "hi"},
			RequestedBy:  "agent-7",
		}).Return(inv, true, nil)

		w, resp := do(t, invocationRouter(NewInvocationHandler(svc, logger), nil), http.MethodPost, "/invocations",
			`{"invocation_id":"inv-1","action_id":"notify","parameters":{"recipient":"customer@example.com","message":"hi"},"requested_by":"agent-7"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, "inv-1", data["invocation_id"])
		assert.Equal(t, "completed", data["status"])
		assert.Equal(t, "delivered", data["reason"])
		svc.AssertExpectations(t)
	})

	t.Run("replay returns 200", func(t *testing.T) {
		svc := new(MockInvocationService)
		svc.On("Submit", mock.Anything, mock.Anything).Return(sampleInvocation(models.InvocationStatusPendingApproval), false, nil)

		w, resp := do(t, invocationRouter(NewInvocationHandler(svc, logger), nil), http.MethodPost, "/invocations",
			`{"invocation_id":"inv-1","action_id":"system_restart","requested_by":"agent-7"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "pending_approval", resp["data"].(map[string]interface{})["status"])
	})

	t.Run("validation failure exposes missing fields", func(t *testing.T) {
		svc := new(MockInvocationService)
		verr := services.NewDomainError(services.ErrorTypeValidation, "invalid parameters: missing subject", nil).
			WithDetail("missingFields", []string{"subject"}).
			WithDetail("invocationId", "inv-1").
			WithDetail("status", "rejected")
		svc.On("Submit", mock.Anything, mock.Anything).Return(sampleInvocation(models.InvocationStatusRejected), true, verr)

		w, resp := do(t, invocationRouter(NewInvocationHandler(svc, logger), nil), http.MethodPost, "/invocations",
			`{"action_id":"email_send","parameters":{"recipient":"a@b.c","body":"x"},"requested_by":"agent-7"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		details := resp["details"].(map[string]interface{})
		assert.Equal(t, []interface{}{"subject"}, details["missingFields"])
		assert.Equal(t, "rejected", details["status"])
	})

	t.Run("malformed body never reaches the service", func(t *testing.T) {
		svc := new(MockInvocationService)
		w, resp := do(t, invocationRouter(NewInvocationHandler(svc, logger), nil), http.MethodPost, "/invocations",
			`{"parameters":{}}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		details := resp["details"].(map[string]interface{})
		assert.Contains(t, details, "action_id")
		assert.Contains(t, details, "requested_by")
		svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("authenticated operator is the default requester", func(t *testing.T) {
		svc := new(MockInvocationService)
		svc.On("Submit", mock.Anything, mock.MatchedBy(func(req invocation.SubmitRequest) bool {
			return req.RequestedBy == "lead"
		})).Return(sampleInvocation(models.InvocationStatusCompleted), true, nil)

		w, _ := do(t, invocationRouter(NewInvocationHandler(svc, logger), &middleware.Claims{Subject: "lead"}),
			http.MethodPost, "/invocations", `{"action_id":"notify","parameters":{"recipient":"a@b.c","message":"x"}}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("named agent is still charged to the operator", func(t *testing.T) {
		svc := new(MockInvocationService)
		svc.On("Submit", mock.Anything, mock.MatchedBy(func(req invocation.SubmitRequest) bool {
			return req.RequestedBy == "agent-9" && req.SubmittedBy == "lead"
		})).Return(sampleInvocation(models.InvocationStatusCompleted), true, nil)

		w, _ := do(t, invocationRouter(NewInvocationHandler(svc, logger), &middleware.Claims{Subject: "lead"}),
			http.MethodPost, "/invocations", `{"action_id":"notify","parameters":{"recipient":"a@b.c","message":"x"},"requested_by":"agent-9"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})
}

func TestHandleGetInvocation(t *testing.T) {
	svc := new(MockInvocationService)
	svc.On("Get", mock.Anything, "inv-1").Return(sampleInvocation(models.InvocationStatusFailed), nil)
	svc.On("Get", mock.Anything, "nope").Return(nil, services.ErrInvocationNotFound)
	router := invocationRouter(NewInvocationHandler(svc, zap.NewNop()), nil)

	w, resp := do(t, router, http.MethodGet, "/invocations/inv-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "failed", resp["data"].(map[string]interface{})["status"])

	w, _ = do(t, router, http.MethodGet, "/invocations/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDecision(t *testing.T) {
	logger := zap.NewNop()

	t.Run("approve", func(t *testing.T) {
		svc := new(MockInvocationService)
		svc.On("Decide", mock.Anything, invocation.DecisionRequest{
			InvocationID: "inv-1",
			Decision:     approval.DecisionApprove,
			ApproverID:   "lead",
		}).Return(sampleInvocation(models.InvocationStatusCompleted), nil)

		w, _ := do(t, invocationRouter(NewInvocationHandler(svc, logger), nil), http.MethodPost,
			"/invocations/inv-1/decision", `{"decision":"approve","approver_id":"lead"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		svc := new(MockInvocationService)
		svc.On("Decide", mock.Anything, mock.Anything).Return(nil, services.ErrApprovalConflict)

		w, resp := do(t, invocationRouter(NewInvocationHandler(svc, logger), nil), http.MethodPost,
			"/invocations/inv-1/decision", `{"decision":"reject","approver_id":"lead","reason":"late"}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "conflict", resp["error"])
	})

	t.Run("unknown decision", func(t *testing.T) {
		svc := new(MockInvocationService)
		w, _ := do(t, invocationRouter(NewInvocationHandler(svc, logger), nil), http.MethodPost,
			"/invocations/inv-1/decision", `{"decision":"maybe","approver_id":"lead"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	})

	t.Run("token subject is the approver", func(t *testing.T) {
		svc := new(MockInvocationService)
		svc.On("Decide", mock.Anything, mock.MatchedBy(func(req invocation.DecisionRequest) bool {
			return req.ApproverID == "lead"
		})).Return(sampleInvocation(models.InvocationStatusRejected), nil)

		w, _ := do(t, invocationRouter(NewInvocationHandler(svc, logger), &middleware.Claims{Subject: "lead"}),
			http.MethodPost, "/invocations/inv-1/decision", `{"decision":"reject"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("approver must match token subject", func(t *testing.T) {
		svc := new(MockInvocationService)
		w, _ := do(t, invocationRouter(NewInvocationHandler(svc, logger), &middleware.Claims{Subject: "lead"}),
			http.MethodPost, "/invocations/inv-1/decision", `{"decision":"approve","approver_id":"someone-else"}`)

		assert.Equal(t, http.StatusForbidden, w.Code)
		svc.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	})
}
