package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/repositories/memory"
	"github.com/upb/action-gate/services/mode"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func modeRouter(t *testing.T, claims *middleware.Claims) http.Handler {
	ctrl := mode.NewController(memory.NewModeRepository(), zaptest.NewLogger(t))
	h := NewModeHandler(ctrl, zap.NewNop())

	r := chi.NewRouter()
	if claims != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(middleware.WithClaims(req.Context(), claims)))
			})
		})
	}
	r.Get("/modes", h.HandleList)
	r.Get("/modes/{channel}", h.HandleGet)
	r.Put("/modes/{channel}", h.HandleSwitch)
	r.Get("/modes/{channel}/history", h.HandleHistory)
	return r
}

func TestModeHandlerDefaultsToSafe(t *testing.T) {
	router := modeRouter(t, nil)

	w, resp := do(t, router, http.MethodGet, "/modes", "")
	assert.Equal(t, http.StatusOK, w.Code)
	states := resp["data"].([]interface{})
	assert.Len(t, states, 3)
	for _, s := range states {
		assert.Equal(t, "safe", s.(map[string]interface{})["mode"])
	}

	w, resp = do(t, router, http.MethodGet, "/modes/none", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "live", resp["data"].(map[string]interface{})["mode"])

	w, _ = do(t, router, http.MethodGet, "/modes/fax", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModeHandlerSwitch(t *testing.T) {
	router := modeRouter(t, nil)

	w, resp := do(t, router, http.MethodPut, "/modes/sms", `{"mode":"LIVE","changed_by":"admin"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	change := resp["data"].(map[string]interface{})
	assert.Equal(t, "sms", change["channel"])
	assert.Equal(t, "safe", change["previous_mode"])
	assert.Equal(t, "live", change["new_mode"])
	assert.NotEmpty(t, change["changed_at"])

	w, resp = do(t, router, http.MethodGet, "/modes/sms", "")
	assert.Equal(t, "live", resp["data"].(map[string]interface{})["mode"])

	w, resp = do(t, router, http.MethodPut, "/modes/sms", `{"mode":"test","changed_by":"admin","expected_mode":"safe"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "live", resp["details"].(map[string]interface{})["currentMode"])

	w, resp = do(t, router, http.MethodGet, "/modes/sms/history", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"].([]interface{}), 1)
}

func TestModeHandlerSwitchValidation(t *testing.T) {
	router := modeRouter(t, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"unknown mode", "/modes/email", `{"mode":"chaos","changed_by":"admin"}`},
		{"unknown expected mode", "/modes/email", `{"mode":"live","changed_by":"admin","expected_mode":"later"}`},
		{"missing changed_by", "/modes/email", `{"mode":"live"}`},
		{"missing mode", "/modes/email", `{"changed_by":"admin"}`},
		{"channel none has no mode", "/modes/none", `{"mode":"safe","changed_by":"admin"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := do(t, router, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w, _ := do(t, router, http.MethodGet, "/modes/email/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModeHandlerUsesTokenSubject(t *testing.T) {
	router := modeRouter(t, &middleware.Claims{Subject: "root", Roles: []string{"admin"}})

	w, resp := do(t, router, http.MethodPut, "/modes/api", `{"mode":"test","changed_by":"spoofed"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root", resp["data"].(map[string]interface{})["changed_by"])
}
