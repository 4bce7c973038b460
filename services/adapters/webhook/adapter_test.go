package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/adapters"
)

func payload() models.Payload {
	return models.Payload{
		InvocationID: "inv-1",
		ActionID:     "social_post",
		Body:         "hello",
		Fields:       map[string]interface{}{"tag": "launch"},
		Rehearsal:    true,
	}
}

func TestSendToDestinationURL(t *testing.T) {
	var got Message
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"post-77"}`))
	}))
	defer server.Close()

	a := New(Config{Channel: models.ChannelAPI, AuthToken: "secret", Headers: map[string]string{"X-Env": "test"}})
	res, err := a.Send(context.Background(), server.URL+"/posts", payload())
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "post-77", res.Reference)
	assert.Equal(t, server.URL+"/posts", got.Destination)
	assert.Equal(t, "inv-1", got.InvocationID)
	assert.Equal(t, "hello", got.Body)
	assert.True(t, got.Rehearsal)
	assert.Equal(t, "inv-1", headers.Get("Idempotency-Key"))
	assert.Equal(t, "true", headers.Get("X-Rehearsal"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "test", headers.Get("X-Env"))
}

func TestSendThroughRelay(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := New(Config{Channel: models.ChannelEmail, Endpoint: server.URL})
	assert.Equal(t, models.ChannelEmail, a.Channel())

	_, err := a.Send(context.Background(), "ops@example.com", payload())
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", got.Destination)
}

func TestSendErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusBadGateway, true},
		{"throttled", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			_, err := New(Config{Channel: models.ChannelAPI}).Send(context.Background(), server.URL, payload())
			require.Error(t, err)
			var adErr *adapters.AdapterError
			require.ErrorAs(t, err, &adErr)
			assert.Equal(t, tt.status, adErr.StatusCode)
			assert.Equal(t, tt.retryable, adErr.Retryable)
			assert.Contains(t, adErr.Message, "nope")
		})
	}
}

func TestSendRejectsNonHTTPDestination(t *testing.T) {
	_, err := New(Config{Channel: models.ChannelAPI}).Send(context.Background(), "ftp://example.com", payload())
	require.Error(t, err)
	assert.False(t, adapters.IsRetryable(err))
}

func TestSendTimeoutIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	_, err := New(Config{Channel: models.ChannelAPI, Timeout: 20 * time.Millisecond}).Send(context.Background(), server.URL, payload())
	require.Error(t, err)
	assert.True(t, adapters.IsRetryable(err))
}
