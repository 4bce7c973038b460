// Package webhook delivers payloads as JSON POST requests.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/adapters"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 2048
)

// Config configures an Adapter
type Config struct {
	// Channel the adapter serves
	Channel models.Channel

	// Endpoint is a fixed relay URL. When empty the destination itself is
	// the URL to POST to, which is how the api channel works.
	Endpoint string

	// AuthToken is sent as a bearer token when set
	AuthToken string

	// Timeout for each request
	Timeout time.Duration

	// Additional headers
	Headers map[string]string
}

// Adapter posts payloads over HTTP
type Adapter struct {
	config     Config
	httpClient *http.Client
}

// Message is the request body
type Message struct {
	Destination  string                 `json:"destination"`
	InvocationID string                 `json:"invocation_id"`
	ActionID     string                 `json:"action_id"`
	Subject      string                 `json:"subject,omitempty"`
	Body         string                 `json:"body,omitempty"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
	Rehearsal    bool                   `json:"rehearsal"`
}

type referenceResponse struct {
	ID string `json:"id"`
}

// New creates a webhook adapter
func New(config Config) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Channel returns the channel this adapter serves
func (a *Adapter) Channel() models.Channel {
	return a.config.Channel
}

func (a *Adapter) name() string {
	return "webhook:" + string(a.config.Channel)
}

// Send POSTs the payload. 5xx, 429 and transport failures are retryable;
// any other non-2xx status is permanent.
func (a *Adapter) Send(ctx context.Context, destination string, payload models.Payload) (*adapters.Result, error) {
	target := a.config.Endpoint
	if target == "" {
		target = destination
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return nil, adapters.NewAdapterError(a.name(), "INVALID_URL",
			fmt.Sprintf("destination %q is not an http url", target), 0, false, nil)
	}

	body, err := json.Marshal(Message{
		Destination:  destination,
		InvocationID: payload.InvocationID,
		ActionID:     payload.ActionID,
		Subject:      payload.Subject,
		Body:         payload.Body,
		Fields:       payload.Fields,
		Rehearsal:    payload.Rehearsal,
	})
	if err != nil {
		return nil, adapters.NewAdapterError(a.name(), "MARSHAL_ERROR", "failed to marshal payload", 0, false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, adapters.NewAdapterError(a.name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payload.InvocationID)
	if payload.Rehearsal {
		req.Header.Set("X-Rehearsal", "true")
	}
	if a.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.AuthToken)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, adapters.NewAdapterError(a.name(), "HTTP_ERROR", "webhook request failed", 0, ctx.Err() == nil, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, adapters.NewAdapterError(a.name(), fmt.Sprintf("HTTP_%d", resp.StatusCode),
			fmt.Sprintf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			resp.StatusCode, retryable, nil)
	}

	result := &adapters.Result{StatusCode: resp.StatusCode}
	var ref referenceResponse
	if json.Unmarshal(respBody, &ref) == nil {
		result.Reference = ref.ID
	}
	return result, nil
}
