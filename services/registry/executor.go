package registry

import (
	"github.com/upb/action-gate/models"
)

// Executor turns a validated invocation into what a channel adapter needs.
// There is one executor per action category, resolved when the catalog is built.
type Executor interface {
	// Category is the catalog category this executor serves
	Category() string

	// DestinationParam names the parameter that carries the caller's target
	// on a dispatch-bound channel. Empty when the category has no target.
	DestinationParam() string

	// Payload builds the adapter payload for inv
	Payload(inv *models.Invocation) models.Payload
}

// Destination returns the caller-supplied target of inv according to e
func Destination(e Executor, inv *models.Invocation) string {
	param := e.DestinationParam()
	if param == "" {
		return ""
	}
	dest, _ := inv.Parameters.String(param)
	return dest
}

func payloadFields(params models.Parameters, skip ...string) map[string]interface{} {
	fields := make(map[string]interface{}, len(params))
	for k, v := range params {
		fields[k] = v
	}
	for _, k := range skip {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// MessageExecutor serves person-to-person messages (email, SMS, notifications)
type MessageExecutor struct{}

func (MessageExecutor) Category() string { return "messaging" }
func (MessageExecutor) DestinationParam() string { return "recipient" }

func (MessageExecutor) Payload(inv *models.Invocation) models.Payload {
	subject, _ := inv.Parameters.String("subject")
	body, ok := inv.Parameters.String("body")
	if !ok {
		body, _ = inv.Parameters.String("message")
	}
	return models.Payload{
		InvocationID: inv.ID,
		ActionID:     inv.ActionID,
		Subject:      subject,
		Body:         body,
		Fields:       payloadFields(inv.Parameters, "recipient", "subject", "body", "message"),
	}
}

// WebhookExecutor serves actions that call a remote HTTP endpoint, such as
// posting to a network or creating an invoice. The category is configurable
// so several catalog categories can share the shape.
type WebhookExecutor struct {
	category string
}

// NewWebhookExecutor creates an executor for category
func NewWebhookExecutor(category string) WebhookExecutor {
	return WebhookExecutor{category: category}
}

func (e WebhookExecutor) Category() string { return e.category }
func (WebhookExecutor) DestinationParam() string { return "url" }

func (WebhookExecutor) Payload(inv *models.Invocation) models.Payload {
	body, _ := inv.Parameters.String("content")
	return models.Payload{
		InvocationID: inv.ID,
		ActionID:     inv.ActionID,
		Body:         body,
		Fields:       payloadFields(inv.Parameters, "url", "content"),
	}
}

// OperationExecutor serves internal operations (restarts, maintenance) that
// go to the operations hook rather than to an external recipient
type OperationExecutor struct{}

func (OperationExecutor) Category() string { return "operations" }
func (OperationExecutor) DestinationParam() string { return "" }

func (OperationExecutor) Payload(inv *models.Invocation) models.Payload {
	return models.Payload{
		InvocationID: inv.ID,
		ActionID:     inv.ActionID,
		Fields:       payloadFields(inv.Parameters),
	}
}

// DefaultExecutors returns the executors for the built-in categories
func DefaultExecutors() []Executor {
	return []Executor{
		MessageExecutor{},
		NewWebhookExecutor("social"),
		NewWebhookExecutor("finance"),
		OperationExecutor{},
	}
}
