package models

// Payload is what a channel adapter receives alongside the destination
type Payload struct {
	InvocationID string                 `json:"invocation_id"`
	ActionID     string                 `json:"action_id"`
	Subject      string                 `json:"subject,omitempty"`
	Body         string                 `json:"body,omitempty"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
	Rehearsal    bool                   `json:"rehearsal"`
}
