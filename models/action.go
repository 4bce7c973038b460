package models

import (
	"sort"
	"strings"
)

// RiskTier classifies how damaging unconstrained execution of an action could be
type RiskTier string

const (
	RiskTierLow    RiskTier = "low"
	RiskTierMedium RiskTier = "medium"
	RiskTierHigh   RiskTier = "high"
)

// IsValid reports whether the tier is one of the known tiers
func (t RiskTier) IsValid() bool {
	switch t {
	case RiskTierLow, RiskTierMedium, RiskTierHigh:
		return true
	}
	return false
}

// Channel is a category of outbound side effect with its own mode and adapter
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelAPI   Channel = "api"
	ChannelNone  Channel = "none"
)

// DispatchChannels lists the channels that carry a dispatch mode
var DispatchChannels = []Channel{ChannelEmail, ChannelSMS, ChannelAPI}

// ParseChannel normalizes a channel name. An empty string maps to ChannelNone.
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return ChannelNone, true
	}
	return c, c.IsValid()
}

// IsValid reports whether the channel is known
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelAPI, ChannelNone:
		return true
	}
	return false
}

// IsDispatchBound reports whether traffic on this channel is governed by a mode
func (c Channel) IsDispatchBound() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelAPI
}

// ParameterType is the declared type of an action parameter
type ParameterType string

const (
	ParameterTypeString ParameterType = "string"
	ParameterTypeEmail  ParameterType = "email"
	ParameterTypeNumber ParameterType = "number"
)

// IsValid reports whether the parameter type is known
func (t ParameterType) IsValid() bool {
	switch t {
	case ParameterTypeString, ParameterTypeEmail, ParameterTypeNumber:
		return true
	}
	return false
}

// ParameterSpec is the contract for a single parameter
type ParameterSpec struct {
	Type     ParameterType `json:"type" koanf:"type"`
	Required bool          `json:"required" koanf:"required"`
}

// ActionDefinition describes a side-effecting action. Definitions are loaded
// once at startup and never mutated afterwards.
type ActionDefinition struct {
	ID               string                   `json:"id" koanf:"id"`
	Category         string                   `json:"category" koanf:"category"`
	Description      string                   `json:"description,omitempty" koanf:"description"`
	RiskTier         RiskTier                 `json:"risk_tier" koanf:"risk_tier"`
	RequiresApproval bool                     `json:"requires_approval" koanf:"requires_approval"`
	ParameterSchema  map[string]ParameterSpec `json:"parameter_schema" koanf:"parameters"`
	Channel          Channel                  `json:"channel" koanf:"channel"`
}

// RequiredParameters returns the names of required parameters in sorted order
func (d *ActionDefinition) RequiredParameters() []string {
	var names []string
	for name, spec := range d.ParameterSchema {
		if spec.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy so callers cannot mutate the catalog entry
func (d *ActionDefinition) Clone() *ActionDefinition {
	c := *d
	if d.ParameterSchema != nil {
		c.ParameterSchema = make(map[string]ParameterSpec, len(d.ParameterSchema))
		for k, v := range d.ParameterSchema {
			c.ParameterSchema[k] = v
		}
	}
	return &c
}
