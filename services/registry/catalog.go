package registry

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/upb/action-gate/models"
)

func required(t models.ParameterType) models.ParameterSpec {
	return models.ParameterSpec{Type: t, Required: true}
}

func optional(t models.ParameterType) models.ParameterSpec {
	return models.ParameterSpec{Type: t}
}

// DefaultCatalog is the built-in action table
func DefaultCatalog() []models.ActionDefinition {
	return []models.ActionDefinition{
		{
			ID:          "email_send",
			Category:    "messaging",
			Description: "Send an email to a customer",
			RiskTier:    models.RiskTierMedium,
			Channel:     models.ChannelEmail,
			ParameterSchema: map[string]models.ParameterSpec{
				"recipient": required(models.ParameterTypeEmail),
				"subject":   required(models.ParameterTypeString),
				"body":      required(models.ParameterTypeString),
			},
		},
		{
			ID:          "notify",
			Category:    "messaging",
			Description: "Send a short notification email",
			RiskTier:    models.RiskTierLow,
			Channel:     models.ChannelEmail,
			ParameterSchema: map[string]models.ParameterSpec{
				"recipient": required(models.ParameterTypeEmail),
				"message":   required(models.ParameterTypeString),
				"subject":   optional(models.ParameterTypeString),
			},
		},
		{
			ID:          "sms_send",
			Category:    "messaging",
			Description: "Send a text message",
			RiskTier:    models.RiskTierMedium,
			Channel:     models.ChannelSMS,
			ParameterSchema: map[string]models.ParameterSpec{
				"recipient": required(models.ParameterTypeString),
				"message":   required(models.ParameterTypeString),
			},
		},
		{
			ID:               "social_post",
			Category:         "social",
			Description:      "Publish a post to a social network",
			RiskTier:         models.RiskTierHigh,
			RequiresApproval: true,
			Channel:          models.ChannelAPI,
			ParameterSchema: map[string]models.ParameterSpec{
				"url":     required(models.ParameterTypeString),
				"content": required(models.ParameterTypeString),
			},
		},
		{
			ID:               "invoice_create",
			Category:         "finance",
			Description:      "Create an invoice in the billing system",
			RiskTier:         models.RiskTierHigh,
			RequiresApproval: true,
			Channel:          models.ChannelAPI,
			ParameterSchema: map[string]models.ParameterSpec{
				"url":            required(models.ParameterTypeString),
				"customer_email": required(models.ParameterTypeEmail),
				"amount":         required(models.ParameterTypeNumber),
				"currency":       optional(models.ParameterTypeString),
			},
		},
		{
			ID:               "system_restart",
			Category:         "operations",
			Description:      "Restart a managed system",
			RiskTier:         models.RiskTierHigh,
			RequiresApproval: true,
			Channel:          models.ChannelNone,
			ParameterSchema: map[string]models.ParameterSpec{
				"system": required(models.ParameterTypeString),
			},
		},
	}
}

// catalogEntry mirrors ActionDefinition with an optional approval flag so an
// omitted flag can default from the risk tier
type catalogEntry struct {
	ID               string                          `koanf:"id"`
	Category         string                          `koanf:"category"`
	Description      string                          `koanf:"description"`
	RiskTier         string                          `koanf:"risk_tier"`
	RequiresApproval *bool                           `koanf:"requires_approval"`
	Channel          string                          `koanf:"channel"`
	Parameters       map[string]models.ParameterSpec `koanf:"parameters"`
}

// LoadFile reads action definitions from a YAML file of the form
//
//	actions:
//	  - id: email_send
//	    category: messaging
//	    risk_tier: medium
//	    channel: email
//	    parameters:
//	      recipient: {type: email, required: true}
//
// When requires_approval is omitted it defaults to true for high risk actions.
func LoadFile(path string) ([]models.ActionDefinition, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load action catalog %s: %w", path, err)
	}

	var entries []catalogEntry
	if err := k.Unmarshal("actions", &entries); err != nil {
		return nil, fmt.Errorf("failed to decode action catalog %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("action catalog %s declares no actions", path)
	}

	defs := make([]models.ActionDefinition, 0, len(entries))
	for _, e := range entries {
		channel, ok := models.ParseChannel(e.Channel)
		if !ok {
			return nil, fmt.Errorf("action %q: unknown channel %q", e.ID, e.Channel)
		}
		tier := models.RiskTier(e.RiskTier)
		approval := tier == models.RiskTierHigh
		if e.RequiresApproval != nil {
			approval = *e.RequiresApproval
		}
		defs = append(defs, models.ActionDefinition{
			ID:               e.ID,
			Category:         e.Category,
			Description:      e.Description,
			RiskTier:         tier,
			RequiresApproval: approval,
			Channel:          channel,
			ParameterSchema:  e.Parameters,
		})
	}
	return defs, nil
}

// Load builds a registry from path, or from the built-in table when path is empty
func Load(path string, executors ...Executor) (*Registry, error) {
	defs := DefaultCatalog()
	if path != "" {
		var err error
		if defs, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	return New(defs, executors...)
}
