package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/models"
)

func TestDefaultCatalogBuilds(t *testing.T) {
	reg, err := New(DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, 6, reg.Len())

	entry, ok := reg.Lookup("email_send")
	require.True(t, ok)
	assert.Equal(t, models.ChannelEmail, entry.Definition.Channel)
	assert.Equal(t, "messaging", entry.Executor.Category())

	_, ok = reg.Lookup("launch_rockets")
	assert.False(t, ok)
}

func TestListProjections(t *testing.T) {
	reg, err := New(DefaultCatalog())
	require.NoError(t, err)

	messaging := reg.ListByCategory("messaging")
	require.Len(t, messaging, 3)
	assert.Equal(t, "email_send", messaging[0].ID)
	assert.Equal(t, "notify", messaging[1].ID)
	assert.Equal(t, "sms_send", messaging[2].ID)

	high := reg.ListByRiskTier(models.RiskTierHigh)
	require.Len(t, high, 3)
	for _, def := range high {
		assert.True(t, def.RequiresApproval, def.ID)
	}

	assert.Empty(t, reg.ListByCategory("unknown"))
	assert.Len(t, reg.All(), 6)
}

func TestListReturnsCopies(t *testing.T) {
	reg, err := New(DefaultCatalog())
	require.NoError(t, err)

	defs := reg.ListByCategory("messaging")
	defs[0].ParameterSchema["recipient"] = models.ParameterSpec{Type: models.ParameterTypeString}

	entry, _ := reg.Lookup(defs[0].ID)
	assert.Equal(t, models.ParameterTypeEmail, entry.Definition.ParameterSchema["recipient"].Type)
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	valid := func() models.ActionDefinition {
		return models.ActionDefinition{
			ID:       "ping",
			Category: "messaging",
			RiskTier: models.RiskTierLow,
			Channel:  models.ChannelSMS,
			ParameterSchema: map[string]models.ParameterSpec{
				"recipient": {Type: models.ParameterTypeString, Required: true},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(d *models.ActionDefinition)
		errMsg string
	}{
		{"empty id", func(d *models.ActionDefinition) { d.ID = "" }, "empty id"},
		{"unknown tier", func(d *models.ActionDefinition) { d.RiskTier = "extreme" }, "risk tier"},
		{"unknown channel", func(d *models.ActionDefinition) { d.Channel = "fax" }, "unknown channel"},
		{"unknown category", func(d *models.ActionDefinition) { d.Category = "magic" }, "no executor"},
		{"unknown parameter type", func(d *models.ActionDefinition) {
			d.ParameterSchema["count"] = models.ParameterSpec{Type: "date"}
		}, "unknown type"},
		{"destination not required", func(d *models.ActionDefinition) {
			d.ParameterSchema["recipient"] = models.ParameterSpec{Type: models.ParameterTypeString}
		}, "must be declared required"},
		{"channel bound operations", func(d *models.ActionDefinition) {
			d.Category = "operations"
		}, "has no destination"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid()
			tt.mutate(&def)
			_, err := New([]models.ActionDefinition{def})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		_, err := New([]models.ActionDefinition{valid(), valid()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "defined twice")
	})
}

func TestExecutors(t *testing.T) {
	inv := &models.Invocation{
		ID:       "inv-1",
		ActionID: "email_send",
		Parameters: models.Parameters{
			"recipient": "customer@example.com",
			"subject":   "Hello",
			"body":      "World",
			"locale":    "en",
		},
	}

	msg := MessageExecutor{}
	assert.Equal(t, "customer@example.com", Destination(msg, inv))
	payload := msg.Payload(inv)
	assert.Equal(t, "Hello", payload.Subject)
	assert.Equal(t, "World", payload.Body)
	assert.Equal(t, map[string]interface{}{"locale": "en"}, payload.Fields)

	hook := NewWebhookExecutor("finance")
	inv.Parameters = models.Parameters{"url": "https://billing.example/api", "amount": 12.5}
	assert.Equal(t, "finance", hook.Category())
	assert.Equal(t, "https://billing.example/api", Destination(hook, inv))
	assert.Equal(t, map[string]interface{}{"amount": 12.5}, hook.Payload(inv).Fields)

	ops := OperationExecutor{}
	inv.Parameters = models.Parameters{"system": "billing"}
	assert.Empty(t, Destination(ops, inv))
	assert.Equal(t, "billing", ops.Payload(inv).Fields["system"])
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `
actions:
  - id: refund_issue
    category: finance
    risk_tier: high
    channel: api
    parameters:
      url: {type: string, required: true}
      amount: {type: number, required: true}
  - id: newsletter
    category: messaging
    risk_tier: low
    requires_approval: true
    channel: email
    parameters:
      recipient: {type: email, required: true}
  - id: cache_flush
    category: operations
    risk_tier: medium
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())

	refund, ok := reg.Lookup("refund_issue")
	require.True(t, ok)
	assert.True(t, refund.Definition.RequiresApproval, "high risk defaults to approval")
	assert.Equal(t, models.ParameterTypeNumber, refund.Definition.ParameterSchema["amount"].Type)

	newsletter, _ := reg.Lookup("newsletter")
	assert.True(t, newsletter.Definition.RequiresApproval, "explicit flag wins over tier")

	flush, _ := reg.Lookup("cache_flush")
	assert.Equal(t, models.ChannelNone, flush.Definition.Channel)
	assert.False(t, flush.Definition.RequiresApproval)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actions: []\n"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestLoadDefaultsWithoutPath(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCatalog()), reg.Len())
}
