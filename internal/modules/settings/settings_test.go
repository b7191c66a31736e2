package settings

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/testutil"
)

var testEndpoints = Endpoints{Production: "https://prod.example/v3", Sandbox: "https://sandbox.example/v3"}

func newProvider(t *testing.T, row *Row) *Provider {
	t.Helper()
	db := testutil.OpenDB(t, &Row{})
	if row != nil {
		require.NoError(t, db.Create(row).Error)
		// gorm omits false bools on create when the column has a default
		require.NoError(t, db.Model(&Row{}).Where("id = ?", row.ID).Updates(map[string]any{
			"integration_enabled": row.IntegrationEnabled,
			"pix_enabled":         row.PixEnabled,
			"card_enabled":        row.CardEnabled,
			"sandbox":             row.Sandbox,
		}).Error)
	}
	return NewProvider(db, testEndpoints)
}

func TestLoadResolvesSingleCredential(t *testing.T) {
	tests := []struct {
		name    string
		sandbox bool
		wantEnv Environment
		wantURL string
		wantKey string
	}{
		{"sandbox", true, Sandbox, testEndpoints.Sandbox, "sbx-key-1234"},
		{"production", false, Production, testEndpoints.Production, "prd-key-5678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t, &Row{
				ID: 1, IntegrationEnabled: true, PixEnabled: true, CardEnabled: true,
				Sandbox: tt.sandbox, APIKeySandbox: "sbx-key-1234", APIKeyProduction: "prd-key-5678",
			})
			s, err := p.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnv, s.Credential.Environment)
			assert.Equal(t, tt.wantURL, s.Credential.BaseURL)
			assert.Equal(t, tt.wantKey, s.Credential.APIKey)
		})
	}
}

func TestLoadWithoutRow(t *testing.T) {
	p := newProvider(t, nil)
	_, err := p.Load(context.Background())
	assert.ErrorIs(t, err, ErrSettingsUnavailable)
}

func TestLoadMissingActiveKey(t *testing.T) {
	p := newProvider(t, &Row{ID: 1, IntegrationEnabled: true, PixEnabled: true, Sandbox: false, APIKeySandbox: "only-sandbox"})
	_, err := p.Load(context.Background())
	assert.ErrorIs(t, err, ErrSettingsUnavailable)
}

func TestDisabledIntegrationIsData(t *testing.T) {
	p := newProvider(t, &Row{ID: 1, IntegrationEnabled: false, PixEnabled: true, CardEnabled: true})
	s, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, s.IntegrationEnabled)
	assert.Empty(t, s.Credential.APIKey)
	assert.Empty(t, s.Methods())
	assert.ErrorIs(t, s.Require(orders.MethodPix), ErrIntegrationDisabled)
}

func TestRequire(t *testing.T) {
	s := Settings{IntegrationEnabled: true, PixEnabled: true, CardEnabled: false}
	assert.NoError(t, s.Require(orders.MethodPix))
	assert.ErrorIs(t, s.Require(orders.MethodCard), ErrMethodDisabled)
	assert.ErrorIs(t, s.Require("boleto"), ErrMethodDisabled)
	assert.False(t, errors.Is(s.Require(orders.MethodCard), ErrIntegrationDisabled))
	assert.Equal(t, []orders.Method{orders.MethodPix}, s.Methods())
}

func TestCredentialNeverLogsKey(t *testing.T) {
	c := Credential{Environment: Sandbox, BaseURL: "https://sandbox.example", APIKey: "$aact_secret_value_9876"}
	assert.NotContains(t, c.String(), "secret")
	assert.True(t, strings.HasSuffix(c.String(), "key=****9876)"))

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("gateway", "credential", c)
	assert.NotContains(t, buf.String(), "secret")
}
