package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agencyops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "agencyops.db", cfg.Database.Path)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "0.1", cfg.GSTRate().String())
	assert.False(t, cfg.Billing.AutoInvoiceOnComplete)
	assert.False(t, cfg.Conversion.RequireSignedProposal)
	assert.True(t, cfg.Reconcile.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.GraceWindow)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, 15*time.Second, cfg.Reconcile.ProviderTimeout)
	assert.Equal(t, "agencyops.events", cfg.Redis.Channel)
	assert.Empty(t, cfg.Redis.URL)

	assert.Equal(t, cfg, Default())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/agencyops/ops.db
log:
  level: debug
  format: json
billing:
  gst_rate: 0.15
  auto_invoice_on_complete: true
conversion:
  require_signed_proposal: true
reconcile:
  grace_window: 10m
  interval: 1m30s
redis:
  url: redis://localhost:6379/2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/agencyops/ops.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "0.15", cfg.GSTRate().String())
	assert.True(t, cfg.Billing.AutoInvoiceOnComplete)
	assert.True(t, cfg.Conversion.RequireSignedProposal)
	assert.Equal(t, 10*time.Minute, cfg.Reconcile.GraceWindow)
	assert.Equal(t, 90*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Redis.URL)
	assert.Equal(t, ":8080", cfg.Server.Addr, "unset keys keep defaults")
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "billing:\n  gst_rate: 0.15\n")
	t.Setenv("AGENCYOPS_BILLING_GST_RATE", "0.05")
	t.Setenv("AGENCYOPS_STRIPE_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("AGENCYOPS_RECONCILE_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.05", cfg.GSTRate().String())
	assert.Equal(t, "whsec_env", cfg.Stripe.WebhookSecret)
	assert.False(t, cfg.Reconcile.Enabled)
}

func TestLoad_SchemaViolationsAreCollected(t *testing.T) {
	path := writeConfig(t, `
log:
  level: loud
billing:
  gst_rate: 1.5
reconcile:
  interval: 0s
`)

	_, err := Load(path)
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeValidation, appErr.Code)

	joined := ""
	for _, r := range appErr.Reasons {
		joined += r + "\n"
	}
	assert.Contains(t, joined, "log.level")
	assert.Contains(t, joined, "billing.gst_rate")
	assert.Contains(t, joined, "reconcile.interval")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "log: [unclosed\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
	assert.False(t, apperr.IsValidation(err))
}

func TestValidate_RejectsEmptyDatabasePath(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = ""
	err := Validate(cfg)
	assert.True(t, apperr.IsValidation(err))
}

func TestValidate_SecretKeyRequiresWebhookSecret(t *testing.T) {
	cfg := Default()
	cfg.Stripe.SecretKey = "sk_live_x"
	err := Validate(cfg)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	cfg.Stripe.WebhookSecret = "whsec_x"
	assert.NoError(t, Validate(cfg))
}
