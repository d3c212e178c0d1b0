package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/studio-automation/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://admin.studio.test"]

studio:
  name: "Pilates Lab"
  phone: "(555) 010-2000"
  site_url: "https://studio.test"

email:
  provider: sendgrid
  from_name: "Pilates Lab"
  from_email: "hello@studio.test"

sms:
  provider: twilio
  twilio_from_number: "+15550102000"

dispatch:
  interval_seconds: 30
  batch_size: 50
  send_timeout_seconds: 10

triggers:
  enabled: true
  schedules:
    class_reminder: "*/5 * * * *"
    classpass_hot_lead: ""
    not_a_kind: "* * * * *"

archive:
  enabled: true
  bucket: studio-archive
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://admin.studio.test"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "Pilates Lab", cfg.Studio.Name)
	assert.Equal(t, "https://studio.test", cfg.Studio.SiteURL)

	assert.Equal(t, EmailProviderSendGrid, cfg.Email.Provider)
	assert.Equal(t, SMSProviderTwilio, cfg.SMS.Provider)
	assert.Equal(t, "https://api.twilio.com", cfg.SMS.TwilioBaseURL)

	assert.Equal(t, 30*time.Second, cfg.Dispatch.Interval())
	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
	assert.Equal(t, 8, cfg.Dispatch.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.SendTimeout())

	specs := cfg.Triggers.Specs()
	assert.Len(t, specs, 2)
	assert.Equal(t, "*/5 * * * *", specs[domain.TriggerClassReminder])
	spec, ok := specs[domain.TriggerClassPassHotLead]
	assert.True(t, ok)
	assert.Empty(t, spec)

	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "campaigns", cfg.Archive.Prefix)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.TrackingPort)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, EmailProviderLog, cfg.Email.Provider)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Empty(t, cfg.SMS.Provider)
	assert.Equal(t, "US", cfg.SMS.DefaultRegion)
	assert.Equal(t, time.Minute, cfg.Dispatch.Interval())
	assert.Equal(t, 200, cfg.Dispatch.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.SendTimeout())
	assert.Equal(t, "30 3 * * *", cfg.Reconcile.Schedule)
	assert.Equal(t, "migrations", cfg.Database.MigrationsDir)
	assert.Equal(t, time.UTC, cfg.Tracking.Location())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/studio"
email:
  provider: ses
`)
	t.Setenv("DATABASE_URL", "postgres://prod/studio")
	t.Setenv("EMAIL_PROVIDER", "smtp")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("PORT", "7070")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://prod/studio", cfg.Database.URL)
	assert.Equal(t, EmailProviderSMTP, cfg.Email.Provider)
	assert.Equal(t, "secret", cfg.SMS.TwilioAuthToken)
	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestTrackingLocation(t *testing.T) {
	assert.Equal(t, time.UTC, TrackingConfig{Timezone: "Not/AZone"}.Location())
}
