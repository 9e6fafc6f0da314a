package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MAILBOX_USERNAME", "alerts@example.com")
	t.Setenv("MAILBOX_PASSWORD", "app-password")
	t.Setenv("COLLECTOR_BASE_URL", "https://collector.example.com")
	t.Setenv("COLLECTOR_COMPANY_ID", "7")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "imap.gmail.com", cfg.Mailbox.Host)
	assert.Equal(t, 993, cfg.Mailbox.Port)
	assert.Equal(t, "INBOX", cfg.Mailbox.Folder)
	assert.False(t, cfg.Mailbox.UnseenOnly)
	assert.True(t, cfg.Mailbox.MarkSeen)

	assert.Equal(t, int64(7), cfg.Collector.CompanyID)
	assert.Equal(t, "/api/alerts", cfg.Collector.AlertsPath)
	assert.Equal(t, 15*time.Second, cfg.Collector.Timeout)

	assert.Equal(t, 1, cfg.Scan.LookbackDays)
	assert.Equal(t, []string{"IMPACTO", "FRENADA", "ACELERACION"}, cfg.Scan.AllowedTypes)
	assert.Equal(t, "America/Lima", cfg.Scan.Timezone)

	assert.Equal(t, 60*time.Second, cfg.Schedule.ActiveWindow())
	assert.Equal(t, 10*time.Second, cfg.Schedule.PollInterval())
	assert.Equal(t, 120*time.Second, cfg.Schedule.QuiescentSleep())

	assert.Equal(t, "file", cfg.Dedup.Store)
	assert.Equal(t, "cache", cfg.Dedup.Dir)
	assert.Equal(t, "none", cfg.Broker.Type)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("GMAIL_USER", "legacy@example.com")
	t.Setenv("GMAIL_PASS", "legacy-pass")
	t.Setenv("ALERT_API_BASE", "http://localhost:8080")
	t.Setenv("ALERT_COMPANY_ID", "3")
	t.Setenv("WORK_WINDOW_SECONDS", "30")
	t.Setenv("POLL_INTERVAL_SECONDS", "5")
	t.Setenv("SLEEP_BETWEEN_CYCLES_SECONDS", "90")
	t.Setenv("ALERT_DAYS_BACK", "4")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "legacy@example.com", cfg.Mailbox.Username)
	assert.Equal(t, "legacy-pass", cfg.Mailbox.Password)
	assert.Equal(t, "http://localhost:8080", cfg.Collector.BaseURL)
	assert.Equal(t, int64(3), cfg.Collector.CompanyID)
	assert.Equal(t, 30, cfg.Schedule.ActiveWindowSeconds)
	assert.Equal(t, 5, cfg.Schedule.PollIntervalSeconds)
	assert.Equal(t, 90, cfg.Schedule.QuiescentSleepSeconds)
	assert.Equal(t, 4, cfg.Scan.LookbackDays)
}

func TestLoad_CanonicalEnvWinsOverLegacy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GMAIL_USER", "legacy@example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "alerts@example.com", cfg.Mailbox.Username)
}

func TestLoad_ListOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SCAN_ALLOWED_TYPES", " IMPACTO , FRENADA ,")
	t.Setenv("BROKER_TYPE", "kafka")
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"IMPACTO", "FRENADA"}, cfg.Scan.AllowedTypes)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
}

func TestLoad_MissingCredentialsFailFast(t *testing.T) {
	t.Setenv("COLLECTOR_BASE_URL", "https://collector.example.com")
	t.Setenv("COLLECTOR_COMPANY_ID", "7")

	_, err := Load("")
	require.Error(t, err)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "mailbox.username", vErr.Field)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
mailbox:
  host: imap.example.com
  port: 143
  tls: starttls
  username: ops@example.com
  password: secret
collector:
  base_url: https://collector.internal
  company_id: 12
  timeout: 5s
scan:
  lookback_days: 2
  suppress_rules:
    - record.vehicleCode == "UNKNOWN"
dedup:
  store: redis
  redis:
    host: localhost
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "imap.example.com:143", cfg.Mailbox.Address())
	assert.Equal(t, "starttls", cfg.Mailbox.TLS)
	assert.Equal(t, 5*time.Second, cfg.Collector.Timeout)
	assert.Equal(t, 2, cfg.Scan.LookbackDays)
	assert.Equal(t, []string{`record.vehicleCode == "UNKNOWN"`}, cfg.Scan.SuppressRules)
	assert.Equal(t, "redis", cfg.Dedup.Store)
	assert.Equal(t, 6379, cfg.Dedup.Redis.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	setRequiredEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
