package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbitwatch/internal/journal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.RabbitHost)
	assert.Equal(t, "15672", cfg.RabbitPort)
	assert.Equal(t, "rabbitmq", cfg.RabbitUser)
	assert.Equal(t, "guest", cfg.RabbitPassword)
	assert.Equal(t, 10*time.Second, cfg.APITimeout)
	assert.Equal(t, int64(1000), cfg.QueueLengthMax)
	assert.Equal(t, int64(500), cfg.UnackedMax)
	assert.Equal(t, int64(1), cfg.MinConsumers)
	assert.Equal(t, 80.0, cfg.MemoryPercentMax)
	assert.Equal(t, 85.0, cfg.DiskPercentMax)
	assert.Equal(t, int64(100), cfg.HaltThreshold)
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Cooldown)
	assert.Empty(t, cfg.LongJobQueues)
	assert.Equal(t, 3*time.Hour, cfg.LongJobCooldown)
	assert.Equal(t, ":9419", cfg.Addr)
	assert.Equal(t, journal.MemoryDSN, cfg.JournalDSN)
	assert.Equal(t, 24*time.Hour, cfg.JournalRetention)
	assert.Equal(t, "", cfg.WebhookURL)
	assert.Equal(t, 10*time.Second, cfg.EmailTimeout)
	assert.Equal(t, "", cfg.AlertEmailFrom)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RABBITMQ_HOST", "rabbit.internal")
	t.Setenv("RABBITMQ_PORT", "15673")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example/T/B/x")
	t.Setenv("ALERT_MAX_QUEUE_LENGTH", "2500")
	t.Setenv("ALERT_MAX_MEMORY_PERCENT", "72.5")
	t.Setenv("MONITORING_INTERVAL", "15")
	t.Setenv("DEFAULT_ALERT_COOLDOWN", "90s")
	t.Setenv("LONG_JOB_QUEUES", " reports, exports ,,")
	t.Setenv("LONG_JOB_QUEUE_THRESHOLD", "50000")
	t.Setenv("ALERT_EMAIL_FROM", "alerts@example.com")
	t.Setenv("EMAIL_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rabbit.internal:15673", cfg.Broker().Address())
	assert.Equal(t, "https://hooks.example/T/B/x", cfg.WebhookURL)
	assert.Equal(t, int64(2500), cfg.Thresholds().QueueLengthMax)
	assert.Equal(t, 72.5, cfg.Thresholds().MemoryPercentMax)
	assert.Equal(t, 15*time.Second, cfg.Interval)
	assert.Equal(t, 90*time.Second, cfg.Cooldown)
	assert.Equal(t, []string{"reports", "exports"}, cfg.LongJobQueues)
	assert.Equal(t, "alerts@example.com", cfg.AlertEmailFrom)
	assert.Equal(t, 3*time.Second, cfg.EmailTimeout)

	ov := cfg.Overrides()
	require.Len(t, ov, 2)
	assert.Equal(t, "reports", ov[0].Name)
	assert.Equal(t, int64(50000), ov[0].QueueLengthMax)
	assert.Equal(t, 3*time.Hour, ov[0].Cooldown)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"ALERT_MAX_QUEUE_LENGTH":   "lots",
		"ALERT_MIN_CONSUMERS":      "-1",
		"ALERT_MAX_DISK_PERCENT":   "150",
		"MONITORING_INTERVAL":      "0",
		"DEFAULT_ALERT_COOLDOWN":   "soon",
		"LONG_JOB_QUEUE_COOLDOWN":  "-5",
		"EMAIL_TIMEOUT":            "ten",
		"RABBITMQ_API_TIMEOUT":     "10",
		"APP_JOURNAL_RETENTION":    "a day",
		"ALERT_MAX_MEMORY_PERCENT": "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			require.Error(t, err)
			if key != "MONITORING_INTERVAL" {
				assert.Contains(t, err.Error(), key)
			}
		})
	}
}

func TestLoadRejectsZeroCooldown(t *testing.T) {
	for _, key := range []string{"DEFAULT_ALERT_COOLDOWN", "LONG_JOB_QUEUE_COOLDOWN"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "0")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
			assert.Contains(t, err.Error(), "must be positive")
		})
	}
}
