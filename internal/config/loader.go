package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the optional YAML file and the environment, then validates it.
// An empty configFile means environment and defaults only.
func Load(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("mailbox.host", "imap.gmail.com")
	viper.SetDefault("mailbox.port", 993)
	viper.SetDefault("mailbox.tls", "implicit")
	viper.SetDefault("mailbox.folder", "INBOX")
	viper.SetDefault("mailbox.timeout", "30s")
	viper.SetDefault("mailbox.unseen_only", false)
	viper.SetDefault("mailbox.mark_seen", true)
	viper.SetDefault("mailbox.connect_retry.max_attempts", 1)
	viper.SetDefault("mailbox.connect_retry.initial_interval", "1s")
	viper.SetDefault("mailbox.connect_retry.max_interval", "10s")
	viper.SetDefault("mailbox.connect_retry.multiplier", 2.0)
	viper.SetDefault("mailbox.connect_retry.max_elapsed_time", "30s")

	viper.SetDefault("collector.alerts_path", "/api/alerts")
	viper.SetDefault("collector.vehicles_path", "/api/vehicles")
	viper.SetDefault("collector.timeout", "15s")
	viper.SetDefault("collector.accept_conflict", false)
	viper.SetDefault("collector.rate_limit.enabled", false)
	viper.SetDefault("collector.rate_limit.rps", 5.0)
	viper.SetDefault("collector.rate_limit.burst", 5)

	viper.SetDefault("scan.lookback_days", 1)
	viper.SetDefault("scan.allowed_types", []string{"IMPACTO", "FRENADA", "ACELERACION"})
	viper.SetDefault("scan.timezone", "America/Lima")

	viper.SetDefault("schedule.active_window_seconds", 60)
	viper.SetDefault("schedule.poll_interval_seconds", 10)
	viper.SetDefault("schedule.quiescent_sleep_seconds", 120)

	viper.SetDefault("dedup.store", "file")
	viper.SetDefault("dedup.dir", "cache")
	viper.SetDefault("dedup.window_padding_days", 1)
	viper.SetDefault("dedup.key_prefix", "alertrelay:")
	viper.SetDefault("dedup.redis.port", 6379)

	viper.SetDefault("broker.type", "none")
	viper.SetDefault("broker.kafka.topic", "alert_outcomes")

	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.rate_limit.enabled", false)
	viper.SetDefault("server.rate_limit.rps", 10.0)
	viper.SetDefault("server.rate_limit.burst", 20)
	viper.SetDefault("server.stale_after", "15m")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", "60s")
	viper.SetDefault("circuit_breaker.timeout", "30s")
	viper.SetDefault("circuit_breaker.failure_ratio", 0.6)
	viper.SetDefault("circuit_breaker.min_requests", 5)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "alert-relay")
	viper.SetDefault("tracing.otlp.insecure", true)
	viper.SetDefault("tracing.sampler.type", "always")
	viper.SetDefault("tracing.sampler.param", 1.0)
}

// bindEnvVariables binds each key to its canonical variable first and the legacy script names second.
func bindEnvVariables() {
	viper.BindEnv("mailbox.host", "MAILBOX_HOST")
	viper.BindEnv("mailbox.port", "MAILBOX_PORT")
	viper.BindEnv("mailbox.username", "MAILBOX_USERNAME", "GMAIL_USER")
	viper.BindEnv("mailbox.password", "MAILBOX_PASSWORD", "GMAIL_PASS")
	viper.BindEnv("mailbox.unseen_only", "MAILBOX_UNSEEN_ONLY")

	viper.BindEnv("collector.base_url", "COLLECTOR_BASE_URL", "ALERT_API_BASE")
	viper.BindEnv("collector.company_id", "COLLECTOR_COMPANY_ID", "ALERT_COMPANY_ID")

	viper.BindEnv("scan.lookback_days", "SCAN_LOOKBACK_DAYS", "ALERT_DAYS_BACK")
	viper.BindEnv("scan.timezone", "SCAN_TIMEZONE")

	viper.BindEnv("schedule.active_window_seconds", "SCHEDULE_ACTIVE_WINDOW_SECONDS", "WORK_WINDOW_SECONDS")
	viper.BindEnv("schedule.poll_interval_seconds", "SCHEDULE_POLL_INTERVAL_SECONDS", "POLL_INTERVAL_SECONDS")
	viper.BindEnv("schedule.quiescent_sleep_seconds", "SCHEDULE_QUIESCENT_SLEEP_SECONDS", "SLEEP_BETWEEN_CYCLES_SECONDS")

	viper.BindEnv("dedup.store", "DEDUP_STORE")
	viper.BindEnv("dedup.dir", "DEDUP_DIR")
	viper.BindEnv("dedup.redis.host", "DEDUP_REDIS_HOST")
	viper.BindEnv("dedup.redis.port", "DEDUP_REDIS_PORT")
	viper.BindEnv("dedup.redis.password", "DEDUP_REDIS_PASSWORD")

	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.topic", "BROKER_KAFKA_TOPIC")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.enabled", "SERVER_ENABLED")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) {
	if brokers := splitList(viper.GetString("BROKER_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Broker.Kafka.Brokers = brokers
	}

	if types := splitList(viper.GetString("SCAN_ALLOWED_TYPES")); len(types) > 0 {
		cfg.Scan.AllowedTypes = types
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
