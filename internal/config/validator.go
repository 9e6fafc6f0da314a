package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the whole configuration and reports every problem found, not just the first.
func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateMailbox(c.Mailbox) },
		func(c *Config) error { return validateCollector(c.Collector) },
		func(c *Config) error { return validateScan(c.Scan) },
		func(c *Config) error { return validateSchedule(c.Schedule) },
		func(c *Config) error { return validateDedup(c.Dedup) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateLogging(c.Logging) },
		func(c *Config) error { return validateCircuitBreaker(c.CircuitBreaker) },
	}

	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", port),
		}
	}
	return nil
}

func validateMailbox(cfg MailboxConfig) error {
	if cfg.Host == "" {
		return &ValidationError{Field: "mailbox.host", Message: "mailbox host is required"}
	}

	if err := validatePort("mailbox.port", cfg.Port); err != nil {
		return err
	}

	if cfg.Username == "" {
		return &ValidationError{Field: "mailbox.username", Message: "mailbox username is required"}
	}

	if cfg.Password == "" {
		return &ValidationError{Field: "mailbox.password", Message: "mailbox password is required"}
	}

	switch strings.ToLower(cfg.TLS) {
	case "implicit", "starttls", "none":
	default:
		return &ValidationError{
			Field:   "mailbox.tls",
			Message: fmt.Sprintf("invalid tls mode: %s (valid: implicit, starttls, none)", cfg.TLS),
		}
	}

	if cfg.Folder == "" {
		return &ValidationError{Field: "mailbox.folder", Message: "mailbox folder is required"}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{Field: "mailbox.timeout", Message: "timeout must be positive"}
	}

	return validateRetry("mailbox.connect_retry", cfg.ConnectRetry)
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 {
		return &ValidationError{Field: prefix + ".max_attempts", Message: "max_attempts must be at least 1"}
	}

	if cfg.InitialInterval < 0 || cfg.MaxInterval < 0 {
		return &ValidationError{Field: prefix, Message: "intervals must be non-negative"}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.MaxAttempts > 1 && cfg.Multiplier <= 0 {
		return &ValidationError{Field: prefix + ".multiplier", Message: "multiplier must be positive"}
	}

	return nil
}

func validateCollector(cfg CollectorConfig) error {
	if cfg.BaseURL == "" {
		return &ValidationError{Field: "collector.base_url", Message: "collector base URL is required"}
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{
			Field:   "collector.base_url",
			Message: fmt.Sprintf("collector base URL must be an absolute http(s) URL, got %q", cfg.BaseURL),
		}
	}

	if cfg.CompanyID <= 0 {
		return &ValidationError{Field: "collector.company_id", Message: "company id must be positive"}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{Field: "collector.timeout", Message: "timeout must be positive"}
	}

	if !strings.HasPrefix(cfg.AlertsPath, "/") || !strings.HasPrefix(cfg.VehiclesPath, "/") {
		return &ValidationError{Field: "collector.alerts_path", Message: "collector paths must start with /"}
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst < 1) {
		return &ValidationError{Field: "collector.rate_limit", Message: "rps must be positive and burst at least 1"}
	}

	return nil
}

func validateScan(cfg ScanConfig) error {
	if cfg.LookbackDays < 0 {
		return &ValidationError{Field: "scan.lookback_days", Message: "lookback days must be non-negative"}
	}

	if len(cfg.AllowedTypes) == 0 {
		return &ValidationError{Field: "scan.allowed_types", Message: "at least one alert type must be allowed"}
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil || cfg.Timezone == "" {
		return &ValidationError{Field: "scan.timezone", Message: fmt.Sprintf("unknown timezone %q", cfg.Timezone)}
	}

	for i, rule := range cfg.SuppressRules {
		if strings.TrimSpace(rule) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("scan.suppress_rules[%d]", i),
				Message: "rule expression cannot be empty",
			}
		}
	}

	return nil
}

func validateSchedule(cfg ScheduleConfig) error {
	if cfg.ActiveWindowSeconds <= 0 {
		return &ValidationError{Field: "schedule.active_window_seconds", Message: "active window must be positive"}
	}

	if cfg.PollIntervalSeconds <= 0 {
		return &ValidationError{Field: "schedule.poll_interval_seconds", Message: "poll interval must be positive"}
	}

	if cfg.QuiescentSleepSeconds < 0 {
		return &ValidationError{Field: "schedule.quiescent_sleep_seconds", Message: "sleep must be non-negative"}
	}

	return nil
}

func validateDedup(cfg DedupConfig) error {
	if cfg.WindowPaddingDays < 0 {
		return &ValidationError{Field: "dedup.window_padding_days", Message: "padding must be non-negative"}
	}

	switch cfg.Store {
	case "file":
		if cfg.Dir == "" {
			return &ValidationError{Field: "dedup.dir", Message: "cache directory is required for the file store"}
		}
	case "redis":
		if cfg.Redis.Host == "" {
			return &ValidationError{Field: "dedup.redis.host", Message: "Redis host is required"}
		}
		return validatePort("dedup.redis.port", cfg.Redis.Port)
	default:
		return &ValidationError{
			Field:   "dedup.store",
			Message: fmt.Sprintf("unknown dedup store: %s (supported: file, redis)", cfg.Store),
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "", "none":
		return nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return &ValidationError{
				Field:   "broker.kafka.brokers",
				Message: "at least one Kafka broker is required",
			}
		}
		for i, broker := range cfg.Kafka.Brokers {
			if broker == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
					Message: "broker address cannot be empty",
				}
			}
		}
		if cfg.Kafka.Topic == "" {
			return &ValidationError{Field: "broker.kafka.topic", Message: "Kafka topic is required"}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: none, kafka)", cfg.Type),
		}
	}
}

func validateServer(cfg ServerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if err := validatePort("server.port", cfg.Port); err != nil {
		return err
	}

	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		return &ValidationError{Field: "server.read_timeout", Message: "server timeouts must be positive"}
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst < 1) {
		return &ValidationError{Field: "server.rate_limit", Message: "rps must be positive and burst at least 1"}
	}

	if cfg.StaleAfter < 0 {
		return &ValidationError{Field: "server.stale_after", Message: "stale_after must not be negative"}
	}

	return nil
}

func validateLogging(cfg LoggingConfig) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level: %s (valid: debug, info, warn, error)", cfg.Level),
		}
	}
	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: "failure ratio must be in (0, 1]",
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{Field: "circuit_breaker.timeout", Message: "timeout must be positive"}
	}

	return nil
}
