package config

import (
	"fmt"
	"time"
)

// Config is built once at start-up and passed down explicitly. Nothing mutates it afterwards.
type Config struct {
	Mailbox        MailboxConfig        `mapstructure:"mailbox"`
	Collector      CollectorConfig      `mapstructure:"collector"`
	Scan           ScanConfig           `mapstructure:"scan"`
	Schedule       ScheduleConfig       `mapstructure:"schedule"`
	Dedup          DedupConfig          `mapstructure:"dedup"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type MailboxConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// TLS is "implicit" (IMAPS), "starttls" or "none".
	TLS          string        `mapstructure:"tls"`
	Folder       string        `mapstructure:"folder"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UnseenOnly   bool          `mapstructure:"unseen_only"`
	MarkSeen     bool          `mapstructure:"mark_seen"`
	ConnectRetry RetryConfig   `mapstructure:"connect_retry"`
}

func (c MailboxConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type CollectorConfig struct {
	BaseURL        string          `mapstructure:"base_url"`
	AlertsPath     string          `mapstructure:"alerts_path"`
	VehiclesPath   string          `mapstructure:"vehicles_path"`
	CompanyID      int64           `mapstructure:"company_id"`
	Timeout        time.Duration   `mapstructure:"timeout"`
	AcceptConflict bool            `mapstructure:"accept_conflict"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type ScanConfig struct {
	LookbackDays  int      `mapstructure:"lookback_days"`
	AllowedTypes  []string `mapstructure:"allowed_types"`
	SuppressRules []string `mapstructure:"suppress_rules"`
	Timezone      string   `mapstructure:"timezone"`
}

// Location resolves the reference zone used for bucket keys and body timestamps.
func (c ScanConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type ScheduleConfig struct {
	ActiveWindowSeconds   int `mapstructure:"active_window_seconds"`
	PollIntervalSeconds   int `mapstructure:"poll_interval_seconds"`
	QuiescentSleepSeconds int `mapstructure:"quiescent_sleep_seconds"`
}

func (c ScheduleConfig) ActiveWindow() time.Duration {
	return time.Duration(c.ActiveWindowSeconds) * time.Second
}

func (c ScheduleConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c ScheduleConfig) QuiescentSleep() time.Duration {
	return time.Duration(c.QuiescentSleepSeconds) * time.Second
}

type DedupConfig struct {
	// Store is "file" or "redis".
	Store             string      `mapstructure:"store"`
	Dir               string      `mapstructure:"dir"`
	WindowPaddingDays int         `mapstructure:"window_padding_days"`
	KeyPrefix         string      `mapstructure:"key_prefix"`
	Redis             RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BrokerConfig struct {
	// Type is "none" or "kafka".
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ServerConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	Port         int             `mapstructure:"port"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	// StaleAfter marks the service unhealthy when no cycle finished for this long. Zero disables.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}
