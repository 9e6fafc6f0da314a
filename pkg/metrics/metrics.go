package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ScanCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_cycles_total",
			Help: "Total number of scan cycles by result (count)",
		},
		[]string{"status"},
	)

	ScanCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_cycle_duration_ms",
			Help:    "Duration of one scan cycle in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"status"},
	)

	LastCycleTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_last_cycle_timestamp_seconds",
			Help: "Unix time at which the last scan cycle finished (seconds)",
		},
	)

	MessagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_processed_total",
			Help: "Total number of mailbox messages by outcome (count)",
		},
		[]string{"outcome"},
	)

	MessagesSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_suppressed_total",
			Help: "Total number of messages recorded without delivery (count)",
		},
		[]string{"reason"},
	)

	DeliveryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_requests_total",
			Help: "Total number of collector requests by result (count)",
		},
		[]string{"endpoint", "status"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_ms",
			Help:    "Duration of collector requests in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		},
		[]string{"endpoint"},
	)

	DedupCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_commits_total",
			Help: "Total number of identity key commits by result (count)",
		},
		[]string{"status"},
	)

	DedupWindowSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_window_size",
			Help: "Identity keys loaded for the current lookup window (count)",
		},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "operation"},
	)

	SchedulerPhase = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_phase",
			Help: "Current duty-cycle phase (0=quiescent, 1=active) (state code)",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of ops API requests checked by the rate limiter (count)",
		},
		[]string{"result"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"topic", "status"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)
)

var (
	pipelineOnce       sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	httpOnce           sync.Once
)

// RegisterPipelineMetrics registers scan, delivery and dedup collectors with the default registry.
// Repeated calls are no-ops.
func RegisterPipelineMetrics() {
	pipelineOnce.Do(func() {
		prometheus.MustRegister(ScanCyclesTotal)
		prometheus.MustRegister(ScanCycleDuration)
		prometheus.MustRegister(LastCycleTimestamp)
		prometheus.MustRegister(MessagesProcessedTotal)
		prometheus.MustRegister(MessagesSuppressedTotal)
		prometheus.MustRegister(DeliveryRequestsTotal)
		prometheus.MustRegister(DeliveryDuration)
		prometheus.MustRegister(DedupCommitsTotal)
		prometheus.MustRegister(DedupWindowSize)
		prometheus.MustRegister(FallbackUsageTotal)
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(SchedulerPhase)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterHTTPMetrics() {
	httpOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func ObserveScanCycle(duration time.Duration, status string) {
	ScanCyclesTotal.WithLabelValues(status).Inc()
	ScanCycleDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
	LastCycleTimestamp.SetToCurrentTime()
}

func IncMessageOutcome(outcome string) {
	MessagesProcessedTotal.WithLabelValues(outcome).Inc()
}

func IncSuppressed(reason string) {
	MessagesSuppressedTotal.WithLabelValues(reason).Inc()
}

func ObserveDelivery(endpoint, status string, duration time.Duration) {
	DeliveryRequestsTotal.WithLabelValues(endpoint, status).Inc()
	DeliveryDuration.WithLabelValues(endpoint).Observe(float64(duration.Milliseconds()))
}

func IncDedupCommit(status string) {
	DedupCommitsTotal.WithLabelValues(status).Inc()
}

func SetDedupWindowSize(size int) {
	DedupWindowSize.Set(float64(size))
}

func IncFallback(service, strategy, reason string) {
	FallbackUsageTotal.WithLabelValues(service, strategy, reason).Inc()
}

func IncRetryAttempt(service, operation string) {
	RetryAttemptsTotal.WithLabelValues(service, operation).Inc()
}

func SetSchedulerPhase(active bool) {
	if active {
		SchedulerPhase.Set(1)
		return
	}
	SchedulerPhase.Set(0)
}

func IncKafkaMessagesWritten(topic, status string) {
	KafkaMessagesWrittenTotal.WithLabelValues(topic, status).Inc()
}

func ObserveKafkaWriteDuration(topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}
