package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"alertrelay/internal/config"
	"alertrelay/internal/constants"
	"alertrelay/internal/logger"
	"alertrelay/pkg/metrics"
	"alertrelay/pkg/retry"
	"alertrelay/pkg/tracing"
)

// writer is the subset of *kafka.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer writer
	topic  string
	policy retry.Policy
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return newKafkaProducer(w, cfg.Topic, log)
}

func newKafkaProducer(w writer, topic string, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: w,
		topic:  topic,
		policy: retry.PublishPolicy(),
		logger: log,
	}
}

// Publish writes one event keyed by identity key, so events of the same message share a partition.
func (p *KafkaProducer) Publish(ctx context.Context, event OutcomeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}

	headers := []kafka.Header{{Key: "outcome", Value: []byte(event.Outcome)}}
	headers = tracing.InjectTraceContext(ctx, headers)

	msg := kafka.Message{
		Key:     []byte(event.IdentityKey),
		Value:   body,
		Headers: headers,
		Time:    event.OccurredAt,
	}

	start := time.Now()
	err = retry.Do(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, msg)
	}, func(attempt int, err error, next time.Duration) {
		metrics.IncRetryAttempt("broker", "kafka_write")
		p.logger.WarnwCtx(ctx, "Retrying kafka write",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
	metrics.ObserveKafkaWriteDuration(p.topic, time.Since(start))

	if err != nil {
		metrics.IncKafkaMessagesWritten(p.topic, "error")
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	metrics.IncKafkaMessagesWritten(p.topic, "ok")
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
