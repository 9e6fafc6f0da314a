package broker

import (
	"context"
	"fmt"

	"alertrelay/internal/config"
	"alertrelay/internal/constants"
	"alertrelay/internal/logger"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		return NewKafkaProducer(cfg.Kafka, log), nil
	case constants.BrokerTypeNone, "":
		return NopProducer{}, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// NopProducer drops every event.
type NopProducer struct{}

func (NopProducer) Publish(context.Context, OutcomeEvent) error { return nil }

func (NopProducer) Close() error { return nil }
