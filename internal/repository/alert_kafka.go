package repository

import (
	"context"
	"fmt"

	"StratGov/internal/domain/models"
	"StratGov/pkg/kafka"
)

// KafkaSink publishes alerts to a Kafka topic, keyed by severity so
// consumers can partition critical traffic away from the rest. Delivery
// to humans (mail, chat, pager) is the consumer's job.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaSink creates a sink writing to topic via brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	producer, err := kafka.NewProducer(
		kafka.WithBrokers(brokers),
		kafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("alert producer: %w", err)
	}
	return &KafkaSink{producer: producer, topic: topic}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, a models.Alert) error {
	if err := s.producer.Publish(ctx, s.topic, []byte(a.Severity), a); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
