package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/Gopher0727/InterviewRoom/config"
)

// Producer is a thin wrapper around a sarama SyncProducer.
type Producer struct {
	producer sarama.SyncProducer
	backoff  time.Duration
}

// SaramaConfig builds the producer settings used for every connection.
func SaramaConfig(cfg *config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = cfg.MaxRetries
	c.Producer.Retry.Backoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Idempotent = true
	c.Net.MaxOpenRequests = 1

	c.Net.DialTimeout = 10 * time.Second
	c.Net.ReadTimeout = 10 * time.Second
	c.Net.WriteTimeout = 10 * time.Second
	c.Metadata.Retry.Max = 3
	c.Metadata.Retry.Backoff = 250 * time.Millisecond
	c.Metadata.Timeout = 10 * time.Second
	return c
}

// NewProducer connects to the configured brokers.
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, SaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFrom(producer, time.Duration(cfg.RetryBackoffMs)*time.Millisecond), nil
}

// NewProducerFrom wraps an existing SyncProducer, e.g. a mock.
func NewProducerFrom(producer sarama.SyncProducer, backoff time.Duration) *Producer {
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Producer{producer: producer, backoff: backoff}
}

// Produce sends one message. A nil key lets sarama pick the partition.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) (partition int32, offset int64, err error) {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}

	partition, offset, err = p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}
	return partition, offset, nil
}

// ProduceWithRetry retries Produce with exponential backoff on top of
// sarama's own retries.
func (p *Producer) ProduceWithRetry(ctx context.Context, topic string, key, value []byte, maxRetries int) (partition int32, offset int64, err error) {
	var lastErr error
	backoff := p.backoff
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		partition, offset, err = p.Produce(ctx, topic, key, value)
		if err == nil {
			return partition, offset, nil
		}
		lastErr = err

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return 0, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return 0, 0, fmt.Errorf("failed to send message after %d attempts: %w", maxRetries+1, lastErr)
}

func (p *Producer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return fmt.Errorf("failed to close kafka producer: %w", err)
		}
	}
	return nil
}
