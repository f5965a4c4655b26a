package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

const contentType = "application/json"

// Producer publishes through a segmentio/kafka-go writer. Reports are
// keyed by id, so the hash balancer keeps a report's retries on one
// partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return NewProducerFrom(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	})
}

// NewProducerFrom wraps a caller-configured writer.
func NewProducerFrom(w *kafka.Writer) *Producer {
	return &Producer{writer: w}
}

func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, message(key, value))
}

func message(key, value []byte) kafka.Message {
	return kafka.Message{
		Key:   key,
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(contentType)},
		},
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
