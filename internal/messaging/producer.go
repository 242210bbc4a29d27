// Package messaging publishes service messages to Kafka with segmentio/kafka-go.
// The same producer carries review tasks, relayed outbox events and
// dead-lettered messages; each Message names its own topic.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/document-review-service/internal/config"
)

// Message is one record to publish.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// NewJSONMessage marshals v as the message value.
func NewJSONMessage(topic, key string, v interface{}, headers map[string]string) (Message, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message for %s: %w", topic, err)
	}
	return Message{Topic: topic, Key: key, Value: value, Headers: headers}, nil
}

// Publisher is implemented by Producer and by test fakes.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Compile-time interface verification.
var _ Publisher = (*Producer)(nil)

// Producer writes messages to Kafka. Messages with the same key land on the
// same partition, so all messages for one job stay ordered.
type Producer struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewProducer creates a Kafka producer from configuration.
func NewProducer(cfg config.KafkaConfig, logger zerolog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
	}

	return newProducer(w, logger), nil
}

func newProducer(w messageWriter, logger zerolog.Logger) *Producer {
	return &Producer{
		writer: w,
		logger: logger.With().Str("component", "kafka_producer").Logger(),
	}
}

// Publish writes msgs synchronously and returns once the brokers acknowledged
// them or the context ended.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Topic == "" {
			return fmt.Errorf("message topic is required")
		}
		out = append(out, toKafkaMessage(m))
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		var writeErrs kafka.WriteErrors
		if errors.As(err, &writeErrs) {
			p.logger.Error().
				Int("failed", writeErrs.Count()).
				Int("total", len(out)).
				Msg("partial kafka write failure")
		}
		return fmt.Errorf("write %d kafka messages: %w", len(out), err)
	}

	p.logger.Debug().
		Int("count", len(out)).
		Str("topic", msgs[0].Topic).
		Dur("duration", time.Since(start)).
		Msg("published messages")
	return nil
}

// Close flushes pending writes and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func toKafkaMessage(m Message) kafka.Message {
	km := kafka.Message{
		Topic: m.Topic,
		Value: m.Value,
	}
	if m.Key != "" {
		km.Key = []byte(m.Key)
	}
	for k, v := range m.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}

// HeadersFromKafka converts kafka-go headers to a map. Later duplicates win.
func HeadersFromKafka(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
