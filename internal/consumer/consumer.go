// Package consumer runs a Kafka consumer-group reader for one topic and
// dispatches each message to a handler.
//
// A message is committed only after its handler succeeds or after it has been
// written to the topic's dead-letter topic. Retryable failures are re-run with
// backoff until the consumer stops; other failures are dead-lettered after
// MaxAttempts tries.
package consumer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/messaging"
	"github.com/helixir/document-review-service/internal/observability"
)

// Dead-letter headers.
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderError             = "x-error"
	HeaderAttempts          = "x-attempts"
)

// HandlerFunc processes one message. Returning nil commits the message.
type HandlerFunc func(ctx context.Context, msg messaging.Message) error

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds configuration for one topic consumer.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic to consume.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
	// DeadLetterTopic receives messages that exhausted their attempts.
	DeadLetterTopic string
	// MaxAttempts bounds attempts for non-retryable failures.
	MaxAttempts int
	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration
	// RetryBackoff is the initial delay between attempts.
	RetryBackoff time.Duration
	// MaxRetryBackoff caps the delay between attempts.
	MaxRetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = 30 * time.Second
	}
	if c.DeadLetterTopic == "" {
		c.DeadLetterTopic = c.Topic + ".dlq"
	}
	return c
}

// Consumer reads one topic and dispatches to a HandlerFunc.
type Consumer struct {
	reader     Reader
	handler    HandlerFunc
	deadLetter messaging.Publisher
	cfg        Config
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// New creates a consumer with a kafka-go consumer-group reader.
func New(cfg Config, handler HandlerFunc, deadLetter messaging.Publisher, metrics *observability.Metrics, logger zerolog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("topic and group id are required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return NewWithReader(reader, cfg, handler, deadLetter, metrics, logger), nil
}

// NewWithReader creates a consumer on an existing reader.
func NewWithReader(reader Reader, cfg Config, handler HandlerFunc, deadLetter messaging.Publisher, metrics *observability.Metrics, logger zerolog.Logger) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		reader:     reader,
		handler:    handler,
		deadLetter: deadLetter,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With().Str("component", "consumer").Str("topic", cfg.Topic).Logger(),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Str("group_id", c.cfg.GroupID).Msg("starting consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("consumer stopped via context cancellation")
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to fetch message from Kafka")
			if err := sleep(ctx, c.cfg.RetryBackoff); err != nil {
				return err
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			// Only returned when ctx ended; the message stays uncommitted.
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to commit message")
		}
	}
}

// process runs the handler until the message can be committed. It returns a
// non-nil error only when ctx is done.
func (c *Consumer) process(ctx context.Context, km kafka.Message) error {
	logger := observability.WithMessageContext(c.logger, km.Topic, km.Partition, km.Offset)
	msg := messaging.Message{
		Topic:   km.Topic,
		Key:     string(km.Key),
		Value:   km.Value,
		Headers: messaging.HeadersFromKafka(km.Headers),
	}

	b := c.newBackOff()
	attempts := 0
	for {
		attempts++
		err := c.invoke(ctx, msg)
		if err == nil {
			c.metrics.RecordMessageConsumed(c.cfg.Topic, "ok")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case domain.IsRetryable(err):
			c.metrics.RecordMessageConsumed(c.cfg.Topic, "retry")
			logger.Warn().Err(err).Int("attempt", attempts).Msg("retryable handler failure")
		case attempts < c.cfg.MaxAttempts:
			c.metrics.RecordMessageConsumed(c.cfg.Topic, "error")
			logger.Warn().Err(err).Int("attempt", attempts).Msg("handler failed")
		default:
			c.metrics.RecordMessageConsumed(c.cfg.Topic, "dead_lettered")
			logger.Error().Err(err).Int("attempts", attempts).Msg("handler failed, dead-lettering message")
			return c.sendToDeadLetter(ctx, km, err, attempts)
		}

		if err := sleep(ctx, b.NextBackOff()); err != nil {
			return err
		}
	}
}

func (c *Consumer) invoke(ctx context.Context, msg messaging.Message) error {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
	defer cancel()

	err := c.handler(hctx, msg)
	if ctx.Err() != nil {
		return err
	}
	return domain.WrapDeadline(hctx, err, c.cfg.Topic, c.cfg.HandlerTimeout)
}

// sendToDeadLetter publishes km to the dead-letter topic, retrying until it
// succeeds or ctx ends.
func (c *Consumer) sendToDeadLetter(ctx context.Context, km kafka.Message, cause error, attempts int) error {
	headers := messaging.HeadersFromKafka(km.Headers)
	if headers == nil {
		headers = make(map[string]string, 5)
	}
	headers[HeaderOriginalTopic] = km.Topic
	headers[HeaderOriginalPartition] = strconv.Itoa(km.Partition)
	headers[HeaderOriginalOffset] = strconv.FormatInt(km.Offset, 10)
	headers[HeaderError] = cause.Error()
	headers[HeaderAttempts] = strconv.Itoa(attempts)

	dlq := messaging.Message{
		Topic:   c.cfg.DeadLetterTopic,
		Key:     string(km.Key),
		Value:   km.Value,
		Headers: headers,
	}

	op := func() error {
		return c.deadLetter.Publish(ctx, dlq)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("dead-letter publish failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	c.metrics.RecordDeadLettered(c.cfg.Topic)
	return nil
}

func (c *Consumer) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBackoff
	b.MaxInterval = c.cfg.MaxRetryBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	c.logger.Info().Msg("closing consumer")
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
