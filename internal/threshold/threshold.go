// Package threshold provides the confidence threshold used by triage.
//
// The threshold is an externally updatable value: operators change it in
// Redis and the next triage invocation picks it up. When Redis is not
// configured, or the key has never been written, the configured default is
// used.
package threshold

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/domain"
)

// Source returns the current confidence threshold.
type Source interface {
	Current(ctx context.Context) (float64, error)
}

// Static is a Source that always returns the same value.
type Static float64

// Current returns s after validating it.
func (s Static) Current(context.Context) (float64, error) {
	v := float64(s)
	if err := config.ValidateThreshold(v); err != nil {
		return 0, err
	}
	return v, nil
}

// redisClient is the subset of *redis.Client used here.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisSource reads the threshold from a Redis key.
type RedisSource struct {
	client   redisClient
	key      string
	fallback float64
	logger   zerolog.Logger
}

// NewRedisSource connects to Redis using cfg. The connection is verified
// with a PING before returning.
func NewRedisSource(ctx context.Context, cfg config.RedisConfig, tcfg config.ThresholdConfig, logger zerolog.Logger) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return newRedisSource(client, tcfg, logger), nil
}

func newRedisSource(client redisClient, tcfg config.ThresholdConfig, logger zerolog.Logger) *RedisSource {
	return &RedisSource{
		client:   client,
		key:      tcfg.RedisKey,
		fallback: tcfg.Default,
		logger:   logger.With().Str("component", "threshold").Logger(),
	}
}

// Current returns the threshold stored under the configured key, or the
// default when the key is absent. A stored value that is not a number in
// [0,1] is a *domain.ConfigError; a Redis failure is a
// *domain.StoreUnavailableError.
func (s *RedisSource) Current(ctx context.Context) (float64, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug().Str("key", s.key).Float64("threshold", s.fallback).Msg("threshold key not set, using default")
		return Static(s.fallback).Current(ctx)
	}
	if err != nil {
		return 0, domain.NewStoreUnavailableError("read_threshold", err)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.NewConfigError(s.key, fmt.Sprintf("threshold %q is not a number", raw))
	}
	if err := config.ValidateThreshold(v); err != nil {
		return 0, err
	}
	return v, nil
}

// Set stores a new threshold. The value is validated before it is written.
func (s *RedisSource) Set(ctx context.Context, v float64) error {
	if err := config.ValidateThreshold(v); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, strconv.FormatFloat(v, 'f', -1, 64), 0).Err(); err != nil {
		return fmt.Errorf("failed to write threshold to redis: %w", err)
	}
	s.logger.Info().Str("key", s.key).Float64("threshold", v).Msg("threshold updated")
	return nil
}

// Close closes the Redis connection.
func (s *RedisSource) Close() error {
	return s.client.Close()
}

// New returns a RedisSource when Redis is enabled and a Static source
// otherwise. The returned close function is always safe to call.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Source, func() error, error) {
	if !cfg.Redis.Enabled {
		return Static(cfg.Threshold.Default), func() error { return nil }, nil
	}
	src, err := NewRedisSource(ctx, cfg.Redis, cfg.Threshold, logger)
	if err != nil {
		return nil, nil, err
	}
	return src, src.Close, nil
}
