// Package config provides configuration management for the document review service.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/document-review-service/internal/domain"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "DOCREVIEW"

// Config holds all configuration for the document review service.
type Config struct {
	// Server contains HTTP/gRPC server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings for the tracking store.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains broker and topic settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Outbox contains outbox relay settings.
	Outbox OutboxConfig `mapstructure:"outbox"`
	// Consumer contains inbound event consumer settings.
	Consumer ConsumerConfig `mapstructure:"consumer"`
	// ObjectStore contains S3-compatible object storage settings.
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	// Redis contains connection settings for the threshold store.
	Redis RedisConfig `mapstructure:"redis"`
	// Threshold contains confidence threshold settings.
	Threshold ThresholdConfig `mapstructure:"threshold"`
	// Tracker contains completion tracker settings.
	Tracker TrackerConfig `mapstructure:"tracker"`
	// Labeling contains streaming labeling job settings.
	Labeling LabelingConfig `mapstructure:"labeling"`
	// Monitor contains job lifecycle monitor scheduling settings.
	Monitor MonitorConfig `mapstructure:"monitor"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// GRPCPort is the gRPC health server port (default: 9090).
	GRPCPort int `mapstructure:"grpc_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds each annotation handler invocation.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue for the labeling job monitor.
	TaskQueue string `mapstructure:"task_queue"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// ReviewTaskTopic receives manifest entries produced by triage.
	ReviewTaskTopic string `mapstructure:"review_task_topic"`
	// NotificationTopic receives "all pages reviewed" notifications.
	NotificationTopic string `mapstructure:"notification_topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// WriteTimeout bounds a single produce call.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// OutboxConfig holds outbox relay settings.
type OutboxConfig struct {
	// PollInterval is how often the relay polls for pending events.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// BatchSize is the number of events claimed per poll.
	BatchSize int `mapstructure:"batch_size"`
	// Workers is the number of concurrent relay workers.
	Workers int `mapstructure:"workers"`
	// MaxRetries is the maximum publish attempts before an event is marked
	// dead. Job completion notifications are never marked dead: past this
	// limit they are retried at the maximum delay and reported as overdue.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBackoff is the base delay before a failed event is retried.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// ConsumerConfig holds inbound event consumer settings.
type ConsumerConfig struct {
	// Enabled starts the Kafka consumers in the worker process.
	Enabled bool `mapstructure:"enabled"`
	// ExtractionTopic carries extraction-complete notifications.
	ExtractionTopic string `mapstructure:"extraction_topic"`
	// CompletionTopic carries review-completion events.
	CompletionTopic string `mapstructure:"completion_topic"`
	// GroupID is the consumer group shared by all worker replicas.
	GroupID string `mapstructure:"group_id"`
	// DeadLetterSuffix is appended to a topic name to form its dead-letter topic.
	DeadLetterSuffix string `mapstructure:"dead_letter_suffix"`
	// MaxAttempts bounds delivery attempts for malformed messages before dead-lettering.
	MaxAttempts int `mapstructure:"max_attempts"`
	// HandlerTimeout is the deadline for a single message handler invocation.
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	// RetryBackoff is the initial delay between retries of a retryable failure.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// MaxRetryBackoff caps the delay between retries.
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// ObjectStoreConfig holds S3-compatible object storage settings.
type ObjectStoreConfig struct {
	// Endpoint is the object store host:port.
	Endpoint string `mapstructure:"endpoint"`
	// AccessKey is the access key id.
	AccessKey string `mapstructure:"access_key"`
	// SecretKey is the secret key (loaded from DOCREVIEW_OBJECT_STORE_SECRET_KEY env var).
	SecretKey string `mapstructure:"-"`
	// UseSSL enables TLS to the object store.
	UseSSL bool `mapstructure:"use_ssl"`
	// Region is the bucket region, if the store requires one.
	Region string `mapstructure:"region"`
	// Bucket holds extraction output and per-page review artifacts.
	Bucket string `mapstructure:"bucket"`
	// ExtractionPrefix is the prefix under which the extraction service writes job output.
	ExtractionPrefix string `mapstructure:"extraction_prefix"`
	// KMSKeyID is passed to review tasks for encrypting reviewer output.
	KMSKeyID string `mapstructure:"kms_key_id"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Enabled reads the threshold from Redis instead of the static default.
	Enabled bool `mapstructure:"enabled"`
	// Addr is the Redis host:port.
	Addr string `mapstructure:"addr"`
	// Password is the Redis password (loaded from DOCREVIEW_REDIS_PASSWORD env var).
	Password string `mapstructure:"-"`
	// DB is the Redis logical database.
	DB int `mapstructure:"db"`
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ThresholdConfig holds confidence threshold settings.
type ThresholdConfig struct {
	// Default is used when no externally managed value is available.
	Default float64 `mapstructure:"default"`
	// RedisKey is the key holding the externally managed threshold.
	RedisKey string `mapstructure:"redis_key"`
}

// TrackerConfig holds completion tracker retry settings.
type TrackerConfig struct {
	// InitialBackoff is the first delay after a store failure.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	// MaxBackoff caps the delay between store retries.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// MaxElapsed bounds total retry time within one invocation.
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

// LabelingConfig holds the streaming labeling job configuration snapshot
// and control API settings.
type LabelingConfig struct {
	// APIBaseURL is the labeling control API base URL.
	APIBaseURL string `mapstructure:"api_base_url"`
	// APIKey authenticates control API calls (loaded from DOCREVIEW_LABELING_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Timeout is the timeout for control API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum control API requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxRetries bounds status read retries. Creates are never retried.
	MaxRetries int `mapstructure:"max_retries"`
	// JobName is the name prefix of the streaming job.
	JobName string `mapstructure:"job_name"`
	// LabelAttributeName is the output attribute written by the job.
	LabelAttributeName string `mapstructure:"label_attribute_name"`
	// InputTopic is the topic the job reads tasks from.
	InputTopic string `mapstructure:"input_topic"`
	// OutputPath is where the job writes reviewer output.
	OutputPath string `mapstructure:"output_path"`
	// RoleRef is the identity the job runs as.
	RoleRef string `mapstructure:"role_ref"`
	// WorkteamRef is the worker pool reference.
	WorkteamRef string `mapstructure:"workteam_ref"`
	// UITemplateURI is the review UI template location.
	UITemplateURI string `mapstructure:"ui_template_uri"`
	// PreHumanTaskEndpoint is invoked per task to format the UI payload.
	PreHumanTaskEndpoint string `mapstructure:"pre_human_task_endpoint"`
	// ConsolidationEndpoint is invoked with reviewer output.
	ConsolidationEndpoint string `mapstructure:"consolidation_endpoint"`
	// TaskTitle is shown to workers.
	TaskTitle string `mapstructure:"task_title"`
	// TaskDescription is shown to workers.
	TaskDescription string `mapstructure:"task_description"`
	// TaskTimeLimit is how long a worker may hold a task (max 8h).
	TaskTimeLimit time.Duration `mapstructure:"task_time_limit"`
	// WorkersPerObject is the number of reviewers per page.
	WorkersPerObject int `mapstructure:"workers_per_object"`
	// MaxConcurrentTasks caps tasks in flight across the workforce.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
	// Tags are attached to every created job.
	Tags map[string]string `mapstructure:"tags"`
}

// MonitorConfig holds job lifecycle monitor scheduling settings.
type MonitorConfig struct {
	// ScheduleID identifies the Temporal schedule.
	ScheduleID string `mapstructure:"schedule_id"`
	// Cron is the schedule expression (default: daily at 06:00 UTC).
	Cron string `mapstructure:"cron"`
	// RunTimeout bounds a single reconcile workflow execution.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// GRPCAddress returns the gRPC server address.
func (c *ServerConfig) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// DeadLetterTopic returns the dead-letter topic for topic.
func (c *ConsumerConfig) DeadLetterTopic(topic string) string {
	return topic + c.DeadLetterSuffix
}

// JobConfig returns the configuration snapshot used to create a labeling job.
func (c *LabelingConfig) JobConfig() domain.LabelingJobConfig {
	tags := make(map[string]string, len(c.Tags))
	for k, v := range c.Tags {
		tags[k] = v
	}
	return domain.LabelingJobConfig{
		NamePrefix:            c.JobName,
		LabelAttributeName:    c.LabelAttributeName,
		InputTopic:            c.InputTopic,
		OutputPath:            c.OutputPath,
		RoleRef:               c.RoleRef,
		WorkteamRef:           c.WorkteamRef,
		UITemplateURI:         c.UITemplateURI,
		PreHumanTaskEndpoint:  c.PreHumanTaskEndpoint,
		ConsolidationEndpoint: c.ConsolidationEndpoint,
		TaskTitle:             c.TaskTitle,
		TaskDescription:       c.TaskDescription,
		TaskTimeLimit:         c.TaskTimeLimit,
		WorkersPerObject:      c.WorkersPerObject,
		MaxConcurrentTasks:    c.MaxConcurrentTasks,
		Tags:                  tags,
	}
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/document-review-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets use mapstructure:"-" and are never read from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Labeling.APIKey = os.Getenv(EnvPrefix + "_LABELING_API_KEY")
	cfg.ObjectStore.SecretKey = os.Getenv(EnvPrefix + "_OBJECT_STORE_SECRET_KEY")
	cfg.Redis.Password = os.Getenv(EnvPrefix + "_REDIS_PASSWORD")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "25s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "docreview")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "document_review_service")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "document-review")
	v.SetDefault("temporal.task_queue", "document-review-monitor")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "document_review")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.review_task_topic", "review.tasks")
	v.SetDefault("kafka.notification_topic", "review.jobs.completed")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.write_timeout", "10s")

	// Outbox relay defaults
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.workers", 2)
	v.SetDefault("outbox.max_retries", 10)
	v.SetDefault("outbox.retry_backoff", "5s")

	// Consumer defaults
	v.SetDefault("consumer.enabled", true)
	v.SetDefault("consumer.extraction_topic", "extraction.completed")
	v.SetDefault("consumer.completion_topic", "review.completed")
	v.SetDefault("consumer.group_id", "document-review-service")
	v.SetDefault("consumer.dead_letter_suffix", ".dlq")
	v.SetDefault("consumer.max_attempts", 3)
	v.SetDefault("consumer.handler_timeout", "60s")
	v.SetDefault("consumer.retry_backoff", "500ms")
	v.SetDefault("consumer.max_retry_backoff", "30s")

	// Object store defaults
	// The secret key is loaded exclusively from the environment (see loadSecrets).
	v.SetDefault("object_store.endpoint", "localhost:9000")
	v.SetDefault("object_store.access_key", "")
	v.SetDefault("object_store.use_ssl", false)
	v.SetDefault("object_store.region", "")
	v.SetDefault("object_store.bucket", "document-review")
	v.SetDefault("object_store.extraction_prefix", "extraction-output")
	v.SetDefault("object_store.kms_key_id", "")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "5s")

	// Threshold defaults
	v.SetDefault("threshold.default", 0.95)
	v.SetDefault("threshold.redis_key", "document-review:confidence-threshold")

	// Tracker defaults
	v.SetDefault("tracker.initial_backoff", "100ms")
	v.SetDefault("tracker.max_backoff", "5s")
	v.SetDefault("tracker.max_elapsed", "30s")

	// Labeling job defaults
	v.SetDefault("labeling.api_base_url", "http://localhost:8085")
	v.SetDefault("labeling.timeout", "30s")
	v.SetDefault("labeling.rate_limit", 5.0)
	v.SetDefault("labeling.max_retries", 3)
	v.SetDefault("labeling.job_name", "document-review")
	v.SetDefault("labeling.label_attribute_name", "idp")
	v.SetDefault("labeling.task_title", "Document Extraction Human Review")
	v.SetDefault("labeling.task_description", "Review low confidence fields extracted from a document page")
	v.SetDefault("labeling.task_time_limit", "8h")
	v.SetDefault("labeling.workers_per_object", 1)
	v.SetDefault("labeling.max_concurrent_tasks", 1000)

	// Monitor defaults
	v.SetDefault("monitor.schedule_id", "labeling-job-reconcile")
	v.SetDefault("monitor.cron", "0 6 * * *")
	v.SetDefault("monitor.run_timeout", "5m")
}

// Validate validates the configuration. Violations are reported as
// *domain.ConfigError.
func (c *Config) Validate() error {
	// Validate server ports
	if err := validatePort("server.http_port", c.Server.HTTPPort); err != nil {
		return err
	}
	if err := validatePort("server.grpc_port", c.Server.GRPCPort); err != nil {
		return err
	}
	if err := validatePort("server.metrics_port", c.Server.MetricsPort); err != nil {
		return err
	}

	// Validate database config
	if c.Database.Host == "" {
		return domain.NewConfigError("database.host", "database host is required")
	}
	if err := validatePort("database.port", c.Database.Port); err != nil {
		return err
	}
	if c.Database.Name == "" {
		return domain.NewConfigError("database.name", "database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return domain.NewConfigError("database.max_conns",
			fmt.Sprintf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns))
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return domain.NewConfigError("logging.level", fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}

	// Validate threshold
	if err := ValidateThreshold(c.Threshold.Default); err != nil {
		return err
	}

	// Validate messaging
	if len(c.Kafka.Brokers) == 0 {
		return domain.NewConfigError("kafka.brokers", "at least one broker is required")
	}
	if c.Kafka.ReviewTaskTopic == "" {
		return domain.NewConfigError("kafka.review_task_topic", "review task topic is required")
	}
	if c.Kafka.NotificationTopic == "" {
		return domain.NewConfigError("kafka.notification_topic", "notification topic is required")
	}
	if c.Consumer.MaxAttempts < 1 {
		return domain.NewConfigError("consumer.max_attempts", "must be at least 1")
	}
	if c.Outbox.Workers < 1 {
		return domain.NewConfigError("outbox.workers", "must be at least 1")
	}

	// Validate labeling job snapshot
	if c.Labeling.JobName == "" {
		return domain.NewConfigError("labeling.job_name", "labeling job name is required")
	}
	if c.Labeling.TaskTimeLimit <= 0 || c.Labeling.TaskTimeLimit > domain.MaxTaskTimeLimit {
		return domain.NewConfigError("labeling.task_time_limit",
			fmt.Sprintf("task time limit must be in (0, %s], got %s", domain.MaxTaskTimeLimit, c.Labeling.TaskTimeLimit))
	}
	if c.Labeling.WorkersPerObject < 1 {
		return domain.NewConfigError("labeling.workers_per_object", "must be at least 1")
	}
	if c.Labeling.MaxConcurrentTasks < 1 {
		return domain.NewConfigError("labeling.max_concurrent_tasks", "must be at least 1")
	}

	if c.Monitor.Cron == "" {
		return domain.NewConfigError("monitor.cron", "schedule expression is required")
	}

	return nil
}

// ValidateThreshold checks that a confidence threshold lies in [0,1].
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return domain.NewConfigError("threshold", fmt.Sprintf("confidence threshold must be between 0 and 1, got %v", t))
	}
	return nil
}

func validatePort(key string, port int) error {
	if port <= 0 || port > 65535 {
		return domain.NewConfigError(key, fmt.Sprintf("invalid port: %d", port))
	}
	return nil
}
