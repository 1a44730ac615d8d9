package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Farm      FarmConfig
	Transcode TranscodeConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
	Worker    WorkerConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	ProxyTTL time.Duration
}

// StorageConfig holds object storage configuration for render outputs
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
	PresignOutputs  bool
	PresignTTL      time.Duration
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// FarmConfig holds render farm configuration
type FarmConfig struct {
	Endpoint           string
	APIKey             string
	Composition        string
	Codec              string
	AccountConcurrency int
	HardCap            int
	MaxAttempts        int
	LaunchTimeout      time.Duration
	PollTimeout        time.Duration
}

// Configured reports whether farm credentials are present
func (f FarmConfig) Configured() bool {
	return f.Endpoint != "" && f.APIKey != ""
}

// TranscodeConfig holds configuration for the external proxy transcode service
type TranscodeConfig struct {
	Endpoint      string
	AccountID     string
	APIToken      string
	UploadTimeout time.Duration
	PollTimeout   time.Duration
}

// Configured reports whether transcode credentials are present
func (t TranscodeConfig) Configured() bool {
	return t.Endpoint != "" && t.AccountID != "" && t.APIToken != ""
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	JWTSecret    string
	SharedSecret string
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds the metrics server configuration
type MetricsConfig struct {
	Port int
}

// TracingConfig holds Jaeger configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	JaegerEndpoint string
}

// WorkerConfig holds background poller configuration
type WorkerConfig struct {
	PollInterval  time.Duration
	RenderTimeout time.Duration
	SweepInterval time.Duration
}

// WebhookConfig holds outbound notification endpoints
type WebhookConfig struct {
	Endpoints []models.Webhook
	Timeout   time.Duration
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// LaunchesPerMinute bounds render launches per client across API replicas
	LaunchesPerMinute int
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "150s")
	v.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "render")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.proxyTTL", "24h")

	// Storage defaults
	v.SetDefault("storage.endpoint", "s3.amazonaws.com")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", true)
	v.SetDefault("storage.presignOutputs", false)
	v.SetDefault("storage.presignTTL", "1h")

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Farm defaults
	v.SetDefault("farm.composition", "main")
	v.SetDefault("farm.codec", "h264")
	v.SetDefault("farm.accountConcurrency", 10)
	v.SetDefault("farm.hardCap", 200)
	v.SetDefault("farm.maxAttempts", 3)
	v.SetDefault("farm.launchTimeout", "90s")
	v.SetDefault("farm.pollTimeout", "5s")

	// Transcode defaults
	v.SetDefault("transcode.endpoint", "https://api.cloudflare.com/client/v4")
	v.SetDefault("transcode.uploadTimeout", "90s")
	v.SetDefault("transcode.pollTimeout", "5s")

	// Credentials are empty by default so they can be supplied via env
	for _, key := range []string{
		"farm.endpoint", "farm.apiKey",
		"transcode.accountID", "transcode.apiToken",
		"storage.accessKeyID", "storage.secretAccessKey",
		"auth.jwtSecret", "auth.sharedSecret",
	} {
		v.SetDefault(key, "")
	}

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.port", 9090)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "render")
	v.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")

	// Worker defaults
	v.SetDefault("worker.pollInterval", "5s")
	v.SetDefault("worker.renderTimeout", "30m")
	v.SetDefault("worker.sweepInterval", "1m")

	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("rateLimit.requestsPerSecond", 10)
	v.SetDefault("rateLimit.burst", 20)
	v.SetDefault("rateLimit.launchesPerMinute", 30)
}
