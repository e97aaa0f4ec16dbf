package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Values are read once at startup; there is no reload.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string

	// Broker
	RedisAddr           string
	RedisUsername       string
	RedisPassword       string
	RedisDB             int
	RedisConnectTimeout time.Duration
	RedisMaxRetries     int
	RedisRetryStep      time.Duration
	RedisRetryCap       time.Duration
	RedisHealthInterval time.Duration

	// Queue
	QueueName        string
	JobMaxAttempts   int
	JobBackoffBase   time.Duration
	JobBackoffFactor float64
	StalledTimeout   time.Duration
	RecordTTL        time.Duration

	// Worker
	WorkerEnabled     bool
	WorkerConcurrency int
	RetryInterval     time.Duration
	RateLimitPerType  int

	// Mail transport: "smtp" or "webhook"
	MailTransport   string
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SMTPInsecure    bool
	MailFromAddress string
	MailFromName    string
	WebhookURL      string
	WebhookTimeout  time.Duration
	AppURL          string
	AppName         string

	// Delivery log (optional)
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisUsername:       getEnv("REDIS_USERNAME", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getInt("REDIS_DB", 0),
		RedisConnectTimeout: getDuration("REDIS_CONNECT_TIMEOUT", 3*time.Second),
		RedisMaxRetries:     getInt("REDIS_MAX_RETRIES", 3),
		RedisRetryStep:      getDuration("REDIS_RETRY_STEP", 50*time.Millisecond),
		RedisRetryCap:       getDuration("REDIS_RETRY_CAP", 2*time.Second),
		RedisHealthInterval: getDuration("REDIS_HEALTH_INTERVAL", 5*time.Second),

		QueueName:        getEnv("QUEUE_NAME", "email-queue"),
		JobMaxAttempts:   getInt("JOB_MAX_ATTEMPTS", 3),
		JobBackoffBase:   getDuration("JOB_BACKOFF_BASE", time.Second),
		JobBackoffFactor: getFloat("JOB_BACKOFF_FACTOR", 2),
		StalledTimeout:   getDuration("STALLED_TIMEOUT", 5*time.Minute),
		RecordTTL:        getDuration("RECORD_TTL", 7*24*time.Hour),

		WorkerEnabled:     getBool("WORKER_ENABLED", true),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 1),
		RetryInterval:     getDuration("RETRY_INTERVAL", 500*time.Millisecond),
		RateLimitPerType:  getInt("RATE_LIMIT_PER_TYPE", 10),

		MailTransport:   strings.ToLower(getEnv("MAIL_TRANSPORT", "smtp")),
		SMTPHost:        getEnv("SMTP_HOST", "localhost"),
		SMTPPort:        getInt("SMTP_PORT", 587),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPInsecure:    getBool("SMTP_INSECURE_SKIP_VERIFY", false),
		MailFromAddress: getEnv("MAIL_FROM_ADDRESS", "noreply@example.com"),
		MailFromName:    getEnv("MAIL_FROM_NAME", ""),
		WebhookURL:      getEnv("WEBHOOK_URL", ""),
		WebhookTimeout:  getDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		AppURL:          strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
		AppName:         getEnv("APP_NAME", "NotifyHub"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 1)),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.MailTransport {
	case "smtp":
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required when MAIL_TRANSPORT=webhook")
		}
	default:
		return fmt.Errorf("unsupported MAIL_TRANSPORT %q: must be smtp or webhook", c.MailTransport)
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.JobBackoffFactor < 1 {
		return fmt.Errorf("JOB_BACKOFF_FACTOR must be >= 1")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
