// Package config builds the process configuration from environment variables
// so main stays lean. Empty collaborator settings mean "not configured": the
// dependent component degrades (memory stores, disabled reconciler, no-op
// event publisher) instead of failing startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Mailbox    MailboxConfig
	Outbound   OutboundConfig
	Reconciler ReconcilerConfig

	// Retention is how long a third-party request accepts submissions.
	Retention time.Duration

	LogLevel string
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	// AdminTokenHash is a bcrypt hash of the admin token guarding the poll
	// trigger and initiation endpoints. Empty disables those endpoints.
	AdminTokenHash string
}

// PostgresConfig configures the primary store. Empty URL selects in-memory
// stores.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the reconciler lease. Empty URL degrades the lease
// to the in-process guard alone.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the application event publisher. No brokers means
// events are dropped at a no-op publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// MailboxConfig configures the shared IMAP inbox the reconciler scans.
// An empty host disables the reconciler entirely.
type MailboxConfig struct {
	Addr     string // host:port, implicit TLS
	Username string
	Password string
	Folder   string
}

// OutboundConfig describes how third-party request messages are addressed.
type OutboundConfig struct {
	// BaseURL prefixes third-party access links: {BaseURL}/thirdpartyform/{token}.
	BaseURL string
	// ReplyAddress is the base address that gets the +tpr-<token> segment.
	ReplyAddress string
	FromName     string
}

// ReconcilerConfig bounds each inbox scan.
type ReconcilerConfig struct {
	Window      time.Duration
	MaxMessages int
	Interval    time.Duration
	RunTimeout  time.Duration
}

// FromEnv builds a Config from CERTFLOW_* environment variables.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:           getenv("CERTFLOW_ADDR", ":8080"),
			JWTSigningKey:  getenv("CERTFLOW_JWT_SIGNING_KEY", ""),
			JWTIssuer:      getenv("CERTFLOW_JWT_ISSUER", "certflow"),
			AdminTokenHash: getenv("CERTFLOW_ADMIN_TOKEN_HASH", ""),
		},
		Postgres: PostgresConfig{
			URL:             getenv("CERTFLOW_POSTGRES_URL", ""),
			MaxOpenConns:    getint("CERTFLOW_POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getint("CERTFLOW_POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getduration("CERTFLOW_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          getenv("CERTFLOW_REDIS_URL", ""),
			PoolSize:     getint("CERTFLOW_REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("CERTFLOW_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getduration("CERTFLOW_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getduration("CERTFLOW_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getduration("CERTFLOW_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getlist("CERTFLOW_KAFKA_BROKERS"),
			Topic:   getenv("CERTFLOW_KAFKA_TOPIC", "certflow.application-events"),
		},
		Mailbox: MailboxConfig{
			Addr:     getenv("CERTFLOW_MAILBOX_ADDR", ""),
			Username: getenv("CERTFLOW_MAILBOX_USERNAME", ""),
			Password: getenv("CERTFLOW_MAILBOX_PASSWORD", ""),
			Folder:   getenv("CERTFLOW_MAILBOX_FOLDER", "INBOX"),
		},
		Outbound: OutboundConfig{
			BaseURL:      getenv("CERTFLOW_BASE_URL", "http://localhost:8080"),
			ReplyAddress: getenv("CERTFLOW_REPLY_ADDRESS", ""),
			FromName:     getenv("CERTFLOW_FROM_NAME", "Certflow Verifications"),
		},
		Reconciler: ReconcilerConfig{
			Window:      getduration("CERTFLOW_RECONCILER_WINDOW", 72*time.Hour),
			MaxMessages: getint("CERTFLOW_RECONCILER_MAX_MESSAGES", 300),
			Interval:    getduration("CERTFLOW_RECONCILER_INTERVAL", 10*time.Minute),
			RunTimeout:  getduration("CERTFLOW_RECONCILER_RUN_TIMEOUT", 2*time.Minute),
		},
		Retention: getduration("CERTFLOW_THIRD_PARTY_RETENTION", 30*24*time.Hour),
		LogLevel:  getenv("CERTFLOW_LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getlist(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
