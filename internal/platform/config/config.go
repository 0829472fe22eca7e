package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Built once in main from the
// environment so the rest of the tree never reads env vars directly.
type Config struct {
	Addr          string
	JWTSigningKey string

	OTP       OTPConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Kafka     KafkaConfig
	Dispatch  DispatchConfig
}

// OTPConfig holds the passcode issuance and verification knobs.
type OTPConfig struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

// RateLimitConfig holds the gateway quota settings. Windows are fixed, not
// sliding: counters reset at the window boundary.
type RateLimitConfig struct {
	PublicLimit        int           // requests per window per IP
	AuthenticatedLimit int           // requests per window per subject
	Window             time.Duration // fixed window length
	Disabled           bool          // testing/demo mode
}

// RedisConfig holds Redis connection settings. Empty URL means Redis-backed
// stores are not used (in-memory fallbacks apply).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds Postgres connection settings, used for the durable
// record store and the security audit trail when configured.
type PostgresConfig struct {
	URL string
}

// KafkaConfig holds audit publishing settings. Empty brokers disables the
// Kafka publisher.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// DispatchConfig holds delivery collaborator settings. Empty WebhookURL means
// codes are logged instead of delivered (dev mode).
type DispatchConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:          envString("OTPGUARD_ADDR", ":8080"),
		JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		OTP: OTPConfig{
			CodeLength:  envInt("OTP_CODE_LENGTH", 6),
			TTL:         envDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts: envInt("OTP_MAX_ATTEMPTS", 5),
			Cooldown:    envDuration("OTP_COOLDOWN", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			PublicLimit:        envInt("RATE_LIMIT_PUBLIC", 60),
			AuthenticatedLimit: envInt("RATE_LIMIT_AUTHENTICATED", 300),
			Window:             envDuration("RATE_LIMIT_WINDOW", time.Hour),
			Disabled:           os.Getenv("RATE_LIMIT_DISABLED") == "true",
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:    splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envString("KAFKA_AUDIT_TOPIC", "otpguard.security-events"),
		},
		Dispatch: DispatchConfig{
			WebhookURL: os.Getenv("DISPATCH_WEBHOOK_URL"),
			Timeout:    envDuration("DISPATCH_TIMEOUT", 5*time.Second),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
