// Package config provides environment configuration for the relay daemon
// and the event pipeline.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// MinEventCapacity is the floor applied to the inbox and output buffer.
	MinEventCapacity = 100

	// DefaultEventCapacity is the default inbox / output buffer capacity.
	DefaultEventCapacity = 10000
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Event pipeline settings
	Capacity                    int
	FlushInterval               time.Duration
	UserKeysCapacity            int
	UserKeysFlushInterval       time.Duration
	DiagnosticRecordingInterval time.Duration
	DiagnosticOptOut            bool
	InlineUsersInEvents         bool
	EventsURI                   string

	// User attribute redaction
	AllAttributesPrivate  bool
	PrivateAttributeNames []string

	// Auth
	SDKKey    string
	JWTSecret string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		// Server
		ServerPort:         getEnv("PORT", "8030"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// Event pipeline
		Capacity:                    getIntEnv("EVENT_CAPACITY", DefaultEventCapacity),
		FlushInterval:               getDurationEnv("EVENT_FLUSH_INTERVAL", 5*time.Second),
		UserKeysCapacity:            getIntEnv("USER_KEYS_CAPACITY", 1000),
		UserKeysFlushInterval:       getDurationEnv("USER_KEYS_FLUSH_INTERVAL", 5*time.Minute),
		DiagnosticRecordingInterval: getDurationEnv("DIAGNOSTIC_RECORDING_INTERVAL", 15*time.Minute),
		DiagnosticOptOut:            getBoolEnv("DIAGNOSTIC_OPT_OUT", false),
		InlineUsersInEvents:         getBoolEnv("INLINE_USERS_IN_EVENTS", false),
		EventsURI:                   getEnv("EVENTS_URI", "https://events.flagstream.io"),

		// Redaction
		AllAttributesPrivate:  getBoolEnv("ALL_ATTRIBUTES_PRIVATE", false),
		PrivateAttributeNames: getListEnv("PRIVATE_ATTRIBUTE_NAMES"),

		// Auth
		SDKKey:    getEnv("SDK_KEY", ""),
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}

	if cfg.Capacity < MinEventCapacity {
		cfg.Capacity = MinEventCapacity
	}
	if cfg.UserKeysCapacity < 1 {
		cfg.UserKeysCapacity = 1
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
