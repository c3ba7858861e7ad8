// Package config handles application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/unifiedui/session-service/internal/core/auditlog"
	"github.com/unifiedui/session-service/internal/core/events"
	"github.com/unifiedui/session-service/internal/core/sessionstore"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Session SessionConfig
	Events  EventsConfig
	Audit   AuditConfig
	Log     LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host      string
	Port      int
	GinMode   string
	Workers   int
	ReusePort bool

	// Replicas is the number of service instances behind the load balancer.
	Replicas int

	InstanceID      string
	APIKey          string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig holds session store configuration.
type StoreConfig struct {
	Type            sessionstore.Type
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string
	CleanupInterval time.Duration
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	IdleTTL      time.Duration
	AbsoluteTTL  time.Duration
	MaxPerUser   int
	CookieName   string
	CookieSecure bool
	CookieDomain string
	SameSite     http.SameSite

	// EncryptionKey and PreviousKeys may be secret references
	// (env://NAME, file:///path) resolved at startup.
	EncryptionKey string
	PreviousKeys  []string
}

// EventsConfig holds invalidation broadcast configuration.
type EventsConfig struct {
	Type    events.Type
	NATSURL string
	Channel string
}

// AuditConfig holds audit trail configuration.
type AuditConfig struct {
	Type      auditlog.Type
	URI       string
	Database  string
	Retention time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			GinMode:         getEnv("GIN_MODE", "release"),
			Workers:         getEnvAsInt("SERVER_WORKERS", 4),
			ReusePort:       getEnvAsBool("SERVER_REUSE_PORT", true),
			Replicas:        getEnvAsInt("SERVER_REPLICAS", 1),
			InstanceID:      getEnv("INSTANCE_ID", hostname),
			APIKey:          getEnv("SERVICE_API_KEY", ""),
			ShutdownTimeout: getEnvAsSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Store: StoreConfig{
			Type:            sessionstore.Type(strings.ToLower(getEnv("SESSION_STORE", string(sessionstore.TypeMemory)))),
			RedisHost:       getEnv("REDIS_HOST", "localhost"),
			RedisPort:       getEnv("REDIS_PORT", "6379"),
			RedisPassword:   getEnv("REDIS_PASSWORD", ""),
			RedisDB:         getEnvAsInt("REDIS_DB", 0),
			KeyPrefix:       getEnv("REDIS_KEY_PREFIX", "sess:"),
			CleanupInterval: getEnvAsSeconds("MEMORY_CLEANUP_SECONDS", 60),
		},
		Session: SessionConfig{
			IdleTTL:       getEnvAsSeconds("SESSION_IDLE_TTL_SECONDS", 1800),
			AbsoluteTTL:   getEnvAsSeconds("SESSION_ABSOLUTE_TTL_SECONDS", 86400),
			MaxPerUser:    getEnvAsInt("SESSION_MAX_PER_USER", 0),
			CookieName:    getEnv("SESSION_COOKIE_NAME", "sid"),
			CookieSecure:  getEnvAsBool("SESSION_COOKIE_SECURE", true),
			CookieDomain:  getEnv("SESSION_COOKIE_DOMAIN", ""),
			SameSite:      parseSameSite(getEnv("SESSION_COOKIE_SAMESITE", "lax")),
			EncryptionKey: getEnv("SESSIONS_ENCRYPTION_KEY", ""),
			PreviousKeys:  getEnvAsList("SESSIONS_PREVIOUS_KEYS"),
		},
		Events: EventsConfig{
			Type:    events.Type(strings.ToLower(getEnv("EVENTS_TYPE", string(events.TypeNone)))),
			NATSURL: getEnv("NATS_URL", "nats://localhost:4222"),
			Channel: getEnv("EVENTS_CHANNEL", events.DefaultChannel),
		},
		Audit: AuditConfig{
			Type:      auditlog.Type(strings.ToLower(getEnv("AUDIT_TYPE", string(auditlog.TypeNone)))),
			URI:       getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:  getEnv("MONGODB_DATABASE", "sessions"),
			Retention: time.Duration(getEnvAsInt("AUDIT_RETENTION_DAYS", 30)) * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("SERVER_WORKERS must be at least 1, got %d", c.Server.Workers))
	}
	if c.Server.Replicas < 1 {
		errs = append(errs, fmt.Errorf("SERVER_REPLICAS must be at least 1, got %d", c.Server.Replicas))
	}

	if !c.Store.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.Store.Type))
	} else if !c.Store.Type.Shared() && c.Server.Replicas > 1 {
		// A replica-local store would need sticky sessions.
		errs = append(errs, fmt.Errorf("SESSION_STORE %q is not shared between replicas; use redis or dual with SERVER_REPLICAS=%d", c.Store.Type, c.Server.Replicas))
	}

	switch c.Events.Type {
	case events.TypeNone, events.TypeRedis, events.TypeNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_TYPE %q", c.Events.Type))
	}
	if c.Events.Type == events.TypeRedis && !c.Store.Type.Shared() {
		errs = append(errs, fmt.Errorf("EVENTS_TYPE redis requires a redis or dual SESSION_STORE"))
	}
	if c.Store.Type == sessionstore.TypeDual && c.Events.Type == events.TypeNone && c.Server.Replicas > 1 {
		// Replicas would keep serving local copies of sessions revoked elsewhere.
		errs = append(errs, fmt.Errorf("SESSION_STORE dual with SERVER_REPLICAS=%d requires EVENTS_TYPE redis or nats", c.Server.Replicas))
	}

	switch c.Audit.Type {
	case auditlog.TypeNone, auditlog.TypeMongoDB:
	default:
		errs = append(errs, fmt.Errorf("unknown AUDIT_TYPE %q", c.Audit.Type))
	}

	if c.Session.IdleTTL <= 0 || c.Session.AbsoluteTTL <= 0 {
		errs = append(errs, fmt.Errorf("session TTLs must be positive"))
	} else if c.Session.IdleTTL > c.Session.AbsoluteTTL {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TTL_SECONDS (%s) exceeds SESSION_ABSOLUTE_TTL_SECONDS (%s)", c.Session.IdleTTL, c.Session.AbsoluteTTL))
	}
	if c.Session.MaxPerUser < 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_PER_USER must not be negative"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, fmt.Errorf("SESSION_COOKIE_NAME must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
