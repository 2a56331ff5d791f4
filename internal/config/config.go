package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string
	PostgresDSN    string
	RedisAddr      string
	RedisTimeout   time.Duration
	KafkaBrokers   []string
	KafkaMailTopic string
	Debug          bool
	LogLevel       string
	OTelEnabled    bool
	AppBaseURL     string
	BcryptCost     int

	JWT       JWTConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Mail      MailConfig

	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
}

type JWTConfig struct {
	Secret     string
	Algorithm  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	MaxAge           int
	AllowCredentials bool
}

type MailConfig struct {
	SMTPAddr string
	From     string
}

const minSecretLength = 16

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:       getString("HTTP_ADDR", ":8080"),
		PostgresDSN:    getString("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=identity sslmode=disable"),
		RedisAddr:      getString("REDIS_ADDR", "localhost:6379"),
		RedisTimeout:   getDuration("REDIS_TIMEOUT", 500*time.Millisecond),
		KafkaBrokers:   getList("KAFKA_BROKER", []string{"localhost:9092"}),
		KafkaMailTopic: getString("KAFKA_MAIL_TOPIC", "identity.mail"),
		Debug:          getBool("APP_DEBUG", false),
		LogLevel:       getString("LOG_LEVEL", "info"),
		OTelEnabled:    getBool("OTEL_ENABLED", false),
		AppBaseURL:     strings.TrimRight(getString("APP_BASE_URL", "http://localhost:8080"), "/"),
		BcryptCost:     getInt("BCRYPT_COST", 10),
		JWT: JWTConfig{
			Secret:     getString("JWT_SECRET", "supersecret-change-me"),
			Algorithm:  strings.ToUpper(getString("JWT_ALGORITHM", "HS256")),
			Issuer:     getString("JWT_ISSUER", "identity-service"),
			AccessTTL:  getDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBool("RATE_LIMIT_ENABLED", true),
			MaxRequests: getInt("RATE_LIMIT_MAX_REQUESTS", 60),
			Window:      getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Requested-With"}),
			ExposedHeaders:   getList("CORS_EXPOSED_HEADERS", []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}),
			MaxAge:           getInt("CORS_MAX_AGE", 86400),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
		},
		Mail: MailConfig{
			SMTPAddr: getString("SMTP_ADDR", ""),
			From:     getString("SMTP_FROM", "no-reply@identity.local"),
		},
		VerificationTTL:  getDuration("VERIFICATION_TTL", 24*time.Hour),
		PasswordResetTTL: getDuration("PASSWORD_RESET_TTL", time.Hour),
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"jwt_algorithm", cfg.JWT.Algorithm,
		"rate_limit_enabled", cfg.RateLimit.Enabled)
	return cfg
}

// Validate rejects configurations that would make the token or rate-limit
// layers unsafe to run.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWT.Secret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWT.Algorithm))
	}
	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive"))
	}
	if c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be positive"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_MAX_REQUESTS must be positive"))
		}
		if c.RateLimit.Window < time.Second {
			errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be at least one second"))
		}
	}
	if c.RedisTimeout <= 0 {
		errs = append(errs, errors.New("REDIS_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

// getDuration accepts Go duration strings ("15m") or a bare number of seconds.
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
