package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDev   = "dev"
	EnvLocal = "local"
	EnvProd  = "prod"
)

// minSecretLength is the JWT secret size below which startup warns.
const minSecretLength = 32

// placeholderSecrets are values known to ship in sample configs.
var placeholderSecrets = map[string]struct{}{
	"fallback-secret-key": {},
	"secret":              {},
	"changeme":            {},
	"change-me":           {},
	"your-secret-key":     {},
	"jwt-secret":          {},
}

var (
	ErrMissingSecret     = errors.New("JWT_SECRET is required")
	ErrPlaceholderSecret = errors.New("JWT_SECRET is set to a well-known placeholder")
)

type Config struct {
	Env        string
	ServerPort int
	AppURL     string
	Database   DatabaseConfig
	Auth       AuthConfig
	Logging    LoggingConfig
	MQ         MQConfig
	RabbitMQ   RabbitMQConfig
	PubSub     PubSubConfig
	SeedAdmin  SeedAdminConfig

	// loadErrs holds settings that were present but unparsable.
	loadErrs []error
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret           string
	TokenTTL            time.Duration
	VerificationTTL     time.Duration
	ResetTTL            time.Duration
	SelfRegisterMaxRole string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MQConfig struct {
	// Backend is "rabbitmq", "pubsub", or empty to log notifications only.
	Backend             string
	NotificationChannel string
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type SeedAdminConfig struct {
	Username string
	Email    string
	Password string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == EnvDev {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "meincms"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	var loadErrs []error
	authConfig := AuthConfig{
		JWTSecret:           strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:            getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour, &loadErrs),
		VerificationTTL:     getEnvDuration("VERIFICATION_TOKEN_TTL", 24*time.Hour, &loadErrs),
		ResetTTL:            getEnvDuration("RESET_TOKEN_TTL", time.Hour, &loadErrs),
		SelfRegisterMaxRole: getEnv("SELF_REGISTER_MAX_ROLE", "user"),
	}

	return Config{
		Env:        getEnv("ENV", EnvProd),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		AppURL:     strings.TrimRight(getEnv("APP_URL", "http://localhost:5173"), "/"),
		Database:   dbConfig,
		Auth:       authConfig,
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
		MQ: MQConfig{
			Backend:             strings.ToLower(getEnv("MQ_BACKEND", "")),
			NotificationChannel: getEnv("NOTIFICATION_CHANNEL", "notifications.email"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
		SeedAdmin: SeedAdminConfig{
			Username: getEnv("SEED_ADMIN_USERNAME", "admin"),
			Email:    getEnv("SEED_ADMIN_EMAIL", ""),
			Password: getEnv("SEED_ADMIN_PASSWORD", ""),
		},
		loadErrs: loadErrs,
	}
}

// IsDevelopment reports whether insecure conveniences are allowed.
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDev || c.Env == EnvLocal
}

// Validate checks settings that must be fatal at startup.
// It returns human-readable warnings for settings that are allowed but weak.
func (c Config) Validate() (warnings []string, err error) {
	secret := c.Auth.JWTSecret
	_, placeholder := placeholderSecrets[strings.ToLower(secret)]

	switch {
	case secret == "" && !c.IsDevelopment():
		return nil, ErrMissingSecret
	case placeholder && !c.IsDevelopment():
		return nil, ErrPlaceholderSecret
	case secret == "":
		warnings = append(warnings, "JWT_SECRET is not set; using a random per-process secret, sessions will not survive a restart")
	case placeholder:
		warnings = append(warnings, "JWT_SECRET is a well-known placeholder; never deploy this configuration")
	case len(secret) < minSecretLength:
		warnings = append(warnings, fmt.Sprintf("JWT_SECRET is shorter than %d bytes", minSecretLength))
	}

	if len(c.loadErrs) > 0 {
		return warnings, errors.Join(c.loadErrs...)
	}

	if c.Auth.TokenTTL <= 0 {
		return warnings, errors.New("JWT_EXPIRES_IN must be positive")
	}
	if c.Auth.VerificationTTL <= 0 || c.Auth.ResetTTL <= 0 {
		return warnings, errors.New("token TTLs must be positive")
	}

	switch c.MQ.Backend {
	case "", "rabbitmq", "pubsub":
	default:
		return warnings, fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}

	return warnings, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

// getEnvDuration records a parse failure in errs and returns the default.
func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := ParseDuration(valueStr)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			return defaultValue
		}
		return value
	}
	return defaultValue
}

// ParseDuration accepts Go durations plus a whole-day suffix such as "7d".
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(raw)
}
