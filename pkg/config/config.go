package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	RecoveryStoreMemory = "memory"
	RecoveryStoreRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Recovery RecoveryConfig
	Mail     MailConfig
	Admin    AdminConfig
	CORS     CORSConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the signing secret and token lifetimes.
type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	ResetExpiration   time.Duration
	CleanupInterval   time.Duration
}

// RecoveryConfig tunes the OTP password recovery flow.
type RecoveryConfig struct {
	OTPExpiration   time.Duration
	RequestCooldown time.Duration
	MaxAttempts     int
	Store           string
}

// MailConfig configures outbound SMTP delivery. An empty Host logs messages instead of sending.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Workers  int
	Retries  int
}

// AdminConfig seeds the initial administrator account.
type AdminConfig struct {
	Username string
	Password string
	Email    string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 24*time.Hour),
		ResetExpiration:   parseDuration(v.GetString("RESET_TOKEN_EXPIRATION"), 15*time.Minute),
		CleanupInterval:   parseDuration(v.GetString("TOKEN_CLEANUP_INTERVAL"), 24*time.Hour),
	}

	cfg.Recovery = RecoveryConfig{
		OTPExpiration:   parseDuration(v.GetString("OTP_EXPIRATION"), 5*time.Minute),
		RequestCooldown: parseDuration(v.GetString("OTP_REQUEST_COOLDOWN"), time.Minute),
		MaxAttempts:     v.GetInt("OTP_MAX_ATTEMPTS"),
		Store:           strings.ToLower(v.GetString("RECOVERY_STORE")),
	}

	cfg.Mail = MailConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
		Workers:  v.GetInt("MAIL_WORKERS"),
		Retries:  v.GetInt("MAIL_RETRIES"),
	}

	cfg.Admin = AdminConfig{
		Username: v.GetString("ADMIN_USERNAME"),
		Password: v.GetString("ADMIN_PASSWORD"),
		Email:    v.GetString("ADMIN_EMAIL"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg
}

// Validate rejects configurations that would produce forgeable or never-valid tokens.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Env == EnvProduction && len(c.JWT.Secret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes in production")
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT_ISSUER is required")
	}
	durations := map[string]time.Duration{
		"JWT_EXPIRATION":           c.JWT.Expiration,
		"REFRESH_TOKEN_EXPIRATION": c.JWT.RefreshExpiration,
		"RESET_TOKEN_EXPIRATION":   c.JWT.ResetExpiration,
		"OTP_EXPIRATION":           c.Recovery.OTPExpiration,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.Recovery.RequestCooldown < 0 {
		return errors.New("OTP_REQUEST_COOLDOWN must not be negative")
	}
	if c.Recovery.MaxAttempts < 0 {
		return errors.New("OTP_MAX_ATTEMPTS must not be negative")
	}
	switch c.Recovery.Store {
	case RecoveryStoreMemory, RecoveryStoreRedis:
	default:
		return fmt.Errorf("RECOVERY_STORE must be %q or %q", RecoveryStoreMemory, RecoveryStoreRedis)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "identity_service")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret_change_me_dev_secret_change_me")
	v.SetDefault("JWT_ISSUER", "identity-service")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "24h")
	v.SetDefault("RESET_TOKEN_EXPIRATION", "15m")
	v.SetDefault("TOKEN_CLEANUP_INTERVAL", "24h")

	v.SetDefault("OTP_EXPIRATION", "5m")
	v.SetDefault("OTP_REQUEST_COOLDOWN", "1m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("RECOVERY_STORE", RecoveryStoreMemory)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@identity.local")
	v.SetDefault("MAIL_WORKERS", 2)
	v.SetDefault("MAIL_RETRIES", 3)

	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "admin")
	v.SetDefault("ADMIN_EMAIL", "admin@identity.local")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ENABLE_METRICS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
