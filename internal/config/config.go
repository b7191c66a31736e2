// Package config resolves the process configuration once at boot. Every
// recognized variable is listed here with its default; nothing else reads
// the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `validate:"oneof=development test production"`
	HTTPAddr string `validate:"required"`
	LogLevel slog.Level

	DB       DBConfig
	Gateway  GatewayConfig
	Checkout CheckoutConfig
	Admin    AdminConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	SMTP     SMTPConfig
	OTel     OTelConfig
}

type DBConfig struct {
	Driver string `validate:"oneof=mysql postgres"`
	DSN    string `validate:"required"`
}

type GatewayConfig struct {
	ProductionURL string        `validate:"required,url"`
	SandboxURL    string        `validate:"required,url"`
	Timeout       time.Duration `validate:"gt=0"`
	WebhookToken  string
	PollInterval  time.Duration `validate:"gt=0"`
	PollMax       time.Duration `validate:"gtfield=PollInterval"`
}

type CheckoutConfig struct {
	SessionTTL time.Duration `validate:"gt=0"`
}

type AdminConfig struct {
	JWTSecret string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

type KafkaConfig struct {
	Brokers    string
	OrderTopic string `validate:"required"`
}

type SMTPConfig struct {
	Host          string
	Port          string
	User          string
	Pass          string
	TLSMode       string `validate:"omitempty,oneof=none tls starttls"`
	SkipVerifyTLS bool
	From          string `validate:"omitempty,email"`
	FromName      string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.From != "" }

type OTelConfig struct {
	Endpoint    string
	ServiceName string
}

// Load reads .env when present (production uses real env vars) and validates.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds the config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		Env:      e.str("APP_ENV", "development"),
		HTTPAddr: e.str("HTTP_ADDR", ":8080"),
		LogLevel: e.level("LOG_LEVEL", slog.LevelInfo),
		DB: DBConfig{
			Driver: e.str("DB_DRIVER", "mysql"),
			DSN:    e.str("DB_DSN", ""),
		},
		Gateway: GatewayConfig{
			ProductionURL: e.str("ASAAS_PRODUCTION_URL", "https://api.asaas.com/v3"),
			SandboxURL:    e.str("ASAAS_SANDBOX_URL", "https://api-sandbox.asaas.com/v3"),
			Timeout:       e.duration("ASAAS_TIMEOUT", 15*time.Second),
			WebhookToken:  e.str("ASAAS_WEBHOOK_TOKEN", ""),
			PollInterval:  e.duration("PIX_POLL_INTERVAL", 5*time.Second),
			PollMax:       e.duration("PIX_POLL_MAX_DURATION", 30*time.Minute),
		},
		Checkout: CheckoutConfig{
			SessionTTL: e.duration("CHECKOUT_SESSION_TTL", time.Hour),
		},
		Admin: AdminConfig{
			JWTSecret: e.str("ADMIN_JWT_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", ""),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    e.str("KAFKA_BROKERS", ""),
			OrderTopic: e.str("KAFKA_ORDER_TOPIC", "checkout.order-status"),
		},
		SMTP: SMTPConfig{
			Host:          e.str("SMTP_HOST", ""),
			Port:          e.str("SMTP_PORT", "587"),
			User:          e.str("SMTP_USER", ""),
			Pass:          e.str("SMTP_PASS", ""),
			TLSMode:       e.str("SMTP_TLS_MODE", "starttls"),
			SkipVerifyTLS: e.bool("SMTP_SKIP_VERIFY_TLS", false),
			From:          e.str("MAIL_FROM", ""),
			FromName:      e.str("MAIL_FROM_NAME", "Checkout"),
		},
		OTel: OTelConfig{
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName: e.str("OTEL_SERVICE_NAME", "checkout-web"),
		},
	}

	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(e.errs, "; "))
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type env struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return b
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return l
}
