package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures process level configuration. Every field is read from the
// environment; empty connection URLs select the in-memory or log-only fallback.
type Server struct {
	Addr     string `env:"SHARE_ADDR" envDefault:":8080"`
	LogLevel string `env:"SHARE_LOG_LEVEL" envDefault:"info"`
	// LogFormat is "json" or "text".
	LogFormat string `env:"SHARE_LOG_FORMAT" envDefault:"json"`

	// AdminToken gates /metrics when set.
	AdminToken string `env:"SHARE_ADMIN_TOKEN"`

	Database Database
	Redis    Redis
	Kafka    Kafka
	Auth     Auth
	Trust    Trust

	OTelEndpoint string `env:"SHARE_OTEL_ENDPOINT"`

	RequestTimeout  time.Duration `env:"SHARE_REQUEST_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHARE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Database configures the Postgres stores. An empty URL keeps all state in memory.
type Database struct {
	URL          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	TxTimeout    time.Duration `env:"DATABASE_TX_TIMEOUT" envDefault:"5s"`
}

// Redis configures the session store. An empty URL keeps sessions in memory.
type Redis struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka configures the notification sink. No brokers means notifications are
// only logged.
type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_NOTIFY_TOPIC" envDefault:"share.notifications"`
}

// Auth configures tokens and sessions.
type Auth struct {
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"share-catalog"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"15m"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	ActivationTTL time.Duration `env:"ACTIVATION_TTL" envDefault:"168h"`
}

// Trust configures the membership pipeline.
type Trust struct {
	BootstrapStewardEmails []string      `env:"BOOTSTRAP_STEWARD_EMAILS" envSeparator:","`
	GuardProfileTTL        time.Duration `env:"GUARD_PROFILE_TTL" envDefault:"30s"`
	ProvisionConcurrency   int           `env:"PROVISION_CONCURRENCY" envDefault:"4"`
	// ReconcileInterval of zero disables the background pass.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0s"`
}

// FromEnv parses the environment into a Server config.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Trust.ProvisionConcurrency < 1 {
		cfg.Trust.ProvisionConcurrency = 1
	}
	return cfg, nil
}
