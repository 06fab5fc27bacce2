package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// BackendMode selects which adapters back the capabilities.
type BackendMode string

const (
	// BackendMemory runs everything in process. Nothing survives a restart
	// unless Redis holds the session token.
	BackendMemory BackendMode = "memory"
	// BackendRemote uses Kratos for auth and Postgres for data.
	BackendRemote BackendMode = "remote"
	// BackendDisabled rejects every call, as an unconfigured deployment does.
	BackendDisabled BackendMode = "disabled"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Backend  Backend
	Kratos   Kratos
	Postgres Postgres
	Redis    RedisConfig
	Kafka    Kafka
	Session  Session
	Routes   Routes
	Storage  Storage
	Log      Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"STUDYGENIE_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"STUDYGENIE_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"STUDYGENIE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type Backend struct {
	Mode BackendMode `env:"STUDYGENIE_BACKEND" envDefault:"memory"`
}

type Kratos struct {
	PublicURL           string        `env:"KRATOS_PUBLIC_URL"`
	Timeout             time.Duration `env:"KRATOS_TIMEOUT" envDefault:"10s"`
	ExpiryCheckInterval time.Duration `env:"KRATOS_EXPIRY_CHECK_INTERVAL" envDefault:"1m"`
}

type Postgres struct {
	URL string `env:"DATABASE_URL"`
	// Migrate applies the embedded schema at startup.
	Migrate bool `env:"DATABASE_MIGRATE" envDefault:"true"`
}

// RedisConfig holds the optional Redis connection used for the session token.
// An empty URL keeps the token in memory.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"1"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka configures the activity event sink. No brokers means events stay in
// process.
type Kafka struct {
	Brokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic       string   `env:"KAFKA_ACTIVITY_TOPIC" envDefault:"studygenie.activity"`
	CreateTopic bool     `env:"KAFKA_CREATE_TOPIC" envDefault:"false"`
}

type Session struct {
	// SigningKey signs memory-mode session tokens.
	SigningKey string        `env:"SESSION_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	TokenTTL   time.Duration `env:"SESSION_TOKEN_TTL" envDefault:"1h"`
	Device     string        `env:"SESSION_DEVICE" envDefault:"default"`
	// AutoConfirm skips email verification in memory mode.
	AutoConfirm bool `env:"SESSION_AUTO_CONFIRM" envDefault:"true"`
}

// Routes are the presentation targets the session manager navigates to.
type Routes struct {
	Landing   string `env:"ROUTE_LANDING" envDefault:"/"`
	Dashboard string `env:"ROUTE_DASHBOARD" envDefault:"/dashboard"`
	// ProviderRedirect is where provider sign-in returns to.
	ProviderRedirect string `env:"ROUTE_PROVIDER_REDIRECT" envDefault:"http://localhost:8080/dashboard"`
}

type Storage struct {
	Bucket string `env:"STORAGE_BUCKET" envDefault:"study-materials"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// ParseEnv parses environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv loads an optional .env file, then builds the config from the
// environment so main stays lean.
func FromEnv(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !isNotExist(err) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backend mode has what it needs.
func (c Config) Validate() error {
	switch c.Backend.Mode {
	case BackendMemory, BackendDisabled:
	case BackendRemote:
		var errs []error
		if c.Kratos.PublicURL == "" {
			errs = append(errs, errors.New("KRATOS_PUBLIC_URL is required in remote mode"))
		}
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in remote mode"))
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
	default:
		return fmt.Errorf("unknown backend mode %q", c.Backend.Mode)
	}
	if c.Session.TokenTTL <= 0 {
		return errors.New("SESSION_TOKEN_TTL must be positive")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
