// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML file named by CONFIG_PATH.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Links    LinksConfig    `yaml:"links"`
}

type ServiceConfig struct {
	Name        string `yaml:"name" env:"SERVICE_NAME" env-default:"timesheet-approvals"`
	Version     string `yaml:"version" env:"SERVICE_VERSION" env-default:"dev"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"HTTP_PORT" env-default:"8086"`
	GRPCPort        int           `yaml:"grpc_port" env:"GRPC_PORT" env-default:"9086"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"20s"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"*" env-separator:","`
}

// DatabaseConfig selects the approval and entry store. Driver "postgres"
// uses the pgx pool; "sqlite" uses an embedded database file at SQLitePath.
type DatabaseConfig struct {
	Driver      string        `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	Host        string        `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port        int           `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User        string        `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password    string        `yaml:"password" env:"DB_PASSWORD"`
	Database    string        `yaml:"database" env:"DB_NAME" env-default:"timesheets"`
	SSLMode     string        `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`
	MaxConns    int32         `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
	MinConns    int32         `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"1"`
	MaxConnTime time.Duration `yaml:"max_conn_time" env:"DB_MAX_CONN_TIME" env-default:"1h"`
	MaxIdleTime time.Duration `yaml:"max_idle_time" env:"DB_MAX_IDLE_TIME" env-default:"30m"`
	HealthCheck time.Duration `yaml:"health_check" env:"DB_HEALTH_CHECK" env-default:"1m"`
	SQLitePath  string        `yaml:"sqlite_path" env:"DB_SQLITE_PATH" env-default:"timesheets.db"`
}

// NATSConfig configures the notification publisher. An empty URL disables
// publishing; outbound mail is then only logged.
type NATSConfig struct {
	URL     string `yaml:"url" env:"NATS_URL"`
	Subject string `yaml:"subject" env:"NATS_EMAIL_SUBJECT" env-default:"notifications.timesheets.email"`
}

// LinksConfig configures the emailed approve/reject callback links.
type LinksConfig struct {
	ApproveURL string        `yaml:"approve_url" env:"APPROVAL_LINK_URL" env-default:"http://localhost:8086/approvals/callback"`
	RejectURL  string        `yaml:"reject_url" env:"REJECT_LINK_URL" env-default:"http://localhost:8086/approvals/reject"`
	Secret     string        `yaml:"secret" env:"APPROVAL_LINK_SECRET"`
	MaxAge     time.Duration `yaml:"max_age" env:"APPROVAL_LINK_MAX_AGE" env-default:"336h"`
}

// Load reads configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.Database.Driver)
	}
	if len(c.Links.Secret) < 32 {
		return fmt.Errorf("APPROVAL_LINK_SECRET must be at least 32 characters")
	}
	if c.Links.MaxAge <= 0 {
		return fmt.Errorf("APPROVAL_LINK_MAX_AGE must be positive")
	}
	return nil
}

// PostgresDSN renders the connection string for pgx.
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}
