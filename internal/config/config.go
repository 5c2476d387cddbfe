// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read once at startup from the environment (optionally via .env).
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"` // postgres | memory
	AMQPURL     string `env:"AMQP_URL"`                           // empty uses the in-memory change feed

	DB       DBConfig
	Dispatch DispatchConfig
	Hours    HoursConfig
	SMTP     SMTPConfig
	GenAI    GenAIConfig
	Log      LogConfig
}

type DBConfig struct {
	URL      string `env:"DATABASE_URL"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	Name     string `env:"DB_NAME" envDefault:"vendor_outreach"`
}

// DSN returns DATABASE_URL when set, otherwise builds one from the parts.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Name)
}

type DispatchConfig struct {
	Interval    time.Duration `env:"DISPATCH_INTERVAL" envDefault:"1m"`
	Limit       int           `env:"DISPATCH_LIMIT" envDefault:"10"`
	TickTimeout time.Duration `env:"DISPATCH_TICK_TIMEOUT" envDefault:"50s"`
	ClaimLease  time.Duration `env:"CLAIM_LEASE" envDefault:"5m"`
	MaxRetries  int           `env:"MAX_RETRIES" envDefault:"5"`
	WorkerID    string        `env:"WORKER_ID"`
}

type HoursConfig struct {
	Timezone         string `env:"BUSINESS_TZ" envDefault:"UTC"`
	OpenHour         int    `env:"BUSINESS_OPEN_HOUR" envDefault:"9"`
	CloseHour        int    `env:"BUSINESS_CLOSE_HOUR" envDefault:"17"`
	UrgentSlotHour   int    `env:"URGENT_SLOT_HOUR" envDefault:"9"`
	StandardSlotHour int    `env:"STANDARD_SLOT_HOUR" envDefault:"10"`
	FollowUpHour     int    `env:"FOLLOWUP_HOUR" envDefault:"10"`
}

// Location resolves Timezone. Load has already rejected unknown zones, so the
// UTC fallback only applies to hand-built configs.
func (c HoursConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"` // empty uses the logging transport
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"partners@example.com"`
}

type GenAIConfig struct {
	APIKey string `env:"GENAI_API_KEY"` // empty uses the template generator
	Model  string `env:"GENAI_MODEL" envDefault:"gemini-2.5-flash"`
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"text"`   // json | text
	Output     string `env:"LOG_OUTPUT" envDefault:"stdout"` // stdout | file | both
	Path       string `env:"LOG_PATH" envDefault:"./logs"`
	MaxSize    int    `env:"LOG_MAX_SIZE" envDefault:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"7"`
	MaxAge     int    `env:"LOG_MAX_AGE" envDefault:"7"`
	Compress   bool   `env:"LOG_COMPRESS" envDefault:"true"`
}

// Load reads .env files (if any) and parses the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load env file: %w", err)
	} else if err != nil {
		log.Println("No .env file found, relying on OS environment variables")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.StoreDriver != "postgres" && cfg.StoreDriver != "memory" {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if _, err := time.LoadLocation(cfg.Hours.Timezone); err != nil {
		return nil, fmt.Errorf("unknown BUSINESS_TZ %q: %w", cfg.Hours.Timezone, err)
	}
	if cfg.Dispatch.Limit <= 0 {
		cfg.Dispatch.Limit = 10
	}
	if cfg.Dispatch.WorkerID == "" {
		host, _ := os.Hostname()
		cfg.Dispatch.WorkerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &cfg, nil
}
