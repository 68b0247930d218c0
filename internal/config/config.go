package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the table ordering system
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
	Locks    LocksConfig    `yaml:"locks"`
	Presence PresenceConfig `yaml:"presence"`
	Pricing  PricingConfig  `yaml:"pricing"`

	databaseURL string
	rabbitMQURL string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// LocksConfig controls resource lock expiry. A lock whose holder has not
// refreshed it within TTL is considered abandoned.
type LocksConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	ReapInterval time.Duration `yaml:"reap_interval"`
}

type PresenceConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type PricingConfig struct {
	TaxRate     string `yaml:"tax_rate"`
	ServiceRate string `yaml:"service_rate"`
	Currency    string `yaml:"currency"`
}

// Load reads configuration from a YAML file, applies defaults and
// environment overrides, and validates the result.
func Load(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return Parse(content)
}

// Parse decodes raw YAML into a validated Config.
func Parse(content []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{Port: 5432, MaxConns: 25},
		RabbitMQ: RabbitMQConfig{Port: 5672},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Server:   ServerConfig{Port: 3000},
		Locks: LocksConfig{
			TTL:          2 * time.Minute,
			ReapInterval: 30 * time.Second,
		},
		Presence: PresenceConfig{TTL: 45 * time.Second},
		Pricing: PricingConfig{
			TaxRate:     "0",
			ServiceRate: "0",
			Currency:    "USD",
		},
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		c.databaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RABBITMQ_URL")); v != "" {
		c.rabbitMQURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
}

func (c *Config) validate() error {
	if c.databaseURL == "" && (c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "") {
		return fmt.Errorf("database config incomplete: host, user and database are required")
	}
	if c.rabbitMQURL == "" && (c.RabbitMQ.Host == "" || c.RabbitMQ.User == "") {
		return fmt.Errorf("rabbitmq config incomplete: host and user are required")
	}
	if c.Locks.TTL <= 0 {
		return fmt.Errorf("locks.ttl must be positive")
	}
	if c.Locks.ReapInterval <= 0 {
		return fmt.Errorf("locks.reap_interval must be positive")
	}
	if c.Presence.TTL <= 0 {
		return fmt.Errorf("presence.ttl must be positive")
	}
	if _, err := c.TaxRate(); err != nil {
		return err
	}
	if _, err := c.ServiceRate(); err != nil {
		return err
	}
	return nil
}

// TaxRate returns pricing.tax_rate as a decimal fraction (0.08 = 8%).
func (c *Config) TaxRate() (decimal.Decimal, error) {
	return parseRate("pricing.tax_rate", c.Pricing.TaxRate)
}

// ServiceRate returns pricing.service_rate as a decimal fraction.
func (c *Config) ServiceRate() (decimal.Decimal, error) {
	return parseRate("pricing.service_rate", c.Pricing.ServiceRate)
}

func parseRate(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s value: %w", name, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 1", name)
	}
	return rate, nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	if c.databaseURL != "" {
		return c.databaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	if c.rabbitMQURL != "" {
		return c.rabbitMQURL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
