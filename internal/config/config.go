package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	LogLevel            string

	AgentURL     string
	AgentTimeout time.Duration

	PollInterval time.Duration
	ErrorBackoff time.Duration
	BatchSize    int
	SearchFilter string
	StopTimeout  time.Duration
	MailTimeout  time.Duration
	InsecureMail bool
	AutostartAll bool
	AMQPURL      string
	AMQPExchange string
}

// NewConfig builds the configuration from the environment. In development a
// local .env file is loaded first when present.
func NewConfig() (*Config, error) {
	env := os.Getenv("MAILPILOT_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	p := &parser{}
	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("MAILPILOT_ENCRYPTION_KEY_BASE64"),
		DBHost:              getEnvOrDefault("MAILPILOT_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("MAILPILOT_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("MAILPILOT_DB_USER", "mailpilot"),
		DBPassword:          os.Getenv("MAILPILOT_DB_PASSWORD"),
		DBName:              getEnvOrDefault("MAILPILOT_DB_NAME", "mailpilot"),
		DBSSLMode:           getEnvOrDefault("MAILPILOT_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		LogLevel:            getEnvOrDefault("MAILPILOT_LOG_LEVEL", "info"),
		AgentURL:            strings.TrimRight(os.Getenv("MAILPILOT_AGENT_URL"), "/"),
		AgentTimeout:        p.duration("MAILPILOT_AGENT_TIMEOUT", 30*time.Second),
		PollInterval:        p.duration("MAILPILOT_POLL_INTERVAL", 30*time.Second),
		ErrorBackoff:        p.duration("MAILPILOT_ERROR_BACKOFF", 60*time.Second),
		BatchSize:           p.integer("MAILPILOT_BATCH_SIZE", 10),
		SearchFilter:        strings.ToLower(getEnvOrDefault("MAILPILOT_SEARCH_FILTER", "all")),
		StopTimeout:         p.duration("MAILPILOT_STOP_TIMEOUT", 5*time.Second),
		MailTimeout:         p.duration("MAILPILOT_MAIL_TIMEOUT", 30*time.Second),
		InsecureMail:        p.boolean("MAILPILOT_INSECURE_MAIL", false),
		AutostartAll:        p.boolean("MAILPILOT_AUTOSTART", true),
		AMQPURL:             os.Getenv("MAILPILOT_AMQP_URL"),
		AMQPExchange:        getEnvOrDefault("MAILPILOT_AMQP_EXCHANGE", "mailpilot.events"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("MAILPILOT_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("MAILPILOT_DB_PASSWORD is required")
	}

	if c.AgentURL == "" {
		return fmt.Errorf("MAILPILOT_AGENT_URL is required")
	}
	if u, err := url.Parse(c.AgentURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("MAILPILOT_AGENT_URL must be an absolute URL, got %q", c.AgentURL)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("MAILPILOT_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}

	if c.SearchFilter != "all" && c.SearchFilter != "unseen" {
		return fmt.Errorf("MAILPILOT_SEARCH_FILTER must be 'all' or 'unseen', got %q", c.SearchFilter)
	}

	for name, d := range map[string]time.Duration{
		"MAILPILOT_POLL_INTERVAL": c.PollInterval,
		"MAILPILOT_ERROR_BACKOFF": c.ErrorBackoff,
		"MAILPILOT_STOP_TIMEOUT":  c.StopTimeout,
		"MAILPILOT_AGENT_TIMEOUT": c.AgentTimeout,
		"MAILPILOT_MAIL_TIMEOUT":  c.MailTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error so NewConfig can report it once.
type parser struct {
	err error
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid duration %q: %w", key, raw, err))
		return defaultValue
	}
	return d
}

func (p *parser) integer(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid integer %q: %w", key, raw, err))
		return defaultValue
	}
	return n
}

func (p *parser) boolean(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid boolean %q: %w", key, raw, err))
		return defaultValue
	}
	return b
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
