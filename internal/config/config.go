// Package config loads the process configuration: a YAML file with
// environment-variable overrides for secrets and deployment knobs.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Season  SeasonConfig  `yaml:"season"`
	LLM     LLMConfig     `yaml:"llm"`
	DB      DBConfig      `yaml:"db"`
	Storage StorageConfig `yaml:"storage"`
	Payment PaymentConfig `yaml:"payment"`
	SMS     SMSConfig     `yaml:"sms"`
	Address AddressConfig `yaml:"address"`
	Tools   ToolsConfig   `yaml:"tools"`
	Photo   PhotoConfig   `yaml:"photo"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the C9 chat API HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MetricsPort    int           `yaml:"metrics_port"`
	ClientTimeout  time.Duration `yaml:"client_timeout"`
	DevEndpoints   bool          `yaml:"dev_endpoints"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// SeasonConfig names the current registration season, substituted into
// step task templates and used to scope re-registration lookups (§4.4).
type SeasonConfig struct {
	Current string `yaml:"current"`
}

// LLMConfig configures the C7 provider adapter.
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DBConfig configures the C2 database adapter.
type DBConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// StorageConfig configures the C2 photo storage adapter.
type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// PaymentConfig configures the C2 Direct Debit vendor adapter.
type PaymentConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SMSConfig configures the C2 SMS vendor adapter.
type SMSConfig struct {
	BaseURL    string        `yaml:"base_url"`
	AccountSID string        `yaml:"account_sid"`
	AuthToken  string        `yaml:"auth_token"`
	From       string        `yaml:"from"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AddressConfig configures the C2 postcode lookup vendor adapter.
type AddressConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ToolsConfig configures the C1 tool registry's dispatch mode.
type ToolsConfig struct {
	// RemoteTools selects the remote-process dispatch mode over local
	// in-process handlers (§4.1's dual-mode contract).
	RemoteTools   bool   `yaml:"remote_tools"`
	RemoteToolURL string `yaml:"remote_tool_url"`
}

// PhotoConfig configures the C8 async photo pipeline.
type PhotoConfig struct {
	WorkerPoolSize int `yaml:"worker_pool_size"`
}

// LoggingConfig configures the ambient structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the YAML config file at path, then applies
// environment-variable overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Server.ClientTimeout == 0 {
		cfg.Server.ClientTimeout = 28 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 * 1024 * 1024
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 28 * time.Second
	}

	if cfg.DB.MaxOpenConns == 0 {
		cfg.DB.MaxOpenConns = 10
	}
	if cfg.DB.MaxIdleConns == 0 {
		cfg.DB.MaxIdleConns = 5
	}
	if cfg.DB.ConnMaxLifetime == 0 {
		cfg.DB.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.DB.ConnMaxIdleTime == 0 {
		cfg.DB.ConnMaxIdleTime = 2 * time.Minute
	}
	if cfg.DB.ConnectTimeout == 0 {
		cfg.DB.ConnectTimeout = 10 * time.Second
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "registration-photos"
	}

	if cfg.Payment.Timeout == 0 {
		cfg.Payment.Timeout = 10 * time.Second
	}
	if cfg.SMS.Timeout == 0 {
		cfg.SMS.Timeout = 10 * time.Second
	}
	if cfg.Address.Timeout == 0 {
		cfg.Address.Timeout = 10 * time.Second
	}

	if cfg.Photo.WorkerPoolSize == 0 {
		cfg.Photo.WorkerPoolSize = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("REGAGENT_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("REGAGENT_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REGAGENT_CLIENT_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ClientTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("REGAGENT_SEASON")); v != "" {
		cfg.Season.Current = v
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("REGAGENT_LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	}

	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DB.DSN = v
	}

	if v := strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")); v != "" {
		cfg.Storage.AccessKeyID = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")); v != "" {
		cfg.Storage.SecretAccessKey = v
	}
	if v := strings.TrimSpace(os.Getenv("REGAGENT_STORAGE_BUCKET")); v != "" {
		cfg.Storage.Bucket = v
	}

	if v := strings.TrimSpace(os.Getenv("REGAGENT_PAYMENT_API_KEY")); v != "" {
		cfg.Payment.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("REGAGENT_SMS_AUTH_TOKEN")); v != "" {
		cfg.SMS.AuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("REGAGENT_ADDRESS_API_KEY")); v != "" {
		cfg.Address.APIKey = v
	}

	if v := strings.TrimSpace(os.Getenv("REGAGENT_REMOTE_TOOLS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tools.RemoteTools = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("REGAGENT_PHOTO_WORKER_POOL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Photo.WorkerPoolSize = n
		}
	}
}

// ValidationError reports one or more configuration problems found at load
// time.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config: validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if strings.TrimSpace(cfg.Season.Current) == "" {
		issues = append(issues, "season.current is required")
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		issues = append(issues, "llm.api_key is required (or set ANTHROPIC_API_KEY)")
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		issues = append(issues, "llm.model is required")
	}
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		issues = append(issues, "db.dsn is required (or set DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.Storage.Bucket) == "" {
		issues = append(issues, "storage.bucket is required")
	}
	if cfg.Tools.RemoteTools && strings.TrimSpace(cfg.Tools.RemoteToolURL) == "" {
		issues = append(issues, "tools.remote_tool_url is required when tools.remote_tools is true")
	}
	if cfg.Photo.WorkerPoolSize < 2 {
		issues = append(issues, "photo.worker_pool_size must be >= 2")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "json", "text":
	default:
		issues = append(issues, "logging.format must be \"json\" or \"text\"")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
