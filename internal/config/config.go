// Package config loads and validates the application configuration from
// defaults, an optional YAML file, environment variables and CLI flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Device  DeviceConfig  `mapstructure:"device" yaml:"device"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// ModelProvider selects the planner backend.
type ModelProvider string

const (
	ProviderOpenAI ModelProvider = "openai"
	ProviderGemini ModelProvider = "gemini"
)

// ModelConfig configures the vision-language model endpoint.
type ModelConfig struct {
	Provider         ModelProvider `mapstructure:"provider" yaml:"provider"`
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey           string        `mapstructure:"api_key" yaml:"-"`
	Name             string        `mapstructure:"name" yaml:"name"`
	APITimeout       time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature      float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP             float32       `mapstructure:"top_p" yaml:"top_p"`
	FrequencyPenalty float32       `mapstructure:"frequency_penalty" yaml:"frequency_penalty"`
	MaxTokens        int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// AgentConfig tunes the control loop.
type AgentConfig struct {
	MaxSteps            int           `mapstructure:"max_steps" yaml:"max_steps"`
	Lang                string        `mapstructure:"lang" yaml:"lang"`
	SystemPromptFile    string        `mapstructure:"system_prompt_file" yaml:"system_prompt_file"`
	MaxConsecutiveWaits int           `mapstructure:"max_consecutive_waits" yaml:"max_consecutive_waits"`
	MaxWait             time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	// KeepImageTurns is how many trailing turns keep their screenshot
	// payload after a planning call; older turns are thinned to text.
	KeepImageTurns int `mapstructure:"keep_image_turns" yaml:"keep_image_turns"`
}

// DeviceType selects the device bridge.
type DeviceType string

const (
	DeviceADB DeviceType = "adb"
	DeviceHDC DeviceType = "hdc"
)

// DeviceConfig configures the device bridge.
type DeviceConfig struct {
	Type              DeviceType    `mapstructure:"type" yaml:"type"`
	ID                string        `mapstructure:"id" yaml:"id"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	ScreenshotTimeout time.Duration `mapstructure:"screenshot_timeout" yaml:"screenshot_timeout"`
	ScreenshotRetries int           `mapstructure:"screenshot_retries" yaml:"screenshot_retries"`
	// CommandRate caps device shell commands per second. One gesture
	// stream per device; bursts of injected input confuse some OEM
	// input pipelines.
	CommandRate float64 `mapstructure:"command_rate" yaml:"command_rate"`
}

// HistoryConfig configures optional step persistence. Disabled by default;
// steps are kept in memory only.
type HistoryConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders a pgx-compatible connection string.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     p.DBName,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "phonepilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Model --
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.base_url", "http://localhost:8000/v1")
	v.SetDefault("model.name", "autoglm-phone")
	v.SetDefault("model.api_timeout", "120s")
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("model.top_p", 0.85)
	v.SetDefault("model.frequency_penalty", 0.0)
	v.SetDefault("model.max_tokens", 3000)
	v.SetDefault("model.max_retries", 3)

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.lang", "en")
	v.SetDefault("agent.max_consecutive_waits", 3)
	v.SetDefault("agent.max_wait", "10s")
	v.SetDefault("agent.keep_image_turns", 1)

	// -- Device --
	v.SetDefault("device.type", "adb")
	v.SetDefault("device.command_timeout", "10s")
	v.SetDefault("device.screenshot_timeout", "10s")
	v.SetDefault("device.screenshot_retries", 3)
	v.SetDefault("device.command_rate", 5.0)

	// -- History --
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.postgres.host", "localhost")
	v.SetDefault("history.postgres.port", 5432)
	v.SetDefault("history.postgres.user", "postgres")
	v.SetDefault("history.postgres.password", "") // env only
	v.SetDefault("history.postgres.dbname", "phonepilot")
	v.SetDefault("history.postgres.sslmode", "disable")
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come from the environment, never the YAML file.
	v.BindEnv("model.api_key", "PHONEPILOT_API_KEY")
	v.BindEnv("history.postgres.password", "PHONEPILOT_HISTORY_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("PHONEPILOT_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("model.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderGemini, c.Model.Provider)
	}
	if c.Model.Provider == ProviderOpenAI && c.Model.BaseURL == "" {
		return fmt.Errorf("model.base_url is required for the openai provider")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is a required configuration field")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.MaxConsecutiveWaits <= 0 {
		return fmt.Errorf("agent.max_consecutive_waits must be a positive integer")
	}
	if c.Agent.MaxWait <= 0 {
		return fmt.Errorf("agent.max_wait must be a positive duration")
	}
	if c.Agent.KeepImageTurns < 1 {
		return fmt.Errorf("agent.keep_image_turns must be at least 1")
	}
	switch c.Device.Type {
	case DeviceADB, DeviceHDC:
	default:
		return fmt.Errorf("device.type must be %q or %q, got %q",
			DeviceADB, DeviceHDC, c.Device.Type)
	}
	if c.Device.CommandRate <= 0 {
		return fmt.Errorf("device.command_rate must be positive")
	}
	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the history store settings.
func (h *HistoryConfig) Validate() error {
	if !h.Enabled {
		return nil
	}
	if h.Postgres.Host == "" || h.Postgres.DBName == "" {
		return fmt.Errorf("history.postgres.host and history.postgres.dbname are required when history is enabled")
	}
	if h.Postgres.Port <= 0 || h.Postgres.Port > 65535 {
		return fmt.Errorf("history.postgres.port must be a valid TCP port")
	}
	return nil
}
