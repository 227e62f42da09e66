// Package config loads perevod settings from flags, the environment, an
// optional .env file and an optional perevod.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valpere/perevod/internal/retry"
	"github.com/valpere/perevod/internal/stt"
	"github.com/valpere/perevod/internal/translator"
	"github.com/valpere/perevod/internal/validator"
)

const (
	SecondaryDeepL  = "deepl"
	SecondaryGoogle = "google"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	Strictness  string `mapstructure:"strictness"`
	// DBPath is the request history database. Empty disables history.
	DBPath string `mapstructure:"db"`

	Primary   translator.ServiceConfig `mapstructure:"primary"`
	Secondary SecondaryConfig          `mapstructure:"secondary"`
	STT       stt.Config               `mapstructure:"stt"`
	Retry     RetryConfig              `mapstructure:"retry"`
	Timeouts  TimeoutConfig            `mapstructure:"timeouts"`
	HTTP      HTTPConfig               `mapstructure:"http"`
	Telegram  TelegramConfig           `mapstructure:"telegram"`
}

type SecondaryConfig struct {
	Provider                 string `mapstructure:"provider"`
	translator.ServiceConfig `mapstructure:",squash"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxRetryAfter   time.Duration `mapstructure:"max_retry_after"`
}

type TimeoutConfig struct {
	Dial           time.Duration `mapstructure:"dial"`
	ResponseHeader time.Duration `mapstructure:"response_header"`
	Total          time.Duration `mapstructure:"total"`
}

type HTTPConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	RequireInitData bool   `mapstructure:"require_init_data"`
}

type TelegramConfig struct {
	Token            string   `mapstructure:"token"`
	BaseURL          string   `mapstructure:"base_url"`
	AllowedUsernames []string `mapstructure:"allowed_usernames"`
	PollTimeout      int      `mapstructure:"poll_timeout"`
}

// envBindings maps config keys onto the environment variable names used by
// existing deployments. PEREVOD_* variables work for every key as well.
var envBindings = map[string][]string{
	"environment":                {"PEREVOD_ENVIRONMENT", "ENVIRONMENT"},
	"log_level":                  {"PEREVOD_LOG_LEVEL", "LOG_LEVEL"},
	"primary.api_key":            {"PEREVOD_PRIMARY_API_KEY", "OPENAI_API_KEY"},
	"primary.model":              {"PEREVOD_PRIMARY_MODEL", "OPENAI_MODEL"},
	"primary.base_url":           {"PEREVOD_PRIMARY_BASE_URL", "OPENAI_BASE_URL"},
	"secondary.api_key":          {"PEREVOD_SECONDARY_API_KEY", "DEEPL_API_KEY"},
	"secondary.base_url":         {"PEREVOD_SECONDARY_BASE_URL", "DEEPL_BASE_URL"},
	"secondary.credentials":      {"PEREVOD_SECONDARY_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS"},
	"stt.api_key":                {"PEREVOD_STT_API_KEY", "OPENAI_API_KEY"},
	"stt.model":                  {"PEREVOD_STT_MODEL", "OPENAI_STT_MODEL"},
	"stt.base_url":               {"PEREVOD_STT_BASE_URL", "OPENAI_BASE_URL"},
	"telegram.token":             {"PEREVOD_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"},
	"telegram.allowed_usernames": {"PEREVOD_TELEGRAM_ALLOWED_USERNAMES", "TG_ALLOWED_USERNAMES"},
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	policy := retry.DefaultPolicy()
	timeouts := retry.DefaultTimeouts()

	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("strictness", validator.Standard.String())
	v.SetDefault("db", "")
	v.SetDefault("primary.model", translator.DefaultOpenAIModel)
	v.SetDefault("secondary.provider", SecondaryDeepL)
	v.SetDefault("stt.model", stt.DefaultModel)
	v.SetDefault("retry.max_attempts", policy.MaxAttempts)
	v.SetDefault("retry.initial_interval", policy.InitialInterval)
	v.SetDefault("retry.max_retry_after", policy.MaxRetryAfter)
	v.SetDefault("timeouts.dial", timeouts.Dial)
	v.SetDefault("timeouts.response_header", timeouts.ResponseHeader)
	v.SetDefault("timeouts.total", timeouts.Total)
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.require_init_data", true)
	v.SetDefault("telegram.poll_timeout", 30)
}

// BindEnv enables PEREVOD_* variables and the legacy names in envBindings.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("PEREVOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Telegram.AllowedUsernames = splitList(cfg.Telegram.AllowedUsernames)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := validator.ParseStrictness(c.Strictness); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Secondary.Provider)) {
	case SecondaryDeepL, SecondaryGoogle:
	default:
		return fmt.Errorf("secondary.provider must be %q or %q, got %q", SecondaryDeepL, SecondaryGoogle, c.Secondary.Provider)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return err
	}
	if c.Timeouts.Dial <= 0 || c.Timeouts.ResponseHeader <= 0 || c.Timeouts.Total <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram.poll_timeout must be >= 0")
	}
	return nil
}

// GateStrictness returns the parsed strictness. Validate must have passed.
func (c *Config) GateStrictness() validator.Strictness {
	s, _ := validator.ParseStrictness(c.Strictness)
	return s
}

// RetryPolicy builds the outbound retry policy from the configured values.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.Retry.MaxAttempts
	p.InitialInterval = c.Retry.InitialInterval
	p.MaxRetryAfter = c.Retry.MaxRetryAfter
	return p
}

func (c *Config) HTTPTimeouts() retry.Timeouts {
	return retry.Timeouts{
		Dial:           c.Timeouts.Dial,
		ResponseHeader: c.Timeouts.ResponseHeader,
		Total:          c.Timeouts.Total,
	}
}

// splitList flattens comma-separated entries, as set by TG_ALLOWED_USERNAMES.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
