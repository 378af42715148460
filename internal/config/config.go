// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Cursor() CursorConfig
	Agent() AgentConfig
	Oracle() OracleConfig
	Store() StoreConfig
	Sites() []SiteConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	CursorCfg  CursorConfig  `mapstructure:"cursor" yaml:"cursor"`
	AgentCfg   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	OracleCfg  OracleConfig  `mapstructure:"oracle" yaml:"oracle"`
	StoreCfg   StoreConfig   `mapstructure:"store" yaml:"store"`
	SitesCfg   []SiteConfig  `mapstructure:"sites" yaml:"sites"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Cursor() CursorConfig   { return c.CursorCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) Oracle() OracleConfig   { return c.OracleCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }
func (c *Config) Sites() []SiteConfig    { return c.SitesCfg }

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
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the controlled Chrome instance.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// ViewportConfig is the window size of the browser.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// CursorConfig tunes the cursor animation and synthetic keystrokes.
type CursorConfig struct {
	Tick        time.Duration `mapstructure:"tick" yaml:"tick"`
	Smoothing   float64       `mapstructure:"smoothing" yaml:"smoothing"`
	Threshold   float64       `mapstructure:"threshold" yaml:"threshold"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// MaxTicks bounds an animation that never converges (e.g. a target moving every frame).
	MaxTicks      int           `mapstructure:"max_ticks" yaml:"max_ticks"`
	KeyDelayMin   time.Duration `mapstructure:"key_delay_min" yaml:"key_delay_min"`
	KeyDelayMax   time.Duration `mapstructure:"key_delay_max" yaml:"key_delay_max"`
	NativeMoves   bool          `mapstructure:"native_moves" yaml:"native_moves"`
	ClickVisualMs int           `mapstructure:"click_visual_ms" yaml:"click_visual_ms"`
}

// AgentConfig configures the run loop and action executor.
type AgentConfig struct {
	MaxSteps         int           `mapstructure:"max_steps" yaml:"max_steps"`
	SettleDelay      time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	DisplayDelay     time.Duration `mapstructure:"display_delay" yaml:"display_delay"`
	NavigateDelay    time.Duration `mapstructure:"navigate_delay" yaml:"navigate_delay"`
	SubmitDelay      time.Duration `mapstructure:"submit_delay" yaml:"submit_delay"`
	EvaluatePrevious bool          `mapstructure:"evaluate_previous" yaml:"evaluate_previous"`
	CaptureVisual    bool          `mapstructure:"capture_visual" yaml:"capture_visual"`
	ScreenshotDir    string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	FallbackRadius   float64       `mapstructure:"fallback_radius" yaml:"fallback_radius"`
	CursorPersist    time.Duration `mapstructure:"cursor_persist" yaml:"cursor_persist"`
}

// OracleConfig selects and configures the decision oracle.
type OracleConfig struct {
	Provider   string        `mapstructure:"provider" yaml:"provider"` // "http" or "gemini"
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	Burst      int           `mapstructure:"burst" yaml:"burst"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	Estimate   bool          `mapstructure:"estimate" yaml:"estimate"`
	Gemini     GeminiConfig  `mapstructure:"gemini" yaml:"gemini"`
}

// GeminiConfig configures the Gemini-backed oracle.
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DecideModel     string  `mapstructure:"decide_model" yaml:"decide_model"`
	EvaluateModel   string  `mapstructure:"evaluate_model" yaml:"evaluate_model"`
	Temperature     float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
}

// StoreConfig selects where the run record is persisted.
type StoreConfig struct {
	Type   string `mapstructure:"type" yaml:"type"` // "memory" or "postgres"
	URL    string `mapstructure:"url" yaml:"url"`
	RunKey string `mapstructure:"run_key" yaml:"run_key"`
}

// SiteConfig overrides page options for hosts containing Match.
type SiteConfig struct {
	Match                    string `mapstructure:"match" yaml:"match"`
	IncludeIDInQuerySelector bool   `mapstructure:"include_id_in_query_selector" yaml:"include_id_in_query_selector"`
	UseWithSubmit            bool   `mapstructure:"use_with_submit" yaml:"use_with_submit"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "surfer")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.viewport.width", 1366)
	v.SetDefault("browser.viewport.height", 900)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "10s")

	// -- Cursor --
	v.SetDefault("cursor.tick", "16ms")
	v.SetDefault("cursor.smoothing", 0.3)
	v.SetDefault("cursor.threshold", 1.0)
	v.SetDefault("cursor.settle_delay", "500ms")
	v.SetDefault("cursor.max_ticks", 600)
	v.SetDefault("cursor.key_delay_min", "20ms")
	v.SetDefault("cursor.key_delay_max", "50ms")
	v.SetDefault("cursor.native_moves", true)
	v.SetDefault("cursor.click_visual_ms", 500)

	// -- Agent --
	v.SetDefault("agent.max_steps", 10)
	v.SetDefault("agent.settle_delay", "1500ms")
	v.SetDefault("agent.display_delay", "1500ms")
	v.SetDefault("agent.navigate_delay", "500ms")
	v.SetDefault("agent.submit_delay", "200ms")
	v.SetDefault("agent.evaluate_previous", false)
	v.SetDefault("agent.capture_visual", true)
	v.SetDefault("agent.screenshot_dir", "")
	v.SetDefault("agent.fallback_radius", 200.0)
	v.SetDefault("agent.cursor_persist", "250ms")

	// -- Oracle --
	v.SetDefault("oracle.provider", "http")
	v.SetDefault("oracle.endpoint", "http://localhost:3000")
	v.SetDefault("oracle.timeout", "90s")
	v.SetDefault("oracle.rate_limit", 1.0)
	v.SetDefault("oracle.burst", 2)
	v.SetDefault("oracle.max_retries", 2)
	v.SetDefault("oracle.retry_delay", "1s")
	v.SetDefault("oracle.estimate", false)
	v.SetDefault("oracle.gemini.decide_model", "gemini-2.5-pro")
	v.SetDefault("oracle.gemini.evaluate_model", "gemini-2.5-flash")
	v.SetDefault("oracle.gemini.temperature", 0.2)
	v.SetDefault("oracle.gemini.max_output_tokens", 4096)

	// -- Store --
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.run_key", "default")

	// -- Sites --
	v.SetDefault("sites", []map[string]interface{}{
		{"match": "amazon.com", "include_id_in_query_selector": false, "use_with_submit": true},
		{"match": "opentable.com", "include_id_in_query_selector": true, "use_with_submit": false},
	})
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if err := c.CursorCfg.Validate(); err != nil {
		return fmt.Errorf("cursor configuration invalid: %w", err)
	}
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.OracleCfg.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	for i, s := range c.SitesCfg {
		if strings.TrimSpace(s.Match) == "" {
			return fmt.Errorf("sites[%d].match must not be empty", i)
		}
	}
	return nil
}

// Validate checks the cursor settings.
func (c *CursorConfig) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be a positive duration")
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1]")
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive")
	}
	if c.KeyDelayMin < 0 || c.KeyDelayMax < c.KeyDelayMin {
		return fmt.Errorf("key_delay_max must be >= key_delay_min >= 0")
	}
	return nil
}

// Validate checks the agent settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if a.SettleDelay < 0 || a.DisplayDelay < 0 || a.NavigateDelay < 0 || a.SubmitDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if a.FallbackRadius < 0 {
		return fmt.Errorf("fallback_radius must not be negative")
	}
	return nil
}

// Validate checks the oracle settings.
func (o *OracleConfig) Validate() error {
	switch o.Provider {
	case "http":
		if o.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the http provider")
		}
	case "gemini":
		if o.Gemini.APIKey == "" {
			return fmt.Errorf("gemini.api_key is required for the gemini provider. Ensure SURFER_ORACLE_GEMINI_API_KEY is set")
		}
		if o.Gemini.DecideModel == "" {
			return fmt.Errorf("gemini.decide_model is required")
		}
	default:
		return fmt.Errorf("unknown provider %q", o.Provider)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

// Validate checks the store settings.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case "memory":
	case "postgres":
		if s.URL == "" {
			return fmt.Errorf("url is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown type %q", s.Type)
	}
	if s.RunKey == "" {
		return fmt.Errorf("run_key must not be empty")
	}
	return nil
}

// ExpandPath resolves a leading ~ in a configured path.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", p, err)
	}
	return expanded, nil
}
