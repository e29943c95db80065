// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Engine() EngineConfig
	Targets() TargetsConfig
	Target(name string) (TargetConfig, error)
	Run() RunConfig
	SetRunConfig(rc RunConfig)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	EngineCfg  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	TargetsCfg TargetsConfig `mapstructure:"targets" yaml:"targets"`
	// RunCfg gets its marching orders from CLI flags, not the config file.
	RunCfg RunConfig `mapstructure:"-" yaml:"-"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Engine() EngineConfig   { return c.EngineCfg }
func (c *Config) Targets() TargetsConfig { return c.TargetsCfg }
func (c *Config) Run() RunConfig         { return c.RunCfg }

// Target returns the settings of a named target.
func (c *Config) Target(name string) (TargetConfig, error) {
	switch strings.ToLower(name) {
	case "posts":
		return c.TargetsCfg.Posts, nil
	case "comments":
		return c.TargetsCfg.Comments, nil
	case "reactions":
		return c.TargetsCfg.Reactions, nil
	default:
		return TargetConfig{}, fmt.Errorf("unknown target %q", name)
	}
}

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRunConfig(rc RunConfig) { c.RunCfg = rc }

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chromium instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	CookieFile        string        `mapstructure:"cookie_file" yaml:"cookie_file"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	Languages         []string      `mapstructure:"languages" yaml:"languages"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// EngineConfig tunes the sweep loop and its waits.
type EngineConfig struct {
	InitialScrollRounds int           `mapstructure:"initial_scroll_rounds" yaml:"initial_scroll_rounds"`
	ShortScrollRounds   int           `mapstructure:"short_scroll_rounds" yaml:"short_scroll_rounds"`
	ScrollDelay         time.Duration `mapstructure:"scroll_delay" yaml:"scroll_delay"`
	MaxRetriesPerItem   int           `mapstructure:"max_retries_per_item" yaml:"max_retries_per_item"`
	MaxStalledPasses    int           `mapstructure:"max_stalled_passes" yaml:"max_stalled_passes"`
	RetryDelay          time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ActionInterval      time.Duration `mapstructure:"action_interval" yaml:"action_interval"`
	ActionTimeout       time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LoadTimeout         time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	ErrorCooldown       time.Duration `mapstructure:"error_cooldown" yaml:"error_cooldown"`
	ReloadSettle        time.Duration `mapstructure:"reload_settle" yaml:"reload_settle"`
	ExpandSettle        time.Duration `mapstructure:"expand_settle" yaml:"expand_settle"`
	EndCheckSettle      time.Duration `mapstructure:"end_check_settle" yaml:"end_check_settle"`
	EndRecheck          time.Duration `mapstructure:"end_recheck" yaml:"end_recheck"`
}

// TargetConfig holds the per-target overrides.
type TargetConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	RefreshInterval  int           `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	MenuTimeout      time.Duration `mapstructure:"menu_timeout" yaml:"menu_timeout"`
	// Preserve is "first", "none" or "first:N".
	Preserve string `mapstructure:"preserve" yaml:"preserve"`
}

// TargetsConfig groups the three sweepable targets.
type TargetsConfig struct {
	Posts     TargetConfig `mapstructure:"posts" yaml:"posts"`
	Comments  TargetConfig `mapstructure:"comments" yaml:"comments"`
	Reactions TargetConfig `mapstructure:"reactions" yaml:"reactions"`
}

// RunConfig holds settings populated from CLI flags for a single sweep.
type RunConfig struct {
	Target       string
	URL          string
	ItemCap      int
	ScrollRounds int
	SkipGate     bool
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sweeper")
	v.SetDefault("logger.log_file", "sweeper.log")
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
	// A visible window is the default: the operator has to log in by hand.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "~/.sweeper/profile")
	v.SetDefault("browser.cookie_file", "~/.sweeper/cookies.json")
	v.SetDefault("browser.args", []string{"disable-dev-shm-usage", "disable-blink-features=AutomationControlled"})
	v.SetDefault("browser.languages", []string{"en-US", "en"})
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.navigation_timeout", "45s")

	// -- Engine --
	v.SetDefault("engine.initial_scroll_rounds", 5)
	v.SetDefault("engine.short_scroll_rounds", 3)
	v.SetDefault("engine.scroll_delay", "2s")
	v.SetDefault("engine.max_retries_per_item", 2)
	v.SetDefault("engine.max_stalled_passes", 3)
	v.SetDefault("engine.retry_delay", "2s")
	v.SetDefault("engine.action_interval", "2s")
	v.SetDefault("engine.action_timeout", "45s")
	v.SetDefault("engine.poll_interval", "250ms")
	v.SetDefault("engine.load_timeout", "10s")
	v.SetDefault("engine.confirm_timeout", "3s")
	v.SetDefault("engine.error_cooldown", "5s")
	v.SetDefault("engine.reload_settle", "3s")
	v.SetDefault("engine.expand_settle", "1s")
	v.SetDefault("engine.end_check_settle", "3s")
	v.SetDefault("engine.end_recheck", "2s")

	// -- Targets --
	v.SetDefault("targets.posts.url", "https://www.linkedin.com/in/me/recent-activity/all/")
	v.SetDefault("targets.posts.failure_threshold", 5)
	v.SetDefault("targets.posts.refresh_interval", 0)
	v.SetDefault("targets.posts.menu_timeout", "2s")
	v.SetDefault("targets.posts.preserve", "first")

	v.SetDefault("targets.comments.url", "https://www.linkedin.com/in/me/recent-activity/comments/")
	v.SetDefault("targets.comments.failure_threshold", 5)
	v.SetDefault("targets.comments.refresh_interval", 200)
	v.SetDefault("targets.comments.menu_timeout", "3s")
	v.SetDefault("targets.comments.preserve", "first")

	v.SetDefault("targets.reactions.url", "https://www.linkedin.com/in/me/recent-activity/reactions/")
	v.SetDefault("targets.reactions.failure_threshold", 10)
	v.SetDefault("targets.reactions.refresh_interval", 50)
	v.SetDefault("targets.reactions.menu_timeout", "2s")
	v.SetDefault("targets.reactions.preserve", "none")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Session material lives outside the config file.
	_ = v.BindEnv("browser.cookie_file", "SWEEPER_COOKIE_FILE")
	_ = v.BindEnv("browser.user_data_dir", "SWEEPER_PROFILE_DIR")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.EngineCfg.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	for name, t := range map[string]TargetConfig{
		"posts":     c.TargetsCfg.Posts,
		"comments":  c.TargetsCfg.Comments,
		"reactions": c.TargetsCfg.Reactions,
	} {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("targets.%s configuration invalid: %w", name, err)
		}
	}
	return nil
}

// Validate checks the BrowserConfig settings.
func (b *BrowserConfig) Validate() error {
	if b.LaunchTimeout <= 0 {
		return fmt.Errorf("launch_timeout must be a positive duration")
	}
	if b.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if b.WindowWidth < 0 || b.WindowHeight < 0 {
		return fmt.Errorf("window size must not be negative")
	}
	return nil
}

// Validate checks the EngineConfig settings.
func (e *EngineConfig) Validate() error {
	if e.InitialScrollRounds < 0 || e.ShortScrollRounds < 0 {
		return fmt.Errorf("scroll rounds must not be negative")
	}
	if e.MaxRetriesPerItem <= 0 {
		return fmt.Errorf("max_retries_per_item must be a positive integer")
	}
	if e.MaxStalledPasses < 0 {
		return fmt.Errorf("max_stalled_passes must not be negative")
	}
	if e.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be a positive duration")
	}
	if e.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}

// Validate checks the TargetConfig settings.
func (t *TargetConfig) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("url is required")
	}
	if t.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be a positive integer")
	}
	if t.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must not be negative")
	}
	if _, err := ParsePreserve(t.Preserve); err != nil {
		return err
	}
	return nil
}

// ParsePreserve parses a preservation setting into the number of leading
// items of each batch to keep.
func ParsePreserve(s string) (int, error) {
	switch s = strings.TrimSpace(strings.ToLower(s)); {
	case s == "" || s == "first":
		return 1, nil
	case s == "none":
		return 0, nil
	case strings.HasPrefix(s, "first:"):
		var n int
		if _, err := fmt.Sscanf(strings.TrimPrefix(s, "first:"), "%d", &n); err != nil || n < 0 {
			return 0, fmt.Errorf("preserve must be first, none or first:N, got %q", s)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("preserve must be first, none or first:N, got %q", s)
	}
}
