// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported browser backends.
const (
	BackendChromedp  = "chromedp"
	BackendRod       = "rod"
	BackendSimulated = "simulated"
)

// DefaultTargetURL is the public Responsible Vendor license search page.
const DefaultTargetURL = "https://laatcabc.atc.la.gov/laatcprod/pub/Default.aspx?PossePresentation=ResponsibleVendorLicenseSearch"

// DefaultNotFoundPhrase is rendered by the target page when no license matches.
const DefaultNotFoundPhrase = "No issued licenses were found using your search criteria."

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
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
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and tunes the browser automation backend.
type BrowserConfig struct {
	Backend           string        `mapstructure:"backend" yaml:"backend"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	// ProcessPerSession launches a dedicated browser process for every search
	// instead of an isolated browser context inside one shared process.
	ProcessPerSession bool          `mapstructure:"process_per_session" yaml:"process_per_session"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// FieldPrefixes are the stable name prefixes of the three search inputs.
// The page appends a per-load token to each of them.
type FieldPrefixes struct {
	LastName string `mapstructure:"last_name" yaml:"last_name"`
	SSN      string `mapstructure:"ssn" yaml:"ssn"`
	DOB      string `mapstructure:"dob" yaml:"dob"`
}

// SearchConfig configures the lookup engine: where it goes, what it looks for,
// and how long it is willing to wait at each stage.
type SearchConfig struct {
	TargetURL         string        `mapstructure:"target_url" yaml:"target_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	DiscoveryGrace    time.Duration `mapstructure:"discovery_grace" yaml:"discovery_grace"`
	ContainerGrace    time.Duration `mapstructure:"container_grace" yaml:"container_grace"`
	SubmitTimeout     time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ResultTimeout     time.Duration `mapstructure:"result_timeout" yaml:"result_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	MaxSessions       int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	Fields            FieldPrefixes `mapstructure:"fields" yaml:"fields"`
	SubmitTriggers    []string      `mapstructure:"submit_triggers" yaml:"submit_triggers"`
	SubmitFallbacks   []string      `mapstructure:"submit_fallbacks" yaml:"submit_fallbacks"`
	ResultSelectors   []string      `mapstructure:"result_selectors" yaml:"result_selectors"`
	NotFoundPhrase    string        `mapstructure:"not_found_phrase" yaml:"not_found_phrase"`
	FoundMarker       string        `mapstructure:"found_marker" yaml:"found_marker"`
}

// RetryConfig is the caller-level retry policy applied by the HTTP facade.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Retry           RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
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

// SetDefaults initializes default values for every configuration key. Every key
// must have a default so AutomaticEnv overrides are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "rvlookup")
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
	v.SetDefault("browser.backend", BackendChromedp)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.process_per_session", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.launch_timeout", 30*time.Second)

	// -- Search --
	v.SetDefault("search.target_url", DefaultTargetURL)
	v.SetDefault("search.navigation_timeout", 15*time.Second)
	v.SetDefault("search.discovery_grace", 5*time.Second)
	v.SetDefault("search.container_grace", 4*time.Second)
	v.SetDefault("search.submit_timeout", 5*time.Second)
	v.SetDefault("search.poll_interval", 250*time.Millisecond)
	v.SetDefault("search.result_timeout", 20*time.Second)
	v.SetDefault("search.settle_delay", 750*time.Millisecond)
	v.SetDefault("search.max_sessions", 4)
	v.SetDefault("search.fields.last_name", "LastName_")
	v.SetDefault("search.fields.ssn", "Last4SSN_")
	v.SetDefault("search.fields.dob", "DateOfBirth_")
	v.SetDefault("search.submit_triggers", []string{"PerformSearch"})
	v.SetDefault("search.submit_fallbacks", []string{`input[type="submit"]`, `button[type="submit"]`})
	v.SetDefault("search.result_selectors", []string{"#SearchResults", ".possesearchresults", "#grdResults"})
	v.SetDefault("search.not_found_phrase", DefaultNotFoundPhrase)
	v.SetDefault("search.found_marker", "License Number")

	// -- Server --
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.retry.max_attempts", 1)
	v.SetDefault("server.retry.initial_backoff", 500*time.Millisecond)
	v.SetDefault("server.retry.max_backoff", 5*time.Second)
}

// NewConfigFromViper creates a validated configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Hosting platforms hand the listen port over in $PORT.
	if err := v.BindEnv("server.port", "RVLOOKUP_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("error binding server.port: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Browser.Backend = strings.ToLower(strings.TrimSpace(cfg.Browser.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search configuration invalid: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser backend selection.
func (b *BrowserConfig) Validate() error {
	switch b.Backend {
	case BackendChromedp, BackendRod, BackendSimulated:
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", b.Backend, BackendChromedp, BackendRod, BackendSimulated)
	}
	if b.LaunchTimeout <= 0 {
		return fmt.Errorf("launch_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the search engine settings.
func (s *SearchConfig) Validate() error {
	u, err := url.Parse(s.TargetURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target_url must be an absolute URL, got %q", s.TargetURL)
	}

	durations := map[string]time.Duration{
		"navigation_timeout": s.NavigationTimeout,
		"discovery_grace":    s.DiscoveryGrace,
		"container_grace":    s.ContainerGrace,
		"submit_timeout":     s.SubmitTimeout,
		"poll_interval":      s.PollInterval,
		"result_timeout":     s.ResultTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if s.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if s.PollInterval > s.ResultTimeout {
		return fmt.Errorf("poll_interval (%s) must not exceed result_timeout (%s)", s.PollInterval, s.ResultTimeout)
	}
	if s.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be a positive integer")
	}
	if s.Fields.LastName == "" || s.Fields.SSN == "" || s.Fields.DOB == "" {
		return fmt.Errorf("fields.last_name, fields.ssn and fields.dob prefixes are required")
	}
	if len(s.SubmitTriggers) == 0 && len(s.SubmitFallbacks) == 0 {
		return fmt.Errorf("at least one of submit_triggers or submit_fallbacks is required")
	}
	if len(s.ResultSelectors) == 0 {
		return fmt.Errorf("result_selectors must list at least one selector")
	}
	if strings.TrimSpace(s.NotFoundPhrase) == "" {
		return fmt.Errorf("not_found_phrase is required")
	}
	return nil
}

// Validate checks the HTTP facade settings.
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if s.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if s.Retry.MaxAttempts > 1 && s.Retry.InitialBackoff <= 0 {
		return fmt.Errorf("retry.initial_backoff must be positive when retries are enabled")
	}
	return nil
}

// envKeyReplacer maps nested keys such as search.result_timeout to
// RVLOOKUP_SEARCH_RESULT_TIMEOUT.
var envKeyReplacer = strings.NewReplacer(".", "_")

// ConfigureEnv makes v read RVLOOKUP_* environment overrides for every key.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix("RVLOOKUP")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
}
