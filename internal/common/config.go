package common

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment  string            `toml:"environment" validate:"omitempty,oneof=development production dev prod"`
	Server       ServerConfig      `toml:"server"`
	Logging      LoggingConfig     `toml:"logging"`
	Storage      StorageConfig     `toml:"storage"`
	CMA          CMAConfig         `toml:"cma"`
	Browser      BrowserConfig     `toml:"browser"`
	Profiles     ProfilesConfig    `toml:"profiles"`
	Session      SessionConfig     `toml:"session"`
	Capture      CaptureConfig     `toml:"capture"`
	Topology     TopologyConfig    `toml:"topology"`
	AccountNames map[string]string `toml:"account_names"` // accountName -> display name shown in the UI
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// CMAConfig describes the tenant console and its GraphQL endpoint
type CMAConfig struct {
	Tenant         string   `toml:"tenant" validate:"required"`
	LoginURL       string   `toml:"login_url" validate:"required,url"`      // common login portal, e.g. https://cc.catonetworks.com
	ConsoleDomain  string   `toml:"console_domain" validate:"required"`     // tenant hosts live under this domain
	AuthDomain     string   `toml:"auth_domain" validate:"required"`        // identity provider domain
	GraphQLPath    string   `toml:"graphql_path" validate:"required"`       // e.g. /api/graphql
	UserAgent      string   `toml:"user_agent"`                             // used when the snapshot has none
	RequestTimeout string   `toml:"request_timeout"`                        // e.g. "30s"
	RateLimit      int      `toml:"rate_limit" validate:"gte=0"`            // requests per second, 0 disables limiting
	CookieDomains  []string `toml:"cookie_domains" validate:"dive,required"` // extra exact domains allowed into the bridged cookie header
}

// BrowserConfig controls the interactive login driver
type BrowserConfig struct {
	Driver       string `toml:"driver" validate:"oneof=chromedp playwright"`
	Headless     bool   `toml:"headless"`      // false by default so the operator can solve CAPTCHA/MFA
	SlowMo       int    `toml:"slow_mo"`       // milliseconds between driver actions
	LoginTimeout string `toml:"login_timeout"` // total time allowed to reach the dashboard
	StepTimeout  string `toml:"step_timeout"`  // time allowed for each form step
	NoSandbox    bool   `toml:"no_sandbox"`
}

// ProfilesConfig locates the credential profile file
type ProfilesConfig struct {
	File    string `toml:"file" validate:"required"` // .toml, .yaml, .yml, .json or .jsonc
	Default string `toml:"default"`                  // used when a login request names no profile
}

// SessionConfig controls how the captured session is kept at rest
type SessionConfig struct {
	KeyFile          string `toml:"key_file" validate:"required"` // 32-byte sealing key, created on first use
	DeleteOnShutdown bool   `toml:"delete_on_shutdown"`
}

// CaptureConfig controls diagnostic response capture
type CaptureConfig struct {
	Enabled       bool   `toml:"enabled"`
	Dir           string `toml:"dir"`
	Retention     string `toml:"retention"`      // captures older than this are pruned
	PruneSchedule string `toml:"prune_schedule"` // cron spec, e.g. "@every 1h"
	KeepOnExit    bool   `toml:"keep_on_exit"`
}

// TopologyConfig controls the static route topology aggregation
type TopologyConfig struct {
	Concurrency int `toml:"concurrency" validate:"gte=1,lte=32"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 5000,
			Host: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		CMA: CMAConfig{
			LoginURL:       "https://cc.catonetworks.com",
			ConsoleDomain:  "cc.catonetworks.com",
			AuthDomain:     "catonetworks.com",
			GraphQLPath:    "/api/graphql",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: "30s",
			RateLimit:      5,
		},
		Browser: BrowserConfig{
			Driver:       "chromedp",
			Headless:     false,
			SlowMo:       150,
			LoginTimeout: "5m",
			StepTimeout:  "30s",
		},
		Profiles: ProfilesConfig{
			File: "./profiles.toml",
		},
		Session: SessionConfig{
			KeyFile: "./data/session.key",
		},
		Capture: CaptureConfig{
			Enabled:       true,
			Dir:           "", // resolved to <tmp>/cmabridge_responses
			Retention:     "24h",
			PruneSchedule: "@every 1h",
		},
		Topology: TopologyConfig{
			Concurrency: 4,
		},
		AccountNames: map[string]string{},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CMABRIDGE_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CMABRIDGE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CMABRIDGE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("CMABRIDGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CMABRIDGE_LOG_OUTPUT"); output != "" {
		outputs := splitList(output)
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("CMABRIDGE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// CMA configuration
	if tenant := os.Getenv("CMABRIDGE_CMA_TENANT"); tenant != "" {
		config.CMA.Tenant = tenant
	}
	if loginURL := os.Getenv("CMABRIDGE_CMA_LOGIN_URL"); loginURL != "" {
		config.CMA.LoginURL = loginURL
	}
	if graphqlPath := os.Getenv("CMABRIDGE_CMA_GRAPHQL_PATH"); graphqlPath != "" {
		config.CMA.GraphQLPath = graphqlPath
	}
	if timeout := os.Getenv("CMABRIDGE_CMA_REQUEST_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.CMA.RequestTimeout = timeout
		}
	}
	if rateLimit := os.Getenv("CMABRIDGE_CMA_RATE_LIMIT"); rateLimit != "" {
		if rl, err := strconv.Atoi(rateLimit); err == nil {
			config.CMA.RateLimit = rl
		}
	}

	// Browser configuration
	if driver := os.Getenv("CMABRIDGE_BROWSER_DRIVER"); driver != "" {
		config.Browser.Driver = driver
	}
	if headless := os.Getenv("CMABRIDGE_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if loginTimeout := os.Getenv("CMABRIDGE_BROWSER_LOGIN_TIMEOUT"); loginTimeout != "" {
		if _, err := time.ParseDuration(loginTimeout); err == nil {
			config.Browser.LoginTimeout = loginTimeout
		}
	}

	// Profiles and session configuration
	if profilesFile := os.Getenv("CMABRIDGE_PROFILES_FILE"); profilesFile != "" {
		config.Profiles.File = profilesFile
	}
	if defaultProfile := os.Getenv("CMABRIDGE_PROFILES_DEFAULT"); defaultProfile != "" {
		config.Profiles.Default = defaultProfile
	}
	if keyFile := os.Getenv("CMABRIDGE_SESSION_KEY_FILE"); keyFile != "" {
		config.Session.KeyFile = keyFile
	}

	// Capture configuration
	if enabled := os.Getenv("CMABRIDGE_CAPTURE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Capture.Enabled = e
		}
	}
	if dir := os.Getenv("CMABRIDGE_CAPTURE_DIR"); dir != "" {
		config.Capture.Dir = dir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints and the derived tenant URL
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := url.Parse(c.TenantBaseURL()); err != nil {
		return fmt.Errorf("invalid tenant %q: %w", c.CMA.Tenant, err)
	}
	if strings.ContainsAny(c.CMA.Tenant, "./:") {
		return fmt.Errorf("invalid tenant %q: must be a single host label", c.CMA.Tenant)
	}

	return nil
}

// TenantHost returns the tenant console host, e.g. acme.cc.catonetworks.com
func (c *Config) TenantHost() string {
	return strings.ToLower(c.CMA.Tenant + "." + c.CMA.ConsoleDomain)
}

// TenantBaseURL returns the tenant console origin
func (c *Config) TenantBaseURL() string {
	return "https://" + c.TenantHost()
}

// GraphQLEndpoint returns the absolute GraphQL endpoint URL
func (c *Config) GraphQLEndpoint() string {
	path := c.CMA.GraphQLPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.TenantBaseURL() + path
}

// RequestTimeout returns the outbound request timeout (default 30s)
func (c *Config) RequestTimeout() time.Duration {
	return parseDurationOr(c.CMA.RequestTimeout, 30*time.Second)
}

// LoginTimeout returns how long the interactive login may take (default 5m)
func (c *Config) LoginTimeout() time.Duration {
	return parseDurationOr(c.Browser.LoginTimeout, 5*time.Minute)
}

// StepTimeout returns how long each login form step may take (default 30s)
func (c *Config) StepTimeout() time.Duration {
	return parseDurationOr(c.Browser.StepTimeout, 30*time.Second)
}

// CaptureRetention returns the capture retention window (default 24h)
func (c *Config) CaptureRetention() time.Duration {
	return parseDurationOr(c.Capture.Retention, 24*time.Hour)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
