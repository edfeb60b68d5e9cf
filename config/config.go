// Package config loads svcpipe settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/ambiyansyah-risyal/svcpipe"
	"github.com/ambiyansyah-risyal/svcpipe/auth"
)

// Environment variables that override file values.
const (
	EnvConfig    = "SVCPIPE_CONFIG"
	EnvBaseURL   = "SVCPIPE_BASE_URL"
	EnvService   = "SVCPIPE_SERVICE"
	EnvTokenFile = "SVCPIPE_TOKEN_FILE"
	EnvLogLevel  = "SVCPIPE_LOG_LEVEL"
	EnvLogFormat = "SVCPIPE_LOG_FORMAT"
)

const configFileName = "config.yaml"

// Config holds the settings for one svcpipe service.
type Config struct {
	BaseURL   string `yaml:"base_url"`
	Service   string `yaml:"service"`
	TokenFile string `yaml:"token_file"`
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	Timeout             time.Duration `yaml:"timeout"`
	Retries             int           `yaml:"retries"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	RefreshBeforeExpiry time.Duration `yaml:"refresh_before_expiry"`

	OAuth2 OAuth2 `yaml:"oauth2"`
}

// OAuth2 describes the token endpoint used to refresh stored credentials.
type OAuth2 struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// Enabled reports whether a token endpoint is configured.
func (o OAuth2) Enabled() bool {
	return o.TokenURL != ""
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		BaseURL:   "http://localhost:8080",
		Service:   "svcpipe",
		LogLevel:  "info",
		LogFormat: "text",
		Timeout:   svcpipe.DefaultTimeout,
		Retries:   svcpipe.DefaultRetries,
		CacheTTL:  svcpipe.DefaultCacheTTL,
	}
}

// DefaultPath returns ~/.svcpipe/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".svcpipe", configFileName), nil
}

// Load reads path over the defaults, then applies environment overrides.
// The file must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// Resolve picks the config file from path, SVCPIPE_CONFIG or the default
// location. Only an explicitly named file has to exist.
func Resolve(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		return Load(path)
	}

	def, err := DefaultPath()
	if err == nil {
		if _, statErr := os.Stat(def); statErr == nil {
			return Load(def)
		}
	}

	cfg := Default()
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		EnvBaseURL:   &c.BaseURL,
		EnvService:   &c.Service,
		EnvTokenFile: &c.TokenFile,
		EnvLogLevel:  &c.LogLevel,
		EnvLogFormat: &c.LogFormat,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// Validate checks the settings New would reject plus the logging fields.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BaseURL)
	switch {
	case c.BaseURL == "":
		errs = append(errs, errors.New("base_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("invalid base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, errors.New("base_url scheme must be http or https"))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.Retries < 0 {
		errs = append(errs, errors.New("retries must be non-negative"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache_ttl must be positive"))
	}
	if c.RefreshBeforeExpiry < 0 {
		errs = append(errs, errors.New("refresh_before_expiry must be non-negative"))
	}

	return errors.Join(errs...)
}

// CredentialsPath returns the token file, falling back to the auth default.
func (c Config) CredentialsPath() (string, error) {
	if c.TokenFile != "" {
		return c.TokenFile, nil
	}
	return auth.DefaultPath()
}

// OAuth2Config builds the refresh configuration, or nil when none is set.
func (c Config) OAuth2Config() *oauth2.Config {
	if !c.OAuth2.Enabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     c.OAuth2.ClientID,
		ClientSecret: c.OAuth2.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.OAuth2.TokenURL},
		Scopes:       c.OAuth2.Scopes,
	}
}

// TokenStore opens the credentials file, wiring the OAuth2 refresher when
// a token endpoint is configured.
func (c Config) TokenStore(opts ...auth.StoreOption) (*auth.Store, error) {
	path, err := c.CredentialsPath()
	if err != nil {
		return nil, err
	}
	if oc := c.OAuth2Config(); oc != nil {
		opts = append([]auth.StoreOption{auth.WithRefresher(auth.OAuth2Refresher(oc))}, opts...)
	}
	return auth.OpenFile(path, opts...)
}

// Options translates the settings into svcpipe options.
func (c Config) Options() []svcpipe.Option {
	return []svcpipe.Option{
		svcpipe.WithBaseURL(c.BaseURL),
		svcpipe.WithServiceName(c.Service),
		svcpipe.WithDefaultTimeout(c.Timeout),
		svcpipe.WithDefaultRetries(c.Retries),
		svcpipe.WithDefaultCacheTTL(c.CacheTTL),
		svcpipe.WithRefreshBeforeExpiry(c.RefreshBeforeExpiry),
	}
}
