// Package config loads environment-based configuration for aic-mcp.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Mode selects how the process authenticates and persists tokens.
// It is resolved once at startup and never changes for the process
// lifetime.
type Mode string

const (
	// ModeAttended is a desktop process with a browser available.
	// Tokens come from the authorization-code+PKCE flow and are
	// persisted in the OS credential vault.
	ModeAttended Mode = "attended"

	// ModeContainerized is a headless process. Tokens come from the
	// device-authorization flow and are persisted in a file.
	ModeContainerized Mode = "containerized"
)

// Config holds all environment-based configuration for aic-mcp.
type Config struct {
	// TenantURL is the https base URL of the AIC tenant, e.g.
	// https://openam-example.forgeblocks.com. Required.
	TenantURL string `env:"AIC_TENANT_URL"`

	// Realm is the AM realm journeys and OAuth clients live in.
	Realm string `env:"AIC_REALM" envDefault:"alpha"`

	// ClientID is the OAuth client registered on the tenant for this tool.
	ClientID string `env:"AIC_CLIENT_ID" envDefault:"aic-mcp"`

	// Scopes are the primary-token scopes requested during authentication.
	// Individual tool calls are narrowed to a subset via token exchange.
	Scopes string `env:"AIC_SCOPES" envDefault:"fr:am:* fr:idm:* fr:idc:esv:* fr:idc:analytics:*"`

	// Mode selects attended (PKCE + keyring) or containerized
	// (device flow + file store) operation.
	Mode Mode `env:"AIC_MODE" envDefault:"attended"`

	// CallbackPort is the fixed loopback port for the PKCE redirect.
	CallbackPort int `env:"AIC_CALLBACK_PORT" envDefault:"23412"`

	// AllowCachedFirst controls whether a persisted token may be trusted
	// on the very first request of the process. When false, the first
	// call always runs a fresh authentication flow.
	AllowCachedFirst bool `env:"AIC_ALLOW_CACHED_FIRST" envDefault:"true"`

	// TokenFile is the token store path in containerized mode.
	// Defaults to ~/.aic-mcp/tokens.json.
	TokenFile string `env:"AIC_TOKEN_FILE"`

	// TokenFileKey optionally enables at-rest encryption of the file
	// token store. Empty means plaintext JSON.
	TokenFileKey string `env:"AIC_TOKEN_FILE_KEY"`

	// ListenAddr is the HTTP listen address in containerized mode.
	ListenAddr string `env:"AIC_LISTEN_ADDR" envDefault:":8090"`

	// StateDB is the bbolt database path for local state such as log
	// tail cursors. Defaults to ~/.aic-mcp/state.db.
	StateDB string `env:"AIC_STATE_DB"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// tenantHost is the hostname extracted from TenantURL.
	tenantHost string
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills path defaults that depend on the home directory
// and resolves configured paths to absolute form.
func (c *Config) applyDefaults() error {
	if c.TokenFile == "" || c.StateDB == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("determining home directory: %w", err)
		}

		if c.TokenFile == "" {
			c.TokenFile = filepath.Join(home, ".aic-mcp", "tokens.json")
		}

		if c.StateDB == "" {
			c.StateDB = filepath.Join(home, ".aic-mcp", "state.db")
		}
	}

	for _, p := range []*string{&c.TokenFile, &c.StateDB} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolving path %q: %w", *p, err)
		}

		*p = abs
	}

	return nil
}

func (c *Config) validate() error {
	if c.TenantURL == "" {
		return fmt.Errorf("AIC_TENANT_URL is required")
	}

	u, err := url.Parse(c.TenantURL)
	if err != nil {
		return fmt.Errorf("AIC_TENANT_URL is not a valid URL: %w", err)
	}

	if u.Scheme != "https" {
		return fmt.Errorf("AIC_TENANT_URL must use https, got %q", u.Scheme)
	}

	if u.Hostname() == "" {
		return fmt.Errorf("AIC_TENANT_URL has no hostname")
	}

	c.tenantHost = u.Hostname()

	switch c.Mode {
	case ModeAttended, ModeContainerized:
	default:
		return fmt.Errorf("AIC_MODE must be %q or %q, got %q", ModeAttended, ModeContainerized, c.Mode)
	}

	if c.CallbackPort < 1 || c.CallbackPort > 65535 {
		return fmt.Errorf("AIC_CALLBACK_PORT out of range: %d", c.CallbackPort)
	}

	if c.ClientID == "" {
		return fmt.Errorf("AIC_CLIENT_ID must not be empty")
	}

	return nil
}

// TenantHost returns the hostname component of the tenant URL. Cached
// tokens are bound to this value.
func (c *Config) TenantHost() string {
	return c.tenantHost
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
