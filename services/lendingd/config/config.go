package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"kylix/core/genesis"
	"kylix/native/lending"
	"kylix/storage"
)

const (
	defaultListen      = ":8086"
	defaultStoragePath = "data/lendingd"
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	Environment   string         `yaml:"environment"`
	Log           LogConfig      `yaml:"log"`
	Storage       StorageConfig  `yaml:"storage"`
	RateLimit     RateLimit      `yaml:"rate_limit"`
	TLS           TLSConfig      `yaml:"tls"`
	Auth          AuthConfig     `yaml:"auth"`
	Paused        []string       `yaml:"paused"`
	Lending       lending.Config `yaml:"lending"`
	LendingFile   string         `yaml:"lending_file"`
	Genesis       *genesis.Spec  `yaml:"genesis"`
	GenesisFile   string         `yaml:"genesis_file"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StorageConfig selects the key/value backend holding ledger state.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RateLimit bounds requests per client address.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig lists the authenticators accepted on mutating endpoints.
type AuthConfig struct {
	APITokens []string       `yaml:"api_tokens"`
	MTLS      MTLSAuthConfig `yaml:"mtls"`
}

// MTLSAuthConfig enumerates the allowed client certificate identities.
type MTLSAuthConfig struct {
	AllowedCommonNames []string `yaml:"allowed_common_names"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
		Storage:       StorageConfig{Backend: storage.BackendLevelDB, Path: defaultStoragePath},
		RateLimit:     RateLimit{RequestsPerMinute: 600, Burst: 20},
		Lending:       lending.DefaultConfig(),
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if cfg.LendingFile != "" {
		loaded, err := lending.LoadConfig(cfg.LendingFile)
		if err != nil {
			return Config{}, fmt.Errorf("lending_file: %w", err)
		}
		cfg.Lending = loaded
	}
	if cfg.GenesisFile != "" {
		if cfg.Genesis != nil {
			return Config{}, fmt.Errorf("genesis and genesis_file are mutually exclusive")
		}
		spec, err := genesis.Load(cfg.GenesisFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Genesis = spec
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Dev reports whether the daemon runs in the development environment.
func (cfg Config) Dev() bool {
	return strings.EqualFold(cfg.Environment, "dev")
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storage.BackendLevelDB
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}
	cfg.Paused = trimAll(cfg.Paused)
	cfg.LendingFile = strings.TrimSpace(cfg.LendingFile)
	cfg.GenesisFile = strings.TrimSpace(cfg.GenesisFile)
	cfg.Lending.Normalize()
	cfg.TLS.normalize()
	cfg.Auth.normalize()
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	switch cfg.Storage.Backend {
	case storage.BackendLevelDB, storage.BackendBolt:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path required for %s backend", cfg.Storage.Backend)
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit: requests_per_minute must not be negative")
	}
	if err := cfg.Lending.Validate(); err != nil {
		return fmt.Errorf("lending: %w", err)
	}
	if err := cfg.Genesis.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := cfg.Auth.validate(cfg.TLS, cfg.Dev()); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

func (cfg *TLSConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.CertPath = strings.TrimSpace(cfg.CertPath)
	cfg.KeyPath = strings.TrimSpace(cfg.KeyPath)
	cfg.ClientCAPath = strings.TrimSpace(cfg.ClientCAPath)
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	return nil
}

// MTLSEnabled reports whether mutual TLS verification is configured.
func (cfg TLSConfig) MTLSEnabled() bool {
	return strings.TrimSpace(cfg.ClientCAPath) != ""
}

func (cfg *AuthConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.APITokens = trimAll(cfg.APITokens)
	cfg.MTLS.AllowedCommonNames = trimAll(cfg.MTLS.AllowedCommonNames)
}

// Enabled reports whether any authenticator is configured.
func (cfg AuthConfig) Enabled() bool {
	return len(cfg.APITokens) > 0 || len(cfg.MTLS.AllowedCommonNames) > 0
}

func (cfg AuthConfig) validate(tls TLSConfig, dev bool) error {
	if !cfg.Enabled() && !dev {
		return fmt.Errorf("at least one api token or mTLS common name must be configured outside the dev environment")
	}
	if len(cfg.MTLS.AllowedCommonNames) > 0 && strings.TrimSpace(tls.ClientCAPath) == "" {
		return fmt.Errorf("mtls.allowed_common_names requires tls.client_ca to be configured")
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
