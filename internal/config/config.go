// Package config loads the stancewatch configuration file.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/stancewatch/internal/ack"
	"github.com/ppiankov/stancewatch/internal/alert"
	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/nonce"
	"github.com/ppiankov/stancewatch/internal/ratelimit"
	"github.com/ppiankov/stancewatch/internal/risk"
	"github.com/ppiankov/stancewatch/internal/telemetry"
)

// SecretEnv overrides ack.secret when set.
const SecretEnv = "STANCEWATCH_ACK_SECRET"

// AckConfig configures the acknowledgment handshake.
type AckConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Phrase string        `yaml:"phrase"`
}

// VerificationConfig configures live-data retrieval.
type VerificationConfig struct {
	MaxSources int                                   `yaml:"max_sources"`
	Timeout    time.Duration                         `yaml:"timeout"`
	Freshness  map[model.DataCategory]time.Duration `yaml:"freshness"`
	// Providers maps a data category to URL templates. No providers means
	// no live retrieval.
	Providers map[model.DataCategory][]string `yaml:"providers"`
}

// GenerationConfig bounds response regeneration.
type GenerationConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// ServerConfig configures the gRPC decision service.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the full stancewatch configuration.
type Config struct {
	Ack          AckConfig            `yaml:"ack"`
	CrisisText   string               `yaml:"crisis_text"`
	Catalog      string               `yaml:"catalog"`
	Escalation   risk.EscalationTable `yaml:"escalation"`
	Verification VerificationConfig   `yaml:"verification"`
	Nonce        nonce.Config         `yaml:"nonce"`
	AuditLog     string               `yaml:"audit_log"`
	Alerts       []alert.AlertConfig  `yaml:"alerts"`
	Log          telemetry.LogConfig  `yaml:"log"`
	Generation   GenerationConfig     `yaml:"generation"`
	Server       ServerConfig         `yaml:"server"`
	RateLimit    ratelimit.Limit      `yaml:"rate_limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ack: AckConfig{
			TTL:    ack.DefaultTTL,
			Phrase: ack.DefaultPhrase,
		},
		Escalation: risk.DefaultEscalation(),
		Verification: VerificationConfig{
			MaxSources: 5,
			Timeout:    10 * time.Second,
		},
		Nonce:      nonce.Config{Backend: nonce.BackendMemory},
		Log:        telemetry.LogConfig{Level: "info", Format: "json"},
		Generation: GenerationConfig{MaxRetries: 2},
		Server:     ServerConfig{Listen: "127.0.0.1:9440"},
	}
}

// DefaultPath returns ~/.stancewatch/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".stancewatch", "config.yaml")
}

// Load loads the configuration at path. Empty path uses DefaultPath.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads the configuration and returns the SHA-256 of the raw
// bytes on disk. When no file exists the hash is that of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if s := os.Getenv(SecretEnv); s != "" {
		cfg.Ack.Secret = s
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

// Validate checks values the components would otherwise reject later.
// An empty secret is allowed here; callers decide how to handle it.
func (c *Config) Validate() error {
	if c.Ack.Secret != "" && len(c.Ack.Secret) < ack.MinSecretLen {
		return fmt.Errorf("config: ack.secret must be at least %d bytes", ack.MinSecretLen)
	}
	if c.Ack.TTL < 0 || c.Ack.TTL > ack.MaxTTL {
		return fmt.Errorf("config: ack.ttl must be between 0 and %s", ack.MaxTTL)
	}
	if c.Verification.MaxSources < 0 {
		return fmt.Errorf("config: verification.max_sources must not be negative")
	}
	if c.Verification.Timeout < 0 {
		return fmt.Errorf("config: verification.timeout must not be negative")
	}
	for cat := range c.Verification.Providers {
		if !knownCategory(cat) {
			return fmt.Errorf("config: verification.providers: unknown category %q", cat)
		}
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("config: generation.max_retries must not be negative")
	}
	if c.RateLimit.MaxRequests < 0 || c.RateLimit.Window < 0 {
		return fmt.Errorf("config: rate_limit values must not be negative")
	}
	for i, a := range c.Alerts {
		if a.URL == "" {
			return fmt.Errorf("config: alerts[%d]: url is required", i)
		}
	}
	return nil
}

// HasProviders reports whether any live-data provider is configured.
func (c *Config) HasProviders() bool {
	for _, urls := range c.Verification.Providers {
		if len(urls) > 0 {
			return true
		}
	}
	return false
}

func knownCategory(c model.DataCategory) bool {
	switch c {
	case model.CategoryMarket, model.CategoryCrypto, model.CategoryFX,
		model.CategoryWeather, model.CategoryTime, model.CategoryGeneral:
		return true
	}
	return false
}
