// Package config holds OPERATOR-LEVEL configuration for a fuels monitoring
// installation.
//
// This is infrastructure config set by whoever deploys the service: data
// directory, reasoning-service credentials, email provider endpoint, HTTP
// listen address. Set via env vars (FUELS_*) or a config file
// (fuels.config.yaml).
//
// Per-agent behavior (execution mode, check interval, enabled flag) is NOT
// configured here — it lives on the agent rows in the store and is managed
// through the API, so an operator restart never changes agent autonomy.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the FUELS_ prefix
// (e.g. "anthropic_api_key" → FUELS_ANTHROPIC_API_KEY) and to a YAML
// field in fuels.config.yaml.
const (
	KeyDataDir          = "data_dir"
	KeyAnthropicAPIKey  = "anthropic_api_key"
	KeyJudgmentModel    = "judgment_model"
	KeyParserModel      = "parser_model"
	KeyMailBaseURL      = "mail_base_url"
	KeyMailAPIKey       = "mail_api_key"
	KeyMailFrom         = "mail_from"
	KeyInboundToken     = "inbound_token"
	KeyListenAddr       = "listen_addr"
	KeyStalenessMinutes = "staleness_minutes"
)

// Defaults. The judgment tier gets the stronger model; the ETA parser runs
// far more often on far smaller prompts, so it gets the cheap one.
const (
	DefaultJudgmentModel    = "claude-sonnet-4-20250514"
	DefaultParserModel      = "claude-haiku-3-5-20241022"
	DefaultListenAddr       = ":8084"
	DefaultStalenessMinutes = 30
)

// Config holds resolved operator-level configuration for one process.
type Config struct {
	DataDir          string // Base directory for all state (~/.fuelsd)
	AnthropicAPIKey  string // Reasoning-service credential; empty disables Tier 2 and the LLM parser stage
	JudgmentModel    string // Model for the Tier-2 judgment loop
	ParserModel      string // Model for the Stage-1 ETA parser
	MailBaseURL      string // Email provider endpoint; empty selects the log-only mailer
	MailAPIKey       string // Email provider credential
	MailFrom         string // From address for outbound ETA requests
	InboundToken     string // Shared token validating inbound email webhooks; empty disables the check
	ListenAddr       string // HTTP listen address for serve
	StalenessMinutes int    // Interval between staleness sweeps
}

// DBPath returns the full path to the SQLite database holding operational
// state (sites, loads, escalations, run history).
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "fuels.db")
}

// GraphDBPath returns the full path to the knowledge-graph SQLite database
// (carrier and site reliability statistics).
func (c *Config) GraphDBPath() string {
	return filepath.Join(c.DataDir, "graph.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("FUELS")
	viper.AutomaticEnv()
	viper.SetDefault(KeyJudgmentModel, DefaultJudgmentModel)
	viper.SetDefault(KeyParserModel, DefaultParserModel)
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyStalenessMinutes, DefaultStalenessMinutes)
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          resolveDataDir(),
		AnthropicAPIKey:  viper.GetString(KeyAnthropicAPIKey),
		JudgmentModel:    viper.GetString(KeyJudgmentModel),
		ParserModel:      viper.GetString(KeyParserModel),
		MailBaseURL:      viper.GetString(KeyMailBaseURL),
		MailAPIKey:       viper.GetString(KeyMailAPIKey),
		MailFrom:         viper.GetString(KeyMailFrom),
		InboundToken:     viper.GetString(KeyInboundToken),
		ListenAddr:       viper.GetString(KeyListenAddr),
		StalenessMinutes: viper.GetInt(KeyStalenessMinutes),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fuelsd"
	}
	return filepath.Join(home, ".fuelsd")
}

func (c *Config) validate() error {
	if c.StalenessMinutes <= 0 {
		return fmt.Errorf("staleness_minutes must be positive")
	}
	if c.MailBaseURL != "" && c.MailFrom == "" {
		return fmt.Errorf("mail_from is required when mail_base_url is set")
	}
	if c.JudgmentModel == "" || c.ParserModel == "" {
		return fmt.Errorf("judgment_model and parser_model must not be empty")
	}
	return nil
}
