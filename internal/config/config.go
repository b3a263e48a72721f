// Package config provides centralized configuration for the copy-trading
// engine. All tunables (trade sizing, fee caps, janitor thresholds, stream
// endpoints) are defined here so no magic numbers live in the components
// that consume them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the copy-trading engine.
type Config struct {
	// RPC holds Solana RPC and streaming endpoints.
	RPC RPCConfig `yaml:"rpc"`

	// Trading holds default trade sizing and fee parameters.
	Trading TradingConfig `yaml:"trading"`

	// PreTrade holds pre-trade cache janitor thresholds.
	PreTrade PreTradeConfig `yaml:"pre_trade"`

	// Storage holds data directory and database settings.
	Storage StorageConfig `yaml:"storage"`

	// Logging holds logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Jito holds optional block-engine tip-bundle settings.
	Jito JitoConfig `yaml:"jito"`

	// Api holds the price/metadata indexer endpoint the pre-trade janitor's
	// market-cap checks query.
	Api ApiConfig `yaml:"api"`
}

// ApiConfig holds the ApiManager's price/metadata indexer endpoint.
type ApiConfig struct {
	// BaseURL is the indexer's HTTP base URL (spec §1: "out of scope... an
	// ApiManager with getTokenPrices, getTokenMetadatas, getSellState";
	// this engine's reference implementation is an HTTP client, but the
	// endpoint it talks to is free).
	BaseURL string `yaml:"base_url"`

	// RequestTimeoutSeconds bounds each outbound HTTP call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns RequestTimeoutSeconds as a time.Duration.
func (c *ApiConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RPCConfig holds Solana RPC and leader-stream endpoints.
type RPCConfig struct {
	// Endpoint is the JSON-RPC endpoint used for account lookups, blockhash
	// fetches, transaction submission, and confirmation polling.
	Endpoint string `yaml:"endpoint"`

	// StreamEndpoint is the canonical leader-transaction stream endpoint
	// (spec decision: one canonical endpoint, see Open Questions).
	StreamEndpoint string `yaml:"stream_endpoint"`

	// FallbackStreamEndpoints are tried in order if StreamEndpoint's
	// circuit breaker trips.
	FallbackStreamEndpoints []string `yaml:"fallback_stream_endpoints"`

	// StreamReconnectCapMs bounds the exponential reconnect backoff.
	StreamReconnectCapMs int `yaml:"stream_reconnect_cap_ms"`

	// PollIntervalSeconds is the fallback poller's interval while the
	// stream is degraded.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// TradingConfig holds default trade sizing, slippage, and fee parameters.
type TradingConfig struct {
	// DefaultSolTradeAmountLamports is a default trade size in lamports. It
	// is loaded and saved with the config only: the orchestrator sizes every
	// buy from the user's own SolAmountPerTradeLamports and never reads it.
	DefaultSolTradeAmountLamports uint64 `yaml:"default_sol_trade_amount_lamports"`

	// MinSolAmountPerTradeLamports is a minimum trade size in lamports. It is
	// loaded and saved with the config only: no component compares a trade
	// or a wallet balance against it, so no clone is skipped on its account.
	MinSolAmountPerTradeLamports uint64 `yaml:"min_sol_amount_per_trade_lamports"`

	// SlippageBps is the default slippage tolerance in basis points.
	SlippageBps uint16 `yaml:"slippage_bps"`

	// PriorityFeeCapMicroLamports bounds the per-transaction priority fee.
	PriorityFeeCapMicroLamports uint64 `yaml:"priority_fee_cap_micro_lamports"`

	// PriorityFeeRatioOfSol is the fraction of the trade's SOL amount
	// spent on priority fee, before the cap is applied.
	PriorityFeeRatioOfSol float64 `yaml:"priority_fee_ratio_of_sol"`

	// ComputeUnitDefault is used when the leader transaction carries no
	// compute-budget instruction to clone.
	ComputeUnitDefault uint32 `yaml:"compute_unit_default"`

	// ConfirmTimeoutSeconds bounds how long the dispatcher waits for a
	// submitted transaction to confirm before giving up.
	ConfirmTimeoutSeconds int `yaml:"confirm_timeout_seconds"`

	// SendMaxRetries bounds retries of a transient send failure.
	SendMaxRetries int `yaml:"send_max_retries"`
}

// PreTradeConfig holds pre-trade cache janitor prune thresholds.
type PreTradeConfig struct {
	// PumpFunMinMarketCapSol is the market-cap floor below which a
	// pump.fun-class cache entry is pruned (spec §4.6).
	PumpFunMinMarketCapSol float64 `yaml:"pumpfun_min_market_cap_sol"`

	// LaunchpadGraceSeconds is how long a launchpad-class entry is
	// exempt from pruning after creation.
	LaunchpadGraceSeconds int `yaml:"launchpad_grace_seconds"`

	// LaunchpadMinMarketCapSol is the market-cap floor for launchpad-class
	// entries once past their grace period. Zero counts as prunable.
	LaunchpadMinMarketCapSol float64 `yaml:"launchpad_min_market_cap_sol"`

	// GeneralDEXGraceSeconds is how long a general-DEX-class entry is
	// exempt from pruning after creation.
	GeneralDEXGraceSeconds int `yaml:"general_dex_grace_seconds"`

	// GeneralDEXMinMarketCapSol is the market-cap floor for general-DEX
	// class entries once past their grace period.
	GeneralDEXMinMarketCapSol float64 `yaml:"general_dex_min_market_cap_sol"`

	// JanitorIntervalSeconds is how often the janitor sweeps the cache.
	JanitorIntervalSeconds int `yaml:"janitor_interval_seconds"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`

	// DBFile is the SQLite database filename, relative to DataDir.
	DBFile string `yaml:"db_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stdout).
	File string `yaml:"file"`
}

// JitoConfig holds optional block-engine tip-bundle settings.
type JitoConfig struct {
	// Enabled turns on tip-bundle submission via a LeaderTracker
	// collaborator.
	Enabled bool `yaml:"enabled"`

	// BlockEngineURL is the Jito block-engine endpoint.
	BlockEngineURL string `yaml:"block_engine_url"`

	// TipLamports is the fixed tip attached to each bundle.
	TipLamports uint64 `yaml:"tip_lamports"`
}

// DefaultConfig returns a Config with sensible defaults matching spec §4.8.
func DefaultConfig() *Config {
	return &Config{
		RPC: RPCConfig{
			Endpoint:                "https://api.mainnet-beta.solana.com",
			StreamEndpoint:          "wss://stream.solcopy.local/leader-txs",
			FallbackStreamEndpoints: []string{},
			StreamReconnectCapMs:    30000,
			PollIntervalSeconds:     25,
		},
		Trading: TradingConfig{
			DefaultSolTradeAmountLamports: 100000000, // 0.1 SOL
			MinSolAmountPerTradeLamports:  1000000,   // 0.001 SOL
			SlippageBps:                   500,       // 5%
			PriorityFeeCapMicroLamports:   1000000,
			PriorityFeeRatioOfSol:         0.15,
			ComputeUnitDefault:            1200000,
			ConfirmTimeoutSeconds:         30,
			SendMaxRetries:                5,
		},
		PreTrade: PreTradeConfig{
			PumpFunMinMarketCapSol:    1000,
			LaunchpadGraceSeconds:     300,
			LaunchpadMinMarketCapSol:  50000,
			GeneralDEXGraceSeconds:    3600,
			GeneralDEXMinMarketCapSol: 250000,
			JanitorIntervalSeconds:    60,
		},
		Storage: StorageConfig{
			DataDir: "~/.solcopy",
			DBFile:  "engine.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Jito: JitoConfig{
			Enabled:        false,
			BlockEngineURL: "",
			TipLamports:    0,
		},
		Api: ApiConfig{
			BaseURL:               "https://api.solcopy.local",
			RequestTimeoutSeconds: 10,
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file under dataDir. If the
// file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# copy-trading engine configuration\n# generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data
// directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// DBPath returns the full path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(expandPath(c.Storage.DataDir), c.Storage.DBFile)
}

// PriorityFeeMicroLamports returns the priority fee for a trade of the
// given SOL amount (in lamports), applying the configured ratio and cap
// (spec §4.5: min(user_sol_amount * ratio, cap)).
func (c *TradingConfig) PriorityFeeMicroLamports(tradeAmountLamports uint64) uint64 {
	fee := uint64(float64(tradeAmountLamports) * c.PriorityFeeRatioOfSol)
	if fee > c.PriorityFeeCapMicroLamports {
		return c.PriorityFeeCapMicroLamports
	}
	return fee
}

// ConfirmTimeout returns ConfirmTimeoutSeconds as a time.Duration.
func (c *TradingConfig) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

// StreamReconnectCap returns StreamReconnectCapMs as a time.Duration.
func (c *RPCConfig) StreamReconnectCap() time.Duration {
	return time.Duration(c.StreamReconnectCapMs) * time.Millisecond
}

// PollInterval returns PollIntervalSeconds as a time.Duration.
func (c *RPCConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// JanitorInterval returns JanitorIntervalSeconds as a time.Duration.
func (c *PreTradeConfig) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSeconds) * time.Second
}

// LaunchpadGrace returns LaunchpadGraceSeconds as a time.Duration.
func (c *PreTradeConfig) LaunchpadGrace() time.Duration {
	return time.Duration(c.LaunchpadGraceSeconds) * time.Second
}

// GeneralDEXGrace returns GeneralDEXGraceSeconds as a time.Duration.
func (c *PreTradeConfig) GeneralDEXGrace() time.Duration {
	return time.Duration(c.GeneralDEXGraceSeconds) * time.Second
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
