// Package config loads the engine configuration from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"pumpfun-engine/internal/ingestion"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/portfolio"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/trading"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Listener sources.
const (
	SourceNode  = "node"
	SourceRelay = "relay"
)

// Submitter kinds.
const (
	SubmitterInstruction = "instruction"
	SubmitterRelay       = "relay"
)

// Environment overrides.
const (
	EnvRPCEndpoints     = "PUMP_RPC_ENDPOINTS" // comma separated
	EnvWSEndpoint       = "PUMP_WS_ENDPOINT"
	EnvWalletPrivateKey = "PUMP_WALLET_PRIVATE_KEY"
	EnvPostgresDSN      = "PUMP_POSTGRES_DSN"
	EnvClickhouseDSN    = "PUMP_CLICKHOUSE_DSN"
	EnvKafkaBrokers     = "PUMP_KAFKA_BROKERS" // comma separated
	EnvMetricsAddr      = "PUMP_METRICS_ADDR"
)

// DefaultMetricsAddr serves /metrics and /health.
const DefaultMetricsAddr = ":9090"

// Config is the full engine configuration.
type Config struct {
	Logging  logging.Config `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	RPC      rpcpool.Config `yaml:"rpc"`
	Listener ListenerConfig `yaml:"listener"`
	Trading  TradingConfig  `yaml:"trading"`
	Sinks    SinksConfig    `yaml:"sinks"`
}

// MetricsConfig configures the metrics server.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ListenerConfig selects where events come from.
type ListenerConfig struct {
	Source     string             `yaml:"source"` // node or relay
	WSEndpoint string             `yaml:"ws_endpoint"`
	NodeMode   ingestion.NodeMode `yaml:"node_mode"`
	RelayURL   string             `yaml:"relay_url"`
	// TokenTrades and AccountTrades are relay trade subscriptions opened at start.
	TokenTrades   []string `yaml:"token_trades"`
	AccountTrades []string `yaml:"account_trades"`
	BusBuffer     int      `yaml:"bus_buffer"`
}

// TradingConfig configures the executor and its submitter. Trading is off
// unless Enabled is set.
type TradingConfig struct {
	Enabled          bool             `yaml:"enabled"`
	WalletPrivateKey string           `yaml:"wallet_private_key"`
	Submitter        string           `yaml:"submitter"` // instruction or relay
	Executor         trading.Config   `yaml:"executor"`
	Limits           portfolio.Limits `yaml:"limits"`

	// AutoBuy is a SOL amount bought on every new mint; empty disables it.
	AutoBuy string `yaml:"auto_buy"`

	Simulate         bool   `yaml:"simulate"`
	ComputeUnitLimit uint32 `yaml:"compute_unit_limit"`
	ComputeUnitPrice uint64 `yaml:"compute_unit_price"`

	TradeLocalURL  string `yaml:"trade_local_url"`
	PriorityFeeSol string `yaml:"priority_fee_sol"`
}

// AutoBuyAmount returns the parsed auto-buy amount, zero when disabled.
func (t TradingConfig) AutoBuyAmount() (decimal.Decimal, error) {
	return parseSol(t.AutoBuy)
}

// PriorityFee returns the parsed relay priority fee.
func (t TradingConfig) PriorityFee() (decimal.Decimal, error) {
	return parseSol(t.PriorityFeeSol)
}

func parseSol(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

// SinksConfig lists where decoded events are written. Empty entries are
// disabled.
type SinksConfig struct {
	Memory        bool        `yaml:"memory"`
	PostgresDSN   string      `yaml:"postgres_dsn"`
	ClickhouseDSN string      `yaml:"clickhouse_dsn"`
	Kafka         KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	MintTopic  string   `yaml:"mint_topic"`
	TradeTopic string   `yaml:"trade_topic"`
}

// Load reads path (optional), loads envFiles (".env" when none are given)
// without overriding the existing environment, applies environment
// overrides and defaults, and validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRPC builds only the pool settings, for tools that need nothing else.
// Endpoints come from override when set, else from PUMP_RPC_ENDPOINTS
// after loading envFile.
func LoadRPC(override, envFile string) (rpcpool.Config, error) {
	var cfg rpcpool.Config
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	list := override
	if list == "" {
		list = os.Getenv(EnvRPCEndpoints)
	}
	cfg.Endpoints = splitList(list)

	c := Config{RPC: cfg, Listener: ListenerConfig{Source: SourceRelay}}
	if err := c.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRPCEndpoints); v != "" {
		c.RPC.Endpoints = splitList(v)
	}
	if v := os.Getenv(EnvWSEndpoint); v != "" {
		c.Listener.WSEndpoint = v
	}
	if v := os.Getenv(EnvWalletPrivateKey); v != "" {
		c.Trading.WalletPrivateKey = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Sinks.PostgresDSN = v
	}
	if v := os.Getenv(EnvClickhouseDSN); v != "" {
		c.Sinks.ClickhouseDSN = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		c.Sinks.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}
}

func (c *Config) applyDefaults() {
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Listener.Source == "" {
		c.Listener.Source = SourceNode
	}
	if c.Listener.NodeMode == "" {
		c.Listener.NodeMode = ingestion.NodeModeLogs
	}
	if c.Listener.RelayURL == "" {
		c.Listener.RelayURL = ingestion.DefaultRelayURL
	}
	if c.Trading.Submitter == "" {
		c.Trading.Submitter = SubmitterInstruction
	}
	if c.Trading.TradeLocalURL == "" {
		c.Trading.TradeLocalURL = trading.DefaultTradeLocalURL
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.RPC.Endpoints) == 0 {
		return fmt.Errorf("%w: at least one rpc endpoint is required", ErrInvalidConfig)
	}
	for _, ep := range c.RPC.Endpoints {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			return fmt.Errorf("%w: rpc endpoint %q must be http(s)", ErrInvalidConfig, ep)
		}
	}

	switch c.Listener.Source {
	case SourceNode:
		if c.Listener.WSEndpoint == "" {
			return fmt.Errorf("%w: node listener needs ws_endpoint", ErrInvalidConfig)
		}
		if c.Listener.NodeMode != ingestion.NodeModeLogs && c.Listener.NodeMode != ingestion.NodeModeBlocks {
			return fmt.Errorf("%w: unknown node_mode %q", ErrInvalidConfig, c.Listener.NodeMode)
		}
	case SourceRelay:
	default:
		return fmt.Errorf("%w: unknown listener source %q", ErrInvalidConfig, c.Listener.Source)
	}

	t := c.Trading
	if t.Executor.SlippageBps > 10000 {
		return fmt.Errorf("%w: slippage_bps %d exceeds 10000", ErrInvalidConfig, t.Executor.SlippageBps)
	}
	autoBuy, err := t.AutoBuyAmount()
	if err != nil || autoBuy.IsNegative() {
		return fmt.Errorf("%w: auto_buy %q is not a SOL amount", ErrInvalidConfig, t.AutoBuy)
	}
	if fee, err := t.PriorityFee(); err != nil || fee.IsNegative() {
		return fmt.Errorf("%w: priority_fee_sol %q is not a SOL amount", ErrInvalidConfig, t.PriorityFeeSol)
	}
	if !t.Enabled {
		if autoBuy.IsPositive() {
			return fmt.Errorf("%w: auto_buy needs trading.enabled", ErrInvalidConfig)
		}
		return nil
	}
	if t.WalletPrivateKey == "" {
		return fmt.Errorf("%w: trading needs a wallet private key (%s)", ErrInvalidConfig, EnvWalletPrivateKey)
	}
	if t.Submitter != SubmitterInstruction && t.Submitter != SubmitterRelay {
		return fmt.Errorf("%w: unknown submitter %q", ErrInvalidConfig, t.Submitter)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
