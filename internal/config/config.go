package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

type Broker struct {
	BaseURL            string  `yaml:"base_url"`
	ClientIDEnv        string  `yaml:"client_id_env"`
	AccessTokenEnv     string  `yaml:"access_token_env"`
	TimeoutMs          int     `yaml:"timeout_ms"`
	MaxRetries         int     `yaml:"max_retries"`
	BackoffMs          int     `yaml:"backoff_ms"`
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`

	// Resolved from the environment by ResolveSecrets, never read from YAML.
	ClientID    string `yaml:"-"`
	AccessToken string `yaml:"-"`
}

type Risk struct {
	MaxTradesPerDay int                `yaml:"max_trades_per_day"`
	MaxDailyLoss    float64            `yaml:"max_daily_loss"`
	RiskPerTradePct float64            `yaml:"risk_per_trade_pct"`
	Capital         *float64           `yaml:"capital"`       // optional; notional check is skipped when nil
	SLPoints        map[string]float64 `yaml:"sl_points"`     // keyed by trade logic, e.g. "scalping"
	TargetPoints    map[string]float64 `yaml:"target_points"` // optional per logic
}

type Strategy struct {
	AllowedStrategies []string           `yaml:"allowed_strategies"`
	IndexStrikeSteps  map[string]float64 `yaml:"index_strike_steps"`
	SignalTTLSeconds  int                `yaml:"signal_ttl_seconds"`
	DefaultExchange   string             `yaml:"default_exchange"`
}

type Trading struct {
	Enabled       *bool  `yaml:"enabled"`        // applied to the control gate at startup
	ExecutionMode string `yaml:"execution_mode"` // paper | live
	ProductType   string `yaml:"product_type"`
}

type State struct {
	Dir             string `yaml:"dir"`
	RiskPath        string `yaml:"risk_path"`
	TradingPath     string `yaml:"trading_path"`
	PositionsPath   string `yaml:"positions_path"`
	InstrumentsPath string `yaml:"instruments_path"`
}

type Server struct {
	Addr              string `yaml:"addr"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
}

type Monitor struct {
	IntervalMs int `yaml:"interval_ms"`
}

type Journal struct {
	Path           string `yaml:"path"`
	PostgresDSNEnv string `yaml:"postgres_dsn_env"`
	AMQPURLEnv     string `yaml:"amqp_url_env"`
	AMQPQueue      string `yaml:"amqp_queue"`

	PostgresDSN string `yaml:"-"`
	AMQPURL     string `yaml:"-"`
}

type Alerts struct {
	SlackWebhookEnv string `yaml:"slack_webhook_env"`
	Channel         string `yaml:"channel"`

	SlackWebhookURL string `yaml:"-"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Root struct {
	Broker   Broker   `yaml:"broker"`
	Risk     Risk     `yaml:"risk"`
	Strategy Strategy `yaml:"strategy"`
	Trading  Trading  `yaml:"trading"`
	State    State    `yaml:"state"`
	Server   Server   `yaml:"server"`
	Monitor  Monitor  `yaml:"monitor"`
	Journal  Journal  `yaml:"journal"`
	Alerts   Alerts   `yaml:"alerts"`
	Logging  Logging  `yaml:"logging"`
}

// Load reads the YAML config at path and fills defaults.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.applyDefaults()
	return c, nil
}

// LoadEnv loads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ResolveSecrets copies secrets from the environment variables named in the
// config into their runtime fields.
func (c *Root) ResolveSecrets() {
	c.Broker.ClientID = os.Getenv(c.Broker.ClientIDEnv)
	c.Broker.AccessToken = os.Getenv(c.Broker.AccessTokenEnv)
	c.Journal.PostgresDSN = os.Getenv(c.Journal.PostgresDSNEnv)
	c.Journal.AMQPURL = os.Getenv(c.Journal.AMQPURLEnv)
	c.Alerts.SlackWebhookURL = os.Getenv(c.Alerts.SlackWebhookEnv)
}

// TradingEnabled reports the startup trading flag (default true).
func (c Root) TradingEnabled() bool {
	return c.Trading.Enabled == nil || *c.Trading.Enabled
}

// Validate rejects configurations the executor cannot run with.
func (c Root) Validate() error {
	var errs []error
	if c.Trading.ExecutionMode != ModePaper && c.Trading.ExecutionMode != ModeLive {
		errs = append(errs, fmt.Errorf("trading.execution_mode must be %q or %q, got %q", ModePaper, ModeLive, c.Trading.ExecutionMode))
	}
	if c.Strategy.SignalTTLSeconds <= 0 {
		errs = append(errs, errors.New("strategy.signal_ttl_seconds must be positive"))
	}
	if len(c.Strategy.IndexStrikeSteps) == 0 {
		errs = append(errs, errors.New("strategy.index_strike_steps is empty"))
	}
	for sym, step := range c.Strategy.IndexStrikeSteps {
		if step <= 0 {
			errs = append(errs, fmt.Errorf("strategy.index_strike_steps[%s] must be positive", sym))
		}
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		errs = append(errs, errors.New("risk.max_trades_per_day must be positive"))
	}
	if c.Risk.MaxDailyLoss <= 0 {
		errs = append(errs, errors.New("risk.max_daily_loss must be positive"))
	}
	if _, ok := c.Risk.SLPoints["scalping"]; !ok {
		errs = append(errs, errors.New("risk.sl_points.scalping is required"))
	}
	if c.Trading.ExecutionMode == ModeLive && c.Broker.BaseURL == "" {
		errs = append(errs, errors.New("broker.base_url is required in live mode"))
	}
	return errors.Join(errs...)
}

func (c *Root) applyDefaults() {
	// Broker defaults
	if c.Broker.ClientIDEnv == "" {
		c.Broker.ClientIDEnv = "BROKER_CLIENT_ID"
	}
	if c.Broker.AccessTokenEnv == "" {
		c.Broker.AccessTokenEnv = "BROKER_ACCESS_TOKEN"
	}
	if c.Broker.TimeoutMs == 0 {
		c.Broker.TimeoutMs = 30000
	}
	if c.Broker.MaxRetries == 0 {
		c.Broker.MaxRetries = 3
	}
	if c.Broker.BackoffMs == 0 {
		c.Broker.BackoffMs = 1000
	}
	if c.Broker.RateLimitPerSecond == 0 {
		c.Broker.RateLimitPerSecond = 10
	}

	if c.Strategy.SignalTTLSeconds == 0 {
		c.Strategy.SignalTTLSeconds = 30
	}
	if c.Strategy.DefaultExchange == "" {
		c.Strategy.DefaultExchange = "NFO"
	}

	if c.Trading.ExecutionMode == "" {
		c.Trading.ExecutionMode = ModePaper
	}
	if c.Trading.ProductType == "" {
		c.Trading.ProductType = "INTRADAY"
	}

	// State file defaults live under one directory
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.RiskPath == "" {
		c.State.RiskPath = filepath.Join(c.State.Dir, "risk.json")
	}
	if c.State.TradingPath == "" {
		c.State.TradingPath = filepath.Join(c.State.Dir, "trading.json")
	}
	if c.State.PositionsPath == "" {
		c.State.PositionsPath = filepath.Join(c.State.Dir, "positions.json")
	}
	if c.State.InstrumentsPath == "" {
		c.State.InstrumentsPath = filepath.Join(c.State.Dir, "instruments.json")
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.ShutdownTimeoutMs == 0 {
		c.Server.ShutdownTimeoutMs = 10000
	}
	if c.Monitor.IntervalMs == 0 {
		c.Monitor.IntervalMs = 1000
	}

	if c.Journal.Path == "" {
		c.Journal.Path = "data/orders.jsonl"
	}
	if c.Journal.PostgresDSNEnv == "" {
		c.Journal.PostgresDSNEnv = "DATABASE_URL"
	}
	if c.Journal.AMQPURLEnv == "" {
		c.Journal.AMQPURLEnv = "AMQP_URL"
	}
	if c.Journal.AMQPQueue == "" {
		c.Journal.AMQPQueue = "order_events"
	}
	if c.Alerts.SlackWebhookEnv == "" {
		c.Alerts.SlackWebhookEnv = "SLACK_WEBHOOK_URL"
	}
}
