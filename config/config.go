package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/news"
)

// Config represents the complete simulator configuration
type Config struct {
	Account     AccountConfig      `json:"account" yaml:"account"`
	Simulation  SimulationConfig   `json:"simulation" yaml:"simulation"`
	News        NewsConfig         `json:"news" yaml:"news"`
	Instruments []InstrumentConfig `json:"instruments,omitempty" yaml:"instruments,omitempty"`
	Store       StoreConfig        `json:"store" yaml:"store"`
	Log         LogConfig          `json:"log" yaml:"log"`
}

// AccountConfig contains portfolio initialization parameters
type AccountConfig struct {
	Key      string  `json:"key" yaml:"key"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// SimulationConfig contains tick loop parameters
type SimulationConfig struct {
	TickInterval     string `json:"tick_interval" yaml:"tick_interval"` // e.g. "5s"
	Seed             uint64 `json:"seed,omitempty" yaml:"seed,omitempty"` // 0 seeds from the clock
	HistoryCap       int    `json:"history_cap" yaml:"history_cap"`
	MaxOrderQuantity int64  `json:"max_order_quantity" yaml:"max_order_quantity"`
}

// NewsConfig contains sentiment engine parameters
type NewsConfig struct {
	Interval      string  `json:"interval" yaml:"interval"`
	CompanyWeight float64 `json:"company_weight" yaml:"company_weight"`
	SectorWeight  float64 `json:"sector_weight" yaml:"sector_weight"`
	MarketDamping float64 `json:"market_damping" yaml:"market_damping"`
	Decay         float64 `json:"decay" yaml:"decay"`
	Generator     string  `json:"generator" yaml:"generator"` // "template" or "gemini"
	Model         string  `json:"model,omitempty" yaml:"model,omitempty"`
	APIKeyEnv     string  `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Timeout       string  `json:"timeout" yaml:"timeout"`
	CacheTTL      string  `json:"cache_ttl" yaml:"cache_ttl"`
}

// InstrumentConfig describes one tradable stock
type InstrumentConfig struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Company    string  `json:"company" yaml:"company"`
	Sector     string  `json:"sector" yaml:"sector"`
	Price      float64 `json:"price" yaml:"price"`
	Volatility float64 `json:"volatility" yaml:"volatility"`
}

// StoreConfig contains persistence parameters
type StoreConfig struct {
	Type string `json:"type" yaml:"type"` // "sqlite" or "memory"
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LogConfig contains logger parameters
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// LoadFromFile loads configuration from a file, trying YAML first and JSON
// second. Fields absent from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration as YAML for .yaml/.yml paths and JSON
// otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Key == "" {
		return fmt.Errorf("account.key is required")
	}
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}

	if _, err := c.Simulation.Interval(); err != nil {
		return err
	}
	if c.Simulation.HistoryCap < 0 {
		return fmt.Errorf("simulation.history_cap must not be negative")
	}
	if c.Simulation.MaxOrderQuantity <= 0 {
		return fmt.Errorf("simulation.max_order_quantity must be positive")
	}

	if _, err := c.News.EngineConfig(); err != nil {
		return err
	}
	if c.News.CompanyWeight < 0 || c.News.SectorWeight < 0 || c.News.CompanyWeight+c.News.SectorWeight > 1 {
		return fmt.Errorf("news weights must be non-negative and sum to at most 1")
	}
	if c.News.MarketDamping < 0 || c.News.MarketDamping > 1 {
		return fmt.Errorf("news.market_damping must be between 0 and 1")
	}
	if c.News.Decay < 0 || c.News.Decay > 1 {
		return fmt.Errorf("news.decay must be between 0 and 1")
	}
	switch c.News.Generator {
	case "template":
	case "gemini":
		if c.News.APIKeyEnv == "" {
			return fmt.Errorf("news.api_key_env is required for the gemini generator")
		}
	default:
		return fmt.Errorf("news.generator must be 'template' or 'gemini'")
	}

	seen := make(map[string]bool)
	for i, inst := range c.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("instruments[%d].symbol is required", i)
		}
		if seen[inst.Symbol] {
			return fmt.Errorf("duplicate instrument: %s", inst.Symbol)
		}
		seen[inst.Symbol] = true
		if inst.Sector == "" {
			return fmt.Errorf("instrument %s: sector is required", inst.Symbol)
		}
		if inst.Price < market.PriceFloor {
			return fmt.Errorf("instrument %s: price must be at least %.2f", inst.Symbol, market.PriceFloor)
		}
		if inst.Volatility < 0 {
			return fmt.Errorf("instrument %s: volatility must not be negative", inst.Symbol)
		}
	}

	if c.Store.Type != "sqlite" && c.Store.Type != "memory" {
		return fmt.Errorf("store.type must be 'sqlite' or 'memory'")
	}
	if c.Store.Type == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path required for SQLite type")
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// Interval parses the tick interval.
func (s SimulationConfig) Interval() (time.Duration, error) {
	d, err := parseDuration("simulation.tick_interval", s.TickInterval)
	if err == nil && d <= 0 {
		return 0, fmt.Errorf("simulation.tick_interval must be positive")
	}
	return d, err
}

// EngineConfig converts the section into sentiment engine settings.
func (n NewsConfig) EngineConfig() (news.Config, error) {
	cfg := news.Config{
		CompanyWeight: n.CompanyWeight,
		SectorWeight:  n.SectorWeight,
		MarketDamping: n.MarketDamping,
		Decay:         n.Decay,
	}
	var err error
	if cfg.Interval, err = parseDuration("news.interval", n.Interval); err != nil {
		return news.Config{}, err
	}
	if cfg.Timeout, err = parseDuration("news.timeout", n.Timeout); err != nil {
		return news.Config{}, err
	}
	if cfg.CacheTTL, err = parseDuration("news.cache_ttl", n.CacheTTL); err != nil {
		return news.Config{}, err
	}
	return cfg, nil
}

// MarketInstruments returns the configured instruments, or the built-in
// table when none are configured.
func (c *Config) MarketInstruments() []market.Instrument {
	if len(c.Instruments) == 0 {
		return append([]market.Instrument(nil), market.DefaultInstruments...)
	}
	out := make([]market.Instrument, 0, len(c.Instruments))
	for _, ic := range c.Instruments {
		out = append(out, market.Instrument{
			Symbol:     ic.Symbol,
			Company:    ic.Company,
			Sector:     ic.Sector,
			Price:      ic.Price,
			Volatility: ic.Volatility,
		})
	}
	return out
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Key:      "default",
			Currency: "USD",
			Balance:  10000,
		},
		Simulation: SimulationConfig{
			TickInterval:     "5s",
			HistoryCap:       market.HistoryCap,
			MaxOrderQuantity: 100,
		},
		News: NewsConfig{
			Interval:      "10s",
			CompanyWeight: 0.5,
			SectorWeight:  0.25,
			MarketDamping: 0.7,
			Decay:         0.02,
			Generator:     "template",
			Model:         news.DefaultGeminiModel,
			APIKeyEnv:     "GEMINI_API_KEY",
			Timeout:       "3s",
			CacheTTL:      "1m",
		},
		Store: StoreConfig{
			Type: "sqlite",
			Path: "./papertrade.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
