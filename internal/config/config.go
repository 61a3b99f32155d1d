package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
	"github.com/ggiesa/AutonoTrader/internal/market"
)

// 默认值常量
const (
	defaultAppEnv        = "dev"
	defaultAppLogLevel   = "info"
	defaultAppLogPath    = "data/logs/autonotrader.log"
	defaultDataSource    = "cryptocompare"
	defaultDataTimeframe = "1h"
	defaultDataCache     = "data/db/candles"
	defaultStorePath     = "data/db/trades.db"
	defaultServerAddr    = ":8990"
	defaultReportDir     = "data/reports"
)

// Load 读取并校验 YAML 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.LogPath == "" {
		c.App.LogPath = defaultAppLogPath
	}
	if c.Data.Source == "" {
		c.Data.Source = defaultDataSource
	}
	if c.Data.Timeframe == "" {
		c.Data.Timeframe = defaultDataTimeframe
	}
	if c.Data.CachePath == "" {
		c.Data.CachePath = defaultDataCache
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = defaultReportDir
	}
}

// Backtest 转换为回放引擎的资金配置。
func (p PortfolioConfig) Backtest() backtest.PortfolioConfig {
	return backtest.PortfolioConfig{
		Purse:      p.Purse,
		Holdout:    p.Holdout,
		BuyAmount:  p.BuyAmount,
		Slippage:   p.Slippage,
		TradingFee: p.TradingFee,
	}
}

// validate 对配置进行基础校验。
func validate(c *Config) error {
	switch strings.ToLower(c.Data.Source) {
	case "binance", "cryptocompare":
	default:
		return fmt.Errorf("data.source must be binance or cryptocompare, got %q", c.Data.Source)
	}
	if _, err := backtest.ParseTimeframe(c.Data.Timeframe); err != nil {
		return fmt.Errorf("data.timeframe: %w", err)
	}
	if c.Data.Start == "" {
		return fmt.Errorf("data.start is required")
	}
	if _, _, err := c.Data.Range(); err != nil {
		return fmt.Errorf("data range: %w", err)
	}
	for _, f := range c.Data.Features {
		if f.Name == "" || f.Period <= 0 {
			return fmt.Errorf("data.features entries need name and positive period, got %+v", f)
		}
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols requires at least one pair")
	}
	for _, s := range c.Symbols {
		if !market.ParsePair(s).Valid() {
			return fmt.Errorf("symbols contains unparseable pair: %q", s)
		}
	}

	for _, pair := range c.Pairs() {
		if _, ok := c.Portfolio.Purse[pair.Quote]; !ok {
			return fmt.Errorf("portfolio.purse missing currency %s (needed by %s)", pair.Quote, pair.Symbol)
		}
		if _, ok := c.Portfolio.BuyAmount[pair.Quote]; !ok {
			return fmt.Errorf("portfolio.buy_amount missing currency %s (needed by %s)", pair.Quote, pair.Symbol)
		}
	}
	for cur, v := range c.Portfolio.Purse {
		if v <= 0 {
			return fmt.Errorf("portfolio.purse[%s] must be > 0, got %v", cur, v)
		}
	}
	for cur, v := range c.Portfolio.BuyAmount {
		if v <= 0 {
			return fmt.Errorf("portfolio.buy_amount[%s] must be > 0, got %v", cur, v)
		}
	}
	if c.Portfolio.Slippage < 0 {
		return fmt.Errorf("portfolio.slippage must be >= 0")
	}
	if c.Portfolio.TradingFee < 0 {
		return fmt.Errorf("portfolio.trading_fee must be >= 0")
	}
	return nil
}
