package config

import (
	"time"

	"github.com/ggiesa/AutonoTrader/internal/market"
)

// Config 是 AutonoTrader 的主配置载体。
type Config struct {
	App       AppConfig       `yaml:"app"`
	Data      DataConfig      `yaml:"data"`
	Symbols   []string        `yaml:"symbols"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Report    ReportConfig    `yaml:"report"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
}

// DataConfig 描述 K 线来源与回放区间。
type DataConfig struct {
	Source    string          `yaml:"source"`     // "binance" | "cryptocompare"
	Timeframe string          `yaml:"timeframe"`  // 1m/5m/15m/30m/1h/4h/1d
	Start     string          `yaml:"start"`      // RFC3339 或 2006-01-02
	End       string          `yaml:"end"`        // 缺省为当前时间
	CachePath string          `yaml:"cache_path"` // K 线落盘缓存目录（每 symbol@timeframe 一个 sqlite 文件）
	Features  []FeatureConfig `yaml:"features"`
}

// FeatureConfig 描述一条需要预计算的指标列，如 {name: sma, period: 48}。
type FeatureConfig struct {
	Name   string `yaml:"name"`
	Period int    `yaml:"period"`
}

// PortfolioConfig 描述初始资金与交易参数，键是计价货币。
type PortfolioConfig struct {
	Purse      map[string]float64 `yaml:"purse"`
	Holdout    map[string]float64 `yaml:"holdout"`
	BuyAmount  map[string]float64 `yaml:"buy_amount"`
	Slippage   float64            `yaml:"slippage"`
	TradingFee float64            `yaml:"trading_fee"`
}

// StoreConfig 描述模拟交易的持久化位置。
type StoreConfig struct {
	Path     string `yaml:"path"`     // 交易流水 sqlite 路径；空则不落盘
	Truncate bool   `yaml:"truncate"` // 运行前清空上次的流水
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ReportConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

// Pairs 将配置中的 symbol 字符串解析为交易对。
func (c *Config) Pairs() []market.Pair {
	out := make([]market.Pair, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		out = append(out, market.ParsePair(s))
	}
	return out
}

// Range 解析回放区间。End 为空时取当前时间。
func (d DataConfig) Range() (time.Time, time.Time, error) {
	start, err := parseDate(d.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := time.Now().UTC()
	if d.End != "" {
		end, err = parseDate(d.End)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}
