// Package strategy 提供内置的参考策略。
package strategy

import (
	"context"
	"fmt"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
	"github.com/ggiesa/AutonoTrader/internal/market"
)

// DataFunc 加载各 symbol 的 K 线（已含指标列）。
type DataFunc func(ctx context.Context) (map[string][]market.Candle, error)

// SMAReversion 是最简单的均值回归策略：收盘价跌破均线买入，
// 站上均线且有持仓时卖出。指标列（如 sma_48）由数据管线预先算好。
type SMAReversion struct {
	pairs     []market.Pair
	portfolio backtest.PortfolioConfig
	column    string
	load      DataFunc
}

var _ backtest.Strategy = (*SMAReversion)(nil)

// NewSMAReversion 构造策略。column 是 K 线 Features 里的均线列名。
func NewSMAReversion(pairs []market.Pair, portfolio backtest.PortfolioConfig, column string, load DataFunc) (*SMAReversion, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("strategy: 交易对列表不能为空")
	}
	if column == "" {
		return nil, fmt.Errorf("strategy: 均线列名不能为空")
	}
	if load == nil {
		return nil, fmt.Errorf("strategy: 数据加载函数不能为空")
	}
	return &SMAReversion{pairs: pairs, portfolio: portfolio, column: column, load: load}, nil
}

func (s *SMAReversion) Data(ctx context.Context) (map[string][]market.Candle, error) {
	return s.load(ctx)
}

func (s *SMAReversion) Symbols() []market.Pair { return s.pairs }

func (s *SMAReversion) Portfolio() backtest.PortfolioConfig { return s.portfolio }

// OnStep 产生信号。均线暖机期（指标列缺失）不交易。
func (s *SMAReversion) OnStep(step backtest.Step) {
	current, ok := step.Series.Current()
	if !ok {
		return
	}
	sma, ok := current.Feature(s.column)
	if !ok {
		return
	}
	switch {
	case current.Close < sma:
		_ = step.Buy()
	case step.HasOpen:
		_ = step.Sell()
	}
}
