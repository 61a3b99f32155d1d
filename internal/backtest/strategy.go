package backtest

import (
	"context"
	"math"
	"time"

	"github.com/ggiesa/AutonoTrader/internal/market"
)

// Strategy 提供一次回放所需的全部输入：数据、交易对、资金配置，
// 以及每根 K 线触发一次的信号回调。
type Strategy interface {
	// Data 返回每个 symbol 的 K 线序列（升序、无缺口、已含指标列）。
	Data(ctx context.Context) (map[string][]market.Candle, error)
	// Symbols 返回参与回放的交易对；回放按此顺序轮询，不会重排。
	Symbols() []market.Pair
	// Portfolio 返回初始资金与交易参数。
	Portfolio() PortfolioConfig
	// OnStep 在每个 symbol 的每根 K 线上被调用一次，可通过 step 下单。
	OnStep(step Step)
}

// Step 是单次回调的不可变上下文快照。Buy/Sell/SellAll 以当前收盘价和
// 配置的默认金额下单，滑点（若启用）在进入持仓簿之前生效。
type Step struct {
	Symbol    string
	Quote     string
	Date      time.Time
	Series    *Series
	HasOpen   bool
	OpenCount int
	LastBuy   *LastBuy

	engine *Engine
}

// Buy 以当前收盘价加滑点买入默认金额。
func (s Step) Buy() error {
	price, ok := s.execPrice(+1)
	if !ok {
		return nil
	}
	amount := s.engine.cfg.BuyAmount[s.Quote]
	err := s.engine.ledger.Buy(s.Symbol, price, amount, s.Date)
	s.engine.recordErr(err)
	return err
}

// Sell 以当前收盘价减滑点卖出，抵销买入价最低的一笔持仓。
func (s Step) Sell() error {
	price, ok := s.execPrice(-1)
	if !ok {
		return nil
	}
	amount := s.engine.cfg.BuyAmount[s.Quote]
	err := s.engine.ledger.Sell(s.Symbol, price, amount, s.Date)
	s.engine.recordErr(err)
	return err
}

// SellAll 以当前收盘价减滑点清空该 symbol 的全部持仓。
func (s Step) SellAll() error {
	price, ok := s.execPrice(-1)
	if !ok {
		return nil
	}
	amount := s.engine.cfg.BuyAmount[s.Quote]
	err := s.engine.ledger.SellAll(s.Symbol, price, amount, s.Date)
	s.engine.recordErr(err)
	return err
}

// execPrice 计算含滑点的成交价。滑点取回看窗口最近一根 K 线的
// |high-close| 乘以配置系数，买入上浮、卖出下压。
func (s Step) execPrice(direction float64) (float64, bool) {
	current, ok := s.Series.Current()
	if !ok {
		return 0, false
	}
	price := current.Close
	if s.engine.cfg.Slippage > 0 {
		ref, ok := s.Series.At(-1)
		if !ok {
			ref = current
		}
		slip := math.Abs((ref.High - ref.Close) * s.engine.cfg.Slippage)
		price += direction * slip
	}
	return price, true
}
