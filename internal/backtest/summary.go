package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Summary 是回放结束后对账本与序列的只读聚合。
type Summary struct {
	// 各货币的初始/最终组合价值；最终价值把剩余持仓按该 symbol
	// 最新收盘价折算进余额。
	InitialValue map[string]float64 `json:"initial_value"`
	FinalValue   map[string]float64 `json:"final_value"`
	ValueChange  map[string]float64 `json:"value_change"`
	// 初始价值为 0 的货币无法计算百分比，约定记 0（而不是除零）。
	ValueChangePct map[string]float64 `json:"value_change_pct"`

	TotalTrades   int     `json:"total_trades"`
	TradesPerWeek float64 `json:"trades_per_week"`

	// 各 symbol 100*(末收盘-首收盘)/末收盘 的均值。
	OverallMarketChange float64 `json:"overall_market_change"`

	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	// WinPercent 在没有任何可判定交易时无定义，由 HasWinPercent 区分。
	WinPercent    float64 `json:"win_percent"`
	HasWinPercent bool    `json:"has_win_percent"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Summary 计算当前账本与游标状态下的绩效汇总。
func (e *Engine) Summary() Summary {
	s := Summary{
		InitialValue:   e.ledger.InitialBalances(),
		FinalValue:     e.ledger.Balances(),
		ValueChange:    make(map[string]float64),
		ValueChangePct: make(map[string]float64),
	}

	// 按最新价把未平仓持仓折算回计价货币
	for _, pair := range e.pairs {
		series := e.series[pair.Symbol]
		last := series.Last().Close
		for _, pos := range e.ledger.OpenPositions(pair.Symbol) {
			s.FinalValue[pair.Quote] += pos.BaseAmount * last
		}
	}
	for currency, initial := range s.InitialValue {
		final := s.FinalValue[currency]
		s.ValueChange[currency] = final - initial
		if initial != 0 {
			s.ValueChangePct[currency] = 100 * (final - initial) / initial
		}
	}

	s.StartDate, s.EndDate = e.dateRange()
	s.TotalTrades = len(e.ledger.AllBuys())
	if weeks := s.EndDate.Sub(s.StartDate).Hours() / (24 * 7); weeks > 0 {
		s.TradesPerWeek = float64(s.TotalTrades) / weeks
	}

	s.OverallMarketChange = e.marketChange()
	s.MaxConsecutiveLosses = maxConsecutiveLosses(e.ledger.AllSells())
	s.WinPercent, s.HasWinPercent = e.winPercent()
	return s
}

func (e *Engine) dateRange() (time.Time, time.Time) {
	var start, end time.Time
	for _, pair := range e.pairs {
		series := e.series[pair.Symbol]
		first, last := series.First().OpenDate(), series.Last().OpenDate()
		if start.IsZero() || first.Before(start) {
			start = first
		}
		if end.IsZero() || last.After(end) {
			end = last
		}
	}
	return start, end
}

func (e *Engine) marketChange() float64 {
	if len(e.pairs) == 0 {
		return 0
	}
	sum := 0.0
	for _, pair := range e.pairs {
		series := e.series[pair.Symbol]
		first, last := series.First().Close, series.Last().Close
		if last != 0 {
			sum += 100 * (last - first) / last
		}
	}
	return sum / float64(len(e.pairs))
}

// winPercent 把未平仓持仓按当前标记价计胜负（标记价低于买入价为负），
// 已平仓交易按收益百分比计；没有任何样本时 ok=false。
func (e *Engine) winPercent() (float64, bool) {
	wins, losses := 0, 0
	for _, pair := range e.pairs {
		series := e.series[pair.Symbol]
		mark := series.Last().Close
		for _, pos := range e.ledger.OpenPositions(pair.Symbol) {
			if mark < pos.Price {
				losses++
			} else {
				wins++
			}
		}
	}
	for _, trade := range e.ledger.AllSells() {
		if trade.PercentProfit > 0 {
			wins++
		} else {
			losses++
		}
	}
	if wins+losses == 0 {
		return 0, false
	}
	return 100 * float64(wins) / float64(wins+losses), true
}

func maxConsecutiveLosses(sells []ResolvedTrade) int {
	max, run := 0, 0
	for _, trade := range sells {
		if trade.PercentProfit < 0 {
			run++
			if run > max {
				max = run
			}
		} else {
			run = 0
		}
	}
	return max
}

// Report 渲染可读的绩效报告文本。
func (s Summary) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Initial Portfolio Value:        %s\n", formatCurrencyMap(s.InitialValue))
	fmt.Fprintf(&b, "Final Portfolio Value:          %s\n", formatCurrencyMap(s.FinalValue))
	fmt.Fprintf(&b, "Portfolio Value Change:         %s\n", formatCurrencyMap(s.ValueChange))
	fmt.Fprintf(&b, "Portfolio Value Change Percent: %s\n", formatCurrencyMap(s.ValueChangePct))
	fmt.Fprintf(&b, "Total Trades:                   %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "Trades Per Week:                %s\n", roundStr(s.TradesPerWeek, 1))
	fmt.Fprintf(&b, "Overall Market Change:          %s%%\n", roundStr(s.OverallMarketChange, 4))
	fmt.Fprintf(&b, "Max Consecutive Losses:         %d\n", s.MaxConsecutiveLosses)
	if s.HasWinPercent {
		fmt.Fprintf(&b, "Win Percent:                    %s%%\n", roundStr(s.WinPercent, 2))
	} else {
		fmt.Fprintf(&b, "Win Percent:                    N/A\n")
	}
	return b.String()
}

func formatCurrencyMap(m map[string]float64) string {
	currencies := make([]string, 0, len(m))
	for c := range m {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	parts := make([]string, 0, len(currencies))
	for _, c := range currencies {
		parts = append(parts, fmt.Sprintf("%s=%s", c, roundStr(m[c], 3)))
	}
	return strings.Join(parts, " ")
}

func roundStr(v float64, places int32) string {
	return decimal.NewFromFloat(v).Round(places).String()
}
