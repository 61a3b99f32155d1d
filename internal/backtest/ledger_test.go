package backtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggiesa/AutonoTrader/internal/market"
)

var adaBTC = market.Pair{Symbol: "ADABTC", Base: "ADA", Quote: "BTC"}

func newTestLedger(t *testing.T, cfg PortfolioConfig, recorder TradeRecorder) *Ledger {
	t.Helper()
	l, err := NewLedger([]market.Pair{adaBTC}, cfg, recorder)
	require.NoError(t, err)
	return l
}

func basicPortfolio() PortfolioConfig {
	return PortfolioConfig{
		Purse:     map[string]float64{"BTC": 1000},
		BuyAmount: map[string]float64{"BTC": 100},
	}
}

func TestLedgerSimpleProfit(t *testing.T) {
	l := newTestLedger(t, basicPortfolio(), nil)
	date := testStart

	require.NoError(t, l.Buy("ADABTC", 10, 100, date))
	positions := l.OpenPositions("ADABTC")
	require.Len(t, positions, 1)
	assert.InDelta(t, 10, positions[0].BaseAmount, 1e-9)
	assert.InDelta(t, 900, l.Balance("BTC"), 1e-9)
	assert.True(t, l.HasOpen("ADABTC"))

	require.NoError(t, l.Sell("ADABTC", 12, 100, date.Add(time.Hour)))
	sells := l.AllSells()
	require.Len(t, sells, 1)
	assert.InDelta(t, 20, sells[0].Profit, 1e-9)
	assert.InDelta(t, 20.0, sells[0].PercentProfit, 1e-9)
	assert.InDelta(t, 1020, l.Balance("BTC"), 1e-9)
	assert.InDelta(t, 20, l.Earned()["BTC"], 1e-9)
	assert.Empty(t, l.OpenPositions("ADABTC"))
	assert.False(t, l.HasOpen("ADABTC"))
}

func TestLedgerFeeAdjustedLoss(t *testing.T) {
	cfg := basicPortfolio()
	cfg.TradingFee = 0.01
	l := newTestLedger(t, cfg, nil)

	require.NoError(t, l.Buy("ADABTC", 10, 100, testStart))
	require.NoError(t, l.Sell("ADABTC", 10, 100, testStart.Add(time.Hour)))

	sells := l.AllSells()
	require.Len(t, sells, 1)
	assert.InDelta(t, -1, sells[0].Profit, 1e-9)
	assert.InDelta(t, -1.0, sells[0].PercentProfit, 1e-9)
}

func TestLedgerLowestPriceResolution(t *testing.T) {
	l := newTestLedger(t, basicPortfolio(), nil)

	require.NoError(t, l.Buy("ADABTC", 100, 100, testStart))
	require.NoError(t, l.Buy("ADABTC", 90, 100, testStart.Add(time.Hour)))
	require.NoError(t, l.Buy("ADABTC", 95, 100, testStart.Add(2*time.Hour)))

	require.NoError(t, l.Sell("ADABTC", 100, 100, testStart.Add(3*time.Hour)))

	// 买价 90 的那笔先被抵销
	remaining := l.OpenPositions("ADABTC")
	require.Len(t, remaining, 2)
	prices := []float64{remaining[0].Price, remaining[1].Price}
	assert.ElementsMatch(t, []float64{100, 95}, prices)
	assert.Equal(t, 2, l.OpenCount("ADABTC"))
}

func TestLedgerLowestPriceTieBreak(t *testing.T) {
	l := newTestLedger(t, basicPortfolio(), nil)

	require.NoError(t, l.Buy("ADABTC", 90, 100, testStart))
	first := l.OpenPositions("ADABTC")[0].ID
	require.NoError(t, l.Buy("ADABTC", 90, 100, testStart.Add(time.Hour)))

	require.NoError(t, l.Sell("ADABTC", 95, 100, testStart.Add(2*time.Hour)))

	sells := l.AllSells()
	require.Len(t, sells, 1)
	// 价格完全相同取先遇到的那笔
	assert.Equal(t, []string{first}, sells[0].ResolvedIDs)
}

func TestLedgerSellAllCompleteness(t *testing.T) {
	l := newTestLedger(t, basicPortfolio(), nil)

	var ids []string
	for i, price := range []float64{10, 12, 11} {
		require.NoError(t, l.Buy("ADABTC", price, 100, testStart.Add(time.Duration(i)*time.Hour)))
	}
	for _, pos := range l.OpenPositions("ADABTC") {
		ids = append(ids, pos.ID)
	}

	require.NoError(t, l.SellAll("ADABTC", 11, 100, testStart.Add(3*time.Hour)))

	assert.Empty(t, l.OpenPositions("ADABTC"))
	assert.False(t, l.HasOpen("ADABTC"))
	assert.Equal(t, 0, l.OpenCount("ADABTC"))

	sells := l.AllSells()
	require.Len(t, sells, 1)
	assert.ElementsMatch(t, ids, sells[0].ResolvedIDs)
}

func TestLedgerSellAllAveragesPercentProfit(t *testing.T) {
	l := newTestLedger(t, basicPortfolio(), nil)

	// 100 quote @10 → base 10；100 quote @20 → base 5
	require.NoError(t, l.Buy("ADABTC", 10, 100, testStart))
	require.NoError(t, l.Buy("ADABTC", 20, 100, testStart.Add(time.Hour)))

	require.NoError(t, l.SellAll("ADABTC", 20, 100, testStart.Add(2*time.Hour)))

	sells := l.AllSells()
	require.Len(t, sells, 1)
	// 第一笔 +100%，第二笔 0% → 平均 50%
	assert.InDelta(t, 50, sells[0].PercentProfit, 1e-9)
	assert.InDelta(t, 100, sells[0].Profit, 1e-9)
	assert.InDelta(t, 15, sells[0].BaseAmount, 1e-9)
}

func TestLedgerHoldoutEnforcement(t *testing.T) {
	cfg := PortfolioConfig{
		Purse:     map[string]float64{"BTC": 150},
		Holdout:   map[string]float64{"BTC": 100},
		BuyAmount: map[string]float64{"BTC": 100},
	}
	l := newTestLedger(t, cfg, nil)

	require.NoError(t, l.Buy("ADABTC", 10, 100, testStart))
	assert.Equal(t, 1, l.OpenCount("ADABTC"))
	assert.InDelta(t, 50, l.Balance("BTC"), 1e-9)

	// 余额 50 不高于 holdout 100：静默不买
	require.NoError(t, l.Buy("ADABTC", 10, 100, testStart.Add(time.Hour)))
	assert.Equal(t, 1, l.OpenCount("ADABTC"))
	assert.InDelta(t, 50, l.Balance("BTC"), 1e-9)
}

func TestLedgerNoOpenPositionIsNoop(t *testing.T) {
	l := newTestLedger(t, basicPortfolio(), nil)

	require.NoError(t, l.Sell("ADABTC", 10, 100, testStart))
	require.NoError(t, l.SellAll("ADABTC", 10, 100, testStart))
	assert.Empty(t, l.AllSells())
	assert.InDelta(t, 1000, l.Balance("BTC"), 1e-9)
}

func TestLedgerAccountingClosure(t *testing.T) {
	l := newTestLedger(t, basicPortfolio(), nil)

	date := testStart
	prices := []float64{10, 11, 9, 12, 8, 14, 13}
	for i, p := range prices {
		require.NoError(t, l.Buy("ADABTC", p, 100, date.Add(time.Duration(i)*time.Hour)))
		if i%3 == 2 {
			require.NoError(t, l.Sell("ADABTC", p+1, 100, date.Add(time.Duration(i)*time.Hour)))
		}
	}
	require.NoError(t, l.SellAll("ADABTC", 12, 100, date.Add(24*time.Hour)))
	require.NoError(t, l.Buy("ADABTC", 15, 100, date.Add(25*time.Hour)))

	var bought, resolved, open float64
	for _, b := range l.AllBuys() {
		bought += b.BaseAmount
	}
	for _, s := range l.AllSells() {
		resolved += s.BaseAmount
	}
	for _, p := range l.OpenPositions("ADABTC") {
		open += p.BaseAmount
	}
	assert.InDelta(t, bought, resolved+open, 1e-9)
	assert.InDelta(t, open, l.TotalInvested("ADABTC"), 1e-9)

	// 任何持仓 id 不会被抵销两次
	seen := map[string]int{}
	for _, s := range l.AllSells() {
		for _, id := range s.ResolvedIDs {
			seen[id]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "position %s resolved %d times", id, n)
	}
}

func TestLedgerLastBuy(t *testing.T) {
	l := newTestLedger(t, basicPortfolio(), nil)
	assert.Nil(t, l.LastBuyInfo("ADABTC"))

	require.NoError(t, l.Buy("ADABTC", 10, 100, testStart))
	require.NoError(t, l.Buy("ADABTC", 12, 100, testStart.Add(time.Hour)))

	lb := l.LastBuyInfo("ADABTC")
	require.NotNil(t, lb)
	assert.Equal(t, 12.0, lb.Price)
	assert.Equal(t, testStart.Add(time.Hour), lb.Date)
}

func TestLedgerMissingPortfolioKeys(t *testing.T) {
	_, err := NewLedger([]market.Pair{adaBTC}, PortfolioConfig{
		BuyAmount: map[string]float64{"BTC": 100},
	}, nil)
	assert.Error(t, err)

	_, err = NewLedger([]market.Pair{adaBTC}, PortfolioConfig{
		Purse: map[string]float64{"BTC": 100},
	}, nil)
	assert.Error(t, err)
}

// captureRecorder 记录事件顺序，可选在某个事件上注入失败。
type captureRecorder struct {
	events  []string
	failOn  string
	failErr error
}

func (r *captureRecorder) record(event string) error {
	if r.failOn != "" && r.failOn == eventKind(event) {
		return r.failErr
	}
	r.events = append(r.events, event)
	return nil
}

func eventKind(event string) string {
	for i, ch := range event {
		if ch == ':' {
			return event[:i]
		}
	}
	return event
}

func (r *captureRecorder) RecordBuy(t BuyRecord) error        { return r.record("buy:" + t.ID) }
func (r *captureRecorder) RecordSell(t ResolvedTrade) error   { return r.record("sell:" + t.ID) }
func (r *captureRecorder) RecordPending(p OpenPosition) error { return r.record("pending:" + p.ID) }
func (r *captureRecorder) RemovePending(id string) error      { return r.record("remove:" + id) }

func TestLedgerRecorderEventOrder(t *testing.T) {
	rec := &captureRecorder{}
	l := newTestLedger(t, basicPortfolio(), rec)

	require.NoError(t, l.Buy("ADABTC", 10, 100, testStart))
	id := l.OpenPositions("ADABTC")[0].ID
	require.NoError(t, l.Sell("ADABTC", 12, 100, testStart.Add(time.Hour)))

	require.Len(t, rec.events, 4)
	assert.Equal(t, "pending:"+id, rec.events[0])
	assert.Equal(t, "buy:"+id, rec.events[1])
	assert.Equal(t, "remove:"+id, rec.events[2])
	assert.Equal(t, "sell", eventKind(rec.events[3]))
}

func TestLedgerRecorderFailurePropagates(t *testing.T) {
	rec := &captureRecorder{failOn: "sell", failErr: fmt.Errorf("disk full")}
	l := newTestLedger(t, basicPortfolio(), rec)

	require.NoError(t, l.Buy("ADABTC", 10, 100, testStart))
	err := l.Sell("ADABTC", 12, 100, testStart.Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
