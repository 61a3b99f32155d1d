package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggiesa/AutonoTrader/internal/market"
)

func sweepStrategy(buyAt float64) *scriptedStrategy {
	strat := &scriptedStrategy{
		pairs:     []market.Pair{adaBTC},
		data:      map[string][]market.Candle{"ADABTC": hourlyCandles("ADABTC", 10, 12, 15)},
		portfolio: basicPortfolio(),
	}
	strat.onStep = func(step Step) {
		cur, _ := step.Series.Current()
		if cur.Close == buyAt {
			_ = step.Buy()
		}
		if cur.Close == 15 && step.HasOpen {
			_ = step.SellAll()
		}
	}
	return strat
}

func TestSweepIndependentRuns(t *testing.T) {
	specs := []SweepSpec{
		{Name: "entry@10", Strategy: sweepStrategy(10)},
		{Name: "entry@12", Strategy: sweepStrategy(12)},
	}
	results := Sweep(context.Background(), specs, 2)
	require.Len(t, results, 2)

	byName := map[string]SweepResult{}
	for _, r := range results {
		require.NoError(t, r.Err)
		byName[r.Name] = r
	}
	// 100 @10 卖 @15 → +50；100 @12 卖 @15 → +25
	assert.InDelta(t, 50, byName["entry@10"].Summary.ValueChange["BTC"], 1e-9)
	assert.InDelta(t, 25, byName["entry@12"].Summary.ValueChange["BTC"], 1e-9)
}

func TestSweepReportsPerSpecError(t *testing.T) {
	broken := sweepStrategy(10)
	broken.data = map[string][]market.Candle{}

	results := Sweep(context.Background(), []SweepSpec{
		{Name: "ok", Strategy: sweepStrategy(10)},
		{Name: "broken", Strategy: broken},
	}, 0) // <=0 按串行处理
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.True(t, errors.Is(results[1].Err, ErrEmptyData))
}
