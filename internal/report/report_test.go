package report

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
	"github.com/ggiesa/AutonoTrader/internal/market"
)

type chartStrategy struct{}

func (chartStrategy) Data(ctx context.Context) (map[string][]market.Candle, error) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 6)
	for i := range candles {
		price := 10 + float64(i)
		candles[i] = market.Candle{
			Symbol:   "ADABTC",
			OpenTime: start.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Open:     price, High: price + 1, Low: price - 1, Close: price,
			Volume: 100,
		}
	}
	return map[string][]market.Candle{"ADABTC": candles}, nil
}

func (chartStrategy) Symbols() []market.Pair {
	return []market.Pair{{Symbol: "ADABTC", Base: "ADA", Quote: "BTC"}}
}

func (chartStrategy) Portfolio() backtest.PortfolioConfig {
	return backtest.PortfolioConfig{
		Purse:     map[string]float64{"BTC": 1000},
		BuyAmount: map[string]float64{"BTC": 100},
	}
}

func (chartStrategy) OnStep(step backtest.Step) {
	cur, _ := step.Series.Current()
	switch cur.Close {
	case 10:
		_ = step.Buy()
	case 13:
		_ = step.Sell()
	}
}

func TestBuildAndWriteHTML(t *testing.T) {
	e, err := backtest.NewEngine(context.Background(), chartStrategy{})
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	r, err := Build(e)
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := r.WriteHTML(dir)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(body)
	assert.Contains(t, html, "ADABTC")
	assert.Contains(t, html, "Cumulative Earned")
	assert.Contains(t, html, "1 buys / 1 sells")
}

func TestBuildRejectsNilEngine(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)
}
