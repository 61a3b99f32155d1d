package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggiesa/AutonoTrader/internal/market"
)

func candlesFromCloses(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Symbol:   "ADABTC",
			OpenTime: int64(i) * 3600_000,
			Close:    c,
		}
	}
	return out
}

func TestEnrichSMA(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5)
	enriched, err := Enrich(candles, []FeatureSpec{{Name: "sma", Period: 3}})
	require.NoError(t, err)
	require.Len(t, enriched, 5)

	// 暖机期不写列
	_, ok := enriched[0].Feature("sma_3")
	assert.False(t, ok)
	_, ok = enriched[1].Feature("sma_3")
	assert.False(t, ok)

	v, ok := enriched[2].Feature("sma_3")
	require.True(t, ok)
	assert.InDelta(t, 2, v, 1e-9)
	v, _ = enriched[4].Feature("sma_3")
	assert.InDelta(t, 4, v, 1e-9)

	// 原切片不受影响
	_, ok = candles[4].Feature("sma_3")
	assert.False(t, ok)
}

func TestEnrichMultipleColumns(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5, 6)
	enriched, err := Enrich(candles, []FeatureSpec{
		{Name: "sma", Period: 2},
		{Name: "ema", Period: 3},
	})
	require.NoError(t, err)

	_, ok := enriched[5].Feature("sma_2")
	assert.True(t, ok)
	_, ok = enriched[5].Feature("ema_3")
	assert.True(t, ok)
}

func TestEnrichErrors(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3)

	_, err := Enrich(candles, []FeatureSpec{{Name: "sma", Period: 0}})
	assert.Error(t, err)

	_, err = Enrich(candles, []FeatureSpec{{Name: "sma", Period: 10}})
	assert.Error(t, err)

	_, err = Enrich(candles, []FeatureSpec{{Name: "vwap", Period: 2}})
	assert.Error(t, err)
}

func TestEnrichNoSpecsPassthrough(t *testing.T) {
	candles := candlesFromCloses(1, 2)
	enriched, err := Enrich(candles, nil)
	require.NoError(t, err)
	assert.Equal(t, candles, enriched)
}

func TestFeatureColumnName(t *testing.T) {
	assert.Equal(t, "sma_48", FeatureSpec{Name: "SMA", Period: 48}.Column())
}
