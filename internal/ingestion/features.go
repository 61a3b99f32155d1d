// Package ingestion 在 K 线进入回放前预计算指标列。
package ingestion

import (
	"fmt"
	"strings"

	"github.com/markcheno/go-talib"

	"github.com/ggiesa/AutonoTrader/internal/market"
)

// FeatureSpec 描述一条指标列，如 {Name: "sma", Period: 48}。
type FeatureSpec struct {
	Name   string
	Period int
}

// Column 返回该指标在 Candle.Features 里的列名，如 sma_48。
func (f FeatureSpec) Column() string {
	return fmt.Sprintf("%s_%d", strings.ToLower(f.Name), f.Period)
}

// Enrich 按 specs 逐列计算指标并写入副本。指标基于收盘价；
// 暖机期（前 Period-1 根）不写该列，策略通过 Feature 的 ok 值区分。
func Enrich(candles []market.Candle, specs []FeatureSpec) ([]market.Candle, error) {
	if len(specs) == 0 {
		return candles, nil
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	out := make([]market.Candle, len(candles))
	copy(out, candles)
	for _, spec := range specs {
		if spec.Period <= 0 {
			return nil, fmt.Errorf("ingestion: 指标 %q 的周期必须为正: %d", spec.Name, spec.Period)
		}
		if spec.Period > len(candles) {
			return nil, fmt.Errorf("ingestion: 指标 %s 需要至少 %d 根 K 线，只有 %d 根",
				spec.Column(), spec.Period, len(candles))
		}
		values, warmup, err := compute(spec, closes)
		if err != nil {
			return nil, err
		}
		column := spec.Column()
		for i := warmup; i < len(out); i++ {
			out[i] = out[i].WithFeature(column, values[i])
		}
	}
	return out, nil
}

func compute(spec FeatureSpec, closes []float64) ([]float64, int, error) {
	switch strings.ToLower(spec.Name) {
	case "sma":
		return talib.Sma(closes, spec.Period), spec.Period - 1, nil
	case "ema":
		return talib.Ema(closes, spec.Period), spec.Period - 1, nil
	case "rsi":
		// RSI 需要一根额外的差分
		return talib.Rsi(closes, spec.Period), spec.Period, nil
	default:
		return nil, 0, fmt.Errorf("ingestion: 不支持的指标 %q", spec.Name)
	}
}
