package market

import "time"

// Candle 表示一根固定周期的 OHLC K 线，Features 中可携带任意预计算指标列。
type Candle struct {
	Symbol   string             `json:"symbol"`
	OpenTime int64              `json:"open_time"` // Unix ms，UTC
	Open     float64            `json:"open"`
	High     float64            `json:"high"`
	Low      float64            `json:"low"`
	Close    float64            `json:"close"`
	Volume   float64            `json:"volume"`
	Features map[string]float64 `json:"features,omitempty"`
}

// OpenDate 返回开盘时间（UTC）。
func (c Candle) OpenDate() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// Feature 读取指标列；不存在时返回 ok=false，引擎本身不解释指标含义。
func (c Candle) Feature(name string) (float64, bool) {
	if c.Features == nil {
		return 0, false
	}
	v, ok := c.Features[name]
	return v, ok
}

// WithFeature 返回带新增指标列的副本（原 K 线不变）。
func (c Candle) WithFeature(name string, value float64) Candle {
	features := make(map[string]float64, len(c.Features)+1)
	for k, v := range c.Features {
		features[k] = v
	}
	features[name] = value
	c.Features = features
	return c
}
