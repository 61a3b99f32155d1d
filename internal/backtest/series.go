package backtest

import (
	"fmt"
	"sort"

	"github.com/ggiesa/AutonoTrader/internal/logger"
	"github.com/ggiesa/AutonoTrader/internal/market"
)

// Series 管理单个 symbol 的有序 K 线，"当前" K 线始终位于相对下标 0。
// 负下标访问历史，正下标访问已加载的未来数据；游标只能前进。
type Series struct {
	symbol     string
	tf         Timeframe
	candles    []market.Candle
	increments int
	finished   bool
}

// NewSeries 校验并包装一段 K 线。K 线会按开盘时间升序排序；
// 空数据返回 ErrEmptyData，时间戳不是 tf 步长的等差数列返回 ErrDiscontinuousData。
func NewSeries(symbol string, tf Timeframe, candles []market.Candle) (*Series, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrEmptyData)
	}
	sorted := make([]market.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OpenTime < sorted[j].OpenTime
	})
	step := tf.Millis()
	for i := 1; i < len(sorted); i++ {
		if sorted[i].OpenTime-sorted[i-1].OpenTime != step {
			return nil, fmt.Errorf("%s: %w: %d -> %d (step %dms)",
				symbol, ErrDiscontinuousData, sorted[i-1].OpenTime, sorted[i].OpenTime, step)
		}
	}
	return &Series{symbol: symbol, tf: tf, candles: sorted}, nil
}

// Symbol 返回该序列对应的交易对代码。
func (s *Series) Symbol() string { return s.symbol }

// Len 返回序列总长度。
func (s *Series) Len() int { return len(s.candles) }

// Finished 在游标走完全部 K 线后为 true。
func (s *Series) Finished() bool { return s.finished }

// Timeframe 返回序列使用的周期。
func (s *Series) Timeframe() Timeframe { return s.tf }

// Current 返回当前 K 线，等价于 At(0)。
func (s *Series) Current() (market.Candle, bool) {
	return s.At(0)
}

// At 返回相对当前游标偏移 i 的 K 线；越界时返回零值并记录告警，不中断回放。
func (s *Series) At(i int) (market.Candle, bool) {
	idx := s.increments + i
	if idx < 0 || idx >= len(s.candles) {
		logger.Warnf("series %s: 相对下标 %d 越界 (cursor=%d len=%d)", s.symbol, i, s.increments, len(s.candles))
		return market.Candle{}, false
	}
	return s.candles[idx], true
}

// Range 返回相对区间 [from, to]（含两端）的连续切片，越界部分被裁剪；
// 裁剪后为空时返回 nil。
func (s *Series) Range(from, to int) []market.Candle {
	lo := s.increments + from
	hi := s.increments + to + 1
	if lo < 0 {
		lo = 0
	}
	if hi > len(s.candles) {
		hi = len(s.candles)
	}
	if lo >= hi {
		return nil
	}
	return s.candles[lo:hi]
}

// Lookback 返回截至当前 K 线（含）的最近 n 根。
func (s *Series) Lookback(n int) []market.Candle {
	if n <= 0 {
		return nil
	}
	return s.Range(-(n - 1), 0)
}

// Advance 将游标前进一根；走完后置 finished，重复调用为空操作。
func (s *Series) Advance() {
	if s.finished {
		return
	}
	s.increments++
	if s.increments == len(s.candles) {
		s.finished = true
	}
}

// Restart 将游标重置到起点，仅用于独立回放之间的复用，不得在运行中调用。
func (s *Series) Restart() {
	s.increments = 0
	s.finished = false
}

// Candles 返回全部 K 线的副本（升序），与游标位置无关。
func (s *Series) Candles() []market.Candle {
	out := make([]market.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// First 返回序列中最早的 K 线。
func (s *Series) First() market.Candle { return s.candles[0] }

// Last 返回序列中最晚的 K 线（用于按最新价估值）。
func (s *Series) Last() market.Candle { return s.candles[len(s.candles)-1] }
