package candles

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
	"github.com/ggiesa/AutonoTrader/internal/logger"
)

// Gap 表示缓存中缺失的一段连续 K 线（闭区间，毫秒）。
type Gap struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// IntegrityReport 汇总某区间的覆盖情况。
type IntegrityReport struct {
	Expected int64 `json:"expected"`
	Have     int64 `json:"have"`
	Gaps     []Gap `json:"gaps"`
}

// Complete 表示区间内没有任何缺口。
func (r IntegrityReport) Complete() bool { return len(r.Gaps) == 0 }

// CheckIntegrity 对齐区间后比对已有 open_time 与期望网格，返回全部缺口。
func (s *Store) CheckIntegrity(ctx context.Context, symbol string, tf backtest.Timeframe, start, end int64) (IntegrityReport, error) {
	start, end = tf.AlignRange(start, end)
	have, err := s.LoadOpenTimes(ctx, symbol, tf.Key, start, end)
	if err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{
		Expected: tf.ExpectedCandles(start, end),
		Have:     int64(len(have)),
	}
	step := tf.Millis()
	haveSet := make(map[int64]struct{}, len(have))
	for _, ts := range have {
		haveSet[ts] = struct{}{}
	}
	var open *Gap
	for ts := start; ts <= end; ts += step {
		if _, ok := haveSet[ts]; ok {
			if open != nil {
				report.Gaps = append(report.Gaps, *open)
				open = nil
			}
			continue
		}
		if open == nil {
			open = &Gap{From: ts, To: ts}
		} else {
			open.To = ts
		}
	}
	if open != nil {
		report.Gaps = append(report.Gaps, *open)
	}
	return report, nil
}

// Syncer 用数据源补齐缓存缺口，带全局速率限制。
type Syncer struct {
	store    *Store
	source   backtest.CandleSource
	limiter  *rate.Limiter
	maxBatch int
}

// NewSyncer 构造同步器。ratePerMin<=0 时默认每秒 8 次请求。
func NewSyncer(store *Store, source backtest.CandleSource, ratePerMin, maxBatch int) (*Syncer, error) {
	if store == nil || source == nil {
		return nil, fmt.Errorf("store/source 不能为空")
	}
	perSec := rate.Limit(float64(ratePerMin) / 60.0)
	if ratePerMin <= 0 {
		perSec = 8
	}
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &Syncer{
		store:    store,
		source:   source,
		limiter:  rate.NewLimiter(perSec, maxBatch),
		maxBatch: maxBatch,
	}, nil
}

// Sync 补齐 start~end 区间的缓存并返回最终完整性报告。
// 数据源返回空页时放弃该缺口继续下一个（交易所侧可能确实没有数据）。
//
// 不同数据源的翻页锚点不同：binance 从 Start 向后取前 limit 根，
// cryptocompare 以 End（toTs）为锚返回最后 limit 根。这里不假设方向，
// 每页写入后按实际返回收窄未覆盖区间：返回覆盖到区间头就推进头，
// 覆盖到区间尾就回退尾。
func (y *Syncer) Sync(ctx context.Context, symbol string, tf backtest.Timeframe, start, end int64) (IntegrityReport, error) {
	report, err := y.store.CheckIntegrity(ctx, symbol, tf, start, end)
	if err != nil {
		return IntegrityReport{}, err
	}
	if report.Complete() {
		return report, nil
	}
	logger.Infof("candles: %s@%s 需补齐 %d 个缺口", symbol, tf.Key, len(report.Gaps))

	step := tf.Millis()
	for _, gap := range report.Gaps {
		from, to := gap.From, gap.To
		for from <= to {
			if err := ctx.Err(); err != nil {
				return IntegrityReport{}, err
			}
			if err := y.limiter.Wait(ctx); err != nil {
				return IntegrityReport{}, err
			}
			remaining := int((to-from)/step) + 1
			if remaining > y.maxBatch {
				remaining = y.maxBatch
			}
			data, err := y.source.Fetch(ctx, backtest.FetchRequest{
				Symbol:   symbol,
				Interval: tf.SourceInterval,
				Start:    from,
				End:      to,
				Limit:    remaining,
			})
			if err != nil {
				return IntegrityReport{}, fmt.Errorf("%s 拉取失败: %w", y.source.Name(), err)
			}
			if len(data) == 0 {
				logger.Warnf("candles: %s@%s 区间 [%d,%d] 拉取为空", symbol, tf.Key, from, to)
				break
			}
			if _, err := y.store.InsertCandles(ctx, symbol, tf.Key, data); err != nil {
				return IntegrityReport{}, fmt.Errorf("写入失败: %w", err)
			}
			first := data[0].OpenTime
			last := data[len(data)-1].OpenTime
			switch {
			case first <= from:
				from = last + step
			case last >= to:
				to = first - step
			default:
				// 返回既不接区间头也不接区间尾，无法推进翻页
				logger.Warnf("candles: %s@%s 返回 [%d,%d] 与请求 [%d,%d] 两端均不相接，停止该缺口",
					symbol, tf.Key, first, last, from, to)
				from = to + step
			}
		}
	}
	return y.store.CheckIntegrity(ctx, symbol, tf, start, end)
}
