// Package app 负责把配置装配成一次完整的回放：
// 数据源 → 本地缓存 → 指标预计算 → 策略 → 回放引擎 → 汇总/报告/查询服务。
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
	"github.com/ggiesa/AutonoTrader/internal/config"
	"github.com/ggiesa/AutonoTrader/internal/gateway/binance"
	"github.com/ggiesa/AutonoTrader/internal/gateway/cryptocompare"
	"github.com/ggiesa/AutonoTrader/internal/ingestion"
	"github.com/ggiesa/AutonoTrader/internal/logger"
	"github.com/ggiesa/AutonoTrader/internal/market"
	"github.com/ggiesa/AutonoTrader/internal/report"
	"github.com/ggiesa/AutonoTrader/internal/store/candles"
	"github.com/ggiesa/AutonoTrader/internal/store/trades"
	"github.com/ggiesa/AutonoTrader/internal/strategy"
	transport "github.com/ggiesa/AutonoTrader/internal/transport/http"
)

// App 持有一次运行所需的全部依赖。
type App struct {
	cfg      *config.Config
	tf       backtest.Timeframe
	source   backtest.CandleSource
	cache    *candles.Store
	recorder *trades.Store
	specs    []ingestion.FeatureSpec
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: 配置不能为空")
	}
	tf, err := backtest.ParseTimeframe(cfg.Data.Timeframe)
	if err != nil {
		return nil, err
	}

	var source backtest.CandleSource
	switch strings.ToLower(cfg.Data.Source) {
	case "binance":
		source = binance.NewSource()
	case "cryptocompare":
		source = cryptocompare.NewSource("")
	default:
		return nil, fmt.Errorf("app: 未知数据源 %q", cfg.Data.Source)
	}

	cache, err := candles.NewStore(cfg.Data.CachePath)
	if err != nil {
		return nil, fmt.Errorf("app: 打开 K 线缓存失败: %w", err)
	}

	var recorder *trades.Store
	if cfg.Store.Path != "" {
		recorder, err = trades.NewStore(cfg.Store.Path, trades.Options{Truncate: cfg.Store.Truncate})
		if err != nil {
			_ = cache.Close()
			return nil, fmt.Errorf("app: 打开交易流水库失败: %w", err)
		}
	}

	specs := make([]ingestion.FeatureSpec, 0, len(cfg.Data.Features))
	for _, f := range cfg.Data.Features {
		specs = append(specs, ingestion.FeatureSpec{Name: f.Name, Period: f.Period})
	}
	if len(specs) == 0 {
		// 内置策略至少需要一条均线
		specs = append(specs, ingestion.FeatureSpec{Name: "sma", Period: 48})
	}

	return &App{
		cfg:      cfg,
		tf:       tf,
		source:   source,
		cache:    cache,
		recorder: recorder,
		specs:    specs,
	}, nil
}

// Close 释放持有的存储句柄。
func (a *App) Close() error {
	var firstErr error
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			firstErr = err
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run 执行一次完整回放。查询服务启用时在回放结束后继续阻塞服务，
// 直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	pairs := a.cfg.Pairs()
	strat, err := strategy.NewSMAReversion(pairs, a.cfg.Portfolio.Backtest(), a.specs[0].Column(), a.loadData)
	if err != nil {
		return err
	}

	var opts []backtest.Option
	opts = append(opts, backtest.WithTimeframe(a.tf), backtest.WithProgress(logProgress))
	if a.recorder != nil {
		opts = append(opts, backtest.WithRecorder(a.recorder))
	}
	engine, err := backtest.NewEngine(ctx, strat, opts...)
	if err != nil {
		return err
	}

	logger.Infof("开始回放：%d 个交易对，周期 %s", len(pairs), a.tf.Key)
	if err := engine.Run(ctx); err != nil {
		return err
	}
	summary := engine.Summary()
	fmt.Print(summary.Report())

	if a.cfg.Report.Enabled {
		r, err := report.Build(engine)
		if err != nil {
			return err
		}
		path, err := r.WriteHTML(a.cfg.Report.OutputDir)
		if err != nil {
			return err
		}
		logger.Infof("报告已生成：%s", path)
	}

	if a.cfg.Server.Enabled {
		if a.recorder == nil {
			return fmt.Errorf("app: 查询服务需要启用交易流水库 (store.path)")
		}
		srv, err := transport.NewServer(transport.Config{
			Addr:      a.cfg.Server.Addr,
			Store:     a.recorder,
			ReportDir: a.cfg.Report.OutputDir,
		})
		if err != nil {
			return err
		}
		logger.Infof("查询服务监听 %s", a.cfg.Server.Addr)
		return srv.Start(ctx)
	}
	return nil
}

// loadData 同步缓存缺口后读出区间内的 K 线并预计算指标列。
func (a *App) loadData(ctx context.Context) (map[string][]market.Candle, error) {
	start, end, err := a.cfg.Data.Range()
	if err != nil {
		return nil, err
	}
	startMs, endMs := a.tf.AlignRange(start.UnixMilli(), end.UnixMilli())

	syncer, err := candles.NewSyncer(a.cache, a.source, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]market.Candle, len(a.cfg.Symbols))
	for _, pair := range a.cfg.Pairs() {
		integrity, err := syncer.Sync(ctx, pair.Symbol, a.tf, startMs, endMs)
		if err != nil {
			return nil, fmt.Errorf("同步 %s 失败: %w", pair.Symbol, err)
		}
		if !integrity.Complete() {
			return nil, fmt.Errorf("%s@%s 同步后仍缺 %d 段数据（%d/%d），拒绝按截断窗口回放",
				pair.Symbol, a.tf.Key, len(integrity.Gaps), integrity.Have, integrity.Expected)
		}
		data, err := a.cache.RangeCandles(ctx, pair.Symbol, a.tf.Key, startMs, endMs)
		if err != nil {
			return nil, err
		}
		enriched, err := ingestion.Enrich(data, a.specs)
		if err != nil {
			return nil, fmt.Errorf("计算 %s 指标失败: %w", pair.Symbol, err)
		}
		out[pair.Symbol] = enriched
	}
	return out, nil
}

func logProgress(done, total int, status string) {
	if total > 0 && (done%100 == 0 || done == total) {
		logger.Infof("回放进度 %d/%d（%s）", done, total, status)
	}
}
