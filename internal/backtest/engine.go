package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ggiesa/AutonoTrader/internal/logger"
	"github.com/ggiesa/AutonoTrader/internal/market"
)

// ProgressFunc 在每完成一轮全 symbol 扫描后被调用。
type ProgressFunc func(done, total int, status string)

type engineState int

const (
	stateNotStarted engineState = iota
	stateRunning
	stateFinished
)

// Engine 驱动模拟时间逐根 K 线前进：每一轮按固定顺序访问所有未走完的
// symbol，更新上下文、调用策略回调、再前进该 symbol 的游标；全部序列
// 走完后结束。单个实例只能 Run 一次。
type Engine struct {
	strategy Strategy
	tf       Timeframe
	progress ProgressFunc

	pairs    []market.Pair
	series   map[string]*Series
	ledger   *Ledger
	cfg      PortfolioConfig
	recorder TradeRecorder

	state        engineState
	totalCandles int
	runErr       error
}

// Option 调整引擎的可选行为。
type Option func(*Engine)

// WithTimeframe 指定回放周期（缺省 1h）。
func WithTimeframe(tf Timeframe) Option {
	return func(e *Engine) { e.tf = tf }
}

// WithRecorder 挂接交易持久化接收端。
func WithRecorder(rec TradeRecorder) Option {
	return func(e *Engine) { e.recorder = rec }
}

// WithProgress 挂接进度回调。
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine 加载策略数据并构建全部序列与持仓簿。
// 没有数据的 symbol 记告警后剔除；时间缺口按致命错误处理。
func NewEngine(ctx context.Context, strategy Strategy, opts ...Option) (*Engine, error) {
	if strategy == nil {
		return nil, fmt.Errorf("engine: strategy 不能为空")
	}
	e := &Engine{
		strategy: strategy,
		tf:       Hourly,
		series:   make(map[string]*Series),
	}
	for _, opt := range opts {
		opt(e)
	}

	symbols := strategy.Symbols()
	if len(symbols) == 0 {
		return nil, fmt.Errorf("engine: 交易对列表不能为空")
	}
	data, err := strategy.Data(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: 加载数据失败: %w", err)
	}

	maxLen := 0
	for _, pair := range symbols {
		candles := data[pair.Symbol]
		if len(candles) == 0 {
			logger.Warnf("engine: symbol %s 没有数据，跳过", pair.Symbol)
			continue
		}
		series, err := NewSeries(pair.Symbol, e.tf, candles)
		if err != nil {
			return nil, err
		}
		e.series[pair.Symbol] = series
		e.pairs = append(e.pairs, pair)
		e.totalCandles += series.Len()
		if series.Len() > maxLen {
			maxLen = series.Len()
		}
	}
	if len(e.pairs) == 0 {
		return nil, fmt.Errorf("engine: 所有交易对均无数据: %w", ErrEmptyData)
	}

	e.cfg = strategy.Portfolio()
	ledger, err := NewLedger(e.pairs, e.cfg, e.recorder)
	if err != nil {
		return nil, err
	}
	e.ledger = ledger
	return e, nil
}

// Run 阻塞执行回放直到全部序列走完。状态机 NOT_STARTED→RUNNING→FINISHED，
// 重复调用返回 ErrAlreadyRun。
func (e *Engine) Run(ctx context.Context) error {
	if e.state != stateNotStarted {
		return ErrAlreadyRun
	}
	e.state = stateRunning

	pass := 0
	for !e.allFinished() {
		select {
		case <-ctx.Done():
			e.state = stateFinished
			return ctx.Err()
		default:
		}

		for _, pair := range e.pairs {
			series := e.series[pair.Symbol]
			if series.Finished() {
				continue
			}
			current, ok := series.Current()
			if !ok {
				series.Advance()
				continue
			}
			step := Step{
				Symbol:    pair.Symbol,
				Quote:     pair.Quote,
				Date:      current.OpenDate(),
				Series:    series,
				HasOpen:   e.ledger.HasOpen(pair.Symbol),
				OpenCount: e.ledger.OpenCount(pair.Symbol),
				LastBuy:   e.ledger.LastBuyInfo(pair.Symbol),
				engine:    e,
			}
			e.strategy.OnStep(step)
			if e.runErr != nil {
				e.state = stateFinished
				return e.runErr
			}
			series.Advance()
		}

		pass++
		if e.progress != nil {
			e.progress(pass, e.maxPasses(), e.earnedStatus())
		}
	}

	e.state = stateFinished
	return nil
}

func (e *Engine) allFinished() bool {
	for _, pair := range e.pairs {
		if !e.series[pair.Symbol].Finished() {
			return false
		}
	}
	return true
}

func (e *Engine) maxPasses() int {
	max := 0
	for _, pair := range e.pairs {
		if n := e.series[pair.Symbol].Len(); n > max {
			max = n
		}
	}
	return max
}

func (e *Engine) earnedStatus() string {
	earned := e.ledger.Earned()
	currencies := make([]string, 0, len(earned))
	for c := range earned {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	parts := make([]string, 0, len(currencies))
	for _, c := range currencies {
		parts = append(parts, fmt.Sprintf("%s: %.4f", c, earned[c]))
	}
	return "currency earned: " + strings.Join(parts, ", ")
}

// recordErr 保留首个致命错误（目前只有持久化写入失败），
// 即便策略忽略返回值也能中止回放。
func (e *Engine) recordErr(err error) {
	if err != nil && e.runErr == nil {
		e.runErr = err
	}
}

// Ledger 暴露回放结束后的可查询账本。
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Series 返回某 symbol 的序列（用于报表取最新价等）。
func (e *Engine) Series(symbol string) (*Series, bool) {
	s, ok := e.series[symbol]
	return s, ok
}

// Pairs 返回参与回放的交易对（保持调用方顺序）。
func (e *Engine) Pairs() []market.Pair {
	out := make([]market.Pair, len(e.pairs))
	copy(out, e.pairs)
	return out
}

// Finished 报告回放是否已结束。
func (e *Engine) Finished() bool { return e.state == stateFinished }
