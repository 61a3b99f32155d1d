package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ggiesa/AutonoTrader/internal/market"
)

// OpenPosition 是一笔尚未被卖出抵销的买入。
type OpenPosition struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Date        time.Time `json:"date"`
	Price       float64   `json:"price"`
	QuoteAmount float64   `json:"quote_amount"` // 花费的计价货币数量
	BaseAmount  float64   `json:"base_amount"`  // 获得的标的数量 = QuoteAmount/Price
}

// BuyRecord 是全局买入流水中的一行（追加写，永不修改）。
type BuyRecord struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Date        time.Time `json:"date"`
	Price       float64   `json:"price"`
	QuoteAmount float64   `json:"quote_amount"`
	BaseAmount  float64   `json:"base_amount"`
}

// ResolvedTrade 是一次卖出对一笔或多笔 OpenPosition 的抵销结果。
type ResolvedTrade struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	Price         float64   `json:"price"`
	BaseAmount    float64   `json:"base_amount"`
	QuoteReturned float64   `json:"quote_returned"`
	Profit        float64   `json:"profit"`
	PercentProfit float64   `json:"percent_profit"`
	ResolvedIDs   []string  `json:"resolved_ids"`
}

// LastBuy 记录某 symbol 最近一次买入的时间与价格，供策略参考。
type LastBuy struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// symbolBook 是单个 symbol 的持仓簿。
type symbolBook struct {
	open          []OpenPosition
	resolved      []ResolvedTrade
	totalInvested float64 // 当前未平仓的标的数量之和
}

// Ledger 跟踪整个回放的持仓与资金。买入/卖出在余额不足或无持仓时是
// 静默空操作（设计如此，策略无需预判状态）；配置类错误在构造时报出。
type Ledger struct {
	pairs      map[string]market.Pair
	balances   map[string]float64
	initial    map[string]float64
	holdout    map[string]float64
	earned     map[string]float64
	tradingFee float64

	books   map[string]*symbolBook
	buys    []BuyRecord
	sells   []ResolvedTrade
	lastBuy map[string]*LastBuy

	recorder TradeRecorder
}

// PortfolioConfig 提供初始资金与交易参数。Purse 与 BuyAmount 必须覆盖
// 全部计价货币；Holdout 缺省为 0，Slippage/TradingFee 缺省关闭。
type PortfolioConfig struct {
	Purse      map[string]float64
	Holdout    map[string]float64
	BuyAmount  map[string]float64
	Slippage   float64
	TradingFee float64
}

// NewLedger 构造持仓簿。缺少必需的 purse/buy_amount 键按致命配置错误处理。
func NewLedger(pairs []market.Pair, cfg PortfolioConfig, recorder TradeRecorder) (*Ledger, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("ledger: 交易对列表不能为空")
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	l := &Ledger{
		pairs:      make(map[string]market.Pair, len(pairs)),
		balances:   make(map[string]float64),
		initial:    make(map[string]float64),
		holdout:    make(map[string]float64),
		earned:     make(map[string]float64),
		tradingFee: cfg.TradingFee,
		books:      make(map[string]*symbolBook, len(pairs)),
		lastBuy:    make(map[string]*LastBuy, len(pairs)),
		recorder:   recorder,
	}
	for _, p := range pairs {
		if !p.Valid() {
			return nil, fmt.Errorf("ledger: 非法交易对 %+v", p)
		}
		l.pairs[p.Symbol] = p
		l.books[p.Symbol] = &symbolBook{}
		purse, ok := cfg.Purse[p.Quote]
		if !ok {
			return nil, fmt.Errorf("ledger: purse 缺少货币 %s", p.Quote)
		}
		if _, ok := cfg.BuyAmount[p.Quote]; !ok {
			return nil, fmt.Errorf("ledger: buy_amount 缺少货币 %s", p.Quote)
		}
		l.balances[p.Quote] = purse
		l.initial[p.Quote] = purse
		l.holdout[p.Quote] = cfg.Holdout[p.Quote]
		l.earned[p.Quote] = 0
	}
	return l, nil
}

func newTradeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Buy 模拟市价买入。可用余额不高于 holdout 时静默跳过；
// 成功后按顺序通知 recorder（先 pending 后 buy），写入失败即返回错误。
func (l *Ledger) Buy(symbol string, price, quoteAmount float64, date time.Time) error {
	pair, ok := l.pairs[symbol]
	if !ok {
		return fmt.Errorf("ledger: 未注册的交易对 %s", symbol)
	}
	if price <= 0 {
		return fmt.Errorf("ledger: %s 买入价格非法: %v", symbol, price)
	}
	if l.balances[pair.Quote] <= l.holdout[pair.Quote] {
		return nil
	}
	baseAmount := quoteAmount / price
	l.balances[pair.Quote] -= quoteAmount

	pos := OpenPosition{
		ID:          newTradeID(),
		Symbol:      symbol,
		Date:        date,
		Price:       price,
		QuoteAmount: quoteAmount,
		BaseAmount:  baseAmount,
	}
	book := l.books[symbol]
	book.open = append(book.open, pos)
	book.totalInvested += baseAmount
	l.lastBuy[symbol] = &LastBuy{Date: date, Price: price}

	record := BuyRecord{
		ID:          pos.ID,
		Symbol:      symbol,
		Date:        date,
		Price:       price,
		QuoteAmount: quoteAmount,
		BaseAmount:  baseAmount,
	}
	l.buys = append(l.buys, record)

	if err := l.recorder.RecordPending(pos); err != nil {
		return fmt.Errorf("recorder pending: %w", err)
	}
	if err := l.recorder.RecordBuy(record); err != nil {
		return fmt.Errorf("recorder buy: %w", err)
	}
	return nil
}

// Sell 模拟市价卖出，抵销买入价最低的一笔持仓（完全相同价格时取先遇到的）。
// quoteAmount 参数沿袭原始接口但不参与匹配：一次 Sell 恰好抵销一整笔持仓。
// 无持仓时静默跳过。
func (l *Ledger) Sell(symbol string, price, quoteAmount float64, date time.Time) error {
	_ = quoteAmount
	pair, ok := l.pairs[symbol]
	if !ok {
		return fmt.Errorf("ledger: 未注册的交易对 %s", symbol)
	}
	book := l.books[symbol]
	if len(book.open) == 0 {
		return nil
	}

	lowest := 0
	for i := 1; i < len(book.open); i++ {
		if book.open[i].Price < book.open[lowest].Price {
			lowest = i
		}
	}
	pos := book.open[lowest]

	net := pos.BaseAmount*price - pos.QuoteAmount
	if l.tradingFee > 0 {
		net -= l.tradingFee * pos.QuoteAmount
	}
	trade := ResolvedTrade{
		ID:            newTradeID(),
		Symbol:        symbol,
		Date:          date,
		Price:         price,
		BaseAmount:    pos.BaseAmount,
		QuoteReturned: pos.BaseAmount * price,
		Profit:        net,
		PercentProfit: 100 * net / pos.QuoteAmount,
		ResolvedIDs:   []string{pos.ID},
	}

	book.open = append(book.open[:lowest], book.open[lowest+1:]...)
	book.totalInvested -= pos.BaseAmount
	book.resolved = append(book.resolved, trade)
	l.sells = append(l.sells, trade)
	l.earned[pair.Quote] += net
	l.balances[pair.Quote] += trade.QuoteReturned

	if err := l.recorder.RemovePending(pos.ID); err != nil {
		return fmt.Errorf("recorder remove pending: %w", err)
	}
	if err := l.recorder.RecordSell(trade); err != nil {
		return fmt.Errorf("recorder sell: %w", err)
	}
	return nil
}

// SellAll 清空某 symbol 的全部持仓，合并为一条 ResolvedTrade：
// 数量与收益逐笔累加，百分比收益取各笔均值。无持仓时静默跳过。
func (l *Ledger) SellAll(symbol string, price, quoteAmount float64, date time.Time) error {
	_ = quoteAmount
	pair, ok := l.pairs[symbol]
	if !ok {
		return fmt.Errorf("ledger: 未注册的交易对 %s", symbol)
	}
	book := l.books[symbol]
	if len(book.open) == 0 {
		return nil
	}

	trade := ResolvedTrade{
		ID:     newTradeID(),
		Symbol: symbol,
		Date:   date,
		Price:  price,
	}
	resolved := book.open
	pctSum := 0.0
	for _, pos := range resolved {
		net := pos.BaseAmount*price - pos.QuoteAmount
		if l.tradingFee > 0 {
			net -= l.tradingFee * pos.QuoteAmount
		}
		trade.BaseAmount += pos.BaseAmount
		trade.QuoteReturned += pos.BaseAmount * price
		trade.Profit += net
		trade.ResolvedIDs = append(trade.ResolvedIDs, pos.ID)
		pctSum += 100 * net / pos.QuoteAmount
	}
	trade.PercentProfit = pctSum / float64(len(resolved))

	book.open = nil
	book.totalInvested -= trade.BaseAmount
	book.resolved = append(book.resolved, trade)
	l.sells = append(l.sells, trade)
	l.earned[pair.Quote] += trade.Profit
	l.balances[pair.Quote] += trade.QuoteReturned

	for _, pos := range resolved {
		if err := l.recorder.RemovePending(pos.ID); err != nil {
			return fmt.Errorf("recorder remove pending: %w", err)
		}
	}
	if err := l.recorder.RecordSell(trade); err != nil {
		return fmt.Errorf("recorder sell: %w", err)
	}
	return nil
}

// HasOpen 报告某 symbol 是否还有未抵销持仓。
func (l *Ledger) HasOpen(symbol string) bool {
	book, ok := l.books[symbol]
	return ok && len(book.open) > 0
}

// OpenCount 返回某 symbol 的未抵销持仓笔数。
func (l *Ledger) OpenCount(symbol string) int {
	book, ok := l.books[symbol]
	if !ok {
		return 0
	}
	return len(book.open)
}

// OpenPositions 返回某 symbol 未抵销持仓的副本。
func (l *Ledger) OpenPositions(symbol string) []OpenPosition {
	book, ok := l.books[symbol]
	if !ok || len(book.open) == 0 {
		return nil
	}
	out := make([]OpenPosition, len(book.open))
	copy(out, book.open)
	return out
}

// ResolvedTrades 返回某 symbol 的抵销记录副本（时间顺序）。
func (l *Ledger) ResolvedTrades(symbol string) []ResolvedTrade {
	book, ok := l.books[symbol]
	if !ok || len(book.resolved) == 0 {
		return nil
	}
	out := make([]ResolvedTrade, len(book.resolved))
	copy(out, book.resolved)
	return out
}

// TotalInvested 返回某 symbol 当前未平仓的标的数量之和。
func (l *Ledger) TotalInvested(symbol string) float64 {
	book, ok := l.books[symbol]
	if !ok {
		return 0
	}
	return book.totalInvested
}

// LastBuyInfo 返回某 symbol 最近一次买入信息；从未买入时为 nil。
func (l *Ledger) LastBuyInfo(symbol string) *LastBuy {
	lb := l.lastBuy[symbol]
	if lb == nil {
		return nil
	}
	cp := *lb
	return &cp
}

// AllBuys 返回全局买入流水副本。
func (l *Ledger) AllBuys() []BuyRecord {
	out := make([]BuyRecord, len(l.buys))
	copy(out, l.buys)
	return out
}

// AllSells 返回全局卖出流水副本（插入顺序，即时间顺序）。
func (l *Ledger) AllSells() []ResolvedTrade {
	out := make([]ResolvedTrade, len(l.sells))
	copy(out, l.sells)
	return out
}

// Balance 返回某货币的当前余额。
func (l *Ledger) Balance(currency string) float64 { return l.balances[currency] }

// Balances 返回各货币余额副本。
func (l *Ledger) Balances() map[string]float64 { return copyMap(l.balances) }

// InitialBalances 返回回放开始时的余额快照。
func (l *Ledger) InitialBalances() map[string]float64 { return copyMap(l.initial) }

// Earned 返回各货币累计已实现收益副本。
func (l *Ledger) Earned() map[string]float64 { return copyMap(l.earned) }

// Currencies 返回全部计价货币（排序后）。
func (l *Ledger) Currencies() []string {
	out := make([]string, 0, len(l.balances))
	for c := range l.balances {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Pair 返回 symbol 对应的交易对信息。
func (l *Ledger) Pair(symbol string) (market.Pair, bool) {
	p, ok := l.pairs[symbol]
	return p, ok
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
