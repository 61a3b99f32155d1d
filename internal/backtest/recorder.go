package backtest

// TradeRecorder 是可选的外部持久化接收端。引擎保证事件顺序与内存
// 变更一致，且每个逻辑事件至多通知一次；任何一次写入失败都会中止回放，
// 由调用方决定如何处理，引擎不做重试。
type TradeRecorder interface {
	RecordBuy(trade BuyRecord) error
	RecordSell(trade ResolvedTrade) error
	RecordPending(position OpenPosition) error
	RemovePending(id string) error
}

// NopRecorder 丢弃全部事件，用于纯内存回放。
type NopRecorder struct{}

func (NopRecorder) RecordBuy(BuyRecord) error          { return nil }
func (NopRecorder) RecordSell(ResolvedTrade) error     { return nil }
func (NopRecorder) RecordPending(OpenPosition) error   { return nil }
func (NopRecorder) RemovePending(string) error         { return nil }
