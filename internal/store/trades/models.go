package trades

// buyModel 对应全局买入流水表（追加写）。
type buyModel struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	TradeID     string  `gorm:"column:trade_id;uniqueIndex"`
	Symbol      string  `gorm:"column:symbol;index"`
	Date        int64   `gorm:"column:date"` // Unix ms
	Price       float64 `gorm:"column:price"`
	QuoteAmount float64 `gorm:"column:quote_amount"`
	BaseAmount  float64 `gorm:"column:base_amount"`
}

func (buyModel) TableName() string { return "buys" }

// sellModel 对应卖出流水表，resolved_ids 保存被抵销持仓的 trade_id 列表。
type sellModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	TradeID       string  `gorm:"column:trade_id;uniqueIndex"`
	Symbol        string  `gorm:"column:symbol;index"`
	Date          int64   `gorm:"column:date"`
	Price         float64 `gorm:"column:price"`
	BaseAmount    float64 `gorm:"column:base_amount"`
	QuoteReturned float64 `gorm:"column:quote_returned"`
	Profit        float64 `gorm:"column:profit"`
	PercentProfit float64 `gorm:"column:percent_profit"`
	ResolvedIDs   string  `gorm:"column:resolved_ids"` // 逗号分隔
}

func (sellModel) TableName() string { return "sells" }

// pendingModel 对应当前未平仓持仓表，卖出时按 trade_id 删除。
type pendingModel struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	TradeID     string  `gorm:"column:trade_id;uniqueIndex"`
	Symbol      string  `gorm:"column:symbol;index"`
	Date        int64   `gorm:"column:date"`
	Price       float64 `gorm:"column:price"`
	QuoteAmount float64 `gorm:"column:quote_amount"`
	BaseAmount  float64 `gorm:"column:base_amount"`
}

func (pendingModel) TableName() string { return "pending" }
