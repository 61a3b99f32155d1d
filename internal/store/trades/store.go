// Package trades 用 Gorm + SQLite 持久化模拟交易流水，
// 可直接作为回放引擎的 TradeRecorder 挂接。
package trades

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
)

// Store 实现 backtest.TradeRecorder。
type Store struct {
	db *gorm.DB
}

var _ backtest.TradeRecorder = (*Store)(nil)

// Options 控制打开行为。
type Options struct {
	// Truncate 在打开后清空三张流水表（保留表结构），用于覆盖上次回放。
	Truncate bool
}

// NewStore 打开（必要时创建）流水库并迁移表结构。
func NewStore(path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("trade store: 路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&buyModel{}, &sellModel{}, &pendingModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：给 HTTP 只读查询留一点并行度
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)

	s := &Store{db: db}
	if opts.Truncate {
		if err := s.Truncate(); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Truncate 清空全部流水。
func (s *Store) Truncate() error {
	for _, table := range []string{"buys", "sells", "pending"} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}

// RecordBuy 追加一行买入流水。
func (s *Store) RecordBuy(t backtest.BuyRecord) error {
	return s.db.Create(&buyModel{
		TradeID:     t.ID,
		Symbol:      t.Symbol,
		Date:        t.Date.UnixMilli(),
		Price:       t.Price,
		QuoteAmount: t.QuoteAmount,
		BaseAmount:  t.BaseAmount,
	}).Error
}

// RecordSell 追加一行卖出流水。
func (s *Store) RecordSell(t backtest.ResolvedTrade) error {
	return s.db.Create(&sellModel{
		TradeID:       t.ID,
		Symbol:        t.Symbol,
		Date:          t.Date.UnixMilli(),
		Price:         t.Price,
		BaseAmount:    t.BaseAmount,
		QuoteReturned: t.QuoteReturned,
		Profit:        t.Profit,
		PercentProfit: t.PercentProfit,
		ResolvedIDs:   strings.Join(t.ResolvedIDs, ","),
	}).Error
}

// RecordPending 登记一笔未平仓持仓。
func (s *Store) RecordPending(p backtest.OpenPosition) error {
	return s.db.Create(&pendingModel{
		TradeID:     p.ID,
		Symbol:      p.Symbol,
		Date:        p.Date.UnixMilli(),
		Price:       p.Price,
		QuoteAmount: p.QuoteAmount,
		BaseAmount:  p.BaseAmount,
	}).Error
}

// RemovePending 按 trade_id 删除持仓登记；不存在不视为错误。
func (s *Store) RemovePending(id string) error {
	return s.db.Where("trade_id = ?", id).Delete(&pendingModel{}).Error
}

// ListBuys 返回买入流水（时间升序）。symbol 为空时返回全部。
func (s *Store) ListBuys(symbol string) ([]backtest.BuyRecord, error) {
	var rows []buyModel
	q := s.db.Order("date ASC")
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.BuyRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, backtest.BuyRecord{
			ID:          r.TradeID,
			Symbol:      r.Symbol,
			Date:        time.UnixMilli(r.Date).UTC(),
			Price:       r.Price,
			QuoteAmount: r.QuoteAmount,
			BaseAmount:  r.BaseAmount,
		})
	}
	return out, nil
}

// ListSells 返回卖出流水（时间升序）。symbol 为空时返回全部。
func (s *Store) ListSells(symbol string) ([]backtest.ResolvedTrade, error) {
	var rows []sellModel
	q := s.db.Order("date ASC")
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.ResolvedTrade, 0, len(rows))
	for _, r := range rows {
		trade := backtest.ResolvedTrade{
			ID:            r.TradeID,
			Symbol:        r.Symbol,
			Date:          time.UnixMilli(r.Date).UTC(),
			Price:         r.Price,
			BaseAmount:    r.BaseAmount,
			QuoteReturned: r.QuoteReturned,
			Profit:        r.Profit,
			PercentProfit: r.PercentProfit,
		}
		if r.ResolvedIDs != "" {
			trade.ResolvedIDs = strings.Split(r.ResolvedIDs, ",")
		}
		out = append(out, trade)
	}
	return out, nil
}

// ListPending 返回当前未平仓持仓（时间升序）。symbol 为空时返回全部。
func (s *Store) ListPending(symbol string) ([]backtest.OpenPosition, error) {
	var rows []pendingModel
	q := s.db.Order("date ASC")
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.OpenPosition, 0, len(rows))
	for _, r := range rows {
		out = append(out, backtest.OpenPosition{
			ID:          r.TradeID,
			Symbol:      r.Symbol,
			Date:        time.UnixMilli(r.Date).UTC(),
			Price:       r.Price,
			QuoteAmount: r.QuoteAmount,
			BaseAmount:  r.BaseAmount,
		})
	}
	return out, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
