// Package binance 通过 Binance 现货 REST 接口拉取历史 K 线。
package binance

import (
	"context"
	"fmt"
	"strconv"

	api "github.com/adshao/go-binance/v2"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
	"github.com/ggiesa/AutonoTrader/internal/market"
)

const maxPageLimit = 1000

// Source 实现 backtest.CandleSource。历史数据是公开接口，无需密钥。
type Source struct {
	client *api.Client
}

func NewSource() *Source {
	return &Source{client: api.NewClient("", "")}
}

func (s *Source) Name() string { return "binance" }

// Fetch 拉取一页 K 线（最多 1000 根）。调用方负责按时间推进分页。
func (s *Source) Fetch(ctx context.Context, req backtest.FetchRequest) ([]market.Candle, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("binance: symbol/interval 不能为空")
	}
	limit := req.Limit
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	svc := s.client.NewKlinesService().
		Symbol(req.Symbol).
		Interval(req.Interval).
		Limit(limit)
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End)
	}
	rows, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s/%s: %w", req.Symbol, req.Interval, err)
	}

	out := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		out = append(out, market.Candle{
			Symbol:   req.Symbol,
			OpenTime: row.OpenTime,
			Open:     toFloat(row.Open),
			High:     toFloat(row.High),
			Low:      toFloat(row.Low),
			Close:    toFloat(row.Close),
			Volume:   toFloat(row.Volume),
		})
	}
	return out, nil
}

func toFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
