// Package cryptocompare 通过 CryptoCompare min-api 拉取历史 K 线。
package cryptocompare

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
	"github.com/ggiesa/AutonoTrader/internal/market"
)

const (
	defaultBaseURL = "https://min-api.cryptocompare.com"
	maxPageLimit   = 2000
)

// Source 实现 backtest.CandleSource。接口按 symbol 的 base/quote 拆分查询，
// 按 interval 选择 histominute/histohour/histoday 端点。
type Source struct {
	baseURL string
	client  *http.Client
}

func NewSource(base string) *Source {
	if base == "" {
		base = defaultBaseURL
	}
	return &Source{
		baseURL: base,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *Source) Name() string { return "cryptocompare" }

// Fetch 拉取一页 K 线。End 作为页尾（toTs），调用方向过去翻页。
func (s *Source) Fetch(ctx context.Context, req backtest.FetchRequest) ([]market.Candle, error) {
	pair := market.ParsePair(req.Symbol)
	if !pair.Valid() {
		return nil, fmt.Errorf("cryptocompare: 无法解析交易对 %q", req.Symbol)
	}
	endpoint, aggregate, err := endpointFor(req.Interval)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}

	u, _ := url.Parse(s.baseURL)
	u.Path = "/data/v2/" + endpoint
	q := u.Query()
	q.Set("fsym", pair.Base)
	q.Set("tsym", pair.Quote)
	q.Set("limit", strconv.Itoa(limit))
	if aggregate > 1 {
		q.Set("aggregate", strconv.Itoa(aggregate))
	}
	if req.End > 0 {
		q.Set("toTs", strconv.FormatInt(req.End/1000, 10))
	}
	u.RawQuery = q.Encode()

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cryptocompare 返回状态码 %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if status := gjson.GetBytes(body, "Response").String(); status != "Success" {
		return nil, fmt.Errorf("cryptocompare: %s", gjson.GetBytes(body, "Message").String())
	}

	rows := gjson.GetBytes(body, "Data.Data").Array()
	out := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		openTime := row.Get("time").Int() * 1000
		if req.Start > 0 && openTime < req.Start {
			continue
		}
		out = append(out, market.Candle{
			Symbol:   pair.Symbol,
			OpenTime: openTime,
			Open:     row.Get("open").Float(),
			High:     row.Get("high").Float(),
			Low:      row.Get("low").Float(),
			Close:    row.Get("close").Float(),
			Volume:   row.Get("volumefrom").Float(),
		})
	}
	return out, nil
}

// endpointFor 把内部周期映射为接口端点与聚合粒度。
func endpointFor(interval string) (string, int, error) {
	switch interval {
	case "1m":
		return "histominute", 1, nil
	case "5m":
		return "histominute", 5, nil
	case "15m":
		return "histominute", 15, nil
	case "30m":
		return "histominute", 30, nil
	case "1h":
		return "histohour", 1, nil
	case "4h":
		return "histohour", 4, nil
	case "1d":
		return "histoday", 1, nil
	default:
		return "", 0, fmt.Errorf("cryptocompare: 不支持的周期 %q", interval)
	}
}
