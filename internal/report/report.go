// Package report 用 go-echarts 把一次回放渲染成可交互的 HTML 报告：
// 每个 symbol 一张带买卖标记的 K 线图，外加各计价货币的累计收益曲线。
package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
	"github.com/ggiesa/AutonoTrader/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorBuyMark       = "#3b82f6"
	colorSellMark      = "#fbbf24"
	colorEarned        = "#a78bfa"

	chartWidthPx  = 1600
	klineHeightPx = 600
	lineHeightPx  = 320
)

// Report 持有已渲染的页面，WriteHTML 前可继续追加图表。
type Report struct {
	page *components.Page
}

// Build 把回放结果组装成报告页面。
func Build(e *backtest.Engine) (*Report, error) {
	if e == nil {
		return nil, fmt.Errorf("report: engine 不能为空")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	ledger := e.Ledger()
	for _, pair := range e.Pairs() {
		series, ok := e.Series(pair.Symbol)
		if !ok {
			continue
		}
		chart := buildSymbolChart(pair.Symbol, series.Candles(),
			filterBuys(ledger.AllBuys(), pair.Symbol),
			ledger.ResolvedTrades(pair.Symbol))
		page.AddCharts(chart)
	}
	if earned := buildEarnedChart(ledger); earned != nil {
		page.AddCharts(earned)
	}
	if len(page.Charts) == 0 {
		return nil, fmt.Errorf("report: 没有可渲染的图表")
	}
	return &Report{page: page}, nil
}

// WriteHTML 把报告写到 dir 下，返回文件路径。
func (r *Report) WriteHTML(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("backtest_%s.html", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := r.page.Render(f); err != nil {
		return "", err
	}
	return path, nil
}

func filterBuys(buys []backtest.BuyRecord, symbol string) []backtest.BuyRecord {
	var out []backtest.BuyRecord
	for _, b := range buys {
		if b.Symbol == symbol {
			out = append(out, b)
		}
	}
	return out
}

func buildSymbolChart(symbol string, candles []market.Candle, buys []backtest.BuyRecord, sells []backtest.ResolvedTrade) *charts.Kline {
	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         strings.ToUpper(symbol),
			Subtitle:      fmt.Sprintf("%d buys / %d sells", len(buys), len(sells)),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 6),
			Max:       round(maxPrice+padding, 6),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(candles)
	klineData := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data := [4]float64{c.Open, c.Close, c.Low, c.High}
		klineData = append(klineData, opts.KlineData{Value: data})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", klineData)

	index := indexByOpenTime(candles)
	markers := charts.NewScatter()
	markers.SetXAxis(xAxis)
	markers.AddSeries("Buy", tradeMarks(index, len(candles), buyPoints(buys)),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBuyMark}))
	markers.AddSeries("Sell", tradeMarks(index, len(candles), sellPoints(sells)),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSellMark}))
	kline.Overlap(markers)
	return kline
}

type tradePoint struct {
	date  time.Time
	price float64
}

func buyPoints(buys []backtest.BuyRecord) []tradePoint {
	out := make([]tradePoint, 0, len(buys))
	for _, b := range buys {
		out = append(out, tradePoint{date: b.Date, price: b.Price})
	}
	return out
}

func sellPoints(sells []backtest.ResolvedTrade) []tradePoint {
	out := make([]tradePoint, 0, len(sells))
	for _, s := range sells {
		out = append(out, tradePoint{date: s.Date, price: s.Price})
	}
	return out
}

// tradeMarks 按 K 线下标对齐散点；落不到任何 K 线上的点被跳过。
func tradeMarks(index map[int64]int, length int, points []tradePoint) []opts.ScatterData {
	marks := make([]opts.ScatterData, length)
	for _, p := range points {
		i, ok := index[p.date.UnixMilli()]
		if !ok {
			continue
		}
		marks[i] = opts.ScatterData{Value: round(p.price, 6), SymbolSize: 12}
	}
	return marks
}

func indexByOpenTime(candles []market.Candle) map[int64]int {
	index := make(map[int64]int, len(candles))
	for i, c := range candles {
		index[c.OpenTime] = i
	}
	return index
}

// buildEarnedChart 渲染各计价货币按卖出顺序累计的已实现收益。
func buildEarnedChart(ledger *backtest.Ledger) *charts.Line {
	sells := ledger.AllSells()
	if len(sells) == 0 {
		return nil
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", lineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "Cumulative Earned",
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	xAxis := make([]string, len(sells))
	for i, s := range sells {
		xAxis[i] = s.Date.UTC().Format("01-02 15:04")
	}
	line.SetXAxis(xAxis)

	for _, currency := range ledger.Currencies() {
		cumulative := 0.0
		data := make([]opts.LineData, len(sells))
		for i, s := range sells {
			if pair, ok := ledger.Pair(s.Symbol); ok && pair.Quote == currency {
				cumulative += s.Profit
			}
			data[i] = opts.LineData{Value: round(cumulative, 8)}
		}
		line.AddSeries(currency, data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEarned, Width: 2}))
	}
	return line
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04")
	}
	return x
}

func priceBounds(candles []market.Candle) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
