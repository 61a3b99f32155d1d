package market

import "strings"

// Pair 描述一个交易对：Symbol 为交易所代码（如 ADABTC），
// Base 为被买卖的资产，Quote 为计价货币。
type Pair struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

var commonQuotes = []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

// ParsePair 从 "ADA/BTC" 或 "ADABTC" 推断 base/quote；无法识别时返回零值。
func ParsePair(s string) Pair {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Pair{}
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		base := strings.TrimSpace(parts[0])
		quote := strings.TrimSpace(parts[1])
		if base == "" || quote == "" {
			return Pair{}
		}
		return Pair{Symbol: base + quote, Base: base, Quote: quote}
	}
	for _, quote := range commonQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Symbol: s, Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Pair{}
}

// Valid 表示 base 与 quote 均已知。
func (p Pair) Valid() bool {
	return p.Symbol != "" && p.Base != "" && p.Quote != ""
}
