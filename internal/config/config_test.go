package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
app:
  log_level: debug
data:
  source: binance
  timeframe: 1h
  start: "2021-01-01"
  end: "2021-02-01"
  features:
    - name: sma
      period: 48
symbols:
  - ADA/BTC
  - XLMBTC
portfolio:
  purse:
    BTC: 1000
  holdout:
    BTC: 100
  buy_amount:
    BTC: 50
  slippage: 0.05
  trading_fee: 0.001
store:
  truncate: true
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "binance", cfg.Data.Source)
	require.Len(t, cfg.Data.Features, 1)
	assert.Equal(t, "sma", cfg.Data.Features[0].Name)
	assert.Equal(t, 48, cfg.Data.Features[0].Period)

	pairs := cfg.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, "ADABTC", pairs[0].Symbol)
	assert.Equal(t, "BTC", pairs[1].Quote)

	assert.Equal(t, 1000.0, cfg.Portfolio.Purse["BTC"])
	assert.True(t, cfg.Store.Truncate)

	// 未显式设置的字段取默认值
	assert.Equal(t, defaultAppEnv, cfg.App.Env)
	assert.Equal(t, defaultStorePath, cfg.Store.Path)
	assert.Equal(t, defaultServerAddr, cfg.Server.Addr)

	start, end, err := cfg.Data.Range()
	require.NoError(t, err)
	assert.Equal(t, "2021-01-01", start.Format("2006-01-02"))
	assert.Equal(t, "2021-02-01", end.Format("2006-01-02"))
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			name: "unknown source",
			mutate: `
data:
  source: kraken
  start: "2021-01-01"
symbols: [ADABTC]
portfolio:
  purse: {BTC: 1}
  buy_amount: {BTC: 1}
`,
			wantErr: "data.source",
		},
		{
			name: "missing start",
			mutate: `
data:
  source: binance
symbols: [ADABTC]
portfolio:
  purse: {BTC: 1}
  buy_amount: {BTC: 1}
`,
			wantErr: "data.start",
		},
		{
			name: "no symbols",
			mutate: `
data:
  source: binance
  start: "2021-01-01"
portfolio:
  purse: {BTC: 1}
  buy_amount: {BTC: 1}
`,
			wantErr: "symbols",
		},
		{
			name: "missing purse currency",
			mutate: `
data:
  source: binance
  start: "2021-01-01"
symbols: [ADABTC]
portfolio:
  buy_amount: {BTC: 1}
`,
			wantErr: "portfolio.purse",
		},
		{
			name: "unparseable pair",
			mutate: `
data:
  source: binance
  start: "2021-01-01"
symbols: [NOTAPAIR]
portfolio:
  purse: {BTC: 1}
  buy_amount: {BTC: 1}
`,
			wantErr: "unparseable",
		},
		{
			name: "zero buy amount",
			mutate: `
data:
  source: binance
  start: "2021-01-01"
symbols: [ADABTC]
portfolio:
  purse: {BTC: 1}
  buy_amount: {BTC: 0}
`,
			wantErr: "buy_amount[BTC]",
		},
		{
			name: "negative purse",
			mutate: `
data:
  source: binance
  start: "2021-01-01"
symbols: [ADABTC]
portfolio:
  purse: {BTC: -5}
  buy_amount: {BTC: 1}
`,
			wantErr: "purse[BTC]",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.mutate))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
