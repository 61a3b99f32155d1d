package trades

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggiesa/AutonoTrader/internal/backtest"
)

func openStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "trades.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var tradeDate = time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)

func TestStoreRecordsTradeLifecycle(t *testing.T) {
	s := openStore(t, Options{})

	pos := backtest.OpenPosition{
		ID: "abc123", Symbol: "ADABTC", Date: tradeDate,
		Price: 10, QuoteAmount: 100, BaseAmount: 10,
	}
	require.NoError(t, s.RecordPending(pos))
	require.NoError(t, s.RecordBuy(backtest.BuyRecord(pos)))

	pending, err := s.ListPending("")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pos, pending[0])

	buys, err := s.ListBuys("adabtc")
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, "abc123", buys[0].ID)

	require.NoError(t, s.RemovePending("abc123"))
	require.NoError(t, s.RecordSell(backtest.ResolvedTrade{
		ID: "def456", Symbol: "ADABTC", Date: tradeDate.Add(time.Hour),
		Price: 12, BaseAmount: 10, QuoteReturned: 120,
		Profit: 20, PercentProfit: 20,
		ResolvedIDs: []string{"abc123"},
	}))

	pending, err = s.ListPending("ADABTC")
	require.NoError(t, err)
	assert.Empty(t, pending)

	sells, err := s.ListSells("")
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.Equal(t, []string{"abc123"}, sells[0].ResolvedIDs)
	assert.Equal(t, 20.0, sells[0].Profit)
	assert.Equal(t, tradeDate.Add(time.Hour), sells[0].Date)
}

func TestStoreRemovePendingMissingIsNoop(t *testing.T) {
	s := openStore(t, Options{})
	assert.NoError(t, s.RemovePending("nope"))
}

func TestStoreTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")

	s, err := NewStore(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.RecordBuy(backtest.BuyRecord{ID: "x", Symbol: "ADABTC", Date: tradeDate}))
	require.NoError(t, s.Close())

	// Truncate 打开时清空上次回放的流水
	s, err = NewStore(path, Options{Truncate: true})
	require.NoError(t, err)
	defer s.Close()
	buys, err := s.ListBuys("")
	require.NoError(t, err)
	assert.Empty(t, buys)
}

func TestStoreSymbolFilter(t *testing.T) {
	s := openStore(t, Options{})
	require.NoError(t, s.RecordBuy(backtest.BuyRecord{ID: "a", Symbol: "ADABTC", Date: tradeDate}))
	require.NoError(t, s.RecordBuy(backtest.BuyRecord{ID: "b", Symbol: "XLMBTC", Date: tradeDate}))

	buys, err := s.ListBuys("XLMBTC")
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, "b", buys[0].ID)
}
