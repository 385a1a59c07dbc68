package exchange

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/coinpilot/internal/domain"
)

func newTestAdapter(balances map[string][]domain.Balance) *PaperAdapter {
	prices := map[string]float64{
		"BTC": 100000,
		"ETH": 5000,
	}
	return NewPaperAdapter(prices, balances, zerolog.Nop())
}

func TestPaperAdapter_BuyIntoNewPosition(t *testing.T) {
	adapter := newTestAdapter(map[string][]domain.Balance{
		"user1": {{Symbol: domain.CashSymbol, Amount: 1000000}},
	})

	resp, err := adapter.AdjustOrder(context.Background(), "user1", &domain.TradeRequest{
		Symbol: "BTC",
		Diff:   0.2,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Order)

	assert.Equal(t, "bid", resp.Order.Side)
	assert.NotEmpty(t, resp.Order.OrderID)
	// 20% of a 1,000,000 account
	assert.InDelta(t, 200000, resp.Order.RequestedAmount, 1e-6)
	require.NotNil(t, resp.Order.FilledRatio)
	assert.Equal(t, 1.0, *resp.Order.FilledRatio)

	bals, err := adapter.GetBalances(context.Background(), "user1")
	require.NoError(t, err)

	btc := domain.FindBalance(bals, "BTC")
	require.NotNil(t, btc)
	assert.InDelta(t, 2.0, btc.Amount, 1e-9)
	assert.InDelta(t, 100000, btc.AvgBuyPrice, 1e-6)
	// Cash reduced by notional plus fee
	assert.InDelta(t, 1000000-200000-200000*paperFeeRate, domain.CashAmount(bals), 1e-6)
}

func TestPaperAdapter_BuyBlendsAvgBuyPrice(t *testing.T) {
	adapter := newTestAdapter(map[string][]domain.Balance{
		"user1": {
			{Symbol: "BTC", Amount: 1, AvgBuyPrice: 80000},
			{Symbol: domain.CashSymbol, Amount: 500000},
		},
	})

	_, err := adapter.AdjustOrder(context.Background(), "user1", &domain.TradeRequest{
		Symbol: "BTC",
		Diff:   0.5,
	})
	require.NoError(t, err)

	bals, err := adapter.GetBalances(context.Background(), "user1")
	require.NoError(t, err)

	btc := domain.FindBalance(bals, "BTC")
	require.NotNil(t, btc)
	assert.InDelta(t, 1.5, btc.Amount, 1e-9)
	// (1*80000 + 50000) / 1.5
	assert.InDelta(t, 86666.6667, btc.AvgBuyPrice, 0.01)
}

func TestPaperAdapter_BuyCappedAtAvailableCash(t *testing.T) {
	adapter := newTestAdapter(map[string][]domain.Balance{
		"user1": {
			{Symbol: "BTC", Amount: 1, AvgBuyPrice: 100000},
			{Symbol: domain.CashSymbol, Amount: 10000},
		},
	})

	resp, err := adapter.AdjustOrder(context.Background(), "user1", &domain.TradeRequest{
		Symbol: "BTC",
		Diff:   0.5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 10000, resp.Order.RequestedAmount, 1e-6)
}

func TestPaperAdapter_PartialSell(t *testing.T) {
	adapter := newTestAdapter(map[string][]domain.Balance{
		"user1": {
			{Symbol: "BTC", Amount: 2, AvgBuyPrice: 90000},
			{Symbol: domain.CashSymbol, Amount: 0},
		},
	})

	resp, err := adapter.AdjustOrder(context.Background(), "user1", &domain.TradeRequest{
		Symbol: "BTC",
		Diff:   -0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "ask", resp.Order.Side)
	assert.InDelta(t, 100000, resp.Order.RequestedAmount, 1e-6)

	bals, err := adapter.GetBalances(context.Background(), "user1")
	require.NoError(t, err)

	btc := domain.FindBalance(bals, "BTC")
	require.NotNil(t, btc)
	assert.InDelta(t, 1.0, btc.Amount, 1e-9)
	assert.InDelta(t, 100000-100000*paperFeeRate, domain.CashAmount(bals), 1e-6)
}

func TestPaperAdapter_FullSellDropsPosition(t *testing.T) {
	adapter := newTestAdapter(map[string][]domain.Balance{
		"user1": {
			{Symbol: "BTC", Amount: 2, AvgBuyPrice: 90000},
			{Symbol: domain.CashSymbol, Amount: 0},
		},
	})

	_, err := adapter.AdjustOrder(context.Background(), "user1", &domain.TradeRequest{
		Symbol: "BTC",
		Diff:   -1,
	})
	require.NoError(t, err)

	bals, err := adapter.GetBalances(context.Background(), "user1")
	require.NoError(t, err)
	assert.Nil(t, domain.FindBalance(bals, "BTC"))
}

func TestPaperAdapter_SellOfUnheldSymbolFails(t *testing.T) {
	adapter := newTestAdapter(map[string][]domain.Balance{
		"user1": {{Symbol: domain.CashSymbol, Amount: 100000}},
	})

	_, err := adapter.AdjustOrder(context.Background(), "user1", &domain.TradeRequest{
		Symbol: "BTC",
		Diff:   -1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no notional")
}

func TestPaperAdapter_UnknownUserAndSymbol(t *testing.T) {
	adapter := newTestAdapter(map[string][]domain.Balance{
		"user1": {{Symbol: domain.CashSymbol, Amount: 100000}},
	})

	_, err := adapter.GetBalances(context.Background(), "nobody")
	assert.Error(t, err)

	_, err = adapter.AdjustOrder(context.Background(), "nobody", &domain.TradeRequest{Symbol: "BTC", Diff: 0.1})
	assert.Error(t, err)

	_, err = adapter.GetPrice(context.Background(), "DOGE")
	assert.Error(t, err)

	_, err = adapter.AdjustOrder(context.Background(), "user1", &domain.TradeRequest{Symbol: "DOGE", Diff: 0.1})
	assert.Error(t, err)
}

func TestPaperAdapter_IsSymbolTradable(t *testing.T) {
	adapter := newTestAdapter(nil)

	tradable, err := adapter.IsSymbolTradable(context.Background(), "btc")
	require.NoError(t, err)
	assert.True(t, tradable)

	tradable, err = adapter.IsSymbolTradable(context.Background(), "DOGE")
	require.NoError(t, err)
	assert.False(t, tradable)
}

func TestPaperAdapter_TradableMarketValue(t *testing.T) {
	adapter := newTestAdapter(nil)

	balances := []domain.Balance{
		{Symbol: domain.CashSymbol, Amount: 50000},
		{Symbol: "BTC", Amount: 1, AvgBuyPrice: 90000},
		{Symbol: "DELISTED", Amount: 10, AvgBuyPrice: 1000},
	}

	// Only cash and orderable positions count
	total, err := adapter.TradableMarketValue(context.Background(), balances, []string{"BTC"})
	require.NoError(t, err)
	assert.InDelta(t, 150000, total, 1e-6)

	// Unpriced orderable positions fall back to the average buy price
	total, err = adapter.TradableMarketValue(context.Background(), balances, []string{"BTC", "DELISTED"})
	require.NoError(t, err)
	assert.InDelta(t, 160000, total, 1e-6)
}

func TestPaperAdapter_CalculateProfit(t *testing.T) {
	adapter := newTestAdapter(nil)
	balances := []domain.Balance{{Symbol: "BTC", Amount: 2, AvgBuyPrice: 100000}}

	profit, err := adapter.CalculateProfit(context.Background(), balances, &domain.AdjustedOrder{
		Symbol: "BTC",
		Side:   "ask",
		Price:  110000,
	}, 220000)
	require.NoError(t, err)
	assert.InDelta(t, 20000, profit, 1e-6)

	profit, err = adapter.CalculateProfit(context.Background(), balances, &domain.AdjustedOrder{
		Symbol: "BTC",
		Side:   "bid",
		Price:  110000,
	}, 220000)
	require.NoError(t, err)
	assert.Equal(t, 0.0, profit)
}

func TestPaperAdapter_GetBalancesReturnsCopy(t *testing.T) {
	adapter := newTestAdapter(map[string][]domain.Balance{
		"user1": {{Symbol: domain.CashSymbol, Amount: 100000}},
	})

	bals, err := adapter.GetBalances(context.Background(), "user1")
	require.NoError(t, err)
	bals[0].Amount = 0

	again, err := adapter.GetBalances(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, again[0].Amount)
}
