package rebalance

import (
	"context"
	"errors"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/aristath/coinpilot/internal/trading"
)

// mockExchange is a hand-written ExchangeAdapter test double. Behavior is
// driven by the maps; unset symbols error.
type mockExchange struct {
	balances       map[string][]domain.Balance
	prices         map[string]float64
	tradable       map[string]bool
	tradableErrs   map[string]error
	priceErrs      map[string]error
	marketValue    float64
	marketValueErr error
	cleared        []string
}

func newMockExchange() *mockExchange {
	return &mockExchange{
		balances:     map[string][]domain.Balance{},
		prices:       map[string]float64{},
		tradable:     map[string]bool{},
		tradableErrs: map[string]error{},
		priceErrs:    map[string]error{},
	}
}

func (m *mockExchange) GetBalances(ctx context.Context, user string) ([]domain.Balance, error) {
	bals, ok := m.balances[user]
	if !ok {
		return nil, errors.New("unknown user")
	}
	return bals, nil
}

func (m *mockExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if err := m.priceErrs[symbol]; err != nil {
		return 0, err
	}
	price, ok := m.prices[symbol]
	if !ok {
		return 0, errors.New("no price")
	}
	return price, nil
}

func (m *mockExchange) TradableMarketValue(ctx context.Context, balances []domain.Balance, orderable []string) (float64, error) {
	return m.marketValue, m.marketValueErr
}

func (m *mockExchange) IsSymbolTradable(ctx context.Context, symbol string) (bool, error) {
	if err := m.tradableErrs[symbol]; err != nil {
		return false, err
	}
	tradable, ok := m.tradable[symbol]
	if !ok {
		return true, nil
	}
	return tradable, nil
}

func (m *mockExchange) AdjustOrder(ctx context.Context, user string, req *domain.TradeRequest) (*domain.OrderResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockExchange) CancelOrder(ctx context.Context, user, orderID, symbol string) error {
	return nil
}

func (m *mockExchange) OrderType(order *domain.AdjustedOrder) domain.OrderType {
	return domain.OrderTypeMarket
}

func (m *mockExchange) CalculateAmount(ctx context.Context, order *domain.AdjustedOrder) (float64, error) {
	return order.RequestedAmount, nil
}

func (m *mockExchange) CalculateProfit(ctx context.Context, balances []domain.Balance, order *domain.AdjustedOrder, amount float64) (float64, error) {
	return 0, nil
}

func (m *mockExchange) ClearClients(user string) {
	m.cleared = append(m.cleared, user)
}

// mockExecutor records requests and fabricates full fills
type mockExecutor struct {
	executed []domain.TradeRequest
	failOn   map[string]error
	unfilled map[string]bool
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		failOn:   map[string]error{},
		unfilled: map[string]bool{},
	}
}

func (m *mockExecutor) Execute(ctx context.Context, user string, req *domain.TradeRequest) (*trading.Trade, error) {
	if err := m.failOn[req.Symbol]; err != nil {
		return nil, err
	}
	m.executed = append(m.executed, *req)
	if m.unfilled[req.Symbol] {
		return nil, nil
	}
	return &trading.Trade{
		User:         user,
		Symbol:       req.Symbol,
		Side:         trading.TradeSideSell,
		Amount:       1000,
		FilledAmount: 1000,
		FilledRatio:  1,
	}, nil
}

// mockHoldingStore is an in-memory HoldingLedgerStore
type mockHoldingStore struct {
	entries  []domain.HoldingLedgerEntry
	replaced [][]domain.HoldingLedgerEntry
	fetchErr error
}

func (m *mockHoldingStore) FetchHoldingsByUser(ctx context.Context, user string) ([]domain.HoldingLedgerEntry, error) {
	return m.entries, m.fetchErr
}

func (m *mockHoldingStore) ReplaceHoldingsForUser(ctx context.Context, user string, items []domain.HoldingLedgerEntry) error {
	m.entries = items
	m.replaced = append(m.replaced, items)
	return nil
}

// mockNotifier records notifications
type mockNotifier struct {
	messages []string
	cleared  []string
}

func (m *mockNotifier) Notify(ctx context.Context, user, text string) error {
	m.messages = append(m.messages, text)
	return nil
}

func (m *mockNotifier) ClearClients(user string) {
	m.cleared = append(m.cleared, user)
}
