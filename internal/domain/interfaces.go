package domain

import "context"

// ExchangeAdapter defines exchange-agnostic trading and account operations.
// All orchestration-core exchange access goes through this interface; concrete
// implementations (live exchange client, paper exchange) live outside the core.
type ExchangeAdapter interface {
	// Account operations
	GetBalances(ctx context.Context, user string) ([]Balance, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// TradableMarketValue returns the total settlement-currency value of the
	// orderable portion of the account (cash plus orderable positions).
	TradableMarketValue(ctx context.Context, balances []Balance, orderable []string) (float64, error)

	// IsSymbolTradable reports whether the exchange currently accepts orders
	// for the symbol.
	IsSymbolTradable(ctx context.Context, symbol string) (bool, error)

	// Trading operations
	AdjustOrder(ctx context.Context, user string, req *TradeRequest) (*OrderResponse, error)
	CancelOrder(ctx context.Context, user, orderID, symbol string) error

	// Fill resolution helpers. OrderType classifies the adjusted order;
	// CalculateAmount resolves the filled settlement-currency amount when the
	// response carried none.
	OrderType(order *AdjustedOrder) OrderType
	CalculateAmount(ctx context.Context, order *AdjustedOrder) (float64, error)
	CalculateProfit(ctx context.Context, balances []Balance, order *AdjustedOrder, amount float64) (float64, error)

	// ClearClients releases per-user client resources after a run
	ClearClients(user string)
}

// OrderType classifies how an order rests on the book
type OrderType string

const (
	OrderTypeMarket        OrderType = "market"
	OrderTypeLimit         OrderType = "limit"
	OrderTypePostOnlyLimit OrderType = "post_only_limit"
)

// AdjustedOrder is the normalized order shape the executor works with,
// regardless of whether the adapter returned a legacy or structured response.
type AdjustedOrder struct {
	OrderID         string
	Symbol          string
	Side            string // "bid" or "ask"
	Price           float64
	RequestedAmount float64  // settlement-currency notional requested
	FilledAmount    *float64 // nil when the adapter did not report it
	FilledRatio     *float64 // nil when the adapter did not report it
}

// OrderResponse carries an adapter's order placement result. Newer adapters
// populate Order; legacy adapters populate the flat fields, which the
// executor normalizes into the same AdjustedOrder shape.
type OrderResponse struct {
	Order *AdjustedOrder

	// Legacy flat response fields
	LegacyOrderID        string
	LegacySymbol         string
	LegacySide           string
	LegacyPrice          float64
	LegacyAmount         float64
	LegacyExecutedAmount float64
}

// HoldingLedgerStore persists the canonical per-user holdings snapshot
type HoldingLedgerStore interface {
	// FetchHoldingsByUser returns the existing ledger entries for a user
	FetchHoldingsByUser(ctx context.Context, user string) ([]HoldingLedgerEntry, error)

	// ReplaceHoldingsForUser atomically replaces the user's ledger with items
	// (delete plus insert scoped to the user)
	ReplaceHoldingsForUser(ctx context.Context, user string, items []HoldingLedgerEntry) error
}

// HoldingLedgerEntry is one row of the holdings snapshot. The table holds at
// most one row per (symbol, category) pair per user, re-indexed 0..n-1 after
// every run. It is a snapshot, not an event log.
type HoldingLedgerEntry struct {
	User     string   `json:"user"`
	Symbol   string   `json:"symbol"`
	Category Category `json:"category"`
	Index    int      `json:"index"`
}

// Notifier delivers run summaries to the user. Formatting and delivery
// transport are external concerns.
type Notifier interface {
	Notify(ctx context.Context, user, text string) error
	ClearClients(user string)
}

// MarketRegimeReader returns the current external regime snapshot or fails
type MarketRegimeReader interface {
	Read(ctx context.Context) (*RegimeSnapshot, error)
}
