// Package exchange provides exchange adapter implementations.
package exchange

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/coinpilot/internal/domain"
)

var _ domain.ExchangeAdapter = (*PaperAdapter)(nil)

const paperFeeRate = 0.0005

// PaperAdapter is an in-memory exchange used for paper trading and local
// development. Orders fill fully and immediately at the current price, minus
// a flat fee. Per-user account state is mutated by fills the same way a real
// exchange would be, so the two-phase orchestration exercises the same
// balance-refresh paths as a live run.
type PaperAdapter struct {
	mu       sync.RWMutex
	balances map[string][]domain.Balance
	prices   map[string]float64
	log      zerolog.Logger
}

// NewPaperAdapter seeds a paper exchange with prices and per-user balances
func NewPaperAdapter(prices map[string]float64, balances map[string][]domain.Balance, log zerolog.Logger) *PaperAdapter {
	p := &PaperAdapter{
		balances: make(map[string][]domain.Balance),
		prices:   make(map[string]float64),
		log:      log.With().Str("client", "paper-exchange").Logger(),
	}
	for symbol, price := range prices {
		p.prices[strings.ToUpper(symbol)] = price
	}
	for user, bals := range balances {
		p.balances[user] = append([]domain.Balance(nil), bals...)
	}
	return p
}

// SetPrice updates the quoted price for a symbol
func (p *PaperAdapter) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[strings.ToUpper(symbol)] = price
}

// GetBalances returns a copy of the user's balances
func (p *PaperAdapter) GetBalances(ctx context.Context, user string) ([]domain.Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bals, ok := p.balances[user]
	if !ok {
		return nil, fmt.Errorf("unknown paper account: %s", user)
	}
	return append([]domain.Balance(nil), bals...), nil
}

// GetPrice returns the quoted price for a symbol
func (p *PaperAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("no price for symbol %s", symbol)
	}
	return price, nil
}

// TradableMarketValue values cash plus the orderable positions
func (p *PaperAdapter) TradableMarketValue(ctx context.Context, balances []domain.Balance, orderable []string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	orderableSet := make(map[string]bool, len(orderable))
	for _, symbol := range orderable {
		orderableSet[symbol] = true
	}

	total := 0.0
	for _, bal := range balances {
		if bal.IsCash() {
			total += bal.Amount
			continue
		}
		if !orderableSet[bal.Symbol] {
			continue
		}
		price, ok := p.prices[bal.Symbol]
		if !ok {
			price = bal.AvgBuyPrice
		}
		total += bal.Amount * price
	}
	return total, nil
}

// IsSymbolTradable reports whether the symbol has a quoted price
func (p *PaperAdapter) IsSymbolTradable(ctx context.Context, symbol string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.prices[strings.ToUpper(symbol)]
	return ok, nil
}

// AdjustOrder fills the request fully at the current price and mutates the
// paper account. Sell notional is |diff| of the position's market value; buy
// notional is diff of the position's value, or diff of the whole portfolio
// value when entering a new position.
func (p *PaperAdapter) AdjustOrder(ctx context.Context, user string, req *domain.TradeRequest) (*domain.OrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bals, ok := p.balances[user]
	if !ok {
		return nil, fmt.Errorf("unknown paper account: %s", user)
	}
	price, ok := p.prices[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("no price for symbol %s", req.Symbol)
	}

	position := domain.FindBalance(bals, req.Symbol)
	positionValue := 0.0
	if position != nil {
		positionValue = position.Amount * price
	}

	var side string
	var notional float64
	if req.Diff < 0 {
		side = "ask"
		notional = math.Min(1, -req.Diff) * positionValue
	} else {
		side = "bid"
		if positionValue > 0 {
			notional = req.Diff * positionValue
		} else {
			notional = req.Diff * p.accountValueLocked(bals)
		}
		cash := domain.CashAmount(bals)
		if notional > cash {
			notional = cash
		}
	}

	if notional <= 0 {
		return nil, fmt.Errorf("paper order for %s has no notional", req.Symbol)
	}

	p.applyFillLocked(user, req.Symbol, side, price, notional)

	filled := notional
	ratio := 1.0
	order := &domain.AdjustedOrder{
		OrderID:         uuid.NewString(),
		Symbol:          req.Symbol,
		Side:            side,
		Price:           price,
		RequestedAmount: notional,
		FilledAmount:    &filled,
		FilledRatio:     &ratio,
	}

	p.log.Debug().
		Str("user", user).
		Str("symbol", req.Symbol).
		Str("side", side).
		Float64("notional", notional).
		Msg("Paper order filled")

	return &domain.OrderResponse{Order: order}, nil
}

// applyFillLocked mutates the account for a full fill. Caller holds mu.
func (p *PaperAdapter) applyFillLocked(user, symbol, side string, price, notional float64) {
	bals := p.balances[user]
	units := notional / price
	fee := notional * paperFeeRate

	adjustCash := func(delta float64) {
		for i := range bals {
			if bals[i].IsCash() {
				bals[i].Amount += delta
				return
			}
		}
		bals = append(bals, domain.Balance{Symbol: domain.CashSymbol, Amount: delta})
	}

	if side == "ask" {
		for i := range bals {
			if bals[i].Symbol == symbol {
				bals[i].Amount = math.Max(0, bals[i].Amount-units)
				break
			}
		}
		adjustCash(notional - fee)
	} else {
		found := false
		for i := range bals {
			if bals[i].Symbol == symbol {
				prevUnits := bals[i].Amount
				bals[i].AvgBuyPrice = (prevUnits*bals[i].AvgBuyPrice + notional) / (prevUnits + units)
				bals[i].Amount = prevUnits + units
				found = true
				break
			}
		}
		if !found {
			bals = append(bals, domain.Balance{Symbol: symbol, Amount: units, AvgBuyPrice: price})
		}
		adjustCash(-(notional + fee))
	}

	// Drop fully emptied positions
	kept := bals[:0]
	for _, bal := range bals {
		quote, ok := p.prices[bal.Symbol]
		if !ok {
			quote = bal.AvgBuyPrice
		}
		if bal.IsCash() || bal.Amount*quote > 1 {
			kept = append(kept, bal)
		}
	}
	p.balances[user] = kept
}

// accountValueLocked values the whole account at current prices. Caller holds mu.
func (p *PaperAdapter) accountValueLocked(bals []domain.Balance) float64 {
	total := 0.0
	for _, bal := range bals {
		if bal.IsCash() {
			total += bal.Amount
			continue
		}
		price, ok := p.prices[bal.Symbol]
		if !ok {
			price = bal.AvgBuyPrice
		}
		total += bal.Amount * price
	}
	return total
}

// CancelOrder is a no-op; paper orders never rest on the book
func (p *PaperAdapter) CancelOrder(ctx context.Context, user, orderID, symbol string) error {
	return nil
}

// OrderType classifies every paper order as a market order
func (p *PaperAdapter) OrderType(order *domain.AdjustedOrder) domain.OrderType {
	return domain.OrderTypeMarket
}

// CalculateAmount returns the requested notional; paper fills are complete
func (p *PaperAdapter) CalculateAmount(ctx context.Context, order *domain.AdjustedOrder) (float64, error) {
	return order.RequestedAmount, nil
}

// CalculateProfit computes realized profit for a sell against the position's
// average buy price. Buys have no realized profit.
func (p *PaperAdapter) CalculateProfit(ctx context.Context, balances []domain.Balance, order *domain.AdjustedOrder, amount float64) (float64, error) {
	if order.Side != "ask" {
		return 0, nil
	}
	bal := domain.FindBalance(balances, order.Symbol)
	if bal == nil || bal.AvgBuyPrice <= 0 || order.Price <= 0 {
		return 0, nil
	}
	units := amount / order.Price
	return units * (order.Price - bal.AvgBuyPrice), nil
}

// ClearClients is a no-op; the paper adapter holds no per-user connections
func (p *PaperAdapter) ClearClients(user string) {}
