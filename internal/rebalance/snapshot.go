package rebalance

import (
	"context"
	"fmt"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/aristath/coinpilot/internal/lock"
	"github.com/rs/zerolog"
)

// SnapshotBuilder assembles a consistent per-phase execution snapshot:
// orderable symbols, tradable market value, prices, and current weights.
// The injected lock guard is asserted between every network-bound step.
type SnapshotBuilder struct {
	exchange domain.ExchangeAdapter
	log      zerolog.Logger
}

// NewSnapshotBuilder creates a new snapshot builder
func NewSnapshotBuilder(exchange domain.ExchangeAdapter, log zerolog.Logger) *SnapshotBuilder {
	return &SnapshotBuilder{
		exchange: exchange,
		log:      log.With().Str("component", "snapshot_builder").Logger(),
	}
}

// Build resolves the snapshot for the given balances and candidate symbols.
// Orderability fails open: a symbol whose check errored is kept, and only a
// snapshot in which every check failed reports the orderable set as unknown.
// Price lookups fall back to the position's average buy price.
func (b *SnapshotBuilder) Build(
	ctx context.Context,
	user string,
	balances []domain.Balance,
	symbols []string,
	guard lock.Guard,
) (*domain.ExecutionSnapshot, error) {
	snap := &domain.ExecutionSnapshot{
		Balances:       balances,
		Orderable:      make(map[string]bool),
		CurrentWeights: make(map[string]float64),
		TradableKrw:    make(map[string]float64),
		Prices:         make(map[string]float64),
	}

	// Orderable-symbol set
	checked, failed := 0, 0
	var orderable []string
	for _, symbol := range dedupe(symbols) {
		if symbol == domain.CashSymbol {
			continue
		}
		checked++
		tradable, err := b.exchange.IsSymbolTradable(ctx, symbol)
		if err != nil {
			// Transient failure: keep the symbol (fail open)
			failed++
			b.log.Warn().Err(err).Str("symbol", symbol).Msg("Orderability check failed, keeping symbol")
			orderable = append(orderable, symbol)
			continue
		}
		snap.Orderable[symbol] = tradable
		if tradable {
			orderable = append(orderable, symbol)
		}
	}
	if checked > 0 && failed == checked {
		snap.OrderableUnknown = true
		b.log.Warn().Int("symbols", checked).Msg("Every orderability check failed, orderable set unknown")
	}

	if err := guard(ctx); err != nil {
		return nil, err
	}

	// Total tradable market value
	total, err := b.exchange.TradableMarketValue(ctx, balances, orderable)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tradable market value: %w", err)
	}
	snap.TotalTradableKrw = total

	if err := guard(ctx); err != nil {
		return nil, err
	}

	// Per-symbol prices, weights, and tradable values. A failed price fetch
	// falls back to the average buy price rather than dropping the position.
	for _, balance := range balances {
		if balance.IsCash() || balance.Amount <= 0 {
			continue
		}

		price, err := b.exchange.GetPrice(ctx, balance.Symbol)
		if err != nil || price <= 0 {
			b.log.Warn().
				Err(err).
				Str("symbol", balance.Symbol).
				Float64("avg_buy_price", balance.AvgBuyPrice).
				Msg("Price fetch failed, using average buy price")
			price = balance.AvgBuyPrice
		}
		snap.Prices[balance.Symbol] = price

		value := balance.Amount * price
		snap.TradableKrw[balance.Symbol] = value
		if total > 0 {
			snap.CurrentWeights[balance.Symbol] = domain.Clamp01(value / total)
		}
	}

	if err := guard(ctx); err != nil {
		return nil, err
	}

	// Prices for candidate symbols not currently held (needed for buy
	// request sizing); failures here leave the price at 0 and downstream
	// sizing falls back accordingly.
	for _, symbol := range dedupe(symbols) {
		if symbol == domain.CashSymbol {
			continue
		}
		if _, ok := snap.Prices[symbol]; ok {
			continue
		}
		price, err := b.exchange.GetPrice(ctx, symbol)
		if err != nil || price <= 0 {
			b.log.Warn().Err(err).Str("symbol", symbol).Msg("Candidate price unavailable")
			continue
		}
		snap.Prices[symbol] = price
	}

	b.log.Debug().
		Str("user", user).
		Int("balances", len(balances)).
		Int("orderable", len(orderable)).
		Float64("total_tradable", total).
		Msg("Built execution snapshot")

	return snap, nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
