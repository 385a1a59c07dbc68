package rebalance

import (
	"errors"
	"math"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// ErrInsufficientBudget signals that the available cash cannot fund even one
// buy request above the minimum trade price.
var ErrInsufficientBudget = errors.New("available cash below minimum trade price for every buy request")

// ScaleBuyRequestsToAvailableKrw fits a set of buy requests to the available
// settlement-currency cash. When the estimated total notional exceeds the
// available amount, every diff is scaled by available/total and any request
// whose scaled notional falls at or below the minimum trade price is dropped
// entirely rather than shrunk further.
func ScaleBuyRequestsToAvailableKrw(
	requests []domain.TradeRequest,
	snap *domain.ExecutionSnapshot,
	availableKrw float64,
	policy domain.TradePolicy,
	log zerolog.Logger,
) ([]domain.TradeRequest, error) {
	if len(requests) == 0 {
		return requests, nil
	}

	notionals := make([]float64, len(requests))
	var total float64
	for i := range requests {
		notionals[i] = estimateNotional(&requests[i], snap)
		total += notionals[i]
	}

	if total <= availableKrw {
		return requests, nil
	}
	if total <= 0 {
		return nil, ErrInsufficientBudget
	}

	scale := availableKrw / total
	scaled := make([]domain.TradeRequest, 0, len(requests))
	for i := range requests {
		scaledNotional := notionals[i] * scale
		if scaledNotional <= policy.MinTradePrice {
			log.Debug().
				Str("symbol", requests[i].Symbol).
				Float64("scaled_notional", scaledNotional).
				Str("reason", "below_min_trade_price").
				Msg("Buy request dropped during budget scaling")
			continue
		}
		req := requests[i]
		req.Diff = domain.Clamp(req.Diff*scale, -1, 1)
		scaled = append(scaled, req)
	}

	if len(scaled) == 0 {
		return nil, ErrInsufficientBudget
	}

	log.Debug().
		Float64("total_notional", total).
		Float64("available", availableKrw).
		Float64("scale", scale).
		Int("kept", len(scaled)).
		Int("dropped", len(requests)-len(scaled)).
		Msg("Scaled buy requests to available cash")

	return scaled, nil
}

// estimateNotional estimates a buy request's settlement-currency notional
// from the snapshot's tradable-value map, falling back to the request's
// market price when the symbol is not held yet.
func estimateNotional(req *domain.TradeRequest, snap *domain.ExecutionSnapshot) float64 {
	if value, ok := snap.TradableKrw[req.Symbol]; ok && value > 0 {
		return math.Abs(req.Diff) * value
	}
	// Not held: the relative diff was computed against a unit base, so the
	// target weight applies to the whole tradable value when available.
	if snap.TotalTradableKrw > 0 {
		return math.Abs(req.Diff) * snap.TotalTradableKrw
	}
	return math.Abs(req.Diff) * req.MarketPrice
}
