package rebalance

import (
	"math"
	"sort"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// NoTradeTrimBuilder trims overweight hold/no_trade positions back toward
// their regime-scaled target. It shares the payoff overlay with the included
// builder but keeps an independent category allocation map per call.
type NoTradeTrimBuilder struct {
	log zerolog.Logger
}

// NewNoTradeTrimBuilder creates a new trim builder
func NewNoTradeTrimBuilder(log zerolog.Logger) *NoTradeTrimBuilder {
	return &NoTradeTrimBuilder{log: log.With().Str("component", "trim_builder").Logger()}
}

// Build emits sell requests for overweight passive positions. allocated is
// this builder's own category map (independent from the included builder's),
// with the same deferred-commit semantics.
func (b *NoTradeTrimBuilder) Build(
	holds []domain.Recommendation,
	snap *domain.ExecutionSnapshot,
	regime domain.RegimePolicy,
	policy domain.TradePolicy,
	allocated map[domain.Category]float64,
) []domain.TradeRequest {
	slots := policy.MaxSlots
	if slots < 1 {
		slots = 1
	}

	requests := make([]domain.TradeRequest, 0, len(holds))
	for i := range holds {
		rec := &holds[i]

		uncapped := domain.Clamp01(rec.ModelTargetWeight*regime.ExposureMultiplier) / float64(slots)
		remaining := regime.CategoryCap(rec.Category) - allocated[rec.Category]
		target := domain.Clamp01(math.Min(uncapped, remaining))

		current := snap.CurrentWeight(rec.Symbol)
		if target-current >= 0 {
			b.reject(rec.Symbol, "not_overweight")
			continue
		}

		if !snap.IsOrderable(rec.Symbol) {
			b.reject(rec.Symbol, "not_orderable")
			continue
		}

		if !passesBand(target, current, regime.RebalanceBandMultiplier, policy) {
			b.reject(rec.Symbol, "inside_band")
			continue
		}

		if !passesCostGate(rec, policy) {
			b.reject(rec.Symbol, "cost_gate")
			continue
		}

		diff := relativeDiff(target, current)
		if diff >= 0 || math.Abs(diff) <= diffEpsilon {
			b.reject(rec.Symbol, "negligible_diff")
			continue
		}

		diff, trigger := applyPayoffOverlay(diff, rec, policy)
		if trigger == domain.TriggerRebalance {
			trigger = domain.TriggerNoTradeTrim
		}

		if !passesMinSell(diff, rec.Symbol, snap, policy) {
			b.reject(rec.Symbol, "below_min_sell")
			continue
		}

		allocated[rec.Category] += target
		requests = append(requests, domain.TradeRequest{
			Symbol:         rec.Symbol,
			Diff:           diff,
			Balances:       snap.Balances,
			MarketPrice:    snap.Prices[rec.Symbol],
			Recommendation: rec,
			Urgency:        domain.UrgencyNormal,
			TriggerReason:  trigger,
		})
	}

	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Diff < requests[j].Diff
	})
	return requests
}

func (b *NoTradeTrimBuilder) reject(symbol, reason string) {
	b.log.Debug().Str("symbol", symbol).Str("reason", reason).Msg("Trim candidate rejected")
}
