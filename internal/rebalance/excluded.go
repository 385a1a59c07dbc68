package rebalance

import (
	"math"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// ExcludedBuilder generates staged-exit sell requests for holdings that are
// no longer recommended. Exit intensity is chosen from the recommendation's
// action and confidence rather than liquidating everything at once.
type ExcludedBuilder struct {
	log zerolog.Logger
}

// NewExcludedBuilder creates a new staged-exit builder
func NewExcludedBuilder(log zerolog.Logger) *ExcludedBuilder {
	return &ExcludedBuilder{log: log.With().Str("component", "excluded_builder").Logger()}
}

// Build converts de-prioritized holdings into staged-exit sell requests.
// Symbols that are not orderable or whose sell notional is below the minimum
// are skipped.
func (b *ExcludedBuilder) Build(
	excluded []domain.Recommendation,
	snap *domain.ExecutionSnapshot,
	policy domain.TradePolicy,
) []domain.TradeRequest {
	requests := make([]domain.TradeRequest, 0, len(excluded))

	for i := range excluded {
		rec := &excluded[i]

		if !snap.IsOrderable(rec.Symbol) {
			b.log.Debug().Str("symbol", rec.Symbol).Str("reason", "not_orderable").Msg("Staged exit skipped")
			continue
		}

		magnitude := exitMagnitude(rec, policy)
		if magnitude <= 0 {
			continue
		}

		notional := magnitude * snap.TradableKrw[rec.Symbol]
		if notional < policy.MinSellNotional {
			b.log.Debug().
				Str("symbol", rec.Symbol).
				Str("reason", "below_min_sell").
				Float64("notional", notional).
				Msg("Staged exit skipped")
			continue
		}

		requests = append(requests, domain.TradeRequest{
			Symbol:         rec.Symbol,
			Diff:           -math.Min(1, magnitude),
			Balances:       snap.Balances,
			MarketPrice:    snap.Prices[rec.Symbol],
			Recommendation: rec,
			Urgency:        domain.UrgencyNormal,
			TriggerReason:  domain.TriggerStagedExit,
		})
	}

	return requests
}

// exitMagnitude selects the staged-exit size for a de-prioritized holding:
// full exit on a confident sell signal, light exit for passive or
// low-confidence recommendations, medium otherwise.
func exitMagnitude(rec *domain.Recommendation, policy domain.TradePolicy) float64 {
	switch {
	case rec.Action == domain.ActionSell && rec.Confidence >= 0.6:
		return policy.StagedExitFull
	case rec.Action == domain.ActionHold || rec.Action == domain.ActionNoTrade ||
		rec.Confidence < policy.MinAllocationConfidence:
		return policy.StagedExitLight
	default:
		return policy.StagedExitMedium
	}
}
