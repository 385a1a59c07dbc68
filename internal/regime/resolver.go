// Package regime resolves external market regime readings into the clamped
// exposure, band, turnover, and category-cap multipliers used for sizing.
package regime

import (
	"context"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// Neutral values used when the regime reader is unavailable
const (
	neutralTurnoverCap  = 0.55
	neutralCapCoinMajor = 0.6
	neutralCapCoinMinor = 0.45
	neutralCapOther     = 0.25
)

// Resolver turns a regime snapshot into a RegimePolicy. All outputs are
// clamped to documented ranges; reader failure yields the neutral policy,
// never an error.
type Resolver struct {
	reader domain.MarketRegimeReader
	log    zerolog.Logger
}

// NewResolver creates a new regime policy resolver
func NewResolver(reader domain.MarketRegimeReader, log zerolog.Logger) *Resolver {
	return &Resolver{
		reader: reader,
		log:    log.With().Str("component", "regime_resolver").Logger(),
	}
}

// Resolve reads the current regime snapshot and derives the run policy.
// On reader failure the neutral policy is returned and the failure logged.
func (r *Resolver) Resolve(ctx context.Context) domain.RegimePolicy {
	if r.reader == nil {
		return NeutralPolicy()
	}

	snapshot, err := r.reader.Read(ctx)
	if err != nil || snapshot == nil {
		r.log.Warn().Err(err).Msg("Regime reader unavailable, using neutral policy")
		return NeutralPolicy()
	}

	policy := PolicyFromSnapshot(*snapshot)
	r.log.Debug().
		Float64("fear_greed", snapshot.FearGreedIndex).
		Float64("btc_dominance", snapshot.BTCDominance).
		Float64("altcoin_index", snapshot.AltcoinIndex).
		Float64("exposure_multiplier", policy.ExposureMultiplier).
		Float64("turnover_cap", policy.TurnoverCap).
		Msg("Resolved regime policy")
	return policy
}

// NeutralPolicy returns the policy used when no regime data is available
func NeutralPolicy() domain.RegimePolicy {
	return domain.RegimePolicy{
		ExposureMultiplier:      1.0,
		RebalanceBandMultiplier: 1.0,
		TurnoverCap:             neutralTurnoverCap,
		CategoryCaps: map[domain.Category]float64{
			domain.CategoryCoinMajor: neutralCapCoinMajor,
			domain.CategoryCoinMinor: neutralCapCoinMinor,
			domain.CategoryOther:     neutralCapOther,
		},
	}
}

// PolicyFromSnapshot derives the clamped policy from raw regime inputs
func PolicyFromSnapshot(s domain.RegimeSnapshot) domain.RegimePolicy {
	base := fearGreedBaseMultiplier(s.FearGreedIndex)
	adjustment := marketSignalAdjustment(s.BTCDominance, s.AltcoinIndex)

	return domain.RegimePolicy{
		ExposureMultiplier:      domain.Clamp(base+adjustment, 0.75, 1.15),
		RebalanceBandMultiplier: rebalanceBandMultiplier(s.BTCDominance, s.AltcoinIndex),
		TurnoverCap:             turnoverCap(s.BTCDominance, s.AltcoinIndex),
		CategoryCaps: map[domain.Category]float64{
			domain.CategoryCoinMajor: domain.Clamp(neutralCapCoinMajor+(s.BTCDominance-50)*0.005, 0.35, 0.85),
			domain.CategoryCoinMinor: domain.Clamp(neutralCapCoinMinor+(s.AltcoinIndex-50)*0.004, 0.15, 0.8),
			domain.CategoryOther:     domain.Clamp(neutralCapOther+(s.AltcoinIndex-50)*0.002-(s.BTCDominance-50)*0.002, 0.1, 0.4),
		},
	}
}

// fearGreedBaseMultiplier maps the fear-greed index to a base exposure
// multiplier via fixed buckets. Extreme fear and extreme greed both trim
// exposure; the middle of the range is neutral.
func fearGreedBaseMultiplier(index float64) float64 {
	switch {
	case index <= 20:
		return 0.95
	case index <= 35:
		return 0.97
	case index >= 80:
		return 0.97
	case index >= 65:
		return 0.99
	default:
		return 1.0
	}
}

// marketSignalAdjustment derives a small exposure adjustment from BTC
// dominance and the altcoin index: up to 0.02 in each direction per signal,
// combined and clamped to [-0.03, 0.03].
func marketSignalAdjustment(btcDominance, altcoinIndex float64) float64 {
	var adjustment float64
	switch {
	case btcDominance >= 55:
		adjustment -= 0.02
	case btcDominance <= 45:
		adjustment += 0.02
	}
	switch {
	case altcoinIndex >= 60:
		adjustment += 0.02
	case altcoinIndex <= 40:
		adjustment -= 0.02
	}
	return domain.Clamp(adjustment, -0.03, 0.03)
}

// rebalanceBandMultiplier widens bands when BTC dominance runs hot (choppy
// alt markets) and narrows them when altcoins lead.
func rebalanceBandMultiplier(btcDominance, altcoinIndex float64) float64 {
	return domain.Clamp(1.0+(btcDominance-50)*0.01-(altcoinIndex-50)*0.005, 0.85, 1.5)
}

// turnoverCap raises the per-run turnover fraction in alt-led regimes and
// lowers it when BTC dominates.
func turnoverCap(btcDominance, altcoinIndex float64) float64 {
	return domain.Clamp(neutralTurnoverCap+(altcoinIndex-50)*0.004-(btcDominance-50)*0.004, 0.2, 1.0)
}
