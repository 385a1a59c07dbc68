package rebalance

import (
	"math"
	"sort"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// convictionEpsilon keeps zero-confidence candidates from vanishing entirely
// during normalization.
const convictionEpsilon = 1e-6

// diffEpsilon filters diffs too small to act on
const diffEpsilon = 1e-9

// IncludedBuilder converts the selected recommendation set into gated trade
// requests. Category budget uses deferred commit: a candidate's capped target
// is written into the shared allocation map only after it survives every
// gate, so rejected candidates never consume budget.
type IncludedBuilder struct {
	log zerolog.Logger
}

// NewIncludedBuilder creates a new included-set builder
func NewIncludedBuilder(log zerolog.Logger) *IncludedBuilder {
	return &IncludedBuilder{log: log.With().Str("component", "included_builder").Logger()}
}

// Build sizes and gates the included candidates against the snapshot.
// allocated is the per-run category allocation map; it is mutated only for
// candidates that emit a request. Surviving requests are sorted by diff
// ascending so sells come first.
func (b *IncludedBuilder) Build(
	candidates []domain.Recommendation,
	snap *domain.ExecutionSnapshot,
	regime domain.RegimePolicy,
	policy domain.TradePolicy,
	allocated map[domain.Category]float64,
) []domain.TradeRequest {
	if len(candidates) == 0 {
		return nil
	}

	// Conviction-weighted normalization across all candidates
	baseWeights := make([]float64, len(candidates))
	convictions := make([]float64, len(candidates))
	var totalBase, totalConviction float64
	for i := range candidates {
		base := domain.Clamp01(candidates[i].ModelTargetWeight * regime.ExposureMultiplier)
		baseWeights[i] = base
		convictions[i] = math.Max(convictionEpsilon, base*candidates[i].Confidence)
		totalBase += base
		totalConviction += convictions[i]
	}

	slots := policy.MaxSlots
	if slots < 1 {
		slots = 1
	}
	targetBudget := domain.Clamp01(totalBase / float64(slots))

	requests := make([]domain.TradeRequest, 0, len(candidates))
	for i := range candidates {
		rec := &candidates[i]

		normalized := baseWeights[i]
		if totalConviction > 0 {
			normalized = convictions[i] / totalConviction
		}
		uncapped := domain.Clamp01(normalized * targetBudget)

		// Category cap with deferred commit
		remaining := regime.CategoryCap(rec.Category) - allocated[rec.Category]
		target := domain.Clamp01(math.Min(uncapped, remaining))

		req, ok := b.gate(rec, target, snap, regime, policy)
		if !ok {
			continue
		}

		allocated[rec.Category] += target
		requests = append(requests, *req)
	}

	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Diff < requests[j].Diff
	})
	return requests
}

// gate runs every rejection check for one candidate. Returns the request and
// true only when the candidate should trade; rejections are designed skips,
// logged with a machine-readable reason.
func (b *IncludedBuilder) gate(
	rec *domain.Recommendation,
	target float64,
	snap *domain.ExecutionSnapshot,
	regime domain.RegimePolicy,
	policy domain.TradePolicy,
) (*domain.TradeRequest, bool) {
	if !snap.IsOrderable(rec.Symbol) {
		b.reject(rec.Symbol, "not_orderable")
		return nil, false
	}

	current := snap.CurrentWeight(rec.Symbol)
	if !passesBand(target, current, regime.RebalanceBandMultiplier, policy) {
		b.reject(rec.Symbol, "inside_band")
		return nil, false
	}

	if !passesCostGate(rec, policy) {
		b.reject(rec.Symbol, "cost_gate")
		return nil, false
	}

	diff := relativeDiff(target, current)
	if math.IsNaN(diff) || math.IsInf(diff, 0) || math.Abs(diff) <= diffEpsilon {
		b.reject(rec.Symbol, "negligible_diff")
		return nil, false
	}

	trigger := domain.TriggerRebalance
	if diff < 0 {
		diff, trigger = applyPayoffOverlay(diff, rec, policy)
		if !passesMinSell(diff, rec.Symbol, snap, policy) {
			b.reject(rec.Symbol, "below_min_sell")
			return nil, false
		}
	}

	return &domain.TradeRequest{
		Symbol:         rec.Symbol,
		Diff:           diff,
		Balances:       snap.Balances,
		MarketPrice:    snap.Prices[rec.Symbol],
		Recommendation: rec,
		Urgency:        domain.UrgencyNormal,
		TriggerReason:  trigger,
	}, true
}

func (b *IncludedBuilder) reject(symbol, reason string) {
	b.log.Debug().Str("symbol", symbol).Str("reason", reason).Msg("Candidate rejected")
}

// passesBand checks the allocation band: the target must deviate from the
// current weight by at least the regime-scaled band.
func passesBand(target, current, bandMultiplier float64, policy domain.TradePolicy) bool {
	band := math.Max(
		policy.MinRebalanceBand*bandMultiplier,
		target*policy.BandRatio*bandMultiplier,
	)
	return math.Abs(target-current) >= band
}

// passesCostGate requires the expected edge to beat the estimated round-trip
// cost plus the configured risk buffer. When the upstream payload carried no
// cost estimate, one is assembled from policy fee/slippage rates plus the
// observed spread and impact.
func passesCostGate(rec *domain.Recommendation, policy domain.TradePolicy) bool {
	cost := rec.EstimatedCostRate
	if cost <= 0 {
		cost = policy.FeeRate + policy.SlippageRate + rec.SpreadRate + rec.ImpactRate
	}
	return rec.ExpectedEdgeRate > cost+policy.EdgeBufferRate
}

// relativeDiff converts a target/current weight pair into a signed relative
// change: (target-current)/current, with current falling back to 1 for
// positions not yet held. Clamped to [-1,1].
func relativeDiff(target, current float64) float64 {
	denom := current
	if denom == 0 {
		denom = 1
	}
	return domain.Clamp((target-current)/denom, -1, 1)
}

// passesMinSell rejects sells whose notional falls below the minimum sell
// amount. The notional is the diff magnitude applied to the position's
// tradable settlement-currency value.
func passesMinSell(diff float64, symbol string, snap *domain.ExecutionSnapshot, policy domain.TradePolicy) bool {
	notional := math.Abs(diff) * snap.TradableKrw[symbol]
	return notional >= policy.MinSellNotional
}
