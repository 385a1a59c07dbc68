// Package rebalance turns target weights into gated trade requests and runs
// the two-phase sell-then-buy execution protocol.
package rebalance

import (
	"math"

	"github.com/aristath/coinpilot/internal/domain"
)

// applyPayoffOverlay applies the defensive sell overlays to a negative diff:
// a stop-loss floor under high volatility with a strong sell signal, and a
// trailing take-profit floor when the target has dropped below its previous
// value. Positive diffs pass through untouched.
//
// A floor is the most negative diff allowed; the overlay can only shrink a
// sell, never deepen it. Returns the adjusted diff and the trigger reason
// tag for telemetry.
func applyPayoffOverlay(diff float64, rec *domain.Recommendation, policy domain.TradePolicy) (float64, domain.TriggerReason) {
	if diff >= 0 || rec == nil {
		return diff, domain.TriggerRebalance
	}

	// Stop-loss: strong sell signal in a volatile market. Sell size is
	// capped at roughly four times the expected daily volatility, bounded
	// by the configured stop-loss floor.
	if rec.SellScore >= 0.75 && rec.ExpectedVolatility >= 0.03 {
		floor := math.Max(policy.StopLossFloor, -math.Min(1, rec.ExpectedVolatility*4))
		return math.Max(diff, floor), domain.TriggerStopLoss
	}

	// Trailing take-profit: the model's conviction is fading (target below
	// its previous value, weak buy score) but confidence is still present.
	// Sell size is capped at the amount of target lost.
	targetDropped := rec.ModelTargetWeight < rec.PrevModelTargetWeight
	if targetDropped && rec.BuyScore < 0.35 && rec.Confidence >= 0.4 {
		drop := rec.PrevModelTargetWeight - rec.ModelTargetWeight
		floor := math.Max(policy.TrailingFloor, -math.Min(0.8, drop))
		return math.Max(diff, floor), domain.TriggerTrailingTakeProfit
	}

	return diff, domain.TriggerRebalance
}
