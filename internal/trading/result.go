package trading

import "github.com/aristath/coinpilot/internal/domain"

// ExecutionResult pairs a trade request with its execution outcome.
// Trade is nil when nothing executed (gated skip, unfilled post-only).
type ExecutionResult struct {
	Request domain.TradeRequest
	Trade   *Trade
}

// Executed reports whether the request produced a real fill
func (r ExecutionResult) Executed() bool {
	return r.Trade != nil && r.Trade.FilledAmount > 0
}
