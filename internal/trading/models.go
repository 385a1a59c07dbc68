// Package trading provides trade execution and trade persistence.
package trading

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/coinpilot/internal/domain"
)

// TradeSide represents the trade direction (BUY or SELL)
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// IsValid checks if the trade side is valid
func (ts TradeSide) IsValid() bool {
	return ts == TradeSideBuy || ts == TradeSideSell
}

// TradeSideFromString creates TradeSide from a string (case-insensitive)
func TradeSideFromString(value string) (TradeSide, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY", "BID":
		return TradeSideBuy, nil
	case "SELL", "ASK":
		return TradeSideSell, nil
	default:
		return "", fmt.Errorf("invalid trade side: %q", value)
	}
}

// Trade is one executed (or diagnostic) trade record. Rows are append-only
// and never mutated after creation; a zero-amount row with a cancel-failed
// trigger reason is a diagnostic marker, not an execution.
type Trade struct {
	ID                    int64                `json:"id"`
	User                  string               `json:"user"`
	Symbol                string               `json:"symbol"`
	Side                  TradeSide            `json:"side"`
	Amount                float64              `json:"amount"` // filled settlement-currency notional
	Profit                float64              `json:"profit"`
	Mode                  string               `json:"mode"` // market / limit / post_only_limit
	RequestedAmount       float64              `json:"requested_amount"`
	FilledAmount          float64              `json:"filled_amount"`
	FilledRatio           float64              `json:"filled_ratio"`
	ExpectedEdgeRate      float64              `json:"expected_edge_rate"`
	EstimatedCostRate     float64              `json:"estimated_cost_rate"`
	MissedOpportunityCost float64              `json:"missed_opportunity_cost"`
	TriggerReason         domain.TriggerReason `json:"trigger_reason"`
	OrderID               string               `json:"order_id,omitempty"`
	ExecutedAt            time.Time            `json:"executed_at"`
	CreatedAt             *time.Time           `json:"created_at,omitempty"`
}

// Validate validates trade data and normalizes the symbol
func (t *Trade) Validate() error {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if t.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if t.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("invalid trade side: %q", t.Side)
	}
	if t.Amount < 0 {
		return fmt.Errorf("amount cannot be negative")
	}
	return nil
}

// IsFullLiquidation reports whether a sell request's diff liquidates the
// whole position, within float tolerance.
func IsFullLiquidation(diff float64) bool {
	return diff <= -1+1e-9
}
