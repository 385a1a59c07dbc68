// Package ledger maintains the canonical per-user holdings snapshot.
package ledger

import (
	"github.com/aristath/coinpilot/internal/domain"
	"github.com/aristath/coinpilot/internal/trading"
	"github.com/rs/zerolog"
)

// holdingKey identifies one ledger row
type holdingKey struct {
	Symbol   string
	Category domain.Category
}

// Reconciler merges a run's execution results into the holdings ledger.
// The result is a full snapshot: (existing - liquidated) plus bought,
// deduplicated by (symbol, category) and re-indexed 0..n-1. Reconciling
// with no executions returns the existing membership unchanged.
type Reconciler struct {
	log zerolog.Logger
}

// NewReconciler creates a new holdings reconciler
func NewReconciler(log zerolog.Logger) *Reconciler {
	return &Reconciler{log: log.With().Str("component", "ledger_reconciler").Logger()}
}

// Merge computes the post-run holdings snapshot for a user.
//
// A sell counts as a liquidation only when it executed and its request diff
// liquidated the whole position. Its category comes from the request's
// recommendation when present; otherwise every category under which the
// symbol appears in the existing ledger is removed. A buy adds its
// (symbol, category) pair when it carried a positive fill.
func (r *Reconciler) Merge(
	user string,
	existing []domain.HoldingLedgerEntry,
	sells []trading.ExecutionResult,
	buys []trading.ExecutionResult,
) []domain.HoldingLedgerEntry {
	liquidated := make(map[holdingKey]bool)
	for _, result := range sells {
		if !result.Executed() || !trading.IsFullLiquidation(result.Request.Diff) {
			continue
		}
		symbol := result.Request.Symbol
		if rec := result.Request.Recommendation; rec != nil {
			liquidated[holdingKey{symbol, rec.Category}] = true
			continue
		}
		// No recommendation attached (externally supplied sell): remove the
		// symbol under every category it currently holds.
		for _, entry := range existing {
			if entry.Symbol == symbol {
				liquidated[holdingKey{symbol, entry.Category}] = true
			}
		}
	}

	seen := make(map[holdingKey]bool)
	merged := make([]domain.HoldingLedgerEntry, 0, len(existing)+len(buys))

	appendEntry := func(symbol string, category domain.Category) {
		key := holdingKey{symbol, category}
		if seen[key] || liquidated[key] {
			return
		}
		seen[key] = true
		merged = append(merged, domain.HoldingLedgerEntry{
			User:     user,
			Symbol:   symbol,
			Category: category,
			Index:    len(merged),
		})
	}

	for _, entry := range existing {
		appendEntry(entry.Symbol, entry.Category)
	}
	for _, result := range buys {
		if !result.Executed() {
			continue
		}
		category := domain.CategoryOther
		if rec := result.Request.Recommendation; rec != nil {
			category = rec.Category
		}
		appendEntry(result.Request.Symbol, category)
	}

	r.log.Debug().
		Str("user", user).
		Int("existing", len(existing)).
		Int("liquidated", len(liquidated)).
		Int("merged", len(merged)).
		Msg("Reconciled holdings ledger")

	return merged
}
