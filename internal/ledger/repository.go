package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/coinpilot/internal/database"
	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// Compile-time check that Repository implements domain.HoldingLedgerStore
var _ domain.HoldingLedgerStore = (*Repository)(nil)

// Repository persists the holdings snapshot. Replacement is an atomic
// delete-plus-insert scoped to one user, which makes re-running an
// unchanged portfolio naturally idempotent.
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new holdings repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "holdings").Logger(),
	}
}

// FetchHoldingsByUser returns the user's current ledger entries in index order
func (r *Repository) FetchHoldingsByUser(ctx context.Context, user string) ([]domain.HoldingLedgerEntry, error) {
	rows, err := r.ledgerDB.QueryContext(ctx,
		`SELECT user, symbol, category, idx FROM holdings WHERE user = ? ORDER BY idx ASC`,
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holdings: %w", err)
	}
	defer rows.Close()

	var entries []domain.HoldingLedgerEntry
	for rows.Next() {
		var entry domain.HoldingLedgerEntry
		var category string
		if err := rows.Scan(&entry.User, &entry.Symbol, &category, &entry.Index); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		entry.Category = domain.Category(category)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return entries, nil
}

// ReplaceHoldingsForUser atomically replaces the user's holdings snapshot
func (r *Repository) ReplaceHoldingsForUser(ctx context.Context, user string, items []domain.HoldingLedgerEntry) error {
	err := database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE user = ?`, user); err != nil {
			return fmt.Errorf("failed to clear holdings: %w", err)
		}
		for _, item := range items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO holdings (user, symbol, category, idx) VALUES (?, ?, ?, ?)`,
				user, item.Symbol, string(item.Category), item.Index,
			)
			if err != nil {
				return fmt.Errorf("failed to insert holding %s/%s: %w", item.Symbol, item.Category, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().Str("user", user).Int("holdings", len(items)).Msg("Holdings ledger replaced")
	return nil
}
