package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// tradesColumns is the column list for the trades table. SELECT * is avoided
// so schema additions cannot break row scanning. Order must match scanTrade.
const tradesColumns = `id, user, symbol, side, amount, profit, mode,
	requested_amount, filled_amount, filled_ratio,
	expected_edge_rate, estimated_cost_rate, missed_opportunity_cost,
	trigger_reason, order_id, executed_at, created_at`

// TradeRepository handles trade database operations. The trades table is an
// append-only execution log; rows are never updated or deleted.
type TradeRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trade").Logger(),
	}
}

// Create inserts a new trade record. Duplicate order IDs are silently
// skipped so an interrupted run that retries cannot double-record a fill.
func (r *TradeRepository) Create(trade Trade) error {
	if err := trade.Validate(); err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	if trade.OrderID != "" {
		exists, err := r.Exists(trade.OrderID)
		if err != nil {
			return fmt.Errorf("failed to check for existing trade: %w", err)
		}
		if exists {
			r.log.Debug().
				Str("order_id", trade.OrderID).
				Msg("Trade with order_id already exists, skipping duplicate")
			return nil
		}
	}

	query := `
		INSERT INTO trades
		(user, symbol, side, amount, profit, mode,
		 requested_amount, filled_amount, filled_ratio,
		 expected_edge_rate, estimated_cost_rate, missed_opportunity_cost,
		 trigger_reason, order_id, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.ledgerDB.Exec(query,
		trade.User,
		strings.ToUpper(strings.TrimSpace(trade.Symbol)),
		string(trade.Side),
		trade.Amount,
		trade.Profit,
		trade.Mode,
		trade.RequestedAmount,
		trade.FilledAmount,
		trade.FilledRatio,
		trade.ExpectedEdgeRate,
		trade.EstimatedCostRate,
		trade.MissedOpportunityCost,
		string(trade.TriggerReason),
		nullString(trade.OrderID),
		trade.ExecutedAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	r.log.Info().
		Str("user", trade.User).
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Float64("amount", trade.Amount).
		Msg("Trade created")

	return nil
}

// Exists checks if a trade with the given order_id already exists
func (r *TradeRepository) Exists(orderID string) (bool, error) {
	var one int
	err := r.ledgerDB.QueryRow("SELECT 1 FROM trades WHERE order_id = ? LIMIT 1", orderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return true, nil
}

// GetHistory retrieves a user's trade history, most recent first
func (r *TradeRepository) GetHistory(user string, limit int) ([]Trade, error) {
	query := `
		SELECT ` + tradesColumns + ` FROM trades
		WHERE user = ?
		ORDER BY executed_at DESC
		LIMIT ?
	`
	return r.queryTrades(query, user, limit)
}

// GetBySymbol retrieves a user's trades for one symbol, most recent first
func (r *TradeRepository) GetBySymbol(user, symbol string, limit int) ([]Trade, error) {
	query := `
		SELECT ` + tradesColumns + ` FROM trades
		WHERE user = ? AND symbol = ?
		ORDER BY executed_at DESC
		LIMIT ?
	`
	return r.queryTrades(query, user, strings.ToUpper(strings.TrimSpace(symbol)), limit)
}

// GetTradeCountToday returns the number of trades a user executed today (UTC)
func (r *TradeRepository) GetTradeCountToday(user string) (int, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Unix()

	var count int
	err := r.ledgerDB.QueryRow(
		"SELECT COUNT(*) FROM trades WHERE user = ? AND executed_at >= ?",
		user, midnight,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's trades: %w", err)
	}
	return count, nil
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]Trade, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

func scanTrade(rows *sql.Rows) (Trade, error) {
	var t Trade
	var side, trigger string
	var orderID sql.NullString
	var executedAt, createdAt int64

	err := rows.Scan(
		&t.ID, &t.User, &t.Symbol, &side, &t.Amount, &t.Profit, &t.Mode,
		&t.RequestedAmount, &t.FilledAmount, &t.FilledRatio,
		&t.ExpectedEdgeRate, &t.EstimatedCostRate, &t.MissedOpportunityCost,
		&trigger, &orderID, &executedAt, &createdAt,
	)
	if err != nil {
		return Trade{}, err
	}

	t.Side = TradeSide(side)
	t.TriggerReason = domain.TriggerReason(trigger)
	if orderID.Valid {
		t.OrderID = orderID.String
	}
	t.ExecutedAt = time.Unix(executedAt, 0).UTC()
	created := time.Unix(createdAt, 0).UTC()
	t.CreatedAt = &created
	return t, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
