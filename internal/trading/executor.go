package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// fillEpsilon is the threshold below which a reported fill counts as none
const fillEpsilon = 1e-9

// TradeRepositoryInterface defines the persistence surface the executor needs
type TradeRepositoryInterface interface {
	Create(trade Trade) error
}

// Executor places one trade request against the exchange, normalizes the
// fill metrics, handles the unfilled post-only cancel path, and persists the
// resulting trade record.
type Executor struct {
	exchange domain.ExchangeAdapter
	trades   TradeRepositoryInterface
	log      zerolog.Logger
}

// NewExecutor creates a new trade executor
func NewExecutor(exchange domain.ExchangeAdapter, trades TradeRepositoryInterface, log zerolog.Logger) *Executor {
	return &Executor{
		exchange: exchange,
		trades:   trades,
		log:      log.With().Str("service", "trade_executor").Logger(),
	}
}

// Execute places and persists a single trade. Returns (nil, nil) when no
// trade executed (unfilled post-only orders, whether or not the cancel
// succeeded); the diagnostic zero-amount record for a failed cancel is
// persisted but not returned as an execution.
func (e *Executor) Execute(ctx context.Context, user string, req *domain.TradeRequest) (*Trade, error) {
	e.log.Info().
		Str("user", user).
		Str("symbol", req.Symbol).
		Float64("diff", req.Diff).
		Str("trigger", string(req.TriggerReason)).
		Msg("Executing trade")

	resp, err := e.exchange.AdjustOrder(ctx, user, req)
	if err != nil {
		return nil, fmt.Errorf("failed to place order for %s: %w", req.Symbol, err)
	}

	order := normalizeOrder(resp, req)
	if order == nil {
		return nil, fmt.Errorf("exchange returned empty order response for %s", req.Symbol)
	}

	filled, ratio := e.resolveFillMetrics(ctx, order)
	hasExecutedFill := filled > fillEpsilon && (ratio == nil || *ratio > fillEpsilon)

	if !hasExecutedFill {
		return e.handleUnfilled(ctx, user, req, order)
	}

	profit, err := e.exchange.CalculateProfit(ctx, req.Balances, order, filled)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", req.Symbol).Msg("Profit calculation failed, recording zero")
		profit = 0
	}

	filledRatio := 1.0
	if ratio != nil {
		filledRatio = *ratio
	}

	trade := Trade{
		User:            user,
		Symbol:          req.Symbol,
		Side:            sideFromDiff(req.Diff),
		Amount:          filled,
		Profit:          profit,
		Mode:            string(e.exchange.OrderType(order)),
		RequestedAmount: order.RequestedAmount,
		FilledAmount:    filled,
		FilledRatio:     filledRatio,
		TriggerReason:   req.TriggerReason,
		OrderID:         order.OrderID,
		ExecutedAt:      time.Now(),
	}

	if rec := req.Recommendation; rec != nil {
		trade.ExpectedEdgeRate = rec.ExpectedEdgeRate
		trade.EstimatedCostRate = rec.EstimatedCostRate
		if filledRatio < 1 {
			// Diagnostic only: the edge given up on the unfilled remainder
			trade.MissedOpportunityCost = order.RequestedAmount * (1 - filledRatio) * rec.ExpectedEdgeRate
		}
	}

	if err := e.trades.Create(trade); err != nil {
		return nil, fmt.Errorf("trade executed but failed to persist: %w", err)
	}

	e.log.Info().
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Float64("filled", filled).
		Float64("filled_ratio", filledRatio).
		Str("order_id", trade.OrderID).
		Msg("Trade executed")

	return &trade, nil
}

// handleUnfilled deals with an order that executed nothing. Post-only limit
// orders are cancelled; a cancel failure leaves a resting order on the book,
// so one diagnostic zero-amount trade is persisted for operator audit.
// In every case no executed trade is returned.
func (e *Executor) handleUnfilled(ctx context.Context, user string, req *domain.TradeRequest, order *domain.AdjustedOrder) (*Trade, error) {
	if e.exchange.OrderType(order) != domain.OrderTypePostOnlyLimit {
		e.log.Warn().
			Str("symbol", req.Symbol).
			Str("order_id", order.OrderID).
			Msg("Order reported no fill, nothing persisted")
		return nil, nil
	}

	if err := e.exchange.CancelOrder(ctx, user, order.OrderID, order.Symbol); err != nil {
		e.log.Error().
			Err(err).
			Str("symbol", req.Symbol).
			Str("order_id", order.OrderID).
			Msg("Failed to cancel unfilled post-only order")

		diagnostic := Trade{
			User:            user,
			Symbol:          req.Symbol,
			Side:            sideFromDiff(req.Diff),
			Amount:          0,
			Mode:            string(domain.OrderTypePostOnlyLimit),
			RequestedAmount: order.RequestedAmount,
			TriggerReason:   domain.TriggerCancelFailed,
			OrderID:         order.OrderID,
			ExecutedAt:      time.Now(),
		}
		if createErr := e.trades.Create(diagnostic); createErr != nil {
			e.log.Error().Err(createErr).Str("symbol", req.Symbol).Msg("Failed to persist cancel-failure diagnostic")
		}
		return nil, nil
	}

	e.log.Info().
		Str("symbol", req.Symbol).
		Str("order_id", order.OrderID).
		Msg("Unfilled post-only order cancelled")
	return nil, nil
}

// resolveFillMetrics resolves the filled amount and ratio, falling back to
// the adapter's amount computation and to filled/requested respectively.
func (e *Executor) resolveFillMetrics(ctx context.Context, order *domain.AdjustedOrder) (float64, *float64) {
	var filled float64
	if order.FilledAmount != nil {
		filled = *order.FilledAmount
	} else {
		amount, err := e.exchange.CalculateAmount(ctx, order)
		if err != nil {
			e.log.Warn().Err(err).Str("order_id", order.OrderID).Msg("Fill amount resolution failed, assuming zero")
		} else {
			filled = amount
		}
	}

	ratio := order.FilledRatio
	if ratio == nil && order.RequestedAmount > 0 {
		computed := filled / order.RequestedAmount
		ratio = &computed
	}
	return filled, ratio
}

// normalizeOrder folds legacy flat responses and structured responses into
// the one adjusted-order shape the executor works with.
func normalizeOrder(resp *domain.OrderResponse, req *domain.TradeRequest) *domain.AdjustedOrder {
	if resp == nil {
		return nil
	}
	if resp.Order != nil {
		return resp.Order
	}
	if resp.LegacyOrderID == "" {
		return nil
	}

	symbol := resp.LegacySymbol
	if symbol == "" {
		symbol = req.Symbol
	}

	order := &domain.AdjustedOrder{
		OrderID:         resp.LegacyOrderID,
		Symbol:          symbol,
		Side:            resp.LegacySide,
		Price:           resp.LegacyPrice,
		RequestedAmount: resp.LegacyAmount,
	}
	if resp.LegacyExecutedAmount > 0 {
		executed := resp.LegacyExecutedAmount
		order.FilledAmount = &executed
	}
	return order
}

func sideFromDiff(diff float64) TradeSide {
	if diff < 0 {
		return TradeSideSell
	}
	return TradeSideBuy
}
