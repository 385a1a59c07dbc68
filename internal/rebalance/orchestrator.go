package rebalance

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/coinpilot/internal/domain"
	"github.com/aristath/coinpilot/internal/ledger"
	"github.com/aristath/coinpilot/internal/lock"
	"github.com/aristath/coinpilot/internal/regime"
	"github.com/aristath/coinpilot/internal/scoring"
	"github.com/aristath/coinpilot/internal/trading"
)

// TradeExecutorInterface places a single gated trade request
type TradeExecutorInterface interface {
	Execute(ctx context.Context, user string, req *domain.TradeRequest) (*trading.Trade, error)
}

// RunResult summarizes one orchestration run for one user.
type RunResult struct {
	User        string
	Policy      domain.RegimePolicy
	SellResults []trading.ExecutionResult
	BuyResults  []trading.ExecutionResult
}

// ExecutedCount returns the number of trades that actually filled.
func (r *RunResult) ExecutedCount() int {
	return countExecuted(r.SellResults) + countExecuted(r.BuyResults)
}

func countExecuted(results []trading.ExecutionResult) int {
	count := 0
	for _, res := range results {
		if res.Executed() {
			count++
		}
	}
	return count
}

// Orchestrator runs the two-phase sell-then-buy rebalance protocol for one
// user: score recommendations, build gated sell requests, execute them,
// rebuild the account snapshot, build and budget-scale buy requests, execute
// them, then reconcile the holdings ledger. Trades within a run are strictly
// sequential because each fill changes the balance state the next sizing
// decision depends on. The injected lock guard is asserted before every
// network-bound step; once it trips no further steps are attempted, but
// already persisted trades stay persisted.
type Orchestrator struct {
	exchange   domain.ExchangeAdapter
	resolver   *regime.Resolver
	scorer     *scoring.Scorer
	included   *IncludedBuilder
	excluded   *ExcludedBuilder
	trim       *NoTradeTrimBuilder
	snapshots  *SnapshotBuilder
	executor   TradeExecutorInterface
	reconciler *ledger.Reconciler
	holdings   domain.HoldingLedgerStore
	notifier   domain.Notifier
	policy     domain.TradePolicy
	log        zerolog.Logger
}

// OrchestratorConfig bundles the collaborators for NewOrchestrator
type OrchestratorConfig struct {
	Exchange domain.ExchangeAdapter
	Resolver *regime.Resolver
	Scorer   *scoring.Scorer
	Executor TradeExecutorInterface
	Holdings domain.HoldingLedgerStore
	Notifier domain.Notifier
	Policy   domain.TradePolicy
	Logger   zerolog.Logger
}

// NewOrchestrator wires the orchestrator and its request builders
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger.With().Str("service", "rebalance").Logger()
	return &Orchestrator{
		exchange:   cfg.Exchange,
		resolver:   cfg.Resolver,
		scorer:     cfg.Scorer,
		included:   NewIncludedBuilder(cfg.Logger),
		excluded:   NewExcludedBuilder(cfg.Logger),
		trim:       NewNoTradeTrimBuilder(cfg.Logger),
		snapshots:  NewSnapshotBuilder(cfg.Exchange, cfg.Logger),
		executor:   cfg.Executor,
		reconciler: ledger.NewReconciler(cfg.Logger),
		holdings:   cfg.Holdings,
		notifier:   cfg.Notifier,
		policy:     cfg.Policy,
		log:        logger,
	}
}

// Run executes one full rebalance for a user against a recommendation set.
// The guard must assert that the externally acquired per-user lock is still
// held; Run aborts between steps when it reports lock.ErrLockLost.
func (o *Orchestrator) Run(ctx context.Context, user string, recs []domain.Recommendation, guard lock.Guard) (*RunResult, error) {
	if guard == nil {
		guard = lock.Noop()
	}
	defer o.exchange.ClearClients(user)
	if o.notifier != nil {
		defer o.notifier.ClearClients(user)
	}

	regimePolicy := o.resolver.Resolve(ctx)
	o.scorer.Apply(recs, o.policy)

	result := &RunResult{User: user, Policy: regimePolicy}

	if err := guard(ctx); err != nil {
		return result, err
	}
	balances, err := o.exchange.GetBalances(ctx, user)
	if err != nil {
		return result, fmt.Errorf("failed to fetch balances for %s: %w", user, err)
	}

	sets := classify(recs, balances)
	snap, err := o.snapshots.Build(ctx, user, balances, sets.symbols(), guard)
	if err != nil {
		return result, fmt.Errorf("sell-phase snapshot failed: %w", err)
	}

	// Sell phase: staged exits, trims, included sells, and full liquidations
	// of holdings absent from the recommendation set.
	includedAllocated := make(map[domain.Category]float64)
	trimAllocated := make(map[domain.Category]float64)

	includedRequests := o.included.Build(sets.included, snap, regimePolicy, o.policy, includedAllocated)
	sells := o.excluded.Build(sets.excluded, snap, o.policy)
	sells = append(sells, o.trim.Build(sets.trims, snap, regimePolicy, o.policy, trimAllocated)...)
	for _, req := range includedRequests {
		if req.Diff < 0 {
			sells = append(sells, req)
		}
	}
	sells = append(sells, o.missingHoldingSells(sets.missing, snap)...)
	sells = capToTurnover(sells, regimePolicy.TurnoverCap)

	result.SellResults, err = o.executeSequentially(ctx, user, sells, guard)
	if err != nil {
		o.finishRun(ctx, user, result)
		return result, err
	}

	// Buy phase against a fresh snapshot: every executed sell changed the
	// balances the buys must be sized from.
	if err := guard(ctx); err != nil {
		o.finishRun(ctx, user, result)
		return result, err
	}
	balances, err = o.exchange.GetBalances(ctx, user)
	if err != nil {
		o.finishRun(ctx, user, result)
		return result, fmt.Errorf("failed to refresh balances for %s: %w", user, err)
	}

	snap, err = o.snapshots.Build(ctx, user, balances, sets.symbols(), guard)
	if err != nil {
		o.finishRun(ctx, user, result)
		return result, fmt.Errorf("buy-phase snapshot failed: %w", err)
	}

	buyAllocated := make(map[domain.Category]float64)
	buys := make([]domain.TradeRequest, 0)
	for _, req := range o.included.Build(sets.included, snap, regimePolicy, o.policy, buyAllocated) {
		if req.Diff > 0 {
			buys = append(buys, req)
		}
	}

	availableKrw := domain.CashAmount(balances)
	buys, err = ScaleBuyRequestsToAvailableKrw(buys, snap, availableKrw, o.policy, o.log)
	if err != nil {
		if errors.Is(err, ErrInsufficientBudget) {
			o.log.Warn().
				Str("user", user).
				Float64("available_krw", availableKrw).
				Msg("Skipping buy phase, no affordable buy request")
			buys = nil
		} else {
			o.finishRun(ctx, user, result)
			return result, err
		}
	}
	buys = capToTurnover(buys, regimePolicy.TurnoverCap)

	result.BuyResults, err = o.executeSequentially(ctx, user, buys, guard)
	if err != nil {
		o.finishRun(ctx, user, result)
		return result, err
	}

	o.finishRun(ctx, user, result)
	return result, nil
}

// finishRun reconciles the holdings ledger and notifies the user. It runs
// even after an aborted run: trades executed before the abort are persisted
// and must be reflected in the ledger.
func (o *Orchestrator) finishRun(ctx context.Context, user string, result *RunResult) {
	executed := result.ExecutedCount()
	if executed == 0 {
		return
	}

	existing, err := o.holdings.FetchHoldingsByUser(ctx, user)
	if err != nil {
		o.log.Error().Err(err).Str("user", user).Msg("Failed to fetch holdings ledger, skipping reconciliation")
	} else {
		merged := o.reconciler.Merge(user, existing, result.SellResults, result.BuyResults)
		if err := o.holdings.ReplaceHoldingsForUser(ctx, user, merged); err != nil {
			o.log.Error().Err(err).Str("user", user).Msg("Failed to replace holdings ledger")
		}
	}

	if o.notifier != nil {
		text := fmt.Sprintf("Rebalance complete: %d trade(s) executed (%d sells, %d buys)",
			executed, countExecuted(result.SellResults), countExecuted(result.BuyResults))
		if err := o.notifier.Notify(ctx, user, text); err != nil {
			o.log.Warn().Err(err).Str("user", user).Msg("Failed to send run notification")
		}
	}
}

// executeSequentially runs requests one at a time, asserting lock liveness
// before each. A single failed trade is logged and skipped; a tripped guard
// aborts the remainder.
func (o *Orchestrator) executeSequentially(
	ctx context.Context,
	user string,
	requests []domain.TradeRequest,
	guard lock.Guard,
) ([]trading.ExecutionResult, error) {
	results := make([]trading.ExecutionResult, 0, len(requests))
	for i := range requests {
		if err := guard(ctx); err != nil {
			return results, err
		}

		req := requests[i]
		trade, err := o.executor.Execute(ctx, user, &req)
		if err != nil {
			o.log.Error().
				Err(err).
				Str("user", user).
				Str("symbol", req.Symbol).
				Float64("diff", req.Diff).
				Msg("Trade execution failed, continuing with next request")
			continue
		}
		results = append(results, trading.ExecutionResult{Request: req, Trade: trade})
	}
	return results, nil
}

// missingHoldingSells builds full-liquidation sells for holdings that the
// new recommendation set no longer mentions at all.
func (o *Orchestrator) missingHoldingSells(missing []domain.Balance, snap *domain.ExecutionSnapshot) []domain.TradeRequest {
	requests := make([]domain.TradeRequest, 0, len(missing))
	for _, bal := range missing {
		if !snap.IsOrderable(bal.Symbol) {
			o.log.Debug().Str("symbol", bal.Symbol).Str("reason", "not_orderable").Msg("Full liquidation skipped")
			continue
		}
		if snap.TradableKrw[bal.Symbol] < o.policy.MinTradePrice {
			o.log.Debug().Str("symbol", bal.Symbol).Str("reason", "below_min_trade_price").Msg("Full liquidation skipped")
			continue
		}
		requests = append(requests, domain.TradeRequest{
			Symbol:        bal.Symbol,
			Diff:          -1,
			Balances:      snap.Balances,
			MarketPrice:   snap.Prices[bal.Symbol],
			Urgency:       domain.UrgencyNormal,
			TriggerReason: domain.TriggerFullLiquidation,
		})
	}
	return requests
}

// capToTurnover truncates a request list to ceil(count*turnoverCap) entries
func capToTurnover(requests []domain.TradeRequest, turnoverCap float64) []domain.TradeRequest {
	if len(requests) == 0 {
		return requests
	}
	limit := int(math.Ceil(float64(len(requests)) * turnoverCap))
	if limit < 0 {
		limit = 0
	}
	if limit >= len(requests) {
		return requests
	}
	return requests[:limit]
}

// recommendationSets partitions one run's inputs: included candidates
// (active buy recommendations), excluded holdings (de-prioritized, staged
// exit), overweight passive holdings to trim, and holdings missing from the
// recommendation set entirely.
type recommendationSets struct {
	included []domain.Recommendation
	excluded []domain.Recommendation
	trims    []domain.Recommendation
	missing  []domain.Balance
}

// symbols returns the deduplicated union of every symbol the run touches
func (s *recommendationSets) symbols() []string {
	out := make([]string, 0, len(s.included)+len(s.excluded)+len(s.trims)+len(s.missing))
	for _, rec := range s.included {
		out = append(out, rec.Symbol)
	}
	for _, rec := range s.excluded {
		out = append(out, rec.Symbol)
	}
	for _, rec := range s.trims {
		out = append(out, rec.Symbol)
	}
	for _, bal := range s.missing {
		out = append(out, bal.Symbol)
	}
	return out
}

// classify splits scored recommendations against the current holdings
func classify(recs []domain.Recommendation, balances []domain.Balance) *recommendationSets {
	bySymbol := make(map[string]bool, len(recs))
	sets := &recommendationSets{}

	for i := range recs {
		rec := recs[i]
		bySymbol[rec.Symbol] = true
		held := domain.FindBalance(balances, rec.Symbol) != nil

		switch {
		case rec.Action == domain.ActionBuy && rec.ModelTargetWeight > 0:
			sets.included = append(sets.included, rec)
		case held && rec.ModelTargetWeight <= 0:
			sets.excluded = append(sets.excluded, rec)
		case held && (rec.Action == domain.ActionHold || rec.Action == domain.ActionNoTrade):
			sets.trims = append(sets.trims, rec)
		}
	}

	for _, bal := range balances {
		if bal.IsCash() || bySymbol[bal.Symbol] {
			continue
		}
		sets.missing = append(sets.missing, bal)
	}

	return sets
}
