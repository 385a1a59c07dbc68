// Package domain provides core domain models and collaborator contracts.
package domain

import (
	"math"
	"strings"
	"time"
)

// CashSymbol is the settlement currency for all notional amounts.
const CashSymbol = "KRW"

// Action represents the recommended action for a symbol
type Action string

const (
	ActionBuy     Action = "buy"
	ActionSell    Action = "sell"
	ActionHold    Action = "hold"
	ActionNoTrade Action = "no_trade"
)

// IsValid checks if the action is a known value
func (a Action) IsValid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionNoTrade:
		return true
	}
	return false
}

// ActionFromString creates an Action from a string (case-insensitive).
// Unknown values normalize to no_trade so a malformed upstream payload
// can never trigger an order.
func ActionFromString(value string) Action {
	switch Action(strings.ToLower(strings.TrimSpace(value))) {
	case ActionBuy:
		return ActionBuy
	case ActionSell:
		return ActionSell
	case ActionHold:
		return ActionHold
	default:
		return ActionNoTrade
	}
}

// Category represents an asset category for exposure capping
type Category string

const (
	CategoryCoinMajor Category = "coin_major"
	CategoryCoinMinor Category = "coin_minor"
	CategoryOther     Category = "other"
)

// CategoryFromString normalizes a category string, defaulting to other
func CategoryFromString(value string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(value))) {
	case CategoryCoinMajor:
		return CategoryCoinMajor
	case CategoryCoinMinor:
		return CategoryCoinMinor
	default:
		return CategoryOther
	}
}

// MarketFeatures holds per-symbol market feature values used by the signal
// scorer. All values are normalized to [0,1] at the ingestion boundary.
type MarketFeatures struct {
	Momentum   float64 `json:"momentum"`
	Liquidity  float64 `json:"liquidity"`
	Volatility float64 `json:"volatility"`
	Stability  float64 `json:"stability"`
}

// Recommendation is an immutable per-symbol trading recommendation for one run.
// All numeric fields are clamped once at ingestion; downstream code may assume
// the documented domains.
type Recommendation struct {
	Symbol                string          `json:"symbol"`
	Category              Category        `json:"category"`
	Intensity             float64         `json:"intensity"`  // [-1,1]
	Confidence            float64         `json:"confidence"` // [0,1]
	Action                Action          `json:"action"`
	ModelTargetWeight     float64         `json:"model_target_weight"`      // [0,1]
	PrevModelTargetWeight float64         `json:"prev_model_target_weight"` // [0,1]
	BuyScore              float64         `json:"buy_score"`
	SellScore             float64         `json:"sell_score"`
	ExpectedEdgeRate      float64         `json:"expected_edge_rate"`
	EstimatedCostRate     float64         `json:"estimated_cost_rate"`
	SpreadRate            float64         `json:"spread_rate"`
	ImpactRate            float64         `json:"impact_rate"`
	ExpectedVolatility    float64         `json:"expected_volatility"`
	Features              *MarketFeatures `json:"features,omitempty"`
}

// Normalize clamps all numeric fields to their documented domains and
// normalizes enum fields. This is the single coercion boundary; nothing
// downstream re-validates.
func (r *Recommendation) Normalize() {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Category = CategoryFromString(string(r.Category))
	r.Action = ActionFromString(string(r.Action))
	r.Intensity = clampFinite(r.Intensity, -1, 1)
	r.Confidence = clampFinite(r.Confidence, 0, 1)
	r.ModelTargetWeight = clampFinite(r.ModelTargetWeight, 0, 1)
	r.PrevModelTargetWeight = clampFinite(r.PrevModelTargetWeight, 0, 1)
	r.BuyScore = clampFinite(r.BuyScore, 0, 1)
	r.SellScore = clampFinite(r.SellScore, 0, 1)
	r.ExpectedEdgeRate = clampFinite(r.ExpectedEdgeRate, 0, 1)
	r.EstimatedCostRate = clampFinite(r.EstimatedCostRate, 0, 1)
	r.SpreadRate = clampFinite(r.SpreadRate, 0, 1)
	r.ImpactRate = clampFinite(r.ImpactRate, 0, 1)
	r.ExpectedVolatility = clampFinite(r.ExpectedVolatility, 0, 1)
	if r.Features != nil {
		r.Features.Momentum = clampFinite(r.Features.Momentum, 0, 1)
		r.Features.Liquidity = clampFinite(r.Features.Liquidity, 0, 1)
		r.Features.Volatility = clampFinite(r.Features.Volatility, 0, 1)
		r.Features.Stability = clampFinite(r.Features.Stability, 0, 1)
	}
}

// ExecutionUrgency indicates how aggressively an order should be priced
type ExecutionUrgency string

const (
	UrgencyNormal    ExecutionUrgency = "normal"
	UrgencyImmediate ExecutionUrgency = "immediate"
)

// TriggerReason tags why a trade request was generated or adjusted.
// Persisted with the trade for observability; machine-readable.
type TriggerReason string

const (
	TriggerRebalance          TriggerReason = "rebalance"
	TriggerStopLoss           TriggerReason = "stop_loss"
	TriggerTrailingTakeProfit TriggerReason = "trailing_take_profit"
	TriggerStagedExit         TriggerReason = "staged_exit"
	TriggerFullLiquidation    TriggerReason = "full_liquidation"
	TriggerNoTradeTrim        TriggerReason = "no_trade_trim"
	TriggerCancelFailed       TriggerReason = "cancel_failed"
)

// Balance represents one asset balance from the exchange.
// Cash is a balance whose symbol equals CashSymbol.
type Balance struct {
	Symbol      string  `json:"symbol"`
	Amount      float64 `json:"amount"`
	AvgBuyPrice float64 `json:"avg_buy_price"`
}

// IsCash reports whether this balance is the settlement currency
func (b Balance) IsCash() bool {
	return b.Symbol == CashSymbol
}

// CashAmount returns the settlement-currency balance from a balance set,
// or 0 when absent.
func CashAmount(balances []Balance) float64 {
	for _, b := range balances {
		if b.IsCash() {
			return b.Amount
		}
	}
	return 0
}

// FindBalance returns the balance for a symbol, or nil when not held
func FindBalance(balances []Balance, symbol string) *Balance {
	for i := range balances {
		if balances[i].Symbol == symbol {
			return &balances[i]
		}
	}
	return nil
}

// TradeRequest is a gated request for one trade. Diff is the signed relative
// weight change in [-1,1]: -1 liquidates the position, +0.5 grows it by half
// of its current weight.
type TradeRequest struct {
	Symbol         string
	Diff           float64
	Balances       []Balance // snapshot the request was sized against
	MarketPrice    float64
	Recommendation *Recommendation // nil for externally supplied sells
	Urgency        ExecutionUrgency
	TriggerReason  TriggerReason
}

// TradePolicy holds the named numeric thresholds for sizing and gating.
// Callers may override the shared default per call.
type TradePolicy struct {
	// Allocation band: a candidate only trades when the target deviates from
	// the current weight by at least max(MinRebalanceBand, target*BandRatio),
	// both scaled by the regime band multiplier.
	MinRebalanceBand float64
	BandRatio        float64

	// Cost gate
	FeeRate        float64
	SlippageRate   float64
	EdgeBufferRate float64

	// Scorer thresholds
	MinTradeIntensity       float64
	SellScoreThreshold      float64
	MinAllocationConfidence float64

	// Staged-exit magnitudes (positive fractions of the position)
	StagedExitFull   float64
	StagedExitMedium float64
	StagedExitLight  float64

	// Payoff overlay floors (negative diffs; the most negative allowed)
	StopLossFloor float64
	TrailingFloor float64

	// Notional limits in the settlement currency
	MinSellNotional float64
	MinTradePrice   float64

	// Portfolio slot count used for target budgeting
	MaxSlots int
}

// DefaultTradePolicy returns the shared policy defaults
func DefaultTradePolicy() TradePolicy {
	return TradePolicy{
		MinRebalanceBand:        0.05,
		BandRatio:               0.25,
		FeeRate:                 0.0005,
		SlippageRate:            0.001,
		EdgeBufferRate:          0.0015,
		MinTradeIntensity:       0.1,
		SellScoreThreshold:      0.6,
		MinAllocationConfidence: 0.35,
		StagedExitFull:          1.0,
		StagedExitMedium:        0.5,
		StagedExitLight:         0.25,
		StopLossFloor:           -0.35,
		TrailingFloor:           -0.25,
		MinSellNotional:         5500,
		MinTradePrice:           5000,
		MaxSlots:                5,
	}
}

// RegimePolicy holds the regime-derived multipliers applied to sizing and
// turnover for one run. All fields are pre-clamped by the resolver.
type RegimePolicy struct {
	ExposureMultiplier      float64              // [0.75,1.15]
	RebalanceBandMultiplier float64              // [0.85,1.5]
	TurnoverCap             float64              // [0.2,1]
	CategoryCaps            map[Category]float64 // per-category weight fraction
}

// CategoryCap returns the exposure cap for a category, falling back to the
// other-category cap for unknown categories.
func (p RegimePolicy) CategoryCap(category Category) float64 {
	if cap, ok := p.CategoryCaps[category]; ok {
		return cap
	}
	return p.CategoryCaps[CategoryOther]
}

// RegimeSnapshot is the raw external market regime reading
type RegimeSnapshot struct {
	FearGreedIndex float64 `json:"fear_greed_index"`
	BTCDominance   float64 `json:"btc_dominance"`
	AltcoinIndex   float64 `json:"altcoin_index"`
	ObservedAt     time.Time
}

// ExecutionSnapshot is a consistent per-phase view of the account: balances,
// orderable symbols, tradable value, and current weights. Immutable within
// a phase; the orchestrator rebuilds it between the sell and buy phases.
type ExecutionSnapshot struct {
	Balances         []Balance
	Orderable        map[string]bool
	OrderableUnknown bool // true only when every orderability check failed
	TotalTradableKrw float64
	CurrentWeights   map[string]float64 // symbol -> [0,1]
	TradableKrw      map[string]float64 // symbol -> settlement-currency value
	Prices           map[string]float64 // symbol -> price (avg-buy fallback)
}

// IsOrderable reports whether a symbol may be traded in this snapshot.
// Symbols that were never checked fail open (kept); only a snapshot whose
// every check failed reports nothing as orderable.
func (s *ExecutionSnapshot) IsOrderable(symbol string) bool {
	if s.OrderableUnknown {
		return false
	}
	ok, checked := s.Orderable[symbol]
	if !checked {
		return true
	}
	return ok
}

// CurrentWeight returns the snapshot weight for a symbol, 0 when not held
func (s *ExecutionSnapshot) CurrentWeight(symbol string) float64 {
	return s.CurrentWeights[symbol]
}

// Clamp01 clamps v to [0,1], mapping non-finite values to 0
func Clamp01(v float64) float64 {
	return clampFinite(v, 0, 1)
}

// Clamp clamps v to [lo,hi], mapping non-finite values to lo
func Clamp(v, lo, hi float64) float64 {
	return clampFinite(v, lo, hi)
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
