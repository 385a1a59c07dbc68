// Package scoring converts recommendation intensity and market features into
// buy/sell scores and a base target weight.
package scoring

import (
	"github.com/aristath/coinpilot/internal/domain"
	"github.com/rs/zerolog"
)

// Score blend weights. AI intensity dominates; market features temper it.
const (
	defaultAIWeight      = 0.6
	defaultFeatureWeight = 0.4
)

// Feature sub-score weights; they sum to 1
const (
	weightConfidence = 0.30
	weightMomentum   = 0.25
	weightLiquidity  = 0.20
	weightVolInverse = 0.15
	weightStability  = 0.10
)

// Result holds the scorer output for one recommendation
type Result struct {
	BuyScore     float64
	SellScore    float64
	TargetWeight float64
	Action       domain.Action
}

// Scorer derives buy/sell scores and model target weights
type Scorer struct {
	aiWeight      float64
	featureWeight float64
	log           zerolog.Logger
}

// NewScorer creates a scorer with the default blend weights
func NewScorer(log zerolog.Logger) *Scorer {
	return &Scorer{
		aiWeight:      defaultAIWeight,
		featureWeight: defaultFeatureWeight,
		log:           log.With().Str("component", "signal_scorer").Logger(),
	}
}

// Score computes buy/sell scores, the base target weight, and the action
// for one recommendation. The recommendation is not mutated.
func (s *Scorer) Score(rec *domain.Recommendation, policy domain.TradePolicy) Result {
	featureScore := s.featureScore(rec)

	buyScore := s.aiWeight*domain.Clamp01(rec.Intensity) + s.featureWeight*featureScore
	sellScore := s.aiWeight*domain.Clamp01(-rec.Intensity) + s.featureWeight*(1-featureScore)

	targetWeight := domain.Clamp01(buyScore)
	forcedOut := rec.Intensity <= policy.MinTradeIntensity || sellScore >= policy.SellScoreThreshold
	if forcedOut {
		targetWeight = 0
	}

	var action domain.Action
	switch {
	case targetWeight > 0:
		action = domain.ActionBuy
	case forcedOut:
		action = domain.ActionSell
	default:
		action = domain.ActionHold
	}

	return Result{
		BuyScore:     buyScore,
		SellScore:    sellScore,
		TargetWeight: targetWeight,
		Action:       action,
	}
}

// Apply scores every recommendation in place. Buy and sell scores are always
// filled; the action and target weight are overwritten only for actionable
// (buy/sell) inputs. Hold and no_trade recommendations keep their ingested
// action and model target weight, which downstream trim sizing reads, so a
// passive holding is never re-scored into an exit.
func (s *Scorer) Apply(recs []domain.Recommendation, policy domain.TradePolicy) {
	for i := range recs {
		result := s.Score(&recs[i], policy)
		recs[i].BuyScore = result.BuyScore
		recs[i].SellScore = result.SellScore

		passive := recs[i].Action == domain.ActionHold || recs[i].Action == domain.ActionNoTrade
		if !passive {
			recs[i].ModelTargetWeight = result.TargetWeight
			recs[i].Action = result.Action
		}

		s.log.Debug().
			Str("symbol", recs[i].Symbol).
			Float64("buy_score", result.BuyScore).
			Float64("sell_score", result.SellScore).
			Float64("target_weight", recs[i].ModelTargetWeight).
			Str("action", string(recs[i].Action)).
			Msg("Scored recommendation")
	}
}

// featureScore is a weighted sum of five clamped sub-scores. Missing features
// contribute 0, so a bare recommendation is scored on intensity alone.
func (s *Scorer) featureScore(rec *domain.Recommendation) float64 {
	score := weightConfidence * domain.Clamp01(rec.Confidence)

	if rec.Features == nil {
		return score
	}

	f := rec.Features
	score += weightMomentum * domain.Clamp01(f.Momentum)
	score += weightLiquidity * domain.Clamp01(f.Liquidity)
	score += weightVolInverse * domain.Clamp01(1-f.Volatility)
	score += weightStability * domain.Clamp01(f.Stability)
	return score
}
