package scoring

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/coinpilot/internal/domain"
)

func TestScore_StrongBuySignal(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())
	rec := &domain.Recommendation{
		Symbol:     "BTC",
		Intensity:  0.8,
		Confidence: 0.9,
		Features: &domain.MarketFeatures{
			Momentum:   0.7,
			Liquidity:  0.8,
			Volatility: 0.2,
			Stability:  0.6,
		},
	}

	result := scorer.Score(rec, domain.DefaultTradePolicy())

	assert.Equal(t, domain.ActionBuy, result.Action)
	assert.Greater(t, result.BuyScore, 0.5)
	assert.Less(t, result.SellScore, result.BuyScore)
	assert.Equal(t, result.BuyScore, result.TargetWeight)
}

func TestScore_WeakIntensityForcesTargetToZero(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())
	policy := domain.DefaultTradePolicy()
	rec := &domain.Recommendation{
		Symbol:     "XRP",
		Intensity:  policy.MinTradeIntensity, // at the threshold, not above
		Confidence: 0.9,
	}

	result := scorer.Score(rec, policy)

	assert.Equal(t, 0.0, result.TargetWeight)
	assert.Equal(t, domain.ActionSell, result.Action)
}

func TestScore_StrongSellScoreForcesTargetToZero(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())
	rec := &domain.Recommendation{
		Symbol:     "DOGE",
		Intensity:  -0.9,
		Confidence: 0.2,
	}

	result := scorer.Score(rec, domain.DefaultTradePolicy())

	assert.GreaterOrEqual(t, result.SellScore, 0.6)
	assert.Equal(t, 0.0, result.TargetWeight)
	assert.Equal(t, domain.ActionSell, result.Action)
}

func TestScore_NilFeaturesScoredOnIntensityAndConfidence(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())
	rec := &domain.Recommendation{
		Symbol:     "ETH",
		Intensity:  0.5,
		Confidence: 1.0,
	}

	result := scorer.Score(rec, domain.DefaultTradePolicy())

	// 0.6*0.5 + 0.4*(0.30*1.0)
	assert.InDelta(t, 0.42, result.BuyScore, 1e-9)
	assert.Equal(t, domain.ActionBuy, result.Action)
}

func TestApply_MutatesRecommendationsInPlace(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())
	recs := []domain.Recommendation{
		{Symbol: "BTC", Intensity: 0.7, Confidence: 0.8},
		{Symbol: "SHIB", Intensity: -0.8, Confidence: 0.3},
	}

	scorer.Apply(recs, domain.DefaultTradePolicy())

	assert.Equal(t, domain.ActionBuy, recs[0].Action)
	assert.Greater(t, recs[0].ModelTargetWeight, 0.0)
	assert.Equal(t, domain.ActionSell, recs[1].Action)
	assert.Equal(t, 0.0, recs[1].ModelTargetWeight)
}

func TestApply_PreservesHoldAndNoTradeInputs(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())
	recs := []domain.Recommendation{
		// Weak intensity would force an actionable rec to sell with target 0;
		// a passive rec must keep its action and model target untouched.
		{Symbol: "ADA", Action: domain.ActionHold, ModelTargetWeight: 0.10, Intensity: 0.05, Confidence: 0.9},
		{Symbol: "XLM", Action: domain.ActionNoTrade, ModelTargetWeight: 0.05, Intensity: -0.2, Confidence: 0.2},
	}

	scorer.Apply(recs, domain.DefaultTradePolicy())

	assert.Equal(t, domain.ActionHold, recs[0].Action)
	assert.Equal(t, 0.10, recs[0].ModelTargetWeight)
	assert.Equal(t, domain.ActionNoTrade, recs[1].Action)
	assert.Equal(t, 0.05, recs[1].ModelTargetWeight)

	// Scores are still filled for the overlay to read
	assert.Greater(t, recs[0].BuyScore, 0.0)
	assert.Greater(t, recs[1].SellScore, 0.0)
}

func TestFeatureScore_HighVolatilityLowersScore(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	calm := &domain.Recommendation{
		Confidence: 0.5,
		Features:   &domain.MarketFeatures{Momentum: 0.5, Liquidity: 0.5, Volatility: 0.1, Stability: 0.5},
	}
	volatile := &domain.Recommendation{
		Confidence: 0.5,
		Features:   &domain.MarketFeatures{Momentum: 0.5, Liquidity: 0.5, Volatility: 0.9, Stability: 0.5},
	}

	assert.Greater(t, scorer.featureScore(calm), scorer.featureScore(volatile))
}
