package scoring

import (
	"math"

	"github.com/aristath/coinpilot/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Annualization factor for daily crypto returns (markets trade every day)
const annualizationDays = 365

// FeaturesFromSeries derives normalized market features from daily close
// prices and traded notional volumes, for recommendations whose upstream
// payload carried no features. Returns nil when the series is too short to
// say anything.
func FeaturesFromSeries(closes, volumes []float64) *domain.MarketFeatures {
	if len(closes) < 3 {
		return nil
	}

	returns := dailyReturns(closes)
	if len(returns) < 2 {
		return nil
	}

	mean := stat.Mean(returns, nil)
	std := stat.StdDev(returns, nil)

	// Momentum: mean daily return mapped onto [0,1], 0.5 neutral, saturating
	// at roughly +/-2% per day.
	momentum := domain.Clamp01(0.5 + mean/0.04)

	// Volatility: annualized stdev; 0 is flat, 1 is 200%+ annualized
	annualized := std * math.Sqrt(annualizationDays)
	volatility := domain.Clamp01(annualized / 2.0)

	// Stability: share of daily moves within one stdev of the mean
	stability := withinOneSigma(returns, mean, std)

	// Liquidity: most recent volume relative to the series average,
	// saturating at 2x average.
	liquidity := relativeVolume(volumes)

	return &domain.MarketFeatures{
		Momentum:   momentum,
		Liquidity:  liquidity,
		Volatility: volatility,
		Stability:  stability,
	}
}

func dailyReturns(closes []float64) []float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return returns
}

func withinOneSigma(returns []float64, mean, std float64) float64 {
	if std == 0 {
		return 1
	}
	inside := 0
	for _, r := range returns {
		if math.Abs(r-mean) <= std {
			inside++
		}
	}
	return float64(inside) / float64(len(returns))
}

func relativeVolume(volumes []float64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	avg := stat.Mean(volumes, nil)
	if avg <= 0 {
		return 0
	}
	return domain.Clamp01(volumes[len(volumes)-1] / (2 * avg))
}
