/*

This file contains the risk assessor, which turns portfolio metrics into a
qualitative verdict plus advisory recommendations.

*/

package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/types"
)

var ErrInvalidMetrics = errors.New("invalid portfolio metrics")

var riskLogger = logger.GetForComponent("risk_assessor")

// Per-position volatility classes used for market risk.
const (
	volatilityStable = 10.0
	volatilityMajor  = 50.0
	volatilityOther  = 80.0
)

// Classification boundaries for the averaged overall risk.
const (
	overallHighAbove   = 70.0
	overallMediumAbove = 40.0
)

// Recommendation thresholds per factor.
const (
	concentrationAdviceAbove = 60.0
	protocolAdviceAbove      = 50.0
	marketAdviceAbove        = 60.0
)

// Fixed advisory strings, one per risk factor.
const (
	adviceLiquidation   = "Reduce borrowing or add collateral to improve health factor"
	adviceConcentration = "Diversify holdings across more assets and markets"
	adviceProtocol      = "Shift exposure toward lower-utilization, healthier markets"
	adviceMarket        = "Increase stablecoin allocation to dampen market volatility"
)

// AssessRisk derives the qualitative risk verdict from an account snapshot
// and its portfolio metrics.
func AssessRisk(account types.AccountSnapshot, portfolio types.PortfolioMetrics) (types.RiskMetrics, error) {
	if err := validateMetrics(portfolio); err != nil {
		riskLogger.Error().Str("owner", account.Owner).Err(err).Msg("Metrics validation failed")
		return types.RiskMetrics{}, err
	}

	liquidationRisk := classifyLiquidationRisk(account.HealthFactor)
	concentrationRisk := 100.0 - portfolio.DiversificationScore
	protocolRisk := portfolio.RiskScore
	marketRisk := calculateMarketRisk(account.Positions)

	overallScore := (liquidationRisk.Numeric() + concentrationRisk + protocolRisk + marketRisk) / 4.0
	overallRisk := classifyOverall(overallScore)

	var recommendations []string
	if liquidationRisk == types.RiskHigh {
		recommendations = append(recommendations, adviceLiquidation)
	}
	if concentrationRisk > concentrationAdviceAbove {
		recommendations = append(recommendations, adviceConcentration)
	}
	if protocolRisk > protocolAdviceAbove {
		recommendations = append(recommendations, adviceProtocol)
	}
	if marketRisk > marketAdviceAbove {
		recommendations = append(recommendations, adviceMarket)
	}

	result := types.RiskMetrics{
		HealthFactor:      account.HealthFactor,
		LiquidationRisk:   liquidationRisk,
		ConcentrationRisk: concentrationRisk,
		ProtocolRisk:      protocolRisk,
		MarketRisk:        marketRisk,
		OverallRisk:       overallRisk,
		Recommendations:   recommendations,
	}

	riskLogger.Debug().
		Str("owner", account.Owner).
		Str("liquidationRisk", string(liquidationRisk)).
		Float64("concentrationRisk", concentrationRisk).
		Float64("protocolRisk", protocolRisk).
		Float64("marketRisk", marketRisk).
		Float64("overallScore", overallScore).
		Str("overallRisk", string(overallRisk)).
		Msg("Risk assessed")

	return result, nil
}

func classifyLiquidationRisk(healthFactor float64) types.RiskLevel {
	switch {
	case healthFactor < 1.5:
		return types.RiskHigh
	case healthFactor < 2.0:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

func classifyOverall(score float64) types.RiskLevel {
	switch {
	case score > overallHighAbove:
		return types.RiskHigh
	case score > overallMediumAbove:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// calculateMarketRisk averages the per-position volatility class.
func calculateMarketRisk(positions []types.Position) float64 {
	if len(positions) == 0 {
		return 0
	}

	total := 0.0
	for _, pos := range positions {
		switch {
		case types.IsStableSymbol(pos.Symbol):
			total += volatilityStable
		case types.IsMajorSymbol(pos.Symbol):
			total += volatilityMajor
		default:
			total += volatilityOther
		}
	}
	return total / float64(len(positions))
}

func validateMetrics(m types.PortfolioMetrics) error {
	for name, v := range map[string]float64{
		"diversification_score": m.DiversificationScore,
		"risk_score":            m.RiskScore,
		"liquidity_score":       m.LiquidityScore,
		"net_apy":               m.NetAPY,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidMetrics, name)
		}
	}
	if m.DiversificationScore < 0 || m.DiversificationScore > 100 {
		return fmt.Errorf("%w: diversification score %f outside [0,100]", ErrInvalidMetrics, m.DiversificationScore)
	}
	if m.RiskScore < 0 || m.RiskScore > 100 {
		return fmt.Errorf("%w: risk score %f outside [0,100]", ErrInvalidMetrics, m.RiskScore)
	}
	return nil
}
