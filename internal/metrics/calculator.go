/*

This file contains the portfolio metrics calculator. Every cycle derives the
scores fresh from the account snapshot; nothing here carries state between
cycles.

*/

package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/axiom-fi/sae/internal/utils"
)

var ErrInvalidPositionData = errors.New("invalid position data")

var calcLogger = logger.GetForComponent("portfolio_metrics")

// Score assigned when the portfolio holds exactly one position: concentration
// is total, but a single deliberate position is not the same as an empty one.
const singlePositionDiversification = 20.0

// CalculatePortfolioMetrics derives all portfolio scores from a snapshot.
func CalculatePortfolioMetrics(account types.AccountSnapshot) (types.PortfolioMetrics, error) {
	if err := validatePositions(account.Positions); err != nil {
		calcLogger.Error().Str("owner", account.Owner).Err(err).Msg("Position validation failed")
		return types.PortfolioMetrics{}, err
	}

	netAPY := CalculateNetAPY(account.Positions)

	diversification, err := CalculateDiversificationScore(account.Positions)
	if err != nil {
		return types.PortfolioMetrics{}, errors.Join(errors.New("diversification score calculation failed"), err)
	}

	riskScore, err := CalculateRiskScore(account.Positions)
	if err != nil {
		return types.PortfolioMetrics{}, errors.Join(errors.New("risk score calculation failed"), err)
	}

	liquidityScore, err := CalculateLiquidityScore(account.Positions)
	if err != nil {
		return types.PortfolioMetrics{}, errors.Join(errors.New("liquidity score calculation failed"), err)
	}

	totalValue := account.LiquidUSD()
	for _, pos := range account.Positions {
		totalValue += pos.SuppliedUSD - pos.BorrowedUSD
	}

	result := types.PortfolioMetrics{
		TotalValueUSD:        totalValue,
		NetAPY:               netAPY,
		HealthFactor:         account.HealthFactor,
		DiversificationScore: diversification,
		RiskScore:            riskScore,
		LiquidityScore:       liquidityScore,
	}

	calcLogger.Debug().
		Str("owner", account.Owner).
		Float64("totalValueUSD", totalValue).
		Float64("netAPY", netAPY).
		Float64("diversification", diversification).
		Float64("riskScore", riskScore).
		Float64("liquidityScore", liquidityScore).
		Msg("Portfolio metrics calculated")

	return result, nil
}

// CalculateNetAPY returns the supply-weighted APY minus the borrow-weighted
// APY, in percent. Either term is zero when its denominator is zero.
func CalculateNetAPY(positions []types.Position) float64 {
	var totalSupplied, totalBorrowed float64
	var supplyWeighted, borrowWeighted float64

	for _, pos := range positions {
		totalSupplied += pos.SuppliedUSD
		supplyWeighted += pos.SuppliedUSD * pos.SupplyAPY
		totalBorrowed += pos.BorrowedUSD
		borrowWeighted += pos.BorrowedUSD * pos.BorrowAPY
	}

	supplyAPY := 0.0
	if totalSupplied > 0 {
		supplyAPY = supplyWeighted / totalSupplied
	}
	borrowAPY := 0.0
	if totalBorrowed > 0 {
		borrowAPY = borrowWeighted / totalBorrowed
	}

	return supplyAPY - borrowAPY
}

// CalculateDiversificationScore maps the Herfindahl index of supplied-amount
// weights onto [0,100]: 100·(1−H). Zero positions score 0 and a single
// position scores the fixed singlePositionDiversification.
func CalculateDiversificationScore(positions []types.Position) (float64, error) {
	if len(positions) == 0 {
		return 0, nil
	}
	if len(positions) == 1 {
		return singlePositionDiversification, nil
	}

	totalSupplied := 0.0
	for _, pos := range positions {
		totalSupplied += pos.SuppliedUSD
	}
	if totalSupplied <= 0 {
		return 0, nil
	}

	herfindahl := 0.0
	for _, pos := range positions {
		weight := pos.SuppliedUSD / totalSupplied
		herfindahl += weight * weight
	}

	score := 100.0 * (1.0 - herfindahl)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("diversification score is not finite: %f", score)
	}
	return utils.Clamp(score, 0, 100), nil
}

// CalculateRiskScore averages an additive per-position penalty over all
// positions. Each position's penalty is capped at 100.
func CalculateRiskScore(positions []types.Position) (float64, error) {
	if len(positions) == 0 {
		return 0, nil
	}

	total := 0.0
	for _, pos := range positions {
		penalty := 0.0

		switch {
		case pos.UtilizationRate > 0.90:
			penalty += 40
		case pos.UtilizationRate > 0.80:
			penalty += 25
		case pos.UtilizationRate > 0.70:
			penalty += 10
		}

		switch {
		case pos.HealthFactor < 1.2:
			penalty += 40
		case pos.HealthFactor < 1.5:
			penalty += 25
		case pos.HealthFactor < 2.0:
			penalty += 10
		}

		if !types.IsStableSymbol(pos.Symbol) {
			penalty += 20
		}

		total += utils.Clamp(penalty, 0, 100)
	}

	score := total / float64(len(positions))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("risk score is not finite: %f", score)
	}
	return utils.Clamp(score, 0, 100), nil
}

// CalculateLiquidityScore averages a banded per-position score of the ratio
// market liquidity / market total supply.
func CalculateLiquidityScore(positions []types.Position) (float64, error) {
	if len(positions) == 0 {
		return 0, nil
	}

	total := 0.0
	for _, pos := range positions {
		ratio := 0.0
		if pos.MarketTotalSupplyUSD > 0 {
			ratio = pos.MarketLiquidityUSD / pos.MarketTotalSupplyUSD
		}

		switch {
		case ratio >= 0.50:
			total += 100
		case ratio >= 0.30:
			total += 80
		case ratio >= 0.10:
			total += 60
		case ratio >= 0.05:
			total += 40
		default:
			total += 20
		}
	}

	score := total / float64(len(positions))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("liquidity score is not finite: %f", score)
	}
	return utils.Clamp(score, 0, 100), nil
}

func validatePositions(positions []types.Position) error {
	for i, pos := range positions {
		if math.IsNaN(pos.SuppliedUSD) || math.IsInf(pos.SuppliedUSD, 0) ||
			math.IsNaN(pos.BorrowedUSD) || math.IsInf(pos.BorrowedUSD, 0) ||
			math.IsNaN(pos.SupplyAPY) || math.IsInf(pos.SupplyAPY, 0) ||
			math.IsNaN(pos.BorrowAPY) || math.IsInf(pos.BorrowAPY, 0) {
			return fmt.Errorf("%w: position %d contains non-finite values", ErrInvalidPositionData, i)
		}
		if pos.SuppliedUSD < 0 || pos.BorrowedUSD < 0 {
			return fmt.Errorf("%w: position %d has negative balances", ErrInvalidPositionData, i)
		}
	}
	return nil
}
