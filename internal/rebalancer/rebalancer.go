/*

This file contains the rebalance decision logic: whether to act at all, and
which withdraw/deposit/repay actions to propose. Actions are proposals only;
execution belongs to an external collaborator.

*/

package rebalancer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/axiom-fi/sae/internal/utils"
)

var (
	ErrInvalidConfig     = errors.New("rebalance configuration is invalid")
	ErrMathematicalError = errors.New("mathematical calculation error")
)

var rebalLogger = logger.GetForComponent("rebalance_generator")

// Config carries the scenario-level rebalancing knobs. Built from the
// scenario's typed parameters by the scheduler.
type Config struct {
	TargetAPY                float64
	MinYieldThresholdPercent float64
	MaxPositionSizeUSD       float64
	MinHealthFactor          float64
}

// Validate checks the configuration for financial safety.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"target_apy":          c.TargetAPY,
		"min_yield_threshold": c.MinYieldThresholdPercent,
		"max_position_size":   c.MaxPositionSizeUSD,
		"min_health_factor":   c.MinHealthFactor,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidConfig, name)
		}
	}
	if c.MinYieldThresholdPercent < 0 {
		return fmt.Errorf("%w: min yield threshold cannot be negative", ErrInvalidConfig)
	}
	if c.MaxPositionSizeUSD < 0 {
		return fmt.Errorf("%w: max position size cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ScoredOpportunity is an opportunity with its risk-adjusted yield.
type ScoredOpportunity struct {
	types.YieldOpportunity
	RiskAdjustedYield float64
}

// ShouldRebalance reports whether any rebalancing condition holds, with the
// reason that fired.
func ShouldRebalance(
	portfolio types.PortfolioMetrics,
	riskMetrics types.RiskMetrics,
	opportunities []types.YieldOpportunity,
	cfg Config,
) (bool, string) {
	if portfolio.HealthFactor < cfg.MinHealthFactor {
		return true, fmt.Sprintf("health factor %.2f below minimum %.2f", portfolio.HealthFactor, cfg.MinHealthFactor)
	}

	if riskMetrics.OverallRisk == types.RiskHigh {
		return true, "overall portfolio risk is high"
	}

	apyFloor := cfg.TargetAPY * (1.0 - cfg.MinYieldThresholdPercent/100.0)
	if cfg.TargetAPY > 0 && portfolio.NetAPY < apyFloor {
		return true, fmt.Sprintf("net APY %.2f%% below target floor %.2f%%", portfolio.NetAPY, apyFloor)
	}

	if best, ok := bestOpportunity(opportunities); ok {
		if best.APY-portfolio.NetAPY > cfg.MinYieldThresholdPercent {
			return true, fmt.Sprintf("opportunity %s offers %.2f%% vs current %.2f%%", best.Market, best.APY, portfolio.NetAPY)
		}
	}

	return false, "portfolio within target parameters"
}

// GenerateRebalanceActions proposes the cycle's portfolio moves:
//
//  1. Withdrawals from positions trailing the best opportunity, sized by a
//     health-factor-aware policy.
//  2. Deposits of the freed plus liquid capacity into the top ranked
//     opportunities.
//  3. Debt repayments when overall risk is high.
//
// Actions whose expected gain does not clear the yield threshold are dropped.
func GenerateRebalanceActions(
	account types.AccountSnapshot,
	portfolio types.PortfolioMetrics,
	riskMetrics types.RiskMetrics,
	opportunities []types.YieldOpportunity,
	cfg Config,
	params types.EngineParameters,
) ([]types.RebalanceAction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var actions []types.RebalanceAction

	best, hasBest := bestOpportunity(opportunities)

	// --- Step 1: withdraw from underperforming positions ---
	freedUSD := 0.0
	if hasBest {
		for _, pos := range account.Positions {
			if best.APY-pos.SupplyAPY <= cfg.MinYieldThresholdPercent {
				continue
			}

			amount, err := CalculateOptimalWithdrawAmount(pos, cfg.MinHealthFactor, params)
			if err != nil {
				return nil, err
			}
			if amount.IsZero() {
				rebalLogger.Debug().
					Str("market", pos.Market).
					Float64("healthFactor", pos.HealthFactor).
					Msg("Withdrawal skipped by health-factor policy")
				continue
			}

			gain, err := ExpectedGain(amount, pos.SupplyAPY, best.APY)
			if err != nil {
				return nil, err
			}

			amountFloat, err := utils.DecToFloat64(amount)
			if err != nil {
				return nil, err
			}
			freedUSD += amountFloat

			actions = append(actions, types.RebalanceAction{
				Type:            types.ActionWithdraw,
				AmountUSD:       amount,
				Market:          pos.Market,
				Reason:          fmt.Sprintf("position APY %.2f%% trails best opportunity %.2f%%", pos.SupplyAPY, best.APY),
				ExpectedGainUSD: gain,
				Risk:            types.RiskLow,
			})
		}
	}

	// --- Step 2: deposit freed and liquid capacity into ranked opportunities ---
	capacityUSD := account.LiquidUSD() + freedUSD
	ranked := RankOpportunities(opportunities, params)
	if len(ranked) > params.MaxOpportunities {
		ranked = ranked[:params.MaxOpportunities]
	}

	depositActions, err := buildDeposits(ranked, capacityUSD, portfolio.NetAPY, cfg, params)
	if err != nil {
		return nil, err
	}
	actions = append(actions, depositActions...)

	// --- Step 3: repay debt on fragile positions when risk is high ---
	if riskMetrics.OverallRisk == types.RiskHigh {
		repayActions, err := buildRepayments(account.Positions, params)
		if err != nil {
			return nil, err
		}
		actions = append(actions, repayActions...)
	}

	// --- Step 4: drop actions that do not clear the yield threshold ---
	thresholdDec, err := utils.Float64ToDec(cfg.MinYieldThresholdPercent)
	if err != nil {
		return nil, err
	}
	filtered := actions[:0]
	for _, action := range actions {
		if action.ExpectedGainUSD.GT(thresholdDec) {
			filtered = append(filtered, action)
		} else {
			rebalLogger.Debug().
				Str("type", string(action.Type)).
				Str("market", action.Market).
				Str("expectedGain", action.ExpectedGainUSD.String()).
				Msg("Action dropped below yield threshold")
		}
	}

	rebalLogger.Info().
		Int("proposed", len(filtered)).
		Float64("capacityUSD", capacityUSD).
		Msg("Rebalance actions generated")

	return filtered, nil
}

// CalculateOptimalWithdrawAmount sizes a withdrawal by the position's health
// factor: half the position when comfortably collateralized, a quarter when
// merely safe, nothing otherwise. The result never pushes a leveraged
// position's health factor below the configured minimum.
func CalculateOptimalWithdrawAmount(pos types.Position, minHealthFactor float64, params types.EngineParameters) (sdkmath.LegacyDec, error) {
	fraction := 0.0
	switch {
	case pos.HealthFactor > params.AggressiveWithdrawHealthFactor:
		fraction = params.AggressiveWithdrawFraction
	case pos.HealthFactor > params.CautiousWithdrawHealthFactor:
		fraction = params.CautiousWithdrawFraction
	default:
		return sdkmath.LegacyZeroDec(), nil
	}

	amount := pos.SuppliedUSD * fraction

	// Withdrawing supply scales collateral down; cap the amount so the
	// projected health factor stays at or above the minimum.
	if pos.HasDebt() && pos.HealthFactor < types.InfiniteHealthFactor && minHealthFactor > 0 {
		if pos.HealthFactor <= minHealthFactor {
			return sdkmath.LegacyZeroDec(), nil
		}
		maxSafe := pos.SuppliedUSD * (1.0 - minHealthFactor/pos.HealthFactor)
		if amount > maxSafe {
			amount = maxSafe
		}
	}

	if amount <= 0 {
		return sdkmath.LegacyZeroDec(), nil
	}
	return utils.Float64ToDec(amount)
}

// ExpectedGain is the annualized USD gain of moving an amount between two
// APYs: amount × (toAPY − fromAPY) / 100, computed in fixed point.
func ExpectedGain(amountUSD sdkmath.LegacyDec, fromAPY, toAPY float64) (sdkmath.LegacyDec, error) {
	if amountUSD.IsNil() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: amount is nil", ErrMathematicalError)
	}
	fromDec, err := utils.Float64ToDec(fromAPY)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	toDec, err := utils.Float64ToDec(toAPY)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return amountUSD.Mul(toDec.Sub(fromDec)).Quo(sdkmath.LegacyNewDec(100)), nil
}

// RankOpportunities orders opportunities by risk-adjusted yield: APY
// discounted by the risk penalty and boosted for deep liquidity.
func RankOpportunities(opportunities []types.YieldOpportunity, params types.EngineParameters) []ScoredOpportunity {
	scored := make([]ScoredOpportunity, 0, len(opportunities))
	for _, opp := range opportunities {
		if opp.LiquidityUSD < params.MinOpportunityLiquidityUSD {
			continue
		}

		adjusted := opp.APY * opp.Risk.Penalty()
		if opp.LiquidityUSD > params.LiquidityBonusThresholdUSD {
			adjusted *= params.LiquidityBonusFactor
		}

		scored = append(scored, ScoredOpportunity{
			YieldOpportunity:  opp,
			RiskAdjustedYield: adjusted,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RiskAdjustedYield > scored[j].RiskAdjustedYield
	})
	return scored
}

// buildDeposits splits the available capacity across the ranked
// opportunities, weighted by risk-adjusted yield, capping each deposit at the
// configured position size and at a fraction of the market's liquidity.
func buildDeposits(
	ranked []ScoredOpportunity,
	capacityUSD float64,
	currentNetAPY float64,
	cfg Config,
	params types.EngineParameters,
) ([]types.RebalanceAction, error) {
	if capacityUSD <= 0 || len(ranked) == 0 {
		return nil, nil
	}

	totalYield := 0.0
	for _, opp := range ranked {
		totalYield += opp.RiskAdjustedYield
	}
	if totalYield <= 0 {
		return nil, nil
	}

	var actions []types.RebalanceAction
	for _, opp := range ranked {
		amount := capacityUSD * (opp.RiskAdjustedYield / totalYield)

		if cfg.MaxPositionSizeUSD > 0 && amount > cfg.MaxPositionSizeUSD {
			amount = cfg.MaxPositionSizeUSD
		}
		liquidityCap := opp.LiquidityUSD * params.OpportunityLiquidityCap
		if amount > liquidityCap {
			amount = liquidityCap
		}
		if amount < params.MinDepositUSD {
			rebalLogger.Debug().
				Str("market", opp.Market).
				Float64("amount", amount).
				Msg("Deposit below minimum, skipping")
			continue
		}

		amountDec, err := utils.Float64ToDec(amount)
		if err != nil {
			return nil, err
		}
		gain, err := ExpectedGain(amountDec, currentNetAPY, opp.APY)
		if err != nil {
			return nil, err
		}

		actions = append(actions, types.RebalanceAction{
			Type:            types.ActionDeposit,
			AmountUSD:       amountDec,
			Market:          opp.Market,
			Reason:          fmt.Sprintf("risk-adjusted yield %.2f%% ranks in top %d", opp.RiskAdjustedYield, params.MaxOpportunities),
			ExpectedGainUSD: gain,
			Risk:            opp.Risk,
		})
	}
	return actions, nil
}

// buildRepayments proposes paying down a fraction of debt on positions whose
// health factor sits below the repayment ceiling.
func buildRepayments(positions []types.Position, params types.EngineParameters) ([]types.RebalanceAction, error) {
	var actions []types.RebalanceAction
	for _, pos := range positions {
		if !pos.HasDebt() || pos.HealthFactor >= params.RepayHealthFactorCeiling {
			continue
		}

		amountDec, err := utils.Float64ToDec(pos.BorrowedUSD * params.DebtRepayFraction)
		if err != nil {
			return nil, err
		}
		// Repaying debt saves the borrow rate on the repaid amount.
		gain, err := ExpectedGain(amountDec, 0, pos.BorrowAPY)
		if err != nil {
			return nil, err
		}

		actions = append(actions, types.RebalanceAction{
			Type:            types.ActionRepay,
			AmountUSD:       amountDec,
			Market:          pos.Market,
			Reason:          fmt.Sprintf("health factor %.2f below repayment ceiling %.2f", pos.HealthFactor, params.RepayHealthFactorCeiling),
			ExpectedGainUSD: gain,
			Risk:            types.RiskLow,
		})
	}
	return actions, nil
}

func bestOpportunity(opportunities []types.YieldOpportunity) (types.YieldOpportunity, bool) {
	if len(opportunities) == 0 {
		return types.YieldOpportunity{}, false
	}
	best := opportunities[0]
	for _, opp := range opportunities[1:] {
		if opp.APY > best.APY {
			best = opp
		}
	}
	return best, true
}
