/*

This file contains the default engine parameters.

These values gate real portfolio moves, so each one is chosen to favor capital
preservation over aggressive yield chasing. They are used when no active
parameter set is found in the database during initialization.

*/

package config

import (
	"github.com/axiom-fi/sae/internal/types"
)

// DefaultEngineParameters provides the baseline thresholds for scheduling and
// rebalance generation.
var DefaultEngineParameters = types.EngineParameters{
	// --- Scheduling ---
	HighPriorityThreshold: 8, // Scenarios with priority above 8 preempt the rest of the cycle.
	// Rationale: liquidation protection and stop-loss scenarios sit at 9-10.
	// Once one of them acts, issuing further portfolio moves in the same cycle
	// risks contradicting the protective action.

	// --- Rebalance sizing policy ---
	AggressiveWithdrawHealthFactor: 3.0, // Withdraw half a position only above this health factor.
	CautiousWithdrawHealthFactor:   2.0, // Withdraw a quarter above this; nothing at or below.
	// Rationale: withdrawing supply reduces collateral. Below a 2.0 health
	// factor any withdrawal meaningfully increases liquidation risk, so the
	// engine refuses to size one.

	AggressiveWithdrawFraction: 0.50,
	CautiousWithdrawFraction:   0.25,

	// --- Opportunity ranking and allocation ---
	MaxOpportunities: 3, // Spread new deposits across at most the top 3 ranked markets.
	// Rationale: more targets per cycle multiplies gas and slippage without
	// adding meaningful diversification within a single cycle.

	OpportunityLiquidityCap: 0.05, // Never take more than 5% of a market's liquidity.
	// Rationale: a position that dominates its market cannot exit without
	// moving the price against itself.

	MinDepositUSD: 100.0, // Deposits below $100 are dust.
	// Rationale: gas costs make smaller positions uneconomical to open and
	// later unwind.

	MinOpportunityLiquidityUSD: 100000.0, // Ignore markets shallower than $100k.

	LiquidityBonusThresholdUSD: 1000000.0, // Markets deeper than $1M earn a ranking bonus.
	LiquidityBonusFactor:       1.10,
	// Rationale: deep liquidity lowers realized slippage on both entry and
	// exit, which is worth a 10% boost in the ranking.

	// --- Risk mitigation ---
	RepayHealthFactorCeiling: 1.5, // Positions below this get debt repayment when overall risk is high.
	DebtRepayFraction:        0.30,
	// Rationale: repaying 30% of debt lifts the health factor meaningfully
	// without liquidating productive collateral wholesale.

	// --- External calls ---
	ExternalCallTimeoutSeconds: 15,
	// Rationale: a stalled provider call stalls the scenario for the rest of
	// the cycle; bound it and treat timeout as a data-fetch failure.

	GasEstimatePerActionUSD: 2.0,
}
