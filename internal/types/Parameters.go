/*

This file contains the tunable engine parameters: the thresholds, fractions
and caps used by the scheduler and the rebalance generator. Different sets of
these parameters can be persisted and activated per deployment.

*/

package types

// EngineParameters holds all tunable thresholds used by trigger evaluation,
// scheduling and rebalance generation.
type EngineParameters struct {
	// --- Scheduling ---
	HighPriorityThreshold int `json:"high_priority_threshold"` // scenarios strictly above this preempt the rest of the cycle on success

	// --- Rebalance sizing policy ---
	AggressiveWithdrawHealthFactor float64 `json:"aggressive_withdraw_health_factor"` // above this, withdraw half a position
	CautiousWithdrawHealthFactor   float64 `json:"cautious_withdraw_health_factor"`   // above this, withdraw a quarter; at or below, nothing
	AggressiveWithdrawFraction     float64 `json:"aggressive_withdraw_fraction"`
	CautiousWithdrawFraction       float64 `json:"cautious_withdraw_fraction"`

	// --- Opportunity ranking and allocation ---
	MaxOpportunities           int     `json:"max_opportunities"`             // deposits spread across at most this many ranked markets
	OpportunityLiquidityCap    float64 `json:"opportunity_liquidity_cap"`     // fraction of a market's liquidity a single deposit may take
	MinDepositUSD              float64 `json:"min_deposit_usd"`               // deposits below this are dust and dropped
	MinOpportunityLiquidityUSD float64 `json:"min_opportunity_liquidity_usd"` // opportunity feed filter
	LiquidityBonusThresholdUSD float64 `json:"liquidity_bonus_threshold_usd"` // markets deeper than this earn a yield bonus
	LiquidityBonusFactor       float64 `json:"liquidity_bonus_factor"`        // multiplier applied above the threshold

	// --- Risk mitigation ---
	RepayHealthFactorCeiling float64 `json:"repay_health_factor_ceiling"` // positions below this get debt repayment when overall risk is high
	DebtRepayFraction        float64 `json:"debt_repay_fraction"`

	// --- External calls ---
	ExternalCallTimeoutSeconds int     `json:"external_call_timeout_seconds"`
	GasEstimatePerActionUSD    float64 `json:"gas_estimate_per_action_usd"`
}
