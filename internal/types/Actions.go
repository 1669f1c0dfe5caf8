/*

This file contains the proposed-action and execution-result types. The engine
only proposes actions; signing and submission belong to an external
collaborator.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// ActionType defines the specific portfolio operations the engine proposes.
type ActionType string

const (
	ActionWithdraw ActionType = "WITHDRAW"
	ActionDeposit  ActionType = "DEPOSIT"
	ActionBorrow   ActionType = "BORROW"
	ActionRepay    ActionType = "REPAY"
	ActionSwap     ActionType = "SWAP"
)

// RebalanceAction is a single proposed portfolio move. Amounts are fixed-point
// decimals in USD.
type RebalanceAction struct {
	Type            ActionType        `json:"type"`
	AmountUSD       sdkmath.LegacyDec `json:"amount_usd"`
	Market          string            `json:"market"`
	Reason          string            `json:"reason"`
	ExpectedGainUSD sdkmath.LegacyDec `json:"expected_gain_usd"`
	Risk            RiskLevel         `json:"risk"`
}

// TransactionRequest is the descriptor handed to the external execution
// submitter.
type TransactionRequest struct {
	Owner   string          `json:"owner"`
	ChainID string          `json:"chain_id"`
	Action  RebalanceAction `json:"action"`
}

// OutcomeKind discriminates the scenario result union.
type OutcomeKind string

const (
	OutcomeExecuted OutcomeKind = "executed"
	OutcomeSkipped  OutcomeKind = "skipped"
	OutcomeFailed   OutcomeKind = "failed"
)

// ScenarioResult is the outcome of evaluating one scenario within a cycle.
// Exactly one of the Executed/Skipped/Failed shapes is populated, selected by
// Kind; use the constructors below.
type ScenarioResult struct {
	ScenarioID   string      `json:"scenario_id"`
	ScenarioName string      `json:"scenario_name"`
	Kind         OutcomeKind `json:"kind"`

	// Executed fields
	Transactions []TransactionRequest `json:"transactions,omitempty"`
	ProfitUSD    sdkmath.LegacyDec    `json:"profit_usd"`
	GasUSD       sdkmath.LegacyDec    `json:"gas_usd"`

	// Skipped field
	Reason string `json:"reason,omitempty"`

	// Failed field
	Error string `json:"error,omitempty"`
}

// ExecutedScenario builds a result for a scenario that produced transactions.
func ExecutedScenario(s AutomationScenario, txs []TransactionRequest, profit, gas sdkmath.LegacyDec) ScenarioResult {
	return ScenarioResult{
		ScenarioID:   s.ID,
		ScenarioName: s.Name,
		Kind:         OutcomeExecuted,
		Transactions: txs,
		ProfitUSD:    profit,
		GasUSD:       gas,
	}
}

// SkippedScenario builds a result for a scenario that chose not to act.
func SkippedScenario(s AutomationScenario, reason string) ScenarioResult {
	return ScenarioResult{
		ScenarioID:   s.ID,
		ScenarioName: s.Name,
		Kind:         OutcomeSkipped,
		Reason:       reason,
		ProfitUSD:    sdkmath.LegacyZeroDec(),
		GasUSD:       sdkmath.LegacyZeroDec(),
	}
}

// FailedScenario builds a result for a scenario whose evaluation errored.
func FailedScenario(s AutomationScenario, err error) ScenarioResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ScenarioResult{
		ScenarioID:   s.ID,
		ScenarioName: s.Name,
		Kind:         OutcomeFailed,
		Error:        msg,
		ProfitUSD:    sdkmath.LegacyZeroDec(),
		GasUSD:       sdkmath.LegacyZeroDec(),
	}
}

// Executed reports whether the scenario produced transactions.
func (r ScenarioResult) Executed() bool {
	return r.Kind == OutcomeExecuted
}

// ExecutionResult aggregates a full scheduler cycle for one owner.
// Skipped is true iff no scenario produced a transaction.
type ExecutionResult struct {
	Owner          string               `json:"owner"`
	CycleID        string               `json:"cycle_id"`
	Skipped        bool                 `json:"skipped"`
	Message        string               `json:"message"`
	Scenarios      []ScenarioResult     `json:"scenarios"`
	Transactions   []TransactionRequest `json:"transactions"`
	TotalProfitUSD sdkmath.LegacyDec    `json:"total_profit_usd"`
	TotalGasUSD    sdkmath.LegacyDec    `json:"total_gas_usd"`
	RiskAssessment string               `json:"risk_assessment,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    time.Time            `json:"completed_at"`
}
