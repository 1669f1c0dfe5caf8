/*

This file contains the persisted per-cycle snapshot. One row is written per
owner per scheduler cycle so the dashboard and the performance queries can
reconstruct what the engine decided and why.

*/

package types

import "time"

// CycleSnapshot is the durable record of one scheduler cycle for one owner.
// Monetary totals are stored as decimal strings to avoid binary float drift
// in the database round-trip.
type CycleSnapshot struct {
	SnapshotID     int64                `json:"snapshot_id,omitempty"` // assigned by the database
	Owner          string               `json:"owner"`
	CycleNumber    int                  `json:"cycle_number"`
	CycleID        string               `json:"cycle_id"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    time.Time            `json:"completed_at"`
	Skipped        bool                 `json:"skipped"`
	Message        string               `json:"message"`
	Results        []ScenarioResult     `json:"results"`
	Transactions   []TransactionRequest `json:"transactions"`
	TotalProfitUSD string               `json:"total_profit_usd"`
	TotalGasUSD    string               `json:"total_gas_usd"`
	RiskAssessment string               `json:"risk_assessment,omitempty"`
}

// SnapshotFromResult converts an aggregate cycle result into its persisted
// form.
func SnapshotFromResult(res ExecutionResult, cycleNumber int) CycleSnapshot {
	return CycleSnapshot{
		Owner:          res.Owner,
		CycleNumber:    cycleNumber,
		CycleID:        res.CycleID,
		StartedAt:      res.StartedAt,
		CompletedAt:    res.CompletedAt,
		Skipped:        res.Skipped,
		Message:        res.Message,
		Results:        res.Scenarios,
		Transactions:   res.Transactions,
		TotalProfitUSD: res.TotalProfitUSD.String(),
		TotalGasUSD:    res.TotalGasUSD.String(),
		RiskAssessment: res.RiskAssessment,
	}
}
