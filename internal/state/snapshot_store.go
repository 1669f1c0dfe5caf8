// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/axiom-fi/sae/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveCycleSnapshot persists one cycle snapshot and returns its row ID.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	resultsJSON, err := json.Marshal(snapshot.Results)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal scenario results: %w", err)
	}
	txJSON, err := json.Marshal(snapshot.Transactions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal transactions: %w", err)
	}

	stmt := `
        INSERT INTO cycle_snapshots (
            owner, cycle_number, cycle_id, started_at, completed_at,
            skipped, message, results, transactions,
            total_profit_usd, total_gas_usd, risk_assessment
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING snapshot_id;`

	var snapshotID int64
	err = DB.QueryRow(
		stmt,
		snapshot.Owner, snapshot.CycleNumber, snapshot.CycleID,
		snapshot.StartedAt, snapshot.CompletedAt,
		snapshot.Skipped, snapshot.Message, resultsJSON, txJSON,
		snapshot.TotalProfitUSD, snapshot.TotalGasUSD, snapshot.RiskAssessment,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert cycle snapshot: %w", err)
	}

	log.Debug().
		Int64("snapshot_id", snapshotID).
		Str("owner", snapshot.Owner).
		Int("cycle_number", snapshot.CycleNumber).
		Msg("Cycle snapshot persisted")
	return snapshotID, nil
}

// GetRecentCycles returns the latest snapshots for an owner, newest first.
// An empty owner returns the latest snapshots across all owners.
func GetRecentCycles(owner string, limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
        SELECT snapshot_id, owner, cycle_number, cycle_id, started_at, completed_at,
               skipped, message, results, transactions,
               total_profit_usd, total_gas_usd, COALESCE(risk_assessment, '')
        FROM cycle_snapshots
        WHERE ($1 = '' OR owner = $1)
        ORDER BY completed_at DESC
        LIMIT $2;`

	rows, err := DB.Query(query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.CycleSnapshot
	for rows.Next() {
		var s types.CycleSnapshot
		var resultsJSON, txJSON []byte
		if err := rows.Scan(
			&s.SnapshotID, &s.Owner, &s.CycleNumber, &s.CycleID, &s.StartedAt, &s.CompletedAt,
			&s.Skipped, &s.Message, &resultsJSON, &txJSON,
			&s.TotalProfitUSD, &s.TotalGasUSD, &s.RiskAssessment,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle snapshot: %w", err)
		}
		if len(resultsJSON) > 0 {
			if err := json.Unmarshal(resultsJSON, &s.Results); err != nil {
				return nil, fmt.Errorf("failed to unmarshal scenario results: %w", err)
			}
		}
		if len(txJSON) > 0 {
			if err := json.Unmarshal(txJSON, &s.Transactions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transactions: %w", err)
			}
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// PerformanceSummary is the aggregate view the web layer serves.
type PerformanceSummary struct {
	Owner           string `json:"owner,omitempty"`
	TotalCycles     int    `json:"total_cycles"`
	SkippedCycles   int    `json:"skipped_cycles"`
	TotalProfitUSD  string `json:"total_profit_usd"`
	TotalGasUSD     string `json:"total_gas_usd"`
	FirstCycleAt    string `json:"first_cycle_at,omitempty"`
	LatestCycleAt   string `json:"latest_cycle_at,omitempty"`
	LatestRiskLevel string `json:"latest_risk_level,omitempty"`
}

// GetPerformanceSummary aggregates persisted cycles for an owner. An empty
// owner aggregates across all owners.
func GetPerformanceSummary(owner string) (PerformanceSummary, error) {
	if DB == nil {
		return PerformanceSummary{}, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE skipped),
               COALESCE(SUM(total_profit_usd), 0)::TEXT,
               COALESCE(SUM(total_gas_usd), 0)::TEXT,
               COALESCE(MIN(completed_at)::TEXT, ''),
               COALESCE(MAX(completed_at)::TEXT, '')
        FROM cycle_snapshots
        WHERE ($1 = '' OR owner = $1);`

	summary := PerformanceSummary{Owner: owner}
	row := DB.QueryRow(query, owner)
	err := row.Scan(
		&summary.TotalCycles, &summary.SkippedCycles,
		&summary.TotalProfitUSD, &summary.TotalGasUSD,
		&summary.FirstCycleAt, &summary.LatestCycleAt,
	)
	if err != nil {
		return PerformanceSummary{}, fmt.Errorf("failed to aggregate cycle snapshots: %w", err)
	}

	riskQuery := `
        SELECT COALESCE(risk_assessment, '')
        FROM cycle_snapshots
        WHERE ($1 = '' OR owner = $1)
        ORDER BY completed_at DESC
        LIMIT 1;`
	if err := DB.QueryRow(riskQuery, owner).Scan(&summary.LatestRiskLevel); err != nil && err != sql.ErrNoRows {
		return PerformanceSummary{}, fmt.Errorf("failed to read latest risk level: %w", err)
	}

	return summary, nil
}

// Store adapts the package-level persistence functions to the scheduler's
// CycleStore interface.
type Store struct{}

// IncrementCycleNumber advances the global cycle counter.
func (Store) IncrementCycleNumber() (int, error) {
	return IncrementCycleNumber()
}

// SaveCycleSnapshot persists a snapshot.
func (Store) SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	return SaveCycleSnapshot(snapshot)
}
