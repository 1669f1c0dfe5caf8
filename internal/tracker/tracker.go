/*

This file contains the performance tracker, which folds finished cycles into
the per-owner running totals. Monetary accumulation stays in fixed point so a
long-running engine never drifts.

*/

package tracker

import (
	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/types"
)

var trackerLogger = logger.GetForComponent("performance_tracker")

// ApplyResult accumulates one cycle's outcome into the running metrics. It is
// passed to the registry's RecordCycle and runs under the registry lock.
func ApplyResult(pm *types.PerformanceMetrics, res types.ExecutionResult) {
	if pm.TotalProfitUSD.IsNil() {
		*pm = types.NewPerformanceMetrics()
	}

	pm.TotalCycles++
	pm.LastCycleAt = res.CompletedAt

	for _, sr := range res.Scenarios {
		switch sr.Kind {
		case types.OutcomeExecuted:
			pm.ScenariosExecuted++
		case types.OutcomeSkipped:
			pm.ScenariosSkipped++
		case types.OutcomeFailed:
			pm.ScenariosFailed++
		}
	}

	if !res.TotalProfitUSD.IsNil() {
		pm.TotalProfitUSD = pm.TotalProfitUSD.Add(res.TotalProfitUSD)
	}
	if !res.TotalGasUSD.IsNil() {
		pm.TotalGasUSD = pm.TotalGasUSD.Add(res.TotalGasUSD)
	}

	trackerLogger.Debug().
		Str("owner", res.Owner).
		Int("totalCycles", pm.TotalCycles).
		Str("totalProfitUSD", pm.TotalProfitUSD.String()).
		Str("totalGasUSD", pm.TotalGasUSD.String()).
		Msg("Cycle folded into performance metrics")
}
