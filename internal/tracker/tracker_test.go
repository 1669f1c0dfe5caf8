package tracker

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyResultCountsOutcomes(t *testing.T) {
	pm := types.NewPerformanceMetrics()
	completed := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	res := types.ExecutionResult{
		Owner:       "owner-1",
		CompletedAt: completed,
		Scenarios: []types.ScenarioResult{
			{ScenarioID: "a", Kind: types.OutcomeExecuted},
			{ScenarioID: "b", Kind: types.OutcomeExecuted},
			{ScenarioID: "c", Kind: types.OutcomeSkipped},
			{ScenarioID: "d", Kind: types.OutcomeFailed},
		},
		TotalProfitUSD: sdkmath.LegacyNewDec(12),
		TotalGasUSD:    sdkmath.LegacyNewDec(4),
	}

	ApplyResult(&pm, res)

	assert.Equal(t, 1, pm.TotalCycles)
	assert.Equal(t, 2, pm.ScenariosExecuted)
	assert.Equal(t, 1, pm.ScenariosSkipped)
	assert.Equal(t, 1, pm.ScenariosFailed)
	assert.Equal(t, completed, pm.LastCycleAt)
	assert.True(t, pm.TotalProfitUSD.Equal(sdkmath.LegacyNewDec(12)))
	assert.True(t, pm.TotalGasUSD.Equal(sdkmath.LegacyNewDec(4)))
}

// Accumulating 0.1 a thousand times must land on exactly 100. This is the
// whole point of keeping the totals in fixed point.
func TestApplyResultAccumulatesWithoutDrift(t *testing.T) {
	pm := types.NewPerformanceMetrics()
	tenth := sdkmath.LegacyMustNewDecFromStr("0.1")

	for i := 0; i < 1000; i++ {
		ApplyResult(&pm, types.ExecutionResult{
			TotalProfitUSD: tenth,
			TotalGasUSD:    tenth,
		})
	}

	require.Equal(t, 1000, pm.TotalCycles)
	assert.True(t, pm.TotalProfitUSD.Equal(sdkmath.LegacyNewDec(100)), pm.TotalProfitUSD.String())
	assert.True(t, pm.TotalGasUSD.Equal(sdkmath.LegacyNewDec(100)), pm.TotalGasUSD.String())
}

func TestApplyResultInitializesZeroValueMetrics(t *testing.T) {
	// A zero-value struct has nil decimals; ApplyResult must not panic on it.
	var pm types.PerformanceMetrics

	ApplyResult(&pm, types.ExecutionResult{TotalProfitUSD: sdkmath.LegacyNewDec(3)})

	assert.Equal(t, 1, pm.TotalCycles)
	assert.True(t, pm.TotalProfitUSD.Equal(sdkmath.LegacyNewDec(3)))
	assert.True(t, pm.TotalGasUSD.IsZero())
}

func TestApplyResultToleratesNilResultDecimals(t *testing.T) {
	pm := types.NewPerformanceMetrics()

	// Results built by hand may omit the totals entirely.
	ApplyResult(&pm, types.ExecutionResult{})

	assert.Equal(t, 1, pm.TotalCycles)
	assert.True(t, pm.TotalProfitUSD.IsZero())
}
