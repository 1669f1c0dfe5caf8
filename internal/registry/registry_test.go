package registry

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yieldScenario(id string, priority int) types.AutomationScenario {
	return types.AutomationScenario{
		ID:       id,
		Name:     "yield " + id,
		Type:     types.ScenarioYieldOptimization,
		Enabled:  true,
		Priority: priority,
		Params: types.ScenarioParams{
			YieldOptimization: &types.YieldOptimizationParams{
				TargetAPY:                8,
				MinYieldThresholdPercent: 0.5,
				MaxPositionSizeUSD:       10000,
			},
		},
	}
}

func TestRegisterSortsByDescendingPriority(t *testing.T) {
	r := New()

	scenarios := []types.AutomationScenario{
		yieldScenario("low", 2),
		yieldScenario("high", 9),
		yieldScenario("mid", 5),
	}

	actx, err := r.Register("owner-1", "chain-1", scenarios, types.GlobalConfig{})
	require.NoError(t, err)

	require.Len(t, actx.Scenarios, 3)
	assert.Equal(t, "high", actx.Scenarios[0].ID)
	assert.Equal(t, "mid", actx.Scenarios[1].ID)
	assert.Equal(t, "low", actx.Scenarios[2].ID)

	// The sorted order must also be what Get returns.
	got, err := r.Get("owner-1")
	require.NoError(t, err)
	assert.Equal(t, "high", got.Scenarios[0].ID)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	r := New()

	_, err := r.Register("", "chain-1", nil, types.GlobalConfig{})
	assert.ErrorIs(t, err, ErrInvalidOwner)

	_, err = r.Register(strings.Repeat("x", 129), "chain-1", nil, types.GlobalConfig{})
	assert.ErrorIs(t, err, ErrInvalidOwner)

	bad := yieldScenario("s1", 11)
	_, err = r.Register("owner-1", "chain-1", []types.AutomationScenario{bad}, types.GlobalConfig{})
	assert.ErrorIs(t, err, types.ErrInvalidScenario)

	mismatched := yieldScenario("s2", 5)
	mismatched.Type = types.ScenarioStopLoss
	_, err = r.Register("owner-1", "chain-1", []types.AutomationScenario{mismatched}, types.GlobalConfig{})
	assert.ErrorIs(t, err, types.ErrScenarioParamsMismatch)
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	r := New()
	_, err := r.Register("owner-1", "chain-1", []types.AutomationScenario{yieldScenario("s1", 5)}, types.GlobalConfig{})
	require.NoError(t, err)

	got, err := r.Get("owner-1")
	require.NoError(t, err)
	got.Scenarios[0].Priority = 0
	got.Scenarios[0].ID = "tampered"
	// Params variants are pointers; writing through the copy must not reach
	// the stored context.
	got.Scenarios[0].Params.YieldOptimization.TargetAPY = 99

	again, err := r.Get("owner-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", again.Scenarios[0].ID)
	assert.Equal(t, 5, again.Scenarios[0].Priority)
	assert.Equal(t, float64(8), again.Scenarios[0].Params.YieldOptimization.TargetAPY)
}

func TestGetUnknownOwner(t *testing.T) {
	r := New()
	_, err := r.Get("nobody")
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestUpdateScenariosResortsAndKeepsPerformance(t *testing.T) {
	r := New()
	_, err := r.Register("owner-1", "chain-1", []types.AutomationScenario{yieldScenario("s1", 5)}, types.GlobalConfig{})
	require.NoError(t, err)

	// Seed some performance so the update provably keeps it.
	res := types.ExecutionResult{CompletedAt: time.Now()}
	require.NoError(t, r.RecordCycle("owner-1", res, func(pm *types.PerformanceMetrics, _ types.ExecutionResult) {
		pm.TotalCycles = 7
	}))

	err = r.UpdateScenarios("owner-1", []types.AutomationScenario{
		yieldScenario("a", 1),
		yieldScenario("b", 8),
	})
	require.NoError(t, err)

	got, err := r.Get("owner-1")
	require.NoError(t, err)
	require.Len(t, got.Scenarios, 2)
	assert.Equal(t, "b", got.Scenarios[0].ID)
	assert.Equal(t, 7, got.Performance.TotalCycles)
}

func TestUpdateScenariosUnknownOwnerIsNoOp(t *testing.T) {
	r := New()
	err := r.UpdateScenarios("nobody", []types.AutomationScenario{yieldScenario("s1", 5)})
	assert.NoError(t, err)
	assert.Empty(t, r.Owners())
}

func TestUpdateConfigUnknownOwnerIsNoOp(t *testing.T) {
	r := New()
	assert.NoError(t, r.UpdateConfig("nobody", types.GlobalConfig{MaxSlippagePercent: 1}))
}

func TestSetEmergencyStop(t *testing.T) {
	r := New()
	_, err := r.Register("owner-1", "chain-1", nil, types.GlobalConfig{})
	require.NoError(t, err)

	require.NoError(t, r.SetEmergencyStop("owner-1", true))
	got, err := r.Get("owner-1")
	require.NoError(t, err)
	assert.True(t, got.Config.EmergencyStop)

	require.NoError(t, r.SetEmergencyStop("owner-1", false))
	got, err = r.Get("owner-1")
	require.NoError(t, err)
	assert.False(t, got.Config.EmergencyStop)

	assert.ErrorIs(t, r.SetEmergencyStop("nobody", true), ErrContextNotFound)
}

func TestRecordCycleStampsExecutedScenarios(t *testing.T) {
	r := New()
	_, err := r.Register("owner-1", "chain-1", []types.AutomationScenario{
		yieldScenario("ran", 8),
		yieldScenario("skipped", 3),
	}, types.GlobalConfig{})
	require.NoError(t, err)

	completed := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	res := types.ExecutionResult{
		CompletedAt: completed,
		Scenarios: []types.ScenarioResult{
			types.ExecutedScenario(yieldScenario("ran", 8), nil, sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec()),
			types.SkippedScenario(yieldScenario("skipped", 3), "triggers not satisfied"),
		},
	}

	applied := false
	require.NoError(t, r.RecordCycle("owner-1", res, func(pm *types.PerformanceMetrics, _ types.ExecutionResult) {
		applied = true
		pm.TotalCycles++
	}))
	assert.True(t, applied)

	got, err := r.Get("owner-1")
	require.NoError(t, err)
	for _, s := range got.Scenarios {
		switch s.ID {
		case "ran":
			assert.Equal(t, completed, s.Params.LastExecution)
		case "skipped":
			assert.True(t, s.Params.LastExecution.IsZero())
		}
	}
	assert.Equal(t, 1, got.Performance.TotalCycles)

	err = r.RecordCycle("nobody", res, func(*types.PerformanceMetrics, types.ExecutionResult) {})
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	_, err := r.Register("owner-1", "chain-1", []types.AutomationScenario{yieldScenario("s1", 5)}, types.GlobalConfig{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			owner := fmt.Sprintf("owner-%d", i)
			_, _ = r.Register(owner, "chain-1", []types.AutomationScenario{yieldScenario("s1", i%10)}, types.GlobalConfig{})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = r.Get("owner-1")
			_ = r.Owners()
		}()
		go func(i int) {
			defer wg.Done()
			_ = r.UpdateScenarios("owner-1", []types.AutomationScenario{yieldScenario("s1", i%10)})
		}(i)
	}
	wg.Wait()

	got, err := r.Get("owner-1")
	require.NoError(t, err)
	assert.Len(t, got.Scenarios, 1)
}
