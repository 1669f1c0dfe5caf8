package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/axiom-fi/sae/internal/advisor"
	"github.com/axiom-fi/sae/internal/config"
	"github.com/axiom-fi/sae/internal/registry"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	account       types.AccountSnapshot
	accountErr    error
	opportunities []types.YieldOpportunity
	price         float64
}

func (f *fakeProvider) GetAccount(context.Context, string) (types.AccountSnapshot, error) {
	return f.account, f.accountErr
}

func (f *fakeProvider) GetYieldOpportunities(context.Context, float64, types.RiskLevel) ([]types.YieldOpportunity, error) {
	return f.opportunities, nil
}

func (f *fakeProvider) GetAssetPrice(context.Context, string) (float64, error) {
	return f.price, nil
}

type fakeAdvisor struct {
	adviceByID map[string]advisor.Advice
	errByID    map[string]error
	calls      []string
}

func (f *fakeAdvisor) Run(_ context.Context, req advisor.Request) (advisor.Advice, error) {
	f.calls = append(f.calls, req.Scenario.ID)
	if err := f.errByID[req.Scenario.ID]; err != nil {
		return advisor.Advice{}, err
	}
	return f.adviceByID[req.Scenario.ID], nil
}

type fakeSubmitter struct {
	submitted [][]types.TransactionRequest
	err       error
}

func (f *fakeSubmitter) Submit(_ context.Context, txs []types.TransactionRequest) ([]string, error) {
	f.submitted = append(f.submitted, txs)
	if f.err != nil {
		return nil, f.err
	}
	return make([]string, len(txs)), nil
}

func healthyAccount() types.AccountSnapshot {
	return types.AccountSnapshot{
		Owner:        "owner-1",
		HealthFactor: 2.5,
		BalancesUSD:  map[string]float64{"USDC": 1000},
		Positions: []types.Position{
			{
				Symbol:               "USDC",
				Market:               "lend-usdc",
				SuppliedUSD:          500,
				SupplyAPY:            5,
				HealthFactor:         types.InfiniteHealthFactor,
				UtilizationRate:      0.3,
				MarketLiquidityUSD:   600000,
				MarketTotalSupplyUSD: 1000000,
			},
		},
	}
}

func protectionScenario(id string, priority int) types.AutomationScenario {
	return types.AutomationScenario{
		ID:       id,
		Name:     "protect " + id,
		Type:     types.ScenarioLiquidationProtection,
		Enabled:  true,
		Priority: priority,
		Params: types.ScenarioParams{
			LiquidationProtection: &types.LiquidationProtectionParams{MinHealthFactor: 1.5, RepayFraction: 0.3},
		},
	}
}

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

func repayAdvice() advisor.Advice {
	return advisor.Advice{
		Message: "repay a slice of the debt",
		Actions: []types.RebalanceAction{{
			Type:            types.ActionRepay,
			AmountUSD:       sdkmath.LegacyNewDec(100),
			Market:          "lend-usdc",
			Reason:          "reduce liquidation exposure",
			ExpectedGainUSD: sdkmath.LegacyNewDec(5),
			Risk:            types.RiskLow,
		}},
	}
}

type fixture struct {
	scheduler *Scheduler
	registry  *registry.Registry
	provider  *fakeProvider
	advisor   *fakeAdvisor
	submitter *fakeSubmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		registry: registry.New(),
		provider: &fakeProvider{account: healthyAccount()},
		advisor: &fakeAdvisor{
			adviceByID: make(map[string]advisor.Advice),
			errByID:    make(map[string]error),
		},
		submitter: &fakeSubmitter{},
	}

	sched, err := New(Config{
		Registry:  f.registry,
		Provider:  f.provider,
		Advisor:   f.advisor,
		Submitter: f.submitter,
		Params:    config.DefaultEngineParameters,
	})
	require.NoError(t, err)

	f.scheduler = sched.WithClock(func() time.Time {
		return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	})
	return f
}

func (f *fixture) register(t *testing.T, scenarios ...types.AutomationScenario) {
	t.Helper()
	_, err := f.registry.Register("owner-1", "chain-1", scenarios, types.GlobalConfig{RiskTolerance: types.RiskMedium})
	require.NoError(t, err)
}

func resultFor(t *testing.T, res types.ExecutionResult, scenarioID string) types.ScenarioResult {
	t.Helper()
	for _, sr := range res.Scenarios {
		if sr.ScenarioID == scenarioID {
			return sr
		}
	}
	t.Fatalf("scenario %s missing from result", scenarioID)
	return types.ScenarioResult{}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingDependency)

	_, err = New(Config{
		Registry:  registry.New(),
		Provider:  &fakeProvider{},
		Advisor:   &fakeAdvisor{},
		Submitter: &fakeSubmitter{},
		// zero timeout
	})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestExecuteRejectsEmptyOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExecuteUnknownOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "nobody")
	assert.ErrorIs(t, err, registry.ErrContextNotFound)
}

func TestHighPriorityExecutionPreemptsTheRest(t *testing.T) {
	f := newFixture(t)
	f.register(t,
		protectionScenario("protect", 10),
		yieldScenario("optimize", 5),
	)
	f.advisor.adviceByID["protect"] = repayAdvice()

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	protect := resultFor(t, res, "protect")
	assert.Equal(t, types.OutcomeExecuted, protect.Kind)

	optimize := resultFor(t, res, "optimize")
	assert.Equal(t, types.OutcomeSkipped, optimize.Kind)
	assert.Equal(t, "preempted by higher-priority scenario", optimize.Reason)

	assert.False(t, res.Skipped)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, types.ActionRepay, res.Transactions[0].Action.Type)
	assert.Equal(t, "owner-1", res.Transactions[0].Owner)
	assert.Equal(t, "chain-1", res.Transactions[0].ChainID)

	// One action at the default gas estimate.
	assert.True(t, res.TotalGasUSD.Equal(sdkmath.LegacyNewDec(2)), res.TotalGasUSD.String())
	assert.True(t, res.TotalProfitUSD.Equal(sdkmath.LegacyNewDec(5)), res.TotalProfitUSD.String())

	// The submitted batch is the aggregated transaction list.
	require.Len(t, f.submitter.submitted, 1)
	assert.Len(t, f.submitter.submitted[0], 1)
}

func TestHighPriorityWithoutExecutionDoesNotPreempt(t *testing.T) {
	f := newFixture(t)
	f.register(t,
		protectionScenario("protect", 10),
		protectionScenario("monitor", 5),
	)
	// The priority-10 scenario yields no actions; the next one still runs.
	f.advisor.adviceByID["protect"] = advisor.Advice{Message: "health factor comfortable"}
	f.advisor.adviceByID["monitor"] = repayAdvice()

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSkipped, resultFor(t, res, "protect").Kind)
	assert.Equal(t, "health factor comfortable", resultFor(t, res, "protect").Reason)
	assert.Equal(t, types.OutcomeExecuted, resultFor(t, res, "monitor").Kind)
	assert.Equal(t, []string{"protect", "monitor"}, f.advisor.calls)
}

func TestEmergencyStopSkipsEverything(t *testing.T) {
	f := newFixture(t)
	f.register(t, protectionScenario("protect", 10), yieldScenario("optimize", 5))
	require.NoError(t, f.registry.SetEmergencyStop("owner-1", true))
	f.advisor.adviceByID["protect"] = repayAdvice()

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Equal(t, "emergency stop active", res.Message)
	require.Len(t, res.Scenarios, 2)
	for _, sr := range res.Scenarios {
		assert.Equal(t, types.OutcomeSkipped, sr.Kind)
		assert.Equal(t, "emergency stop active", sr.Reason)
	}
	assert.Empty(t, res.Transactions)
	assert.Empty(t, f.submitter.submitted)
	assert.Empty(t, f.advisor.calls)
}

func TestDisabledScenarioIsSkipped(t *testing.T) {
	f := newFixture(t)
	disabled := protectionScenario("protect", 5)
	disabled.Enabled = false
	f.register(t, disabled)

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	sr := resultFor(t, res, "protect")
	assert.Equal(t, types.OutcomeSkipped, sr.Kind)
	assert.Equal(t, "scenario disabled", sr.Reason)
	assert.Empty(t, f.advisor.calls)
}

func TestUnsatisfiedTriggersSkipTheScenario(t *testing.T) {
	f := newFixture(t)
	s := protectionScenario("protect", 5)
	s.Triggers = []types.AutomationTrigger{
		{Type: types.TriggerHealthFactor, Value: 1.5, Comparison: types.CompareLT},
	}
	f.register(t, s)
	// Account health factor is 2.5, the trigger does not hold.

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	sr := resultFor(t, res, "protect")
	assert.Equal(t, types.OutcomeSkipped, sr.Kind)
	assert.Equal(t, "triggers not satisfied", sr.Reason)
	assert.Empty(t, f.advisor.calls)
}

func TestScenarioFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.register(t,
		protectionScenario("broken", 6),
		protectionScenario("working", 4),
	)
	f.advisor.errByID["broken"] = errors.New("advisor melted down")
	f.advisor.adviceByID["working"] = repayAdvice()

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	broken := resultFor(t, res, "broken")
	assert.Equal(t, types.OutcomeFailed, broken.Kind)
	assert.Contains(t, broken.Error, "advisor melted down")

	working := resultFor(t, res, "working")
	assert.Equal(t, types.OutcomeExecuted, working.Kind)
	assert.False(t, res.Skipped)
}

func TestAccountFetchFailureSkipsTheScenario(t *testing.T) {
	f := newFixture(t)
	f.register(t, protectionScenario("protect", 5))
	f.provider.accountErr = errors.New("market data source down")

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	// Upstream outages are skips with the cause, not scenario failures.
	sr := resultFor(t, res, "protect")
	assert.Equal(t, types.OutcomeSkipped, sr.Kind)
	assert.Contains(t, sr.Reason, "account data unavailable")
	assert.Contains(t, sr.Reason, "market data source down")
	assert.Empty(t, sr.Error)
	assert.True(t, res.Skipped)
}

func TestSkippedIsTrueOnlyWithoutTransactions(t *testing.T) {
	f := newFixture(t)
	f.register(t, protectionScenario("protect", 5))
	f.advisor.adviceByID["protect"] = advisor.Advice{Message: "nothing to do"}

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Empty(t, res.Transactions)
	assert.Empty(t, f.submitter.submitted)
	assert.Equal(t, "no scenario produced transactions", res.Message)
}

func TestRebalancePathProducesActions(t *testing.T) {
	f := newFixture(t)
	f.register(t, yieldScenario("optimize", 5))
	f.provider.opportunities = []types.YieldOpportunity{
		{Market: "pool-high", Symbol: "USDC", APY: 12, LiquidityUSD: 2000000, Risk: types.RiskLow},
	}

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	sr := resultFor(t, res, "optimize")
	assert.Equal(t, types.OutcomeExecuted, sr.Kind)
	assert.NotEmpty(t, sr.Transactions)
	assert.False(t, res.Skipped)
	assert.Equal(t, string(types.RiskLow), res.RiskAssessment)

	// The advisor is never consulted on the rebalance path.
	assert.Empty(t, f.advisor.calls)
}

func TestCyclePerformanceFlowsIntoTheRegistry(t *testing.T) {
	f := newFixture(t)
	f.register(t, protectionScenario("protect", 5))
	f.advisor.adviceByID["protect"] = repayAdvice()

	_, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)
	_, err = f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	actx, err := f.registry.Get("owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, actx.Performance.TotalCycles)
	assert.Equal(t, 2, actx.Performance.ScenariosExecuted)
	assert.True(t, actx.Performance.TotalProfitUSD.Equal(sdkmath.LegacyNewDec(10)), actx.Performance.TotalProfitUSD.String())
	assert.True(t, actx.Performance.TotalGasUSD.Equal(sdkmath.LegacyNewDec(4)), actx.Performance.TotalGasUSD.String())

	// The executed scenario carries the completion stamp.
	assert.False(t, actx.Scenarios[0].Params.LastExecution.IsZero())
}

func TestSubmissionFailureKeepsTheCycleResult(t *testing.T) {
	f := newFixture(t)
	f.register(t, protectionScenario("protect", 5))
	f.advisor.adviceByID["protect"] = repayAdvice()
	f.submitter.err = errors.New("relay unreachable")

	res, err := f.scheduler.ExecuteAutomationTasks(context.Background(), "owner-1")
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	require.Len(t, res.Transactions, 1)
	assert.Contains(t, res.Message, "submission failed: relay unreachable")
}
