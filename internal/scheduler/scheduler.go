/*

This file contains the priority scheduler. One cycle walks an owner's
scenarios in descending priority, evaluates triggers, dispatches the matching
execution path, and aggregates the outcomes. A failing scenario never takes
the cycle down with it.

*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/axiom-fi/sae/internal/advisor"
	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/marketdata"
	"github.com/axiom-fi/sae/internal/metrics"
	"github.com/axiom-fi/sae/internal/rebalancer"
	"github.com/axiom-fi/sae/internal/registry"
	"github.com/axiom-fi/sae/internal/risk"
	"github.com/axiom-fi/sae/internal/submitter"
	"github.com/axiom-fi/sae/internal/tracker"
	"github.com/axiom-fi/sae/internal/triggers"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/axiom-fi/sae/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrValidation        = errors.New("request validation failed")
	ErrMissingDependency = errors.New("scheduler dependency missing")
)

// CycleStore persists finished cycles. Optional; a nil store disables
// persistence.
type CycleStore interface {
	IncrementCycleNumber() (int, error)
	SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error)
}

// Scheduler executes automation cycles over registered owners.
type Scheduler struct {
	registry  *registry.Registry
	provider  marketdata.Provider
	advisor   advisor.StrategyAdvisor
	submitter submitter.Submitter
	evaluator *triggers.Evaluator
	store     CycleStore
	params    types.EngineParameters

	logger zerolog.Logger
	now    func() time.Time
}

// Config holds the dependencies for creating a Scheduler.
type Config struct {
	Registry  *registry.Registry
	Provider  marketdata.Provider
	Advisor   advisor.StrategyAdvisor
	Submitter submitter.Submitter
	Store     CycleStore // optional
	Params    types.EngineParameters
}

// New creates a scheduler with dependency injection.
func New(cfg Config) (*Scheduler, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("scheduler configuration validation failed: %w", err)
	}

	s := &Scheduler{
		registry:  cfg.Registry,
		provider:  cfg.Provider,
		advisor:   cfg.Advisor,
		submitter: cfg.Submitter,
		evaluator: triggers.NewEvaluator(cfg.Provider),
		store:     cfg.Store,
		params:    cfg.Params,
		logger:    logger.GetForComponent("priority_scheduler"),
		now:       time.Now,
	}

	s.logger.Info().
		Int("highPriorityThreshold", cfg.Params.HighPriorityThreshold).
		Msg("Scheduler created")
	return s, nil
}

func validateConfig(cfg Config) error {
	if cfg.Registry == nil {
		return fmt.Errorf("%w: registry cannot be nil", ErrMissingDependency)
	}
	if cfg.Provider == nil {
		return fmt.Errorf("%w: market data provider cannot be nil", ErrMissingDependency)
	}
	if cfg.Advisor == nil {
		return fmt.Errorf("%w: strategy advisor cannot be nil", ErrMissingDependency)
	}
	if cfg.Submitter == nil {
		return fmt.Errorf("%w: submitter cannot be nil", ErrMissingDependency)
	}
	if cfg.Params.ExternalCallTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: external call timeout must be positive", ErrMissingDependency)
	}
	return nil
}

// WithClock overrides the time source. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	s.evaluator.WithClock(now)
	return s
}

// ExecuteAutomationTasks runs one full cycle for an owner: scenarios in
// descending priority, preemption after a successful high-priority execution,
// aggregation into a single ExecutionResult.
func (s *Scheduler) ExecuteAutomationTasks(ctx context.Context, owner string) (types.ExecutionResult, error) {
	if owner == "" {
		return types.ExecutionResult{}, fmt.Errorf("%w: owner cannot be empty", ErrValidation)
	}

	actx, err := s.registry.Get(owner)
	if err != nil {
		return types.ExecutionResult{}, err
	}

	cycleID := uuid.New().String()
	cycleLogger := s.logger.With().Str("cycle_id", cycleID).Str("owner", owner).Logger()
	cycleLogger.Info().Int("scenarios", len(actx.Scenarios)).Msg("--- Starting automation cycle ---")

	res := types.ExecutionResult{
		Owner:          owner,
		CycleID:        cycleID,
		StartedAt:      s.now(),
		TotalProfitUSD: sdkmath.LegacyZeroDec(),
		TotalGasUSD:    sdkmath.LegacyZeroDec(),
	}

	if actx.Config.EmergencyStop {
		cycleLogger.Warn().Msg("Emergency stop active, skipping all scenarios")
		for _, scenario := range actx.Scenarios {
			res.Scenarios = append(res.Scenarios, types.SkippedScenario(scenario, "emergency stop active"))
		}
		res.Message = "emergency stop active"
		return s.finalize(ctx, cycleLogger, res)
	}

	preempted := false
	riskVerdict := ""
	for _, scenario := range actx.Scenarios {
		if preempted {
			res.Scenarios = append(res.Scenarios, types.SkippedScenario(scenario, "preempted by higher-priority scenario"))
			continue
		}

		result, verdict := s.runScenario(ctx, cycleLogger, actx, scenario)
		res.Scenarios = append(res.Scenarios, result)
		if verdict != "" {
			riskVerdict = verdict
		}

		if result.Executed() && scenario.Priority > s.params.HighPriorityThreshold {
			cycleLogger.Info().
				Str("scenario", scenario.ID).
				Int("priority", scenario.Priority).
				Msg("High-priority scenario executed, preempting the remaining scenarios")
			preempted = true
		}
	}

	for _, sr := range res.Scenarios {
		if !sr.Executed() {
			continue
		}
		res.Transactions = append(res.Transactions, sr.Transactions...)
		res.TotalProfitUSD = res.TotalProfitUSD.Add(sr.ProfitUSD)
		res.TotalGasUSD = res.TotalGasUSD.Add(sr.GasUSD)
	}
	res.RiskAssessment = riskVerdict

	return s.finalize(ctx, cycleLogger, res)
}

// finalize stamps, submits, records and optionally persists the cycle.
func (s *Scheduler) finalize(ctx context.Context, cycleLogger zerolog.Logger, res types.ExecutionResult) (types.ExecutionResult, error) {
	res.Skipped = len(res.Transactions) == 0
	if res.Message == "" {
		if res.Skipped {
			res.Message = "no scenario produced transactions"
		} else {
			res.Message = fmt.Sprintf("%d transactions proposed", len(res.Transactions))
		}
	}
	res.CompletedAt = s.now()

	if len(res.Transactions) > 0 {
		if _, err := s.submitter.Submit(ctx, res.Transactions); err != nil {
			cycleLogger.Error().Err(err).Msg("Transaction submission failed")
			res.Message = res.Message + "; submission failed: " + err.Error()
		}
	}

	if err := s.registry.RecordCycle(res.Owner, res, tracker.ApplyResult); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to record cycle into context")
	}

	s.persistSnapshot(cycleLogger, res)

	cycleLogger.Info().
		Bool("skipped", res.Skipped).
		Int("transactions", len(res.Transactions)).
		Str("totalProfitUSD", res.TotalProfitUSD.String()).
		Str("cycleDuration", res.CompletedAt.Sub(res.StartedAt).String()).
		Msg("--- Automation cycle completed ---")

	return res, nil
}

func (s *Scheduler) persistSnapshot(cycleLogger zerolog.Logger, res types.ExecutionResult) {
	if s.store == nil {
		return
	}
	cycleNumber, err := s.store.IncrementCycleNumber()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to increment cycle number, snapshot not saved")
		return
	}
	snapshotID, err := s.store.SaveCycleSnapshot(types.SnapshotFromResult(res, cycleNumber))
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot")
		return
	}
	cycleLogger.Info().Int64("snapshot_id", snapshotID).Int("cycle_number", cycleNumber).Msg("Cycle snapshot saved")
}

// runScenario evaluates and dispatches one scenario. Panics and errors are
// contained here; the returned verdict string is the overall risk level when
// the scenario path computed one.
func (s *Scheduler) runScenario(
	ctx context.Context,
	cycleLogger zerolog.Logger,
	actx types.AutomationContext,
	scenario types.AutomationScenario,
) (result types.ScenarioResult, verdict string) {
	defer func() {
		if r := recover(); r != nil {
			cycleLogger.Error().
				Str("scenario", scenario.ID).
				Interface("panic", r).
				Msg("Scenario panicked, contained")
			result = types.FailedScenario(scenario, fmt.Errorf("scenario panicked: %v", r))
		}
	}()

	if !scenario.Enabled {
		return types.SkippedScenario(scenario, "scenario disabled"), ""
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.params.ExternalCallTimeoutSeconds)*time.Second)
	defer cancel()

	// A data-fetch failure is an upstream outage, not a scenario defect. The
	// scenario is skipped with the cause and retried next cycle.
	account, err := s.provider.GetAccount(callCtx, actx.Owner)
	if err != nil {
		cycleLogger.Warn().Err(err).Str("scenario", scenario.ID).Msg("Account fetch failed, skipping scenario")
		return types.SkippedScenario(scenario, fmt.Sprintf("account data unavailable: %v", err)), ""
	}

	satisfied, err := s.evaluator.CheckScenarioTriggers(callCtx, scenario, actx, account)
	if err != nil {
		return types.FailedScenario(scenario, err), ""
	}
	if !satisfied {
		return types.SkippedScenario(scenario, "triggers not satisfied"), ""
	}

	switch scenario.Type {
	case types.ScenarioYieldOptimization, types.ScenarioPortfolioRebalancing:
		return s.runRebalancePath(callCtx, cycleLogger, actx, scenario, account)
	default:
		return s.runAdvisorPath(callCtx, cycleLogger, actx, scenario, account)
	}
}

// runRebalancePath is the deterministic metrics → risk → actions pipeline for
// yield optimization and portfolio rebalancing scenarios.
func (s *Scheduler) runRebalancePath(
	ctx context.Context,
	cycleLogger zerolog.Logger,
	actx types.AutomationContext,
	scenario types.AutomationScenario,
	account types.AccountSnapshot,
) (types.ScenarioResult, string) {
	cfg, err := rebalanceConfig(scenario)
	if err != nil {
		return types.FailedScenario(scenario, err), ""
	}

	portfolio, err := metrics.CalculatePortfolioMetrics(account)
	if err != nil {
		return types.FailedScenario(scenario, err), ""
	}
	riskMetrics, err := risk.AssessRisk(account, portfolio)
	if err != nil {
		return types.FailedScenario(scenario, err), ""
	}
	verdict := string(riskMetrics.OverallRisk)

	opportunities, err := s.provider.GetYieldOpportunities(ctx, s.params.MinOpportunityLiquidityUSD, actx.Config.RiskTolerance)
	if err != nil {
		cycleLogger.Warn().Err(err).Str("scenario", scenario.ID).Msg("Opportunity fetch failed, skipping scenario")
		return types.SkippedScenario(scenario, fmt.Sprintf("opportunity data unavailable: %v", err)), verdict
	}

	should, reason := rebalancer.ShouldRebalance(portfolio, riskMetrics, opportunities, cfg)
	if !should {
		return types.SkippedScenario(scenario, reason), verdict
	}

	actions, err := rebalancer.GenerateRebalanceActions(account, portfolio, riskMetrics, opportunities, cfg, s.params)
	if err != nil {
		return types.FailedScenario(scenario, err), verdict
	}
	if len(actions) == 0 {
		return types.SkippedScenario(scenario, "no action clears the yield threshold"), verdict
	}

	txs, profit, gas, err := s.packageActions(actx, actions)
	if err != nil {
		return types.FailedScenario(scenario, err), verdict
	}

	cycleLogger.Info().
		Str("scenario", scenario.ID).
		Str("trigger_reason", reason).
		Int("actions", len(actions)).
		Str("expectedProfitUSD", profit.String()).
		Msg("Rebalance scenario executed")
	return types.ExecutedScenario(scenario, txs, profit, gas), verdict
}

// runAdvisorPath delegates the remaining scenario types to the injected
// strategy advisor.
func (s *Scheduler) runAdvisorPath(
	ctx context.Context,
	cycleLogger zerolog.Logger,
	actx types.AutomationContext,
	scenario types.AutomationScenario,
	account types.AccountSnapshot,
) (types.ScenarioResult, string) {
	portfolio, err := metrics.CalculatePortfolioMetrics(account)
	if err != nil {
		return types.FailedScenario(scenario, err), ""
	}
	riskMetrics, err := risk.AssessRisk(account, portfolio)
	if err != nil {
		return types.FailedScenario(scenario, err), ""
	}
	verdict := string(riskMetrics.OverallRisk)

	advice, err := s.advisor.Run(ctx, advisor.Request{
		Owner:     actx.Owner,
		ChainID:   actx.ChainID,
		Scenario:  scenario,
		Account:   account,
		Portfolio: portfolio,
		Risk:      riskMetrics,
	})
	if err != nil {
		cycleLogger.Error().Err(err).Str("scenario", scenario.ID).Msg("Strategy advisor failed")
		return types.FailedScenario(scenario, err), verdict
	}
	if len(advice.Actions) == 0 {
		return types.SkippedScenario(scenario, advice.Message), verdict
	}

	txs, profit, gas, err := s.packageActions(actx, advice.Actions)
	if err != nil {
		return types.FailedScenario(scenario, err), verdict
	}

	cycleLogger.Info().
		Str("scenario", scenario.ID).
		Str("advice", advice.Message).
		Int("actions", len(advice.Actions)).
		Msg("Advisor scenario executed")
	return types.ExecutedScenario(scenario, txs, profit, gas), verdict
}

// packageActions converts proposed actions into transaction requests and sums
// the expected profit and the gas estimate.
func (s *Scheduler) packageActions(actx types.AutomationContext, actions []types.RebalanceAction) ([]types.TransactionRequest, sdkmath.LegacyDec, sdkmath.LegacyDec, error) {
	txs := make([]types.TransactionRequest, 0, len(actions))
	profit := sdkmath.LegacyZeroDec()
	for _, action := range actions {
		txs = append(txs, types.TransactionRequest{
			Owner:   actx.Owner,
			ChainID: actx.ChainID,
			Action:  action,
		})
		if !action.ExpectedGainUSD.IsNil() {
			profit = profit.Add(action.ExpectedGainUSD)
		}
	}

	gasPerAction, err := utils.Float64ToDec(s.params.GasEstimatePerActionUSD)
	if err != nil {
		return nil, sdkmath.LegacyDec{}, sdkmath.LegacyDec{}, err
	}
	gas := gasPerAction.MulInt64(int64(len(actions)))
	return txs, profit, gas, nil
}

// rebalanceConfig extracts the scenario-level knobs from the typed parameter
// variant.
func rebalanceConfig(scenario types.AutomationScenario) (rebalancer.Config, error) {
	switch scenario.Type {
	case types.ScenarioYieldOptimization:
		p := scenario.Params.YieldOptimization
		if p == nil {
			return rebalancer.Config{}, fmt.Errorf("%w: missing yield optimization parameters", types.ErrScenarioParamsMismatch)
		}
		return rebalancer.Config{
			TargetAPY:                p.TargetAPY,
			MinYieldThresholdPercent: p.MinYieldThresholdPercent,
			MaxPositionSizeUSD:       p.MaxPositionSizeUSD,
		}, nil
	case types.ScenarioPortfolioRebalancing:
		p := scenario.Params.Rebalancing
		if p == nil {
			return rebalancer.Config{}, fmt.Errorf("%w: missing rebalancing parameters", types.ErrScenarioParamsMismatch)
		}
		return rebalancer.Config{
			TargetAPY:                p.TargetAPY,
			MinYieldThresholdPercent: p.MinYieldThresholdPercent,
			MaxPositionSizeUSD:       p.MaxPositionSizeUSD,
			MinHealthFactor:          p.MinHealthFactor,
		}, nil
	default:
		return rebalancer.Config{}, fmt.Errorf("%w: scenario type %q has no rebalance path", types.ErrInvalidScenario, scenario.Type)
	}
}

// RunLoop executes cycles for every registered owner on a fixed interval.
// The first round runs immediately.
func (s *Scheduler) RunLoop(ctx context.Context, interval time.Duration) {
	s.logger.Info().Dur("interval", interval).Msg("Starting scheduler loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runAllOwners(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler loop stopped due to context cancellation")
			return
		case <-ticker.C:
			s.runAllOwners(ctx)
		}
	}
}

func (s *Scheduler) runAllOwners(ctx context.Context) {
	owners := s.registry.Owners()
	if len(owners) == 0 {
		s.logger.Debug().Msg("No registered owners, nothing to do")
		return
	}

	var wg sync.WaitGroup
	for _, owner := range owners {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			if _, err := s.ExecuteAutomationTasks(ctx, owner); err != nil {
				s.logger.Error().Err(err).Str("owner", owner).Msg("Cycle failed")
			}
		}(owner)
	}
	wg.Wait()
}
