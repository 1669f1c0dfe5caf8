/*

This file contains the scenario and trigger types that drive the automation
engine, plus the per-owner context that holds them.

*/

package types

import (
	"errors"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
)

// TriggerType identifies the live signal a trigger compares against.
type TriggerType string

const (
	TriggerTimeBased       TriggerType = "time_based"
	TriggerPriceBased      TriggerType = "price_based"
	TriggerAPYBased        TriggerType = "apy_based"
	TriggerHealthFactor    TriggerType = "health_factor"
	TriggerProfitThreshold TriggerType = "profit_threshold"
	TriggerLossThreshold   TriggerType = "loss_threshold"
)

// ComparisonOp is the operator applied between the live signal and the
// trigger's threshold value.
type ComparisonOp string

const (
	CompareGT  ComparisonOp = ">"
	CompareGTE ComparisonOp = ">="
	CompareLT  ComparisonOp = "<"
	CompareLTE ComparisonOp = "<="
	CompareEQ  ComparisonOp = "=="
)

// AutomationTrigger is a single condition. A scenario fires only when every
// one of its triggers holds.
type AutomationTrigger struct {
	Type       TriggerType  `json:"type"`
	Condition  string       `json:"condition"` // human-readable label, e.g. "every 6 hours"
	Value      float64      `json:"value"`     // threshold; seconds for time_based
	Comparison ComparisonOp `json:"comparison"`
}

// ScenarioType selects the execution path for a scenario.
type ScenarioType string

const (
	ScenarioYieldOptimization     ScenarioType = "yield_optimization"
	ScenarioPortfolioRebalancing  ScenarioType = "portfolio_rebalancing"
	ScenarioRiskManagement        ScenarioType = "risk_management"
	ScenarioPositionMonitoring    ScenarioType = "position_monitoring"
	ScenarioLiquidationProtection ScenarioType = "liquidation_protection"
	ScenarioProfitTaking          ScenarioType = "profit_taking"
	ScenarioStopLoss              ScenarioType = "stop_loss"
)

// MaxScenarioPriority bounds the 0-10 priority scale.
const MaxScenarioPriority = 10

var (
	ErrScenarioParamsMismatch = errors.New("scenario parameters do not match scenario type")
	ErrInvalidScenario        = errors.New("invalid scenario")
)

// YieldOptimizationParams configure yield-chasing scenarios.
type YieldOptimizationParams struct {
	TargetAPY                float64 `json:"target_apy"`                  // desired portfolio net APY in percent
	MinYieldThresholdPercent float64 `json:"min_yield_threshold_percent"` // minimum APY gap worth acting on
	MaxPositionSizeUSD       float64 `json:"max_position_size_usd"`       // cap for any single new position
}

// RebalancingParams configure full portfolio rebalancing scenarios.
type RebalancingParams struct {
	TargetAPY                float64 `json:"target_apy"`
	MinYieldThresholdPercent float64 `json:"min_yield_threshold_percent"`
	MaxPositionSizeUSD       float64 `json:"max_position_size_usd"`
	MinHealthFactor          float64 `json:"min_health_factor"` // never rebalance below this
}

// RiskManagementParams configure advisor-delegated risk scenarios.
type RiskManagementParams struct {
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	Instructions       string  `json:"instructions,omitempty"`
}

// MonitoringParams configure position-monitoring scenarios.
type MonitoringParams struct {
	WatchAssets       []string `json:"watch_assets"`
	AlertHealthFactor float64  `json:"alert_health_factor"`
}

// LiquidationProtectionParams configure automatic deleveraging scenarios.
type LiquidationProtectionParams struct {
	MinHealthFactor float64 `json:"min_health_factor"`
	RepayFraction   float64 `json:"repay_fraction"` // fraction of debt to repay when triggered
}

// ProfitTakingParams configure profit-realization scenarios.
type ProfitTakingParams struct {
	Asset             string  `json:"asset"`
	BaselineValueUSD  float64 `json:"baseline_value_usd"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
}

// StopLossParams configure loss-limiting scenarios.
type StopLossParams struct {
	Asset            string  `json:"asset"`
	BaselineValueUSD float64 `json:"baseline_value_usd"`
	StopLossPercent  float64 `json:"stop_loss_percent"`
}

// ScenarioParams is a tagged union keyed by the scenario type. Exactly one
// variant matching the scenario's type must be set; Validate enforces this.
type ScenarioParams struct {
	// LastExecution is shared by every variant and drives time_based triggers.
	LastExecution time.Time `json:"last_execution,omitempty"`

	YieldOptimization     *YieldOptimizationParams     `json:"yield_optimization,omitempty"`
	Rebalancing           *RebalancingParams           `json:"rebalancing,omitempty"`
	RiskManagement        *RiskManagementParams        `json:"risk_management,omitempty"`
	Monitoring            *MonitoringParams            `json:"monitoring,omitempty"`
	LiquidationProtection *LiquidationProtectionParams `json:"liquidation_protection,omitempty"`
	ProfitTaking          *ProfitTakingParams          `json:"profit_taking,omitempty"`
	StopLoss              *StopLossParams              `json:"stop_loss,omitempty"`
}

// Validate checks that the variant set on the union agrees with the scenario
// type and that no foreign variant is populated.
func (p ScenarioParams) Validate(scenarioType ScenarioType) error {
	variants := map[ScenarioType]bool{
		ScenarioYieldOptimization:     p.YieldOptimization != nil,
		ScenarioPortfolioRebalancing:  p.Rebalancing != nil,
		ScenarioRiskManagement:        p.RiskManagement != nil,
		ScenarioPositionMonitoring:    p.Monitoring != nil,
		ScenarioLiquidationProtection: p.LiquidationProtection != nil,
		ScenarioProfitTaking:          p.ProfitTaking != nil,
		ScenarioStopLoss:              p.StopLoss != nil,
	}

	expected, known := variants[scenarioType]
	if !known {
		return fmt.Errorf("%w: unknown scenario type %q", ErrInvalidScenario, scenarioType)
	}
	if !expected {
		return fmt.Errorf("%w: missing %q parameters", ErrScenarioParamsMismatch, scenarioType)
	}
	for t, set := range variants {
		if set && t != scenarioType {
			return fmt.Errorf("%w: %q parameters set on a %q scenario", ErrScenarioParamsMismatch, t, scenarioType)
		}
	}
	return nil
}

// Clone deep-copies the union. Variants are pointers, so a shallow struct
// copy would still share them with the original.
func (p ScenarioParams) Clone() ScenarioParams {
	cp := p
	if p.YieldOptimization != nil {
		v := *p.YieldOptimization
		cp.YieldOptimization = &v
	}
	if p.Rebalancing != nil {
		v := *p.Rebalancing
		cp.Rebalancing = &v
	}
	if p.RiskManagement != nil {
		v := *p.RiskManagement
		cp.RiskManagement = &v
	}
	if p.Monitoring != nil {
		v := *p.Monitoring
		v.WatchAssets = append([]string(nil), p.Monitoring.WatchAssets...)
		cp.Monitoring = &v
	}
	if p.LiquidationProtection != nil {
		v := *p.LiquidationProtection
		cp.LiquidationProtection = &v
	}
	if p.ProfitTaking != nil {
		v := *p.ProfitTaking
		cp.ProfitTaking = &v
	}
	if p.StopLoss != nil {
		v := *p.StopLoss
		cp.StopLoss = &v
	}
	return cp
}

// Asset returns the asset symbol a price trigger should observe, if the
// variant names one.
func (p ScenarioParams) Asset() string {
	switch {
	case p.ProfitTaking != nil:
		return p.ProfitTaking.Asset
	case p.StopLoss != nil:
		return p.StopLoss.Asset
	case p.Monitoring != nil && len(p.Monitoring.WatchAssets) > 0:
		return p.Monitoring.WatchAssets[0]
	}
	return ""
}

// AutomationScenario is a named, prioritized, enable-able automation policy.
type AutomationScenario struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Type      ScenarioType        `json:"type"`
	Enabled   bool                `json:"enabled"`
	Triggers  []AutomationTrigger `json:"triggers"`
	Params    ScenarioParams      `json:"params"`
	RiskLevel RiskLevel           `json:"risk_level"`
	Priority  int                 `json:"priority"` // 0-10, higher runs first
}

// Validate checks structural invariants of a scenario before registration.
func (s AutomationScenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: scenario ID is empty", ErrInvalidScenario)
	}
	if s.Priority < 0 || s.Priority > MaxScenarioPriority {
		return fmt.Errorf("%w: priority %d outside [0,%d]", ErrInvalidScenario, s.Priority, MaxScenarioPriority)
	}
	return s.Params.Validate(s.Type)
}

// GlobalConfig holds per-owner settings that apply across all scenarios.
type GlobalConfig struct {
	MaxSlippagePercent   float64   `json:"max_slippage_percent"`
	RiskTolerance        RiskLevel `json:"risk_tolerance"`
	EmergencyStopLossPct float64   `json:"emergency_stop_loss_pct"`
	PreferredVenues      []string  `json:"preferred_venues,omitempty"`

	// EmergencyStop suppresses every scenario for this owner until cleared.
	EmergencyStop bool `json:"emergency_stop"`
}

// PerformanceMetrics accumulates execution outcomes across cycles. Monetary
// totals use fixed-point decimals so repeated accumulation cannot drift.
type PerformanceMetrics struct {
	TotalCycles       int               `json:"total_cycles"`
	ScenariosExecuted int               `json:"scenarios_executed"`
	ScenariosSkipped  int               `json:"scenarios_skipped"`
	ScenariosFailed   int               `json:"scenarios_failed"`
	TotalProfitUSD    sdkmath.LegacyDec `json:"total_profit_usd"`
	TotalGasUSD       sdkmath.LegacyDec `json:"total_gas_usd"`
	LastCycleAt       time.Time         `json:"last_cycle_at,omitempty"`
}

// NewPerformanceMetrics returns zeroed metrics with initialized decimals.
func NewPerformanceMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		TotalProfitUSD: sdkmath.LegacyZeroDec(),
		TotalGasUSD:    sdkmath.LegacyZeroDec(),
	}
}

// AutomationContext is the per-owner collection of scenarios, configuration
// and running performance metrics. It is owned exclusively by the engine.
type AutomationContext struct {
	Owner       string               `json:"owner"`
	ChainID     string               `json:"chain_id"`
	Scenarios   []AutomationScenario `json:"scenarios"`
	Config      GlobalConfig         `json:"config"`
	Performance PerformanceMetrics   `json:"performance"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// SortScenarios orders the scenario list by descending priority. The registry
// calls this after every registration and update so the scheduler can rely on
// the ordering.
func (c *AutomationContext) SortScenarios() {
	sort.SliceStable(c.Scenarios, func(i, j int) bool {
		return c.Scenarios[i].Priority > c.Scenarios[j].Priority
	})
}
