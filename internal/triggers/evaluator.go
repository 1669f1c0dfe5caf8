/*

This file contains the trigger evaluator. A scenario's triggers combine by
conjunction: every trigger must hold before the scheduler dispatches the
scenario. Acting on partial signal is worse than not acting, so there is no
OR mode.

*/

package triggers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/marketdata"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/axiom-fi/sae/internal/utils"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrUnknownComparison  = errors.New("unknown comparison operator")
	ErrMissingAsset       = errors.New("price trigger requires an asset in the scenario parameters")
)

// Evaluator decides whether a scenario's conditions currently hold.
type Evaluator struct {
	provider marketdata.Provider
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEvaluator creates an evaluator backed by the given provider.
func NewEvaluator(provider marketdata.Provider) *Evaluator {
	return &Evaluator{
		provider: provider,
		logger:   logger.GetForComponent("trigger_evaluator"),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// CheckScenarioTriggers reports whether every trigger of the scenario holds.
// An empty trigger list holds trivially.
func (e *Evaluator) CheckScenarioTriggers(
	ctx context.Context,
	scenario types.AutomationScenario,
	actx types.AutomationContext,
	account types.AccountSnapshot,
) (bool, error) {
	for _, trigger := range scenario.Triggers {
		ok, err := e.Evaluate(ctx, trigger, scenario, actx, account)
		if err != nil {
			return false, err
		}
		if !ok {
			e.logger.Debug().
				Str("owner", actx.Owner).
				Str("scenario", scenario.ID).
				Str("trigger", string(trigger.Type)).
				Msg("Trigger not satisfied")
			return false, nil
		}
	}
	return true, nil
}

// Evaluate checks a single trigger against its live signal.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	trigger types.AutomationTrigger,
	scenario types.AutomationScenario,
	actx types.AutomationContext,
	account types.AccountSnapshot,
) (bool, error) {
	switch trigger.Type {
	case types.TriggerTimeBased:
		// Never-executed scenarios have a zero LastExecution, which makes the
		// elapsed time effectively unbounded and the trigger hold.
		elapsed := e.now().Sub(scenario.Params.LastExecution).Seconds()
		return elapsed >= trigger.Value, nil

	case types.TriggerPriceBased:
		asset := scenario.Params.Asset()
		if asset == "" {
			return false, fmt.Errorf("%w: scenario %s", ErrMissingAsset, scenario.ID)
		}
		price, err := e.provider.GetAssetPrice(ctx, asset)
		if err != nil {
			return false, err
		}
		return compare(price, trigger.Comparison, trigger.Value)

	case types.TriggerAPYBased:
		return compare(netSupplyAPY(account), trigger.Comparison, trigger.Value)

	case types.TriggerHealthFactor:
		return compare(account.HealthFactor, trigger.Comparison, trigger.Value)

	case types.TriggerProfitThreshold:
		profit, err := utils.DecToFloat64(actx.Performance.TotalProfitUSD)
		if err != nil {
			return false, err
		}
		return compare(profit, trigger.Comparison, trigger.Value)

	case types.TriggerLossThreshold:
		profit, err := utils.DecToFloat64(actx.Performance.TotalProfitUSD)
		if err != nil {
			return false, err
		}
		// Loss thresholds compare the loss magnitude, so a -$120 running
		// profit is a $120 loss.
		loss := 0.0
		if profit < 0 {
			loss = -profit
		}
		return compare(loss, trigger.Comparison, trigger.Value)

	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownTriggerType, trigger.Type)
	}
}

// netSupplyAPY is the supply-weighted APY of the account, the live signal for
// apy_based triggers.
func netSupplyAPY(account types.AccountSnapshot) float64 {
	totalSupplied := 0.0
	weighted := 0.0
	for _, pos := range account.Positions {
		totalSupplied += pos.SuppliedUSD
		weighted += pos.SuppliedUSD * pos.SupplyAPY
	}
	if totalSupplied == 0 {
		return 0
	}
	return weighted / totalSupplied
}

func compare(value float64, op types.ComparisonOp, threshold float64) (bool, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false, fmt.Errorf("trigger signal is not finite: %f", value)
	}
	switch op {
	case types.CompareGT:
		return value > threshold, nil
	case types.CompareGTE:
		return value >= threshold, nil
	case types.CompareLT:
		return value < threshold, nil
	case types.CompareLTE:
		return value <= threshold, nil
	case types.CompareEQ:
		return value == threshold, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownComparison, op)
	}
}
