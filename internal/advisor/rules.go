/*

This file contains the deterministic rule-based advisor. It is the default
when no AI backend is configured, and the fallback behavior tests are written
against.

*/

package advisor

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/rebalancer"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/axiom-fi/sae/internal/utils"
	"github.com/rs/zerolog"
)

// RuleBasedAdvisor applies fixed policies per scenario type. It never calls
// out of process.
type RuleBasedAdvisor struct {
	params types.EngineParameters
	logger zerolog.Logger
}

// NewRuleBased creates the deterministic advisor.
func NewRuleBased(params types.EngineParameters) *RuleBasedAdvisor {
	return &RuleBasedAdvisor{
		params: params,
		logger: logger.GetForComponent("rule_advisor"),
	}
}

// Run dispatches on the scenario type.
func (a *RuleBasedAdvisor) Run(_ context.Context, req Request) (Advice, error) {
	switch req.Scenario.Type {
	case types.ScenarioLiquidationProtection:
		return a.protectFromLiquidation(req)
	case types.ScenarioProfitTaking:
		return a.takeProfit(req)
	case types.ScenarioStopLoss:
		return a.stopLoss(req)
	case types.ScenarioPositionMonitoring:
		return a.monitorPositions(req)
	case types.ScenarioRiskManagement:
		return a.manageRisk(req)
	default:
		return Advice{}, fmt.Errorf("%w: no rule for scenario type %q", ErrMalformedAdvice, req.Scenario.Type)
	}
}

// protectFromLiquidation repays a fraction of debt on every indebted position
// once the account health factor falls below the scenario's minimum.
func (a *RuleBasedAdvisor) protectFromLiquidation(req Request) (Advice, error) {
	p := req.Scenario.Params.LiquidationProtection
	if p == nil {
		return Advice{}, fmt.Errorf("%w: missing liquidation protection parameters", ErrMalformedAdvice)
	}

	if req.Account.HealthFactor >= p.MinHealthFactor {
		return Advice{Message: fmt.Sprintf("health factor %.2f above protection floor %.2f", req.Account.HealthFactor, p.MinHealthFactor)}, nil
	}

	var actions []types.RebalanceAction
	for _, pos := range req.Account.Positions {
		if !pos.HasDebt() {
			continue
		}
		amount, err := utils.Float64ToDec(pos.BorrowedUSD * p.RepayFraction)
		if err != nil {
			return Advice{}, err
		}
		gain, err := rebalancer.ExpectedGain(amount, 0, pos.BorrowAPY)
		if err != nil {
			return Advice{}, err
		}
		actions = append(actions, types.RebalanceAction{
			Type:            types.ActionRepay,
			AmountUSD:       amount,
			Market:          pos.Market,
			Reason:          fmt.Sprintf("account health factor %.2f below protection floor %.2f", req.Account.HealthFactor, p.MinHealthFactor),
			ExpectedGainUSD: gain,
			Risk:            types.RiskLow,
		})
	}

	return Advice{
		Actions: actions,
		Message: fmt.Sprintf("deleveraging %d positions to restore health factor", len(actions)),
	}, nil
}

// takeProfit withdraws the gain over the baseline once the asset's value has
// appreciated past the take-profit percentage.
func (a *RuleBasedAdvisor) takeProfit(req Request) (Advice, error) {
	p := req.Scenario.Params.ProfitTaking
	if p == nil {
		return Advice{}, fmt.Errorf("%w: missing profit taking parameters", ErrMalformedAdvice)
	}
	if p.BaselineValueUSD <= 0 {
		return Advice{}, fmt.Errorf("%w: baseline value must be positive", ErrMalformedAdvice)
	}

	current, position := assetValue(req.Account, p.Asset)
	gainPct := (current - p.BaselineValueUSD) / p.BaselineValueUSD * 100.0
	if gainPct < p.TakeProfitPercent {
		return Advice{Message: fmt.Sprintf("%s gain %.2f%% below take-profit %.2f%%", p.Asset, gainPct, p.TakeProfitPercent)}, nil
	}
	if position == nil {
		return Advice{Message: fmt.Sprintf("%s appreciated %.2f%% but holds no withdrawable position", p.Asset, gainPct)}, nil
	}

	profit := current - p.BaselineValueUSD
	if profit > position.SuppliedUSD {
		profit = position.SuppliedUSD
	}
	amount, err := utils.Float64ToDec(profit)
	if err != nil {
		return Advice{}, err
	}

	return Advice{
		Actions: []types.RebalanceAction{{
			Type:            types.ActionWithdraw,
			AmountUSD:       amount,
			Market:          position.Market,
			Reason:          fmt.Sprintf("%s up %.2f%% over baseline, realizing profit", p.Asset, gainPct),
			ExpectedGainUSD: amount,
			Risk:            types.RiskLow,
		}},
		Message: fmt.Sprintf("taking %s profit of %s USD", p.Asset, amount.String()),
	}, nil
}

// stopLoss exits the asset's position entirely once the loss against the
// baseline exceeds the stop-loss percentage.
func (a *RuleBasedAdvisor) stopLoss(req Request) (Advice, error) {
	p := req.Scenario.Params.StopLoss
	if p == nil {
		return Advice{}, fmt.Errorf("%w: missing stop loss parameters", ErrMalformedAdvice)
	}
	if p.BaselineValueUSD <= 0 {
		return Advice{}, fmt.Errorf("%w: baseline value must be positive", ErrMalformedAdvice)
	}

	current, position := assetValue(req.Account, p.Asset)
	lossPct := (p.BaselineValueUSD - current) / p.BaselineValueUSD * 100.0
	if lossPct < p.StopLossPercent {
		return Advice{Message: fmt.Sprintf("%s drawdown %.2f%% within stop-loss %.2f%%", p.Asset, lossPct, p.StopLossPercent)}, nil
	}
	if position == nil || position.SuppliedUSD <= 0 {
		return Advice{Message: fmt.Sprintf("%s breached stop-loss but holds no withdrawable position", p.Asset)}, nil
	}

	amount, err := utils.Float64ToDec(position.SuppliedUSD)
	if err != nil {
		return Advice{}, err
	}

	return Advice{
		Actions: []types.RebalanceAction{{
			Type:            types.ActionWithdraw,
			AmountUSD:       amount,
			Market:          position.Market,
			Reason:          fmt.Sprintf("%s down %.2f%% from baseline, exiting position", p.Asset, lossPct),
			ExpectedGainUSD: sdkmath.LegacyZeroDec(),
			Risk:            types.RiskLow,
		}},
		Message: fmt.Sprintf("stop-loss exit of %s position", p.Asset),
	}, nil
}

// monitorPositions never proposes actions; it reports fragile positions.
func (a *RuleBasedAdvisor) monitorPositions(req Request) (Advice, error) {
	p := req.Scenario.Params.Monitoring
	if p == nil {
		return Advice{}, fmt.Errorf("%w: missing monitoring parameters", ErrMalformedAdvice)
	}

	fragile := 0
	for _, pos := range req.Account.Positions {
		if pos.HasDebt() && pos.HealthFactor < p.AlertHealthFactor {
			fragile++
			a.logger.Warn().
				Str("owner", req.Owner).
				Str("market", pos.Market).
				Float64("healthFactor", pos.HealthFactor).
				Float64("alertBelow", p.AlertHealthFactor).
				Msg("Position health factor below alert threshold")
		}
	}
	if fragile == 0 {
		return Advice{Message: "all monitored positions healthy"}, nil
	}
	return Advice{Message: fmt.Sprintf("%d positions below alert health factor %.2f", fragile, p.AlertHealthFactor)}, nil
}

// manageRisk deleverages fragile positions whenever the assessed overall risk
// is high.
func (a *RuleBasedAdvisor) manageRisk(req Request) (Advice, error) {
	p := req.Scenario.Params.RiskManagement
	if p == nil {
		return Advice{}, fmt.Errorf("%w: missing risk management parameters", ErrMalformedAdvice)
	}

	if req.Risk.OverallRisk != types.RiskHigh {
		return Advice{Message: fmt.Sprintf("overall risk %s, no intervention", req.Risk.OverallRisk)}, nil
	}

	var actions []types.RebalanceAction
	for _, pos := range req.Account.Positions {
		if !pos.HasDebt() || pos.HealthFactor >= a.params.RepayHealthFactorCeiling {
			continue
		}
		amount, err := utils.Float64ToDec(pos.BorrowedUSD * a.params.DebtRepayFraction)
		if err != nil {
			return Advice{}, err
		}
		gain, err := rebalancer.ExpectedGain(amount, 0, pos.BorrowAPY)
		if err != nil {
			return Advice{}, err
		}
		actions = append(actions, types.RebalanceAction{
			Type:            types.ActionRepay,
			AmountUSD:       amount,
			Market:          pos.Market,
			Reason:          "overall portfolio risk high, reducing leverage",
			ExpectedGainUSD: gain,
			Risk:            types.RiskLow,
		})
	}

	if len(actions) == 0 {
		return Advice{Message: "overall risk high but no indebted position to deleverage"}, nil
	}
	return Advice{Actions: actions, Message: fmt.Sprintf("deleveraging %d positions on high overall risk", len(actions))}, nil
}

// assetValue sums the owner's exposure to an asset: liquid balance plus the
// supplied amount of its position, if any.
func assetValue(account types.AccountSnapshot, asset string) (float64, *types.Position) {
	total := account.BalancesUSD[asset]
	var position *types.Position
	for i := range account.Positions {
		if account.Positions[i].Symbol == asset {
			total += account.Positions[i].SuppliedUSD
			if position == nil || account.Positions[i].SuppliedUSD > position.SuppliedUSD {
				position = &account.Positions[i]
			}
		}
	}
	return total, position
}
