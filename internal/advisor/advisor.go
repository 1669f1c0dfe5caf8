/*

This file defines the strategy advisor consumed by the scheduler for the
scenario types that are not plain yield rebalancing. The advisor is injected;
the scheduler never constructs one itself.

*/

package advisor

import (
	"context"
	"errors"

	"github.com/axiom-fi/sae/internal/types"
)

var (
	ErrAdvisorUnavailable = errors.New("strategy advisor unavailable")
	ErrMalformedAdvice    = errors.New("malformed advice from strategy advisor")
)

// Request carries everything an advisor may need to decide on one scenario.
type Request struct {
	Owner     string
	ChainID   string
	Scenario  types.AutomationScenario
	Account   types.AccountSnapshot
	Portfolio types.PortfolioMetrics
	Risk      types.RiskMetrics
}

// Advice is the advisor's verdict: zero or more proposed actions plus a
// human-readable rationale. No actions means the scenario is skipped.
type Advice struct {
	Actions []types.RebalanceAction
	Message string
}

// StrategyAdvisor decides what, if anything, a non-rebalancing scenario
// should do this cycle.
type StrategyAdvisor interface {
	Run(ctx context.Context, req Request) (Advice, error)
}
